package pattern

import (
	"errors"
	"fmt"

	"clap-trainer/position"
)

// ErrMalformedPattern is returned when slot data does not describe 32 slots
var ErrMalformedPattern = errors.New("malformed pattern")

// Role is the metrical role of a slot
type Role string

const (
	RoleMain Role = "main" // on the beat
	RoleSub  Role = "sub"  // e, &, a
)

// Accent is the relative loudness a slot sounds with
type Accent int

const (
	AccentNone Accent = iota // disabled, no sound
	AccentWeak
	AccentMedium
	AccentStrong
)

// VolumeOffset returns the accent as a dB offset from the base volume
func (a Accent) VolumeOffset() float64 {
	switch a {
	case AccentStrong:
		return 4
	case AccentWeak:
		return -4
	default:
		return 0
	}
}

func (a Accent) String() string {
	switch a {
	case AccentStrong:
		return "strong"
	case AccentMedium:
		return "medium"
	case AccentWeak:
		return "weak"
	default:
		return "none"
	}
}

// SubBeat is one slot of the grid. Only Enabled is mutable; everything else
// is derived from the index.
type SubBeat struct {
	Index   int    `json:"index"`
	Role    Role   `json:"role"`
	Label   string `json:"label"`
	Enabled bool   `json:"enabled"`
}

// NewSubBeat builds the disabled slot at index
func NewSubBeat(index int) SubBeat {
	role := RoleSub
	if position.IsMain(index) {
		role = RoleMain
	}
	return SubBeat{
		Index: index,
		Role:  role,
		Label: position.Label(index),
	}
}

// Accent is a pure function of role, index 0 and enabled
func (s SubBeat) Accent() Accent {
	switch {
	case !s.Enabled:
		return AccentNone
	case s.Role == RoleMain && s.Index == 0:
		return AccentStrong
	case s.Role == RoleMain:
		return AccentMedium
	default:
		return AccentWeak
	}
}

// Note is the display note: C2 for main hits, C1 for sub hits, Rest when off
func (s SubBeat) Note() string {
	switch {
	case !s.Enabled:
		return "Rest"
	case s.Role == RoleMain:
		return "C2"
	default:
		return "C1"
	}
}

// Position returns where the slot sounds on the timeline
func (s SubBeat) Position() position.Position {
	return position.SlotPosition(s.Index)
}

// Pattern is the fixed 32-slot grid
type Pattern [position.TotalSlots]SubBeat

// New returns an empty pattern
func New() Pattern {
	var p Pattern
	for i := range p {
		p[i] = NewSubBeat(i)
	}
	return p
}

// FromIndices returns a pattern with the given slots enabled
func FromIndices(indices ...int) Pattern {
	p := New()
	for _, i := range indices {
		p.Enable(i)
	}
	return p
}

func inRange(i int) bool { return i >= 0 && i < position.TotalSlots }

// Toggle flips slot i and returns its new state
func (p *Pattern) Toggle(i int) bool {
	if !inRange(i) {
		return false
	}
	p[i].Enabled = !p[i].Enabled
	return p[i].Enabled
}

// Enable turns slot i on
func (p *Pattern) Enable(i int) {
	if inRange(i) {
		p[i].Enabled = true
	}
}

// Disable turns slot i off
func (p *Pattern) Disable(i int) {
	if inRange(i) {
		p[i].Enabled = false
	}
}

// Clear disables every slot
func (p *Pattern) Clear() {
	*p = New()
}

// Load replaces the pattern with persisted slot data. The data must hold
// exactly 32 slots; on error the pattern is left unchanged. Derived fields
// are rebuilt from the index so tampered roles or labels cannot leak in.
func (p *Pattern) Load(slots []SubBeat) error {
	if len(slots) != position.TotalSlots {
		return fmt.Errorf("load pattern: %w: %d slots, want %d", ErrMalformedPattern, len(slots), position.TotalSlots)
	}
	next := New()
	for i, s := range slots {
		next[i].Enabled = s.Enabled
	}
	*p = next
	return nil
}

// Slots returns a copy of the slots as a slice (for persistence)
func (p Pattern) Slots() []SubBeat {
	out := make([]SubBeat, len(p))
	copy(out, p[:])
	return out
}

// Enabled returns the indices of enabled slots in order
func (p Pattern) Enabled() []int {
	var out []int
	for i, s := range p {
		if s.Enabled {
			out = append(out, i)
		}
	}
	return out
}

// EnabledCount returns the number of enabled slots
func (p Pattern) EnabledCount() int {
	n := 0
	for _, s := range p {
		if s.Enabled {
			n++
		}
	}
	return n
}

// IsEmpty reports whether no slot sounds
func (p Pattern) IsEmpty() bool { return p.EnabledCount() == 0 }

// String renders the grid as x/. per slot, one group per beat
func (p Pattern) String() string {
	buf := make([]byte, 0, position.TotalSlots+position.PatternBeats)
	for i, s := range p {
		if i > 0 && position.IsMain(i) {
			buf = append(buf, ' ')
		}
		if s.Enabled {
			buf = append(buf, 'x')
		} else {
			buf = append(buf, '.')
		}
	}
	return string(buf)
}

// Parse reads the String form back. Spaces are ignored, so "x..x...."
// and "x..x ...." are the same pattern.
func Parse(s string) (Pattern, error) {
	p := New()
	i := 0
	for _, r := range s {
		switch r {
		case ' ', '\t':
			continue
		case 'x', 'X':
			if i < position.TotalSlots {
				p.Enable(i)
			}
		case '.', '-':
		default:
			return Pattern{}, fmt.Errorf("parse pattern: unexpected %q: %w", r, ErrMalformedPattern)
		}
		i++
	}
	if i != position.TotalSlots {
		return Pattern{}, fmt.Errorf("parse pattern: %d slots, want %d: %w", i, position.TotalSlots, ErrMalformedPattern)
	}
	return p, nil
}
