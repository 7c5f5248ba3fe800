package pattern

import (
	"fmt"
	"time"
)

// Preset is a named pattern. Built-ins are constants; custom presets are
// persisted by the store package.
type Preset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Beats     []SubBeat `json:"beats"`
	UsePickup bool      `json:"usePickup,omitempty"`
	IsCustom  bool      `json:"isCustom,omitempty"`
}

// Pattern decodes the preset's slots
func (p Preset) Pattern() (Pattern, error) {
	pat := New()
	if err := pat.Load(p.Beats); err != nil {
		return pat, fmt.Errorf("preset %s: %w", p.ID, err)
	}
	return pat, nil
}

func builtIn(id, name string, indices ...int) Preset {
	return Preset{ID: id, Name: name, Beats: FromIndices(indices...).Slots()}
}

// BuiltIns returns the fixed presets. A fresh copy each call keeps the
// constants immutable.
func BuiltIns() []Preset {
	return []Preset{
		builtIn("triple-step", "Triple Step (×4)", 0, 3, 4, 8, 11, 12, 16, 19, 20, 24, 27, 28),
		builtIn("step-step", "Step-Step (×4)", 0, 4, 8, 12, 16, 20, 24, 28),
		builtIn("step-hold", "Step-Hold (×4)", 0, 8, 16, 24),
		builtIn("mixed-1", "Mixed: Triple + Step", 0, 3, 4, 8, 11, 12, 16, 20, 24, 28),
	}
}

// FindBuiltIn looks a built-in preset up by id
func FindBuiltIn(id string) (Preset, bool) {
	for _, p := range BuiltIns() {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}

// NewCustom snapshots pat as a user preset with a timestamp id
func NewCustom(name string, pat Pattern, usePickup bool, now time.Time) Preset {
	return Preset{
		ID:        fmt.Sprintf("custom-%d", now.UnixMilli()),
		Name:      name,
		Beats:     pat.Slots(),
		UsePickup: usePickup,
		IsCustom:  true,
	}
}
