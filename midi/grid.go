package midi

import (
	"context"
	"sync"
	"time"

	"clap-trainer/debug"
	"clap-trainer/pattern"
	"clap-trainer/position"
)

const ledFPS = 30

// Grid pad colors
var (
	ColorMainOn  = [3]uint8{255, 100, 0}
	ColorSubOn   = [3]uint8{255, 200, 0}
	ColorMainOff = [3]uint8{40, 60, 120}
	ColorSubOff  = [3]uint8{0, 0, 0}
	ColorHead    = [3]uint8{255, 255, 255}
)

// PadForSlot places the 32 slots on the top half of the grid: one column
// per beat, the beat itself on the top row and e/&/a below it
func PadForSlot(slot int) (row, col int) {
	return 7 - position.Subdivision(slot), position.Quarter(slot)
}

// SlotForPad is the inverse of PadForSlot, -1 outside the slot area
func SlotForPad(row, col int) int {
	if row < 4 || row > 7 || col < 0 || col >= position.PatternBeats {
		return -1
	}
	return col*position.SlotsPerBeat + (7 - row)
}

// Grid mirrors the pattern on a Launchpad and turns pad presses into
// slot toggles
type Grid struct {
	ctrl Controller

	mu       sync.Mutex
	pat      pattern.Pattern
	playhead int
	marks    map[int][3]uint8
	dirty    bool
	prev     map[[2]int]LEDUpdate

	presses chan int
}

// NewGrid returns a grid for ctrl; call Run to drive it
func NewGrid(ctrl Controller) *Grid {
	return &Grid{
		ctrl:     ctrl,
		pat:      pattern.New(),
		playhead: -1,
		marks:    make(map[int][3]uint8),
		dirty:    true,
		prev:     make(map[[2]int]LEDUpdate),
		presses:  make(chan int, 32),
	}
}

// Presses delivers the slot index of every pressed slot pad
func (g *Grid) Presses() <-chan int { return g.presses }

func (g *Grid) SetPattern(p pattern.Pattern) {
	g.mu.Lock()
	g.pat = p
	g.dirty = true
	g.mu.Unlock()
}

// SetPlayhead highlights slot, -1 for none
func (g *Grid) SetPlayhead(slot int) {
	g.mu.Lock()
	if g.playhead != slot {
		g.playhead = slot
		g.dirty = true
	}
	g.mu.Unlock()
}

// SetMark overrides a slot's color (quiz results)
func (g *Grid) SetMark(slot int, color [3]uint8) {
	g.mu.Lock()
	g.marks[slot] = color
	g.dirty = true
	g.mu.Unlock()
}

func (g *Grid) ClearMarks() {
	g.mu.Lock()
	g.marks = make(map[int][3]uint8)
	g.dirty = true
	g.mu.Unlock()
}

// Run forwards presses and flushes LEDs at a fixed rate until ctx ends
// or the controller goes away
func (g *Grid) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second / ledFPS)
	defer ticker.Stop()
	pads := g.ctrl.PadEvents()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-pads:
			if !ok {
				return
			}
			if slot := SlotForPad(ev.Row, ev.Col); slot >= 0 {
				select {
				case g.presses <- slot:
				default:
				}
			}
		case <-ticker.C:
			g.mu.Lock()
			dirty := g.dirty
			g.dirty = false
			g.mu.Unlock()
			if dirty {
				g.flush()
			}
		}
	}
}

// render expects mu held
func (g *Grid) render() []LEDUpdate {
	leds := make([]LEDUpdate, 0, position.TotalSlots)
	for i, s := range g.pat {
		row, col := PadForSlot(i)
		var color [3]uint8
		switch {
		case s.Enabled && s.Role == pattern.RoleMain:
			color = ColorMainOn
		case s.Enabled:
			color = ColorSubOn
		case s.Role == pattern.RoleMain:
			color = ColorMainOff
		default:
			color = ColorSubOff
		}
		if c, ok := g.marks[i]; ok {
			color = c
		}
		channel := ChannelStatic
		if i == g.playhead {
			color = ColorHead
			channel = ChannelPulse
		}
		leds = append(leds, LEDUpdate{Row: row, Col: col, Color: color, Channel: channel})
	}
	return leds
}

// flush sends only changed LEDs to the controller
func (g *Grid) flush() {
	g.mu.Lock()
	updates := g.diff(g.render())
	g.mu.Unlock()

	if len(updates) > 0 {
		debug.Log("led", "flush batch=%d", len(updates))
		g.ctrl.SetLEDBatch(updates)
	}
}

// diff expects mu held
func (g *Grid) diff(leds []LEDUpdate) []LEDUpdate {
	next := make(map[[2]int]LEDUpdate, len(leds))
	var updates []LEDUpdate
	for _, led := range leds {
		key := [2]int{led.Row, led.Col}
		next[key] = led
		if prev, ok := g.prev[key]; !ok || prev != led {
			updates = append(updates, led)
		}
	}
	for key := range g.prev {
		if _, ok := next[key]; !ok {
			updates = append(updates, LEDUpdate{Row: key[0], Col: key[1]})
		}
	}
	g.prev = next
	return updates
}
