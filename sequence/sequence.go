package sequence

import (
	"sort"

	"clap-trainer/pattern"
	"clap-trainer/position"
)

// Event is a slot tagged with the musical position it fires at
type Event struct {
	At   position.Position
	Slot int
}

// Compiled holds the event lists for one pattern
type Compiled struct {
	Sound   []Event // enabled slots only
	Time    []Event // all 32 slots, for the time-flow indicator
	Pickup  Event   // cue on the "&" of the pickup beat, Slot == position.PickupSlot
	Preroll *Event  // slot 31 played once before beat 1, nil when slot 31 is off
}

// Compile converts a pattern into its sound and time-marker sequences
func Compile(p pattern.Pattern) Compiled {
	c := Compiled{
		Time:   make([]Event, 0, position.TotalSlots),
		Pickup: Event{At: position.PickupCue, Slot: position.PickupSlot},
	}
	for i, s := range p {
		ev := Event{At: position.SlotPosition(i), Slot: i}
		c.Time = append(c.Time, ev)
		if s.Enabled {
			c.Sound = append(c.Sound, ev)
		}
	}
	last := position.TotalSlots - 1
	if p[last].Enabled {
		c.Preroll = &Event{At: position.PickupPreroll, Slot: last}
	}
	Sort(c.Sound)
	Sort(c.Time)
	return c
}

// Sort orders events by position, ties by slot
func Sort(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].At.Sixteenths(), events[j].At.Sixteenths()
		if a != b {
			return a < b
		}
		return events[i].Slot < events[j].Slot
	})
}
