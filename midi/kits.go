package midi

import (
	"sort"

	"clap-trainer/audio"
)

// DrumKit maps 16 drum slots to MIDI notes
type DrumKit struct {
	Name  string
	Notes [16]uint8
}

// Slot order of every kit table
const (
	SlotKick = iota
	SlotSnare
	SlotClosedHH
	SlotOpenHH
	SlotLowTom
	SlotMidTom
	SlotHighTom
	SlotCrash
	SlotRide
	SlotClap
	SlotRimshot
	SlotCowbell
	SlotClave
	SlotMaracas
	SlotLowConga
	SlotHighConga
)

// soundSlots picks the kit slot that stands in for each synth sound
var soundSlots = map[audio.SoundType]int{
	audio.Clap:      SlotClap,
	audio.Meow:      SlotHighConga,
	audio.Woodblock: SlotClave,
	audio.Kick:      SlotKick,
	audio.Snare:     SlotSnare,
	audio.HiHat:     SlotClosedHH,
	audio.Cowbell:   SlotCowbell,
	audio.Tom:       SlotMidTom,
}

// Kits contains all available drum kit mappings
var Kits = map[string]DrumKit{
	"gm": {
		Name:  "General MIDI",
		Notes: [16]uint8{36, 38, 42, 46, 41, 43, 45, 49, 51, 39, 37, 56, 75, 70, 64, 63},
	},
	"rd8": {
		// RD-8 snare is 40, not 38
		Name:  "Behringer RD-8",
		Notes: [16]uint8{36, 40, 42, 46, 45, 48, 50, 49, 51, 39, 37, 56, 75, 70, 64, 63},
	},
	"tr8s": {
		Name:  "Roland TR-8S",
		Notes: [16]uint8{36, 38, 42, 46, 41, 43, 45, 49, 51, 39, 37, 56, 75, 70, 62, 63},
	},
	"er1": {
		// slots past clap are placeholders on the ER-1
		Name:  "Korg ER-1",
		Notes: [16]uint8{36, 38, 42, 46, 40, 41, 43, 49, 45, 39, 37, 56, 75, 70, 64, 63},
	},
}

// DefaultKit is the default kit name
const DefaultKit = "gm"

// KitNames returns the available kit names, sorted
func KitNames() []string {
	names := make([]string, 0, len(Kits))
	for name := range Kits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetKit returns a kit by name, defaulting to GM if not found
func GetKit(name string) DrumKit {
	if kit, ok := Kits[name]; ok {
		return kit
	}
	return Kits[DefaultKit]
}

// NoteFor returns the note the kit plays for a synth sound
func (k DrumKit) NoteFor(t audio.SoundType) uint8 {
	slot, ok := soundSlots[t]
	if !ok {
		slot = SlotClap
	}
	return k.Notes[slot]
}
