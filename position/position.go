package position

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Grid layout
const (
	SlotsPerBeat = 4 // sixteenths per quarter note
	BeatsPerBar  = 4
	PatternBeats = 8
	TotalSlots   = PatternBeats * SlotsPerBeat // 32

	// RecordingOffset is the slot index of the first recorded slot: the
	// recording window is the second 8-beat pass.
	RecordingOffset = TotalSlots

	// PickupSlot marks the pickup cue, which is not part of the grid
	PickupSlot = -1
)

// Tempo range
const (
	MinBPM = 60
	MaxBPM = 200
)

// Fixed musical positions of the quiz timeline
var (
	PickupCue     = Position{Bar: 0, Beat: 0, Sixteenth: 2} // "&" of the pickup beat
	PickupPreroll = Position{Bar: 0, Beat: 0, Sixteenth: 3} // slot 31 played once before beat 1
	LoopStart     = Beat(1)
	LoopEnd       = Beat(1 + PatternBeats)
	RecordStart   = Beat(1 + PatternBeats)
	RecordEnd     = Beat(1 + 2*PatternBeats)
)

// Position is a musical position in bar:beat:sixteenth notation. Beat and
// Sixteenth may exceed their bar range ("0:9:0" is nine beats in), matching
// how positions are written for the pattern timeline.
type Position struct {
	Bar       int
	Beat      int
	Sixteenth int
}

// Beat returns the position n quarter notes from the start
func Beat(n int) Position {
	return Position{Beat: n}
}

// FromSixteenths returns the normalized position n sixteenths from the start
func FromSixteenths(n int) Position {
	perBar := BeatsPerBar * SlotsPerBeat
	return Position{
		Bar:       n / perBar,
		Beat:      (n % perBar) / SlotsPerBeat,
		Sixteenth: n % SlotsPerBeat,
	}
}

// Sixteenths returns the absolute offset in sixteenth notes
func (p Position) Sixteenths() int {
	return (p.Bar*BeatsPerBar+p.Beat)*SlotsPerBeat + p.Sixteenth
}

// Normalize folds beat into [0,4) and sixteenth into [0,4)
func (p Position) Normalize() Position {
	return FromSixteenths(p.Sixteenths())
}

// Less orders positions by absolute time
func (p Position) Less(o Position) bool {
	return p.Sixteenths() < o.Sixteenths()
}

// Add returns p shifted by n sixteenths, normalized
func (p Position) Add(n int) Position {
	return FromSixteenths(p.Sixteenths() + n)
}

// Duration converts the position to wall-clock time at the given tempo
func (p Position) Duration(bpm float64) time.Duration {
	return time.Duration(float64(p.Sixteenths()) * float64(SixteenthDuration(bpm)))
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d:%d", p.Bar, p.Beat, p.Sixteenth)
}

// Parse reads "bar:beat:sixteenth". Missing trailing fields default to 0.
func Parse(s string) (Position, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) == 0 || len(parts) > 3 {
		return Position{}, fmt.Errorf("invalid position %q", s)
	}
	var vals [3]int
	for i, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil || v < 0 {
			return Position{}, fmt.Errorf("invalid position %q", s)
		}
		vals[i] = v
	}
	return Position{Bar: vals[0], Beat: vals[1], Sixteenth: vals[2]}, nil
}

// SixteenthDuration is 60/bpm/4 seconds
func SixteenthDuration(bpm float64) time.Duration {
	return time.Duration(SixteenthSeconds(bpm) * float64(time.Second))
}

// SixteenthSeconds is SixteenthDuration as float seconds
func SixteenthSeconds(bpm float64) float64 {
	return 60.0 / bpm / SlotsPerBeat
}

// Quarter returns the beat (0-7) a slot belongs to
func Quarter(index int) int { return index / SlotsPerBeat }

// Subdivision returns the sixteenth (0-3) of a slot within its beat
func Subdivision(index int) int { return index % SlotsPerBeat }

// IsMain reports whether the slot is on the beat
func IsMain(index int) bool { return Subdivision(index) == 0 }

// Label returns "1".."8" for main slots and "e", "&", "a" for the rest
func Label(index int) string {
	switch Subdivision(index) {
	case 0:
		return strconv.Itoa(Quarter(index) + 1)
	case 1:
		return "e"
	case 2:
		return "&"
	default:
		return "a"
	}
}

// SlotPosition is where a grid slot sounds: beat 0 is reserved for the
// pickup, so slot i plays at 0:(i/4)+1:(i%4).
func SlotPosition(index int) Position {
	return Position{Bar: 0, Beat: Quarter(index) + 1, Sixteenth: Subdivision(index)}
}

// ExactSlot converts a time offset into a fractional slot count
func ExactSlot(t time.Duration, bpm float64) float64 {
	return t.Seconds() / SixteenthSeconds(bpm)
}

// SlotFromTime converts a time offset into the nearest slot index
func SlotFromTime(t time.Duration, bpm float64) int {
	return int(math.Round(ExactSlot(t, bpm)))
}

// RecordedSlot converts a time relative to the recording origin into the
// absolute slot of the second pass.
func RecordedSlot(rel time.Duration, bpm float64) int {
	return SlotFromTime(rel, bpm) + RecordingOffset
}

// ToleranceSlots expresses a time tolerance as a slot count at bpm
func ToleranceSlots(tol time.Duration, bpm float64) float64 {
	return tol.Seconds() / SixteenthSeconds(bpm)
}

// TimingErrorMs is the signed error in milliseconds, positive when late
func TimingErrorMs(detected, expected float64, bpm float64) float64 {
	return (detected - expected) * SixteenthSeconds(bpm) * 1000
}

// ValidBPM reports whether bpm is inside the supported range
func ValidBPM(bpm float64) bool {
	return bpm >= MinBPM && bpm <= MaxBPM
}
