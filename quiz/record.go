package quiz

import (
	"time"

	"github.com/google/uuid"

	"clap-trainer/pattern"
)

// CustomName labels attempts on a pattern that is not a saved preset
const CustomName = "Custom"

// Record is one finished attempt as kept in history
type Record struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	PatternName string          `json:"patternName"`
	BPM         float64         `json:"bpm"`
	UsePickup   bool            `json:"usePickup"`
	Pattern     pattern.Pattern `json:"pattern"`
	Evaluation  Evaluation      `json:"evaluation"`
}

// NewRecord snapshots an attempt
func NewRecord(name string, bpm float64, pickup bool, p pattern.Pattern, ev Evaluation, now time.Time) Record {
	if name == "" {
		name = CustomName
	}
	return Record{
		ID:          uuid.NewString(),
		Timestamp:   now,
		PatternName: name,
		BPM:         bpm,
		UsePickup:   pickup,
		Pattern:     p,
		Evaluation:  ev,
	}
}
