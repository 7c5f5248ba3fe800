package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"clap-trainer/debug"
	"clap-trainer/quiz"
)

// DefaultMaxRecords is how many attempts history keeps
const DefaultMaxRecords = 50

type historyDoc struct {
	Version    int           `json:"version"`
	Records    []quiz.Record `json:"records"`
	MaxRecords int           `json:"maxRecords"`
}

// History keeps finished attempts newest first, evicting the oldest past
// the cap
type History struct {
	kv  KV
	max int

	mu sync.Mutex
}

// NewHistory returns a history capped at max (DefaultMaxRecords when <= 0)
func NewHistory(kv KV, max int) *History {
	if max <= 0 {
		max = DefaultMaxRecords
	}
	return &History{kv: kv, max: max}
}

// load expects mu held
func (h *History) load() ([]quiz.Record, error) {
	data, err := h.kv.Get(HistoryKey)
	if errors.Is(err, ErrNotFound) {
		return []quiz.Record{}, nil
	}
	if err != nil {
		return []quiz.Record{}, fmt.Errorf("load history: %w", err)
	}
	var doc historyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		debug.Log("store", "history corrupt: %v", err)
		return []quiz.Record{}, fmt.Errorf("load history: %w: %v", ErrCorrupt, err)
	}
	if doc.Records == nil {
		doc.Records = []quiz.Record{}
	}
	return doc.Records, nil
}

// write expects mu held
func (h *History) write(records []quiz.Record) error {
	doc := historyDoc{Version: SchemaVersion, Records: records, MaxRecords: h.max}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	if err := h.kv.Set(HistoryKey, data); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// Append stores r as the newest record
func (h *History) Append(r quiz.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	records, _ := h.load()
	records = append([]quiz.Record{r}, records...)
	if len(records) > h.max {
		records = records[:h.max]
	}
	return h.write(records)
}

// List returns every record, newest first
func (h *History) List() ([]quiz.Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.load()
}

// Recent returns up to n of the newest records
func (h *History) Recent(n int) ([]quiz.Record, error) {
	records, err := h.List()
	if n >= 0 && n < len(records) {
		records = records[:n]
	}
	return records, err
}

// ByPattern returns the records of one pattern name
func (h *History) ByPattern(name string) ([]quiz.Record, error) {
	records, err := h.List()
	out := []quiz.Record{}
	for _, r := range records {
		if r.PatternName == name {
			out = append(out, r)
		}
	}
	return out, err
}

// Delete removes one record by id
func (h *History) Delete(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	records, _ := h.load()
	kept := records[:0]
	for _, r := range records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	return h.write(kept)
}

// Clear drops every record
func (h *History) Clear() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.write([]quiz.Record{})
}

// Stats summarizes history. AverageAccuracy has one decimal and
// AverageTimingError is in whole milliseconds.
type Stats struct {
	Total              int     `json:"totalQuizzes"`
	AverageAccuracy    float64 `json:"averageAccuracy"`
	BestAccuracy       float64 `json:"bestAccuracy"`
	AverageTimingError float64 `json:"averageTimingError"`
}

// Statistics computes Stats over all records
func (h *History) Statistics() (Stats, error) {
	records, err := h.List()
	if len(records) == 0 {
		return Stats{}, err
	}
	var acc, timing float64
	s := Stats{Total: len(records)}
	for _, r := range records {
		acc += r.Evaluation.Accuracy
		timing += r.Evaluation.AverageTimingError
		s.BestAccuracy = math.Max(s.BestAccuracy, r.Evaluation.Accuracy)
	}
	n := float64(len(records))
	s.AverageAccuracy = math.Round(acc/n*10) / 10
	s.AverageTimingError = math.Round(timing / n)
	return s, err
}
