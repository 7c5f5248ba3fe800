package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"clap-trainer/debug"
	"clap-trainer/pattern"
)

// Document keys and the schema version written with them
const (
	PresetsKey    = "rhythm-trainer-custom-presets"
	HistoryKey    = "rhythm-trainer-quiz-history"
	SchemaVersion = 1
)

var (
	// ErrCorrupt marks persisted data that could not be decoded
	ErrCorrupt = errors.New("corrupt data")
	// ErrBuiltIn is returned when changing a built-in preset
	ErrBuiltIn = errors.New("built-in preset")
)

type presetDoc struct {
	Version int              `json:"version"`
	Presets []pattern.Preset `json:"presets"`
}

// Presets stores custom presets under PresetsKey
type Presets struct {
	kv KV

	mu sync.Mutex // serializes read-modify-write
}

func NewPresets(kv KV) *Presets {
	return &Presets{kv: kv}
}

// List returns the custom presets. A missing key is an empty list. A
// corrupt document also gives an empty list, along with an ErrCorrupt
// error; presets with the wrong slot count are skipped and reported.
func (p *Presets) List() ([]pattern.Preset, error) {
	data, err := p.kv.Get(PresetsKey)
	if errors.Is(err, ErrNotFound) {
		return []pattern.Preset{}, nil
	}
	if err != nil {
		return []pattern.Preset{}, fmt.Errorf("load presets: %w", err)
	}

	var doc presetDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		debug.Log("store", "presets corrupt: %v", err)
		return []pattern.Preset{}, fmt.Errorf("load presets: %w: %v", ErrCorrupt, err)
	}

	out := make([]pattern.Preset, 0, len(doc.Presets))
	var bad []error
	for _, pr := range doc.Presets {
		if _, err := pr.Pattern(); err != nil {
			bad = append(bad, err)
			continue
		}
		pr.IsCustom = true
		out = append(out, pr)
	}
	if len(bad) > 0 {
		debug.Log("store", "skipped %d malformed presets", len(bad))
		return out, fmt.Errorf("load presets: %w", errors.Join(bad...))
	}
	return out, nil
}

// All returns the built-ins followed by the custom presets
func (p *Presets) All() ([]pattern.Preset, error) {
	custom, err := p.List()
	return append(pattern.BuiltIns(), custom...), err
}

// Find looks a preset up by id, built-ins first
func (p *Presets) Find(id string) (pattern.Preset, error) {
	if pr, ok := pattern.FindBuiltIn(id); ok {
		return pr, nil
	}
	custom, err := p.List()
	for _, pr := range custom {
		if pr.ID == id {
			return pr, nil
		}
	}
	if err != nil {
		return pattern.Preset{}, err
	}
	return pattern.Preset{}, fmt.Errorf("preset %s: %w", id, ErrNotFound)
}

// Save adds pr, replacing a custom preset with the same id
func (p *Presets) Save(pr pattern.Preset) error {
	if _, ok := pattern.FindBuiltIn(pr.ID); ok {
		return fmt.Errorf("save preset %s: %w", pr.ID, ErrBuiltIn)
	}
	if _, err := pr.Pattern(); err != nil {
		return fmt.Errorf("save preset: %w", err)
	}
	pr.IsCustom = true

	p.mu.Lock()
	defer p.mu.Unlock()
	// unreadable entries are dropped on the next write
	list, _ := p.List()
	replaced := false
	for i := range list {
		if list[i].ID == pr.ID {
			list[i] = pr
			replaced = true
		}
	}
	if !replaced {
		list = append(list, pr)
	}
	return p.write(list)
}

// Delete removes a custom preset. Unknown ids are not an error.
func (p *Presets) Delete(id string) error {
	if _, ok := pattern.FindBuiltIn(id); ok {
		return fmt.Errorf("delete preset %s: %w", id, ErrBuiltIn)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	list, _ := p.List()
	kept := list[:0]
	for _, pr := range list {
		if pr.ID != id {
			kept = append(kept, pr)
		}
	}
	return p.write(kept)
}

func (p *Presets) write(list []pattern.Preset) error {
	data, err := json.MarshalIndent(presetDoc{Version: SchemaVersion, Presets: list}, "", "  ")
	if err != nil {
		return fmt.Errorf("save presets: %w", err)
	}
	if err := p.kv.Set(PresetsKey, data); err != nil {
		return fmt.Errorf("save presets: %w", err)
	}
	return nil
}
