package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"golang.org/x/exp/constraints"

	"clap-trainer/debug"
	"clap-trainer/position"
)

// OutputType selects where the pattern voice plays
type OutputType string

const (
	OutputSpeaker OutputType = "speaker"
	OutputMIDI    OutputType = "midi"
)

// InputType selects what counts as a clap
type InputType string

const (
	InputMicrophone InputType = "microphone"
	InputPads       InputType = "pads" // any MIDI pad controller
)

// AudioConfig is the output side
type AudioConfig struct {
	Output      OutputType `json:"output"`
	Sound       string     `json:"sound"`
	VolumeDB    float64    `json:"volumeDb"`
	BufferMs    int        `json:"bufferMs"`
	LookaheadMs int        `json:"lookaheadMs"`
	MIDIPort    string     `json:"midiPort,omitempty"`
	MIDIKit     string     `json:"midiKit,omitempty"`
	MIDIChannel int        `json:"midiChannel,omitempty"`
}

// DetectorConfig tunes clap detection
type DetectorConfig struct {
	Input      InputType `json:"input"`
	Device     string    `json:"device,omitempty"`
	Threshold  float64   `json:"threshold"`
	DebounceMs int       `json:"debounceMs"`
	FrameSize  int       `json:"frameSize"`
	SampleRate float64   `json:"sampleRate"`
}

// SessionConfig holds practice and quiz preferences
type SessionConfig struct {
	Tempo       int    `json:"tempo"`
	Loop        bool   `json:"loop"`
	Countdown   bool   `json:"countdown"`
	Pickup      bool   `json:"pickup"`
	ToleranceMs int    `json:"toleranceMs"`
	HistoryCap  int    `json:"historyCap"`
	LastPreset  string `json:"lastPreset,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Audio    AudioConfig    `json:"audio"`
	Detector DetectorConfig `json:"detector"`
	Session  SessionConfig  `json:"session"`
	Grid     bool           `json:"grid"` // mirror the pattern on a connected Launchpad
	DataDir  string         `json:"dataDir,omitempty"`
	Palette  string         `json:"palette,omitempty"` // .gpl file, built-in palette when empty
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			Output:      OutputSpeaker,
			Sound:       "clap",
			BufferMs:    20,
			LookaheadMs: 50,
			MIDIKit:     "gm",
			MIDIChannel: 10,
		},
		Detector: DetectorConfig{
			Input:      InputMicrophone,
			Threshold:  0.15,
			DebounceMs: 100,
			FrameSize:  1024,
			SampleRate: 44100,
		},
		Session: SessionConfig{
			Tempo:       120,
			Countdown:   true,
			ToleranceMs: 100,
			HistoryCap:  50,
		},
		Grid: true,
	}
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// orDefault replaces a zero value
func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// Normalize fills missing values and clamps the rest into range
func (c *Config) Normalize() {
	d := DefaultConfig()

	c.Audio.Output = orDefault(c.Audio.Output, d.Audio.Output)
	if c.Audio.Output != OutputSpeaker && c.Audio.Output != OutputMIDI {
		c.Audio.Output = d.Audio.Output
	}
	c.Audio.Sound = orDefault(c.Audio.Sound, d.Audio.Sound)
	c.Audio.VolumeDB = clamp(c.Audio.VolumeDB, -40, 6)
	c.Audio.BufferMs = clamp(orDefault(c.Audio.BufferMs, d.Audio.BufferMs), 5, 200)
	c.Audio.LookaheadMs = clamp(c.Audio.LookaheadMs, 0, 200)
	c.Audio.MIDIKit = orDefault(c.Audio.MIDIKit, d.Audio.MIDIKit)
	c.Audio.MIDIChannel = clamp(orDefault(c.Audio.MIDIChannel, d.Audio.MIDIChannel), 1, 16)

	c.Detector.Input = orDefault(c.Detector.Input, d.Detector.Input)
	c.Detector.Threshold = clamp(orDefault(c.Detector.Threshold, d.Detector.Threshold), 0.01, 1)
	c.Detector.DebounceMs = clamp(orDefault(c.Detector.DebounceMs, d.Detector.DebounceMs), 10, 1000)
	c.Detector.FrameSize = clamp(orDefault(c.Detector.FrameSize, d.Detector.FrameSize), 128, 8192)
	c.Detector.SampleRate = clamp(orDefault(c.Detector.SampleRate, d.Detector.SampleRate), 8000, 192000)

	c.Session.Tempo = clamp(orDefault(c.Session.Tempo, d.Session.Tempo), position.MinBPM, position.MaxBPM)
	c.Session.ToleranceMs = clamp(orDefault(c.Session.ToleranceMs, d.Session.ToleranceMs), 10, 250)
	c.Session.HistoryCap = clamp(orDefault(c.Session.HistoryCap, d.Session.HistoryCap), 1, 1000)
}

// Tolerance is the quiz tolerance window
func (c *Config) Tolerance() time.Duration {
	return time.Duration(c.Session.ToleranceMs) * time.Millisecond
}

// Debounce is the detector dead time
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Detector.DebounceMs) * time.Millisecond
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "clap-trainer"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path. A missing file gives defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path, creating its directory
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Saver coalesces bursts of changes (tempo nudges, volume drags) into
// one write
type Saver struct {
	path     string
	debounce func(func())
	onErr    func(error)

	mu      sync.Mutex
	pending *Config
}

// NewSaver writes to path once changes have been quiet for wait
func NewSaver(path string, wait time.Duration, onErr func(error)) *Saver {
	return &Saver{path: path, debounce: debounce.New(wait), onErr: onErr}
}

// Save schedules c to be written
func (s *Saver) Save(c Config) {
	s.mu.Lock()
	s.pending = &c
	s.mu.Unlock()
	s.debounce(func() {
		if err := s.Flush(); err != nil {
			debug.Log("config", "save failed: %v", err)
			if s.onErr != nil {
				s.onErr(err)
			}
		}
	})
}

// Flush writes any pending config now
func (s *Saver) Flush() error {
	s.mu.Lock()
	c := s.pending
	s.pending = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.SaveTo(s.path)
}
