// Package onset detects claps in a live input stream.
//
// Detection is a plain RMS threshold with a dead time. Spectral features
// are computed for every onset for diagnostics only; they never decide
// whether an onset counts, so loud sustained sounds still trigger.
package onset

import (
	"errors"
	"time"
)

// ErrInputUnavailable covers every way acquiring the input can fail:
// permission denied, no device, device busy, driver timeout.
var ErrInputUnavailable = errors.New("audio input unavailable")

// ErrRunning is returned when a listener is started twice
var ErrRunning = errors.New("listener already running")

// Onset is one detected clap
type Onset struct {
	At       time.Duration // timeline time when the poll saw it
	RMS      float64
	Features Features
}

// Features describe the frame an onset was detected in
type Features struct {
	ZCR      float64 // zero crossings per sample
	Centroid float64 // Hz
	Flux     float64 // rectified spectral change since the previous frame
}

// Listener delivers onsets between Start and Stop. Close releases the
// underlying input; a closed listener cannot be restarted.
type Listener interface {
	Start(fn func(Onset)) error
	Stop()
	Close() error
}

// Input hands out a listener holding the input exclusively
type Input interface {
	Acquire() (Listener, error)
}

// Config tunes detection
type Config struct {
	Threshold    float64       // RMS level that counts as a clap
	Debounce     time.Duration // dead time after an onset
	FrameSize    int           // samples per analysis frame
	PollInterval time.Duration // how often the latest frame is read
}

// DefaultConfig matches a clap at arm's length from a laptop microphone
func DefaultConfig() Config {
	return Config{
		Threshold:    0.15,
		Debounce:     100 * time.Millisecond,
		FrameSize:    1024,
		PollInterval: time.Second / 60,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.Debounce <= 0 {
		c.Debounce = d.Debounce
	}
	if c.FrameSize <= 0 {
		c.FrameSize = d.FrameSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	return c
}
