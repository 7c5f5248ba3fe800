package audio

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"

	"clap-trainer/clock"
	"clap-trainer/debug"
)

// DefaultSampleRate is used when the config leaves it unset
const DefaultSampleRate = beep.SampleRate(44100)

type note struct {
	owner any
	start int // absolute sample index
	src   beep.Streamer
	gain  float64
}

// Engine mixes scheduled hits into one stream. Notes are placed at the
// sample matching their timeline time, so callbacks that run early still
// sound on time.
type Engine struct {
	sr       beep.SampleRate
	timeline clock.Now

	mu     sync.Mutex
	pos    int // samples rendered so far
	notes  []*note
	master float64
	buf    [][2]float64
	seed   int64

	opened bool
}

// NewEngine returns an engine placing notes relative to timeline
func NewEngine(timeline clock.Now, sr beep.SampleRate) *Engine {
	if sr <= 0 {
		sr = DefaultSampleRate
	}
	return &Engine{
		sr:       sr,
		timeline: timeline,
		master:   1,
		seed:     time.Now().UnixNano(),
	}
}

// SampleRate returns the engine's output rate
func (e *Engine) SampleRate() beep.SampleRate { return e.sr }

// SetMaster sets the output gain in dB
func (e *Engine) SetMaster(db float64) {
	e.mu.Lock()
	e.master = dbToGain(db)
	e.mu.Unlock()
}

// NewVoice returns a voice for the given sound type
func (e *Engine) NewVoice(t SoundType) (*SynthVoice, error) {
	s, err := Lookup(t)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.seed++
	seed := e.seed
	e.mu.Unlock()
	debug.Log("audio", "voice %s (%s)", s.Type, s.Kind)
	return &SynthVoice{engine: e, sound: s, rng: rand.New(rand.NewSource(seed))}, nil
}

// NewCue returns the countdown voice
func (e *Engine) NewCue() *CueVoice {
	return &CueVoice{engine: e, gain: dbToGain(-6)}
}

// Active returns the number of notes still sounding or waiting
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.notes)
}

func (e *Engine) schedule(owner any, src beep.Streamer, gain float64, at time.Duration) {
	delay := at - e.timeline.Now()
	e.mu.Lock()
	start := e.pos
	if delay > 0 {
		start += e.sr.N(delay)
	}
	e.notes = append(e.notes, &note{owner: owner, start: start, src: src, gain: gain})
	e.mu.Unlock()
}

func (e *Engine) scheduleNow(owner any, src beep.Streamer, gain float64) {
	e.mu.Lock()
	e.notes = append(e.notes, &note{owner: owner, start: e.pos, src: src, gain: gain})
	e.mu.Unlock()
}

// cancel drops owner's notes that have not been rendered
func (e *Engine) cancel(owner any) {
	e.mu.Lock()
	kept := e.notes[:0]
	for _, n := range e.notes {
		if n.owner != owner || n.start < e.pos {
			kept = append(kept, n)
		}
	}
	e.notes = kept
	e.mu.Unlock()
}

func (e *Engine) drop(owner any) {
	e.mu.Lock()
	kept := e.notes[:0]
	for _, n := range e.notes {
		if n.owner != owner {
			kept = append(kept, n)
		}
	}
	e.notes = kept
	e.mu.Unlock()
}

// Stream renders the mix. It never ends.
func (e *Engine) Stream(samples [][2]float64) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range samples {
		samples[i] = [2]float64{}
	}
	if len(e.buf) < len(samples) {
		e.buf = make([][2]float64, len(samples))
	}

	end := e.pos + len(samples)
	kept := e.notes[:0]
	for _, n := range e.notes {
		if n.start >= end {
			kept = append(kept, n)
			continue
		}
		offset := 0
		if n.start > e.pos {
			offset = n.start - e.pos
		}
		want := len(samples) - offset
		got, ok := n.src.Stream(e.buf[:want])
		for i := 0; i < got; i++ {
			samples[offset+i][0] += e.buf[i][0] * n.gain
			samples[offset+i][1] += e.buf[i][1] * n.gain
		}
		if ok && got == want {
			kept = append(kept, n)
		}
	}
	e.notes = kept

	for i := range samples {
		samples[i][0] = clip(samples[i][0] * e.master)
		samples[i][1] = clip(samples[i][1] * e.master)
	}
	e.pos = end
	return len(samples), true
}

func (e *Engine) Err() error { return nil }

func clip(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// Open starts playback on the default output device
func (e *Engine) Open(buffer time.Duration) error {
	if err := speaker.Init(e.sr, e.sr.N(buffer)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	speaker.Play(e)
	e.opened = true
	debug.Log("audio", "speaker open rate=%d buffer=%v", e.sr, buffer)
	return nil
}

// Close stops the speaker if Open started it
func (e *Engine) Close() {
	if !e.opened {
		return
	}
	speaker.Clear()
	speaker.Close()
	e.opened = false
}
