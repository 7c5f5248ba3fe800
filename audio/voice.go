package audio

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gopxl/beep"
)

// Voice is a percussive output the sequencer can schedule ahead of time.
// at is on the transport timeline.
type Voice interface {
	TriggerAttackRelease(dur, at time.Duration)
	SetVolume(db float64, at time.Duration)
	Cancel() // drops hits queued ahead that have not started
	Dispose()
}

// Cue plays short pitched ticks right away (countdown)
type Cue interface {
	Tick(note string, dur time.Duration) error
}

// SoundType names a pattern voice
type SoundType string

const (
	Clap      SoundType = "clap"
	Meow      SoundType = "meow"
	Woodblock SoundType = "woodblock"
	Kick      SoundType = "kick"
	Snare     SoundType = "snare"
	HiHat     SoundType = "hihat"
	Cowbell   SoundType = "cowbell"
	Tom       SoundType = "tom"
)

// Kind is the synthesis family behind a sound
type Kind int

const (
	KindNoise Kind = iota
	KindTonal
	KindMembrane
	KindMetallic
)

func (k Kind) String() string {
	switch k {
	case KindNoise:
		return "noise"
	case KindTonal:
		return "tonal"
	case KindMembrane:
		return "membrane"
	case KindMetallic:
		return "metallic"
	}
	return "unknown"
}

// Sound describes how one SoundType is synthesized
type Sound struct {
	Type   SoundType
	Label  string
	Kind   Kind
	Attack time.Duration
	Decay  time.Duration

	Freq    float64   // tonal, membrane and noise body
	FreqEnd float64   // glide target, tonal and membrane
	Freqs   []float64 // metallic partials
	Pink    bool      // noise color
	Body    float64   // tone mixed under noise
	filter  filterSpec
}

var sounds = []Sound{
	{Type: Clap, Label: "Clap", Kind: KindNoise, Attack: 5 * time.Millisecond, Decay: 80 * time.Millisecond,
		Pink: true, filter: filterSpec{bandpass, 1500, 2}},
	{Type: Meow, Label: "Meow", Kind: KindTonal, Attack: 8 * time.Millisecond, Decay: 85 * time.Millisecond,
		Freq: 820, FreqEnd: 520},
	{Type: Woodblock, Label: "Woodblock", Kind: KindTonal, Attack: time.Millisecond, Decay: 45 * time.Millisecond,
		Freq: 1200, FreqEnd: 1150},
	{Type: Tom, Label: "Tom", Kind: KindMembrane, Attack: 2 * time.Millisecond, Decay: 90 * time.Millisecond,
		Freq: 240, FreqEnd: 110},
	{Type: Kick, Label: "Kick", Kind: KindMembrane, Attack: 2 * time.Millisecond, Decay: 90 * time.Millisecond,
		Freq: 150, FreqEnd: 45},
	{Type: Snare, Label: "Snare", Kind: KindNoise, Attack: 2 * time.Millisecond, Decay: 80 * time.Millisecond,
		Freq: 185, Body: 0.4, filter: filterSpec{highpass, 1200, 0.7}},
	{Type: HiHat, Label: "Hi-hat", Kind: KindMetallic, Attack: time.Millisecond, Decay: 50 * time.Millisecond,
		Freqs: []float64{205.3, 304.4, 369.6, 522.7, 540, 800}, filter: filterSpec{highpass, 7000, 0.7}},
	{Type: Cowbell, Label: "Cowbell", Kind: KindMetallic, Attack: time.Millisecond, Decay: 90 * time.Millisecond,
		Freqs: []float64{540, 800}, filter: filterSpec{bandpass, 2640, 1.5}},
}

// Sounds lists every sound in menu order
func Sounds() []Sound {
	return append([]Sound(nil), sounds...)
}

// Lookup returns the sound for t
func Lookup(t SoundType) (Sound, error) {
	for _, s := range sounds {
		if s.Type == t {
			return s, nil
		}
	}
	return Sound{}, fmt.Errorf("unknown sound %q", t)
}

// streamer builds one hit. dur is how long the note is held.
func (s Sound) streamer(sr beep.SampleRate, dur time.Duration, rng *rand.Rand) beep.Streamer {
	rate := float64(sr)
	env := newEnvelope(sr, s.Attack, s.Decay, dur)
	glide := sr.N(s.Attack + s.Decay)

	var src beep.Streamer
	switch s.Kind {
	case KindNoise:
		src = &noise{rng: rng, pink: s.Pink}
	case KindTonal:
		src = &sweep{sampleRate: rate, start: s.Freq, end: s.FreqEnd, length: glide}
	case KindMembrane:
		src = &sweep{sampleRate: rate, start: s.Freq, end: s.FreqEnd, length: glide / 2}
	case KindMetallic:
		src = &partials{sampleRate: rate, freqs: s.Freqs}
	}
	if s.filter.kind != noFilter {
		src = newBiquad(s.filter, rate).Process(src)
	}
	if s.Body > 0 {
		body := &sweep{sampleRate: rate, start: s.Freq, end: s.Freq, length: glide}
		src = beep.Mix(src, gainStreamer(body, s.Body))
	}
	return env.Process(src)
}

func gainStreamer(src beep.Streamer, g float64) beep.Streamer {
	return beep.StreamerFunc(func(samples [][2]float64) (n int, ok bool) {
		n, ok = src.Stream(samples)
		for i := range samples[:n] {
			samples[i][0] *= g
			samples[i][1] *= g
		}
		return n, ok
	})
}

// SynthVoice plays a Sound through an Engine
type SynthVoice struct {
	engine *Engine
	sound  Sound

	mu       sync.Mutex
	rng      *rand.Rand
	volume   VolumeTrack
	disposed bool
}

func (v *SynthVoice) Sound() Sound { return v.sound }

// SetVolume takes effect for notes triggered at or after at
func (v *SynthVoice) SetVolume(db float64, at time.Duration) {
	v.mu.Lock()
	v.volume.Set(db, at)
	v.mu.Unlock()
}

// TriggerAttackRelease schedules a hit held for dur at timeline time at
func (v *SynthVoice) TriggerAttackRelease(dur, at time.Duration) {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return
	}
	db := v.volume.At(at)
	src := v.sound.streamer(v.engine.sr, dur, v.rng)
	v.mu.Unlock()

	v.engine.schedule(v, src, dbToGain(db), at)
}

// Cancel drops hits that have not reached the output yet. A hit already
// sounding rings out.
func (v *SynthVoice) Cancel() {
	v.engine.cancel(v)
}

// Dispose silences the voice and rejects further triggers
func (v *SynthVoice) Dispose() {
	v.mu.Lock()
	v.disposed = true
	v.mu.Unlock()
	v.engine.drop(v)
}

// CueVoice is the sine voice used for countdown ticks
type CueVoice struct {
	engine *Engine
	gain   float64
}

// Tick plays note ("C5", "F#4") immediately
func (c *CueVoice) Tick(note string, dur time.Duration) error {
	freq, err := NoteFrequency(note)
	if err != nil {
		return err
	}
	sr := c.engine.sr
	env := newEnvelope(sr, 5*time.Millisecond, 100*time.Millisecond, dur)
	src := env.Process(&sweep{sampleRate: float64(sr), start: freq, end: freq})
	c.engine.scheduleNow(c, src, c.gain)
	return nil
}
