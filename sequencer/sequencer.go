package sequencer

import (
	"sync"
	"time"

	"clap-trainer/clock"
	"clap-trainer/debug"
	"clap-trainer/pattern"
	"clap-trainer/position"
	"clap-trainer/sequence"
)

// PickupOffset is how much quieter the pickup cue and pre-roll are than
// the pattern, in dB
const PickupOffset = -4.0

// PlayOptions control one playback
type PlayOptions struct {
	Loop   bool    // repeat beats 1-8 until stopped
	Pickup bool    // cue on the "&" before beat 1
	Volume float64 // dB, added to each slot's accent offset
	Hold   bool    // keep the transport running past beat 9; the caller stops it
}

// Callbacks run on the draw channel, never before the sound they describe
type Callbacks struct {
	OnBeatSounding func(slot int) // slot -1 is the pickup cue
	OnTimeMarker   func(slot int)
	OnEnd          func() // one-shot playback finished
}

// Sequencer schedules a compiled pattern onto the shared context
type Sequencer struct {
	ctx *Context

	ops sync.Mutex // serializes Load, Start, Stop and the one-shot finish

	mu      sync.Mutex
	gen     uint64
	playing bool
}

// New returns a sequencer playing through ctx
func New(ctx *Context) *Sequencer {
	return &Sequencer{ctx: ctx}
}

// Context returns the shared context
func (s *Sequencer) Context() *Context { return s.ctx }

// Playing reports whether a playback is in flight
func (s *Sequencer) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Play tears down any current playback and starts p from the top
func (s *Sequencer) Play(p pattern.Pattern, opts PlayOptions, cb Callbacks) error {
	s.ops.Lock()
	defer s.ops.Unlock()
	if err := s.load(p, opts, cb); err != nil {
		return err
	}
	return s.start()
}

// Load resets the context and schedules p without starting the
// transport. Extra callbacks may be scheduled on the transport before
// Start.
func (s *Sequencer) Load(p pattern.Pattern, opts PlayOptions, cb Callbacks) error {
	s.ops.Lock()
	defer s.ops.Unlock()
	return s.load(p, opts, cb)
}

func (s *Sequencer) load(p pattern.Pattern, opts PlayOptions, cb Callbacks) error {
	s.ctx.Reset()

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.playing = false
	s.mu.Unlock()

	t := s.ctx.Transport
	draw := s.ctx.Draw
	voice := s.ctx.Voice
	note := position.SixteenthDuration(t.BPM())
	c := sequence.Compile(p)

	var loop *clock.Loop
	if opts.Loop {
		loop = &clock.PatternLoop
	}

	sound := func(db float64, slot int, at time.Duration) {
		if voice != nil {
			voice.SetVolume(db, at)
			voice.TriggerAttackRelease(note, at)
		}
		if cb.OnBeatSounding != nil {
			draw.Schedule(at, func() { cb.OnBeatSounding(slot) })
		}
	}

	err := t.SchedulePart(c.Sound, func(slot int, at time.Duration) {
		sound(opts.Volume+p[slot].Accent().VolumeOffset(), slot, at)
	}, loop)
	if err != nil {
		return err
	}

	err = t.SchedulePart(c.Time, func(slot int, at time.Duration) {
		if cb.OnTimeMarker != nil {
			draw.Schedule(at, func() { cb.OnTimeMarker(slot) })
		}
	}, loop)
	if err != nil {
		return err
	}

	if opts.Pickup {
		err = t.ScheduleSound(c.Pickup.At, func(at time.Duration) {
			sound(opts.Volume+PickupOffset, position.PickupSlot, at)
		})
		if err != nil {
			return err
		}
	}

	// slot 31 leads into beat 1, so it sounds once before the first pass
	if c.Preroll != nil {
		slot := c.Preroll.Slot
		err = t.ScheduleSound(c.Preroll.At, func(at time.Duration) {
			sound(opts.Volume+PickupOffset, slot, at)
			if cb.OnTimeMarker != nil {
				draw.Schedule(at, func() { cb.OnTimeMarker(slot) })
			}
		})
		if err != nil {
			return err
		}
	}

	if !opts.Loop && !opts.Hold {
		err = t.Schedule(position.LoopEnd, func(time.Duration) {
			// callbacks must not stop the transport they run on
			go s.finish(gen, cb.OnEnd)
		})
		if err != nil {
			return err
		}
	}

	debug.Log("seq", "load sounds=%d loop=%v pickup=%v volume=%.1f", len(c.Sound), opts.Loop, opts.Pickup, opts.Volume)
	return nil
}

// Start begins the loaded playback
func (s *Sequencer) Start() error {
	s.ops.Lock()
	defer s.ops.Unlock()
	return s.start()
}

func (s *Sequencer) start() error {
	if err := s.ctx.Transport.Start(); err != nil {
		return err
	}
	s.mu.Lock()
	s.playing = true
	s.mu.Unlock()
	return nil
}

// Stop halts playback and drops everything scheduled
func (s *Sequencer) Stop() {
	s.ops.Lock()
	defer s.ops.Unlock()
	s.stop()
}

func (s *Sequencer) stop() {
	s.mu.Lock()
	s.gen++
	s.playing = false
	s.mu.Unlock()
	s.ctx.Reset()
}

func (s *Sequencer) finish(gen uint64, onEnd func()) {
	s.ops.Lock()
	defer s.ops.Unlock()

	s.mu.Lock()
	current := s.gen == gen
	s.mu.Unlock()
	if !current {
		return
	}
	s.stop()
	if onEnd != nil {
		s.ctx.Draw.Post(onEnd)
	}
}
