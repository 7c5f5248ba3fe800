package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clap-trainer/audio"
	"clap-trainer/clock"
	"clap-trainer/config"
	"clap-trainer/debug"
	"clap-trainer/midi"
	"clap-trainer/onset"
	"clap-trainer/quiz"
	"clap-trainer/sequencer"
	"clap-trainer/store"
)

// session is one wired audio context with its machine and stores
type session struct {
	ctx     *sequencer.Context
	engine  *audio.Engine
	machine *quiz.Machine
	presets *store.Presets
	history *store.History
	tap     *midi.Tap // set when claps come from pads
	midiOut bool
}

func openStores() (*store.Presets, *store.History, error) {
	dir := dataDir
	if dir == "" {
		dir = cfg.DataDir
	}
	kv, err := store.NewFileKV(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("open data dir: %w", err)
	}
	return store.NewPresets(kv), store.NewHistory(kv, cfg.Session.HistoryCap), nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// openSession wires output, input and storage from cfg. Output failures
// are fatal, a missing microphone is not: attempts report it instead.
func openSession(cb quiz.Callbacks) (*session, error) {
	presets, history, err := openStores()
	if err != nil {
		return nil, err
	}

	ctx := sequencer.NewContext(clock.System(), nil, nil,
		clock.WithLookahead(ms(cfg.Audio.LookaheadMs)),
		clock.WithBPM(float64(cfg.Session.Tempo)))
	s := &session{ctx: ctx, presets: presets, history: history}

	if err := s.openOutput(); err != nil {
		ctx.Close()
		return nil, err
	}

	opts := quiz.Options{
		Countdown: cfg.Session.Countdown,
		Pickup:    cfg.Session.Pickup,
		Volume:    cfg.Audio.VolumeDB,
		Tolerance: cfg.Tolerance(),
	}
	s.machine = quiz.New(sequencer.New(ctx), s.openInput(), history, opts, cb)
	return s, nil
}

func (s *session) openOutput() error {
	s.engine = audio.NewEngine(s.ctx.Transport, audio.DefaultSampleRate)
	speakerErr := s.engine.Open(ms(cfg.Audio.BufferMs))
	if speakerErr == nil {
		// the countdown always ticks on the speaker
		s.ctx.Cue = s.engine.NewCue()
	}
	sound := audio.SoundType(cfg.Audio.Sound)

	switch cfg.Audio.Output {
	case config.OutputMIDI:
		send, err := midi.OpenOutput(cfg.Audio.MIDIPort)
		if err != nil {
			s.engine.Close()
			return fmt.Errorf("open midi output: %w", err)
		}
		kit := midi.GetKit(cfg.Audio.MIDIKit)
		s.ctx.SetVoice(midi.NewVoice(send, kit, sound, uint8(cfg.Audio.MIDIChannel), s.ctx.Transport, s.ctx.Transport.Source()))
		s.midiOut = true
		debug.Log("main", "midi output %q kit=%s", cfg.Audio.MIDIPort, cfg.Audio.MIDIKit)

	default:
		if speakerErr != nil {
			return speakerErr
		}
		v, err := s.engine.NewVoice(sound)
		if err != nil {
			s.engine.Close()
			return err
		}
		s.ctx.SetVoice(v)
	}
	if speakerErr != nil {
		debug.Log("main", "no countdown cue: %v", speakerErr)
	}
	return nil
}

func (s *session) openInput() onset.Input {
	if cfg.Detector.Input == config.InputPads {
		s.tap = &midi.Tap{Timeline: s.ctx.Transport}
		return s.tap
	}
	return &onset.Microphone{
		Source: &onset.PortAudio{
			Device:     cfg.Detector.Device,
			SampleRate: cfg.Detector.SampleRate,
			BufferSize: cfg.Detector.FrameSize / 2,
			RingSize:   cfg.Detector.FrameSize * 4,
		},
		Constraints: onset.RawConstraints(),
		Config: onset.Config{
			Threshold: cfg.Detector.Threshold,
			Debounce:  cfg.Debounce(),
			FrameSize: cfg.Detector.FrameSize,
		},
		Timeline: s.ctx.Transport,
		Clock:    s.ctx.Transport.Source(),
	}
}

// attachPads waits for the first pad controller and hands it to the tap
func (s *session) attachPads(ctx context.Context) error {
	dm := midi.NewDeviceManager(true)
	go dm.Run(ctx)

	timeout := time.After(midi.ScanTimeout + time.Second)
	for {
		select {
		case ev, ok := <-dm.Events():
			if !ok {
				return ctx.Err()
			}
			if ev.Type == midi.DeviceConnected && ev.Controller.Type() == midi.ControllerPads {
				s.tap.SetController(ev.Controller)
				debug.Log("main", "tap pads %s", ev.ID)
				go func() {
					for range dm.Events() {
					}
				}()
				return nil
			}
		case <-timeout:
			return fmt.Errorf("no pad controller found: %w", onset.ErrInputUnavailable)
		}
	}
}

// close stops everything the session opened
func (s *session) close() {
	s.machine.Close()
	s.ctx.Close()
	s.engine.Close()
	if s.midiOut || s.tap != nil {
		midi.CloseDriver()
	}
}

// describe turns machine errors into something to act on
func describe(err error) string {
	switch {
	case errors.Is(err, onset.ErrInputUnavailable):
		return "no clap input: check the microphone (or pads) and permissions"
	case errors.Is(err, midi.ErrPortsTimeout):
		return "midi port scan timed out; on macOS try: sudo killall coreaudiod midiserver"
	}
	return err.Error()
}
