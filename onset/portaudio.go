package onset

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"clap-trainer/debug"
)

// OpenTimeout bounds device opening. Some hosts block forever when the
// microphone permission prompt is never answered.
const OpenTimeout = 5 * time.Second

// PortAudio captures mono input through PortAudio. It never applies
// processing, so it refuses constraints that ask for any.
type PortAudio struct {
	Device     string  // substring of the device name, default input when empty
	SampleRate float64 // default device rate when zero
	BufferSize int     // frames per callback
	RingSize   int     // samples kept for analysis
}

type paStream struct {
	*Ring
	stream    *portaudio.Stream
	closeOnce sync.Once
	closeErr  error
}

func (s *paStream) Close() error {
	s.closeOnce.Do(func() {
		if err := s.stream.Stop(); err != nil {
			s.closeErr = err
		}
		if err := s.stream.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
		portaudio.Terminate()
		debug.Log("onset", "input closed")
	})
	return s.closeErr
}

// Open starts capture
func (p *PortAudio) Open(c Constraints) (Stream, error) {
	if c.EchoCancellation || c.NoiseSuppression || c.AutoGainControl {
		return nil, fmt.Errorf("portaudio: %w", ErrUnsupportedConstraints)
	}

	type result struct {
		s   Stream
		err error
	}
	ch := make(chan result, 1)
	go func() {
		s, err := p.open()
		ch <- result{s, err}
	}()

	select {
	case r := <-ch:
		return r.s, r.err
	case <-time.After(OpenTimeout):
		// the open may still finish; close whatever it returns
		go func() {
			if r := <-ch; r.s != nil {
				r.s.Close()
			}
		}()
		return nil, fmt.Errorf("portaudio: open timed out: %w", ErrInputUnavailable)
	}
}

func (p *PortAudio) open() (Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w: %v", ErrInputUnavailable, err)
	}

	dev, err := p.device()
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.Output.Channels = 0
	if p.SampleRate > 0 {
		params.SampleRate = p.SampleRate
	}
	if p.BufferSize > 0 {
		params.FramesPerBuffer = p.BufferSize
	}
	ringSize := p.RingSize
	if ringSize <= 0 {
		ringSize = 4096
	}

	ring := NewRing(ringSize, params.SampleRate)
	stream, err := portaudio.OpenStream(params, func(in []float32) {
		ring.Write(in)
	})
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("portaudio open %q: %w: %v", dev.Name, ErrInputUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("portaudio start %q: %w: %v", dev.Name, ErrInputUnavailable, err)
	}

	debug.Log("onset", "input open device=%q rate=%.0f", dev.Name, params.SampleRate)
	return &paStream{Ring: ring, stream: stream}, nil
}

func (p *PortAudio) device() (*portaudio.DeviceInfo, error) {
	if p.Device == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("default input: %w: %v", ErrInputUnavailable, err)
		}
		return dev, nil
	}
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list inputs: %w: %v", ErrInputUnavailable, err)
	}
	want := strings.ToLower(p.Device)
	for _, d := range devs {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), want) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("input %q not found: %w", p.Device, ErrInputUnavailable)
}

// InputDevice describes a capture device
type InputDevice struct {
	Name       string
	Channels   int
	SampleRate float64
	Default    bool
}

// InputDevices lists capture devices
func InputDevices() ([]InputDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	defer portaudio.Terminate()

	devs, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	def, _ := portaudio.DefaultInputDevice()

	var out []InputDevice
	for _, d := range devs {
		if d.MaxInputChannels == 0 {
			continue
		}
		out = append(out, InputDevice{
			Name:       d.Name,
			Channels:   d.MaxInputChannels,
			SampleRate: d.DefaultSampleRate,
			Default:    def != nil && d.Name == def.Name,
		})
	}
	return out, nil
}
