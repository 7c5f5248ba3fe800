package onset

import (
	"fmt"
	"sync"

	"clap-trainer/clock"
	"clap-trainer/debug"
)

// Detector polls a Stream and reports RMS onsets. It implements Listener;
// Close closes the stream.
type Detector struct {
	stream   Stream
	timeline clock.Now
	src      clock.TimeSource
	cfg      Config

	mu      sync.Mutex
	running bool
	closed  bool
	stop    chan struct{}
	done    chan struct{}
}

// NewDetector analyzes stream, stamping onsets with timeline time. src
// paces the polling loop.
func NewDetector(stream Stream, timeline clock.Now, src clock.TimeSource, cfg Config) *Detector {
	if src == nil {
		src = clock.System()
	}
	return &Detector{stream: stream, timeline: timeline, src: src, cfg: cfg.withDefaults()}
}

// Config returns the detector's effective settings
func (d *Detector) Config() Config { return d.cfg }

// Start begins polling. fn runs on the detector goroutine.
func (d *Detector) Start(fn func(Onset)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("start detector: %w", ErrInputUnavailable)
	}
	if d.running {
		return debug.Misuse("onset", fmt.Errorf("start detector: %w", ErrRunning))
	}
	d.running = true
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.loop(fn, d.stop, d.done)
	debug.Log("onset", "detector start threshold=%.2f debounce=%v", d.cfg.Threshold, d.cfg.Debounce)
	return nil
}

// Stop ends polling. No onset is delivered after Stop returns.
func (d *Detector) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stop)
	done := d.done
	d.mu.Unlock()
	<-done
}

// Close stops polling and releases the stream
func (d *Detector) Close() error {
	d.Stop()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.stream.Close()
}

func (d *Detector) loop(fn func(Onset), stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	frame := make([]float64, d.cfg.FrameSize)
	var (
		lastSeq  uint64
		haveLast bool
		last     Onset
		prevMags []float64
	)

	for {
		timer := d.src.NewTimer(d.cfg.PollInterval)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C():
		}

		n, seq := d.stream.Latest(frame)
		if n == 0 || seq == lastSeq {
			continue
		}
		lastSeq = seq

		// flux compares against the previous analyzed frame, loud or not
		mags := Magnitudes(frame[:n])
		flux := SpectralFlux(mags, prevMags)
		prevMags = mags

		level := RMS(frame[:n])
		if level <= d.cfg.Threshold {
			continue
		}
		now := d.timeline.Now()
		if haveLast && now-last.At < d.cfg.Debounce {
			continue
		}

		o := Onset{
			At:  now,
			RMS: level,
			Features: Features{
				ZCR:      ZeroCrossingRate(frame[:n]),
				Centroid: SpectralCentroid(mags, d.stream.SampleRate()),
				Flux:     flux,
			},
		}
		last, haveLast = o, true

		debug.Log("onset", "at=%v rms=%.3f zcr=%.3f centroid=%.0fHz flux=%.4f",
			o.At, o.RMS, o.Features.ZCR, o.Features.Centroid, o.Features.Flux)

		// Stop may have raced the analysis above
		select {
		case <-stop:
			return
		default:
		}
		fn(o)
	}
}
