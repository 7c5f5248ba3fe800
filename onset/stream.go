package onset

import (
	"sync"
	"time"

	"clap-trainer/clock"
)

// Stream is an open input. Latest copies the most recent samples into
// frame and returns how many were copied plus a sequence number that
// changes whenever new audio arrived.
type Stream interface {
	Latest(frame []float64) (n int, seq uint64)
	SampleRate() float64
	Close() error
}

// Ring keeps the most recent input samples. The capture callback writes,
// the detector reads snapshots.
type Ring struct {
	lk       sync.Mutex
	buf      []float64
	position int
	seq      uint64
	rate     float64
}

// NewRing returns a ring holding size samples
func NewRing(size int, sampleRate float64) *Ring {
	return &Ring{buf: make([]float64, size), rate: sampleRate}
}

// Write appends captured samples
func (r *Ring) Write(samples []float32) {
	r.lk.Lock()
	defer r.lk.Unlock()

	for _, s := range samples {
		r.buf[r.position%len(r.buf)] = float64(s)
		r.position++
	}
	r.seq++
}

// Latest copies the newest len(frame) samples, oldest first
func (r *Ring) Latest(frame []float64) (int, uint64) {
	r.lk.Lock()
	defer r.lk.Unlock()

	lim := len(frame)
	if len(r.buf) < lim {
		lim = len(r.buf)
	}
	if r.position < lim {
		lim = r.position
	}

	start := r.position - lim
	for i := 0; i < lim; i++ {
		frame[i] = r.buf[(start+i)%len(r.buf)]
	}
	return lim, r.seq
}

func (r *Ring) SampleRate() float64 { return r.rate }

func (r *Ring) Close() error { return nil }

// Burst is a stretch of loud input in a Scripted stream
type Burst struct {
	At        time.Duration
	Length    time.Duration
	Amplitude float64
}

// Scripted is a Stream that plays back bursts against a timeline. Every
// read counts as fresh audio.
type Scripted struct {
	timeline clock.Now
	rate     float64

	mu     sync.Mutex
	bursts []Burst
	seq    uint64
	closed bool
}

// NewScripted returns a stream that is loud during each burst
func NewScripted(timeline clock.Now, sampleRate float64, bursts ...Burst) *Scripted {
	return &Scripted{timeline: timeline, rate: sampleRate, bursts: bursts}
}

// Add appends bursts
func (s *Scripted) Add(bursts ...Burst) {
	s.mu.Lock()
	s.bursts = append(s.bursts, bursts...)
	s.mu.Unlock()
}

func (s *Scripted) Latest(frame []float64) (int, uint64) {
	now := s.timeline.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++

	amp := 0.0
	for _, b := range s.bursts {
		if now >= b.At && now < b.At+b.Length {
			amp = b.Amplitude
			break
		}
	}
	for i := range frame {
		// alternating signs keep the RMS equal to amp
		if i%2 == 0 {
			frame[i] = amp
		} else {
			frame[i] = -amp
		}
	}
	return len(frame), s.seq
}

func (s *Scripted) SampleRate() float64 { return s.rate }

func (s *Scripted) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close was called
func (s *Scripted) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
