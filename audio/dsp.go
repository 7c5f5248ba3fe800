package audio

import (
	"math"
	"math/rand"
	"time"

	"github.com/gopxl/beep"
)

func calcPhase(pos int, sampleRate, freq float64) float64 {
	return float64(pos) / sampleRate * freq
}

func sineOsc(phase float64) float64 {
	return math.Sin(2 * math.Pi * phase)
}

func squareOsc(phase float64) float64 {
	_, frac := math.Modf(phase)
	if frac < 0.5 {
		return 1
	}
	return -1
}

// sweep is a sine whose frequency glides exponentially from start to end
// over length, then holds end
type sweep struct {
	sampleRate float64
	start, end float64
	length     int
	position   int
	phase      float64
}

func (s *sweep) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		freq := s.end
		if s.position < s.length && s.start > 0 && s.end > 0 {
			t := float64(s.position) / float64(s.length)
			freq = s.start * math.Pow(s.end/s.start, t)
		}
		_, s.phase = math.Modf(s.phase + freq/s.sampleRate)
		v := sineOsc(s.phase)
		samples[i][0] = v
		samples[i][1] = v
		s.position++
	}
	return len(samples), true
}

func (s *sweep) Err() error { return nil }

// partials sums square oscillators at fixed frequencies (808-style metal)
type partials struct {
	sampleRate float64
	freqs      []float64
	position   int
}

func (p *partials) Stream(samples [][2]float64) (int, bool) {
	scale := 1 / float64(len(p.freqs))
	for i := range samples {
		var v float64
		for _, f := range p.freqs {
			v += squareOsc(calcPhase(p.position, p.sampleRate, f))
		}
		v *= scale
		samples[i][0] = v
		samples[i][1] = v
		p.position++
	}
	return len(samples), true
}

func (p *partials) Err() error { return nil }

// noise is white or pink (Paul Kellet's economy filter) noise
type noise struct {
	rng        *rand.Rand
	pink       bool
	b0, b1, b2 float64
}

func (n *noise) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		white := n.rng.Float64()*2 - 1
		v := white
		if n.pink {
			n.b0 = 0.99765*n.b0 + white*0.0990460
			n.b1 = 0.96300*n.b1 + white*0.2965164
			n.b2 = 0.57000*n.b2 + white*1.0526913
			v = (n.b0 + n.b1 + n.b2 + white*0.1848) * 0.25
		}
		samples[i][0] = v
		samples[i][1] = v
	}
	return len(samples), true
}

func (n *noise) Err() error { return nil }

type filterKind int

const (
	noFilter filterKind = iota
	bandpass
	highpass
)

type filterSpec struct {
	kind filterKind
	freq float64
	q    float64
}

// biquad is an RBJ cookbook filter, mono
type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

func newBiquad(spec filterSpec, sampleRate float64) *biquad {
	w0 := 2 * math.Pi * spec.freq / sampleRate
	alpha := math.Sin(w0) / (2 * spec.q)
	cos := math.Cos(w0)
	a0 := 1 + alpha

	f := &biquad{
		a1: -2 * cos / a0,
		a2: (1 - alpha) / a0,
	}
	switch spec.kind {
	case bandpass:
		f.b0 = alpha / a0
		f.b1 = 0
		f.b2 = -alpha / a0
	case highpass:
		f.b0 = (1 + cos) / 2 / a0
		f.b1 = -(1 + cos) / a0
		f.b2 = (1 + cos) / 2 / a0
	}
	return f
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

func (f *biquad) Process(src beep.Streamer) beep.Streamer {
	return beep.StreamerFunc(func(samples [][2]float64) (n int, ok bool) {
		n, ok = src.Stream(samples)
		for i := range samples[:n] {
			v := f.process(samples[i][0])
			samples[i][0] = v
			samples[i][1] = v
		}
		return n, ok
	})
}

// envelope shapes a percussive hit: linear attack, squared decay to zero.
// A release shorter than the decay cuts the tail early.
type envelope struct {
	attack  int
	decay   int
	release int // sample where the note is let go, 0 for none
}

func newEnvelope(sr beep.SampleRate, attack, decay, hold time.Duration) envelope {
	env := envelope{attack: sr.N(attack), decay: sr.N(decay)}
	if env.attack < 1 {
		env.attack = 1
	}
	if env.decay < 1 {
		env.decay = 1
	}
	if hold > 0 {
		env.release = sr.N(hold)
	}
	return env
}

// length is the number of samples until the envelope reaches zero
func (e envelope) length() int {
	n := e.attack + e.decay
	if e.release > 0 && e.release+e.decay < n {
		n = e.release + e.decay
	}
	return n
}

func (e envelope) gain(i int) float64 {
	var g float64
	switch {
	case i < e.attack:
		g = float64(i) / float64(e.attack)
	case i < e.attack+e.decay:
		r := 1 - float64(i-e.attack)/float64(e.decay)
		g = r * r
	default:
		return 0
	}
	if e.release > 0 && i >= e.release {
		r := 1 - float64(i-e.release)/float64(e.decay)
		if r < 0 {
			r = 0
		}
		g *= r
	}
	return g
}

func (e envelope) Process(src beep.Streamer) beep.Streamer {
	pos := 0
	return beep.Take(e.length(), beep.StreamerFunc(func(samples [][2]float64) (n int, ok bool) {
		n, ok = src.Stream(samples)
		for i := range samples[:n] {
			g := e.gain(pos)
			samples[i][0] *= g
			samples[i][1] *= g
			pos++
		}
		return n, ok
	}))
}

func dbToGain(db float64) float64 {
	return math.Pow(10, db/20)
}
