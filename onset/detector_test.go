package onset

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clap-trainer/clock"
	"clap-trainer/debug"
)

const poll = 10 * time.Millisecond

type collector struct {
	mu  sync.Mutex
	got []Onset
}

func (c *collector) add(o Onset) {
	c.mu.Lock()
	c.got = append(c.got, o)
	c.mu.Unlock()
}

func (c *collector) times() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, o := range c.got {
		out = append(out, o.At)
	}
	return out
}

// polls runs the detector loop n times, waiting for it to re-arm between
// steps so every poll sees exactly one timeline instant
func polls(t *testing.T, src *clock.Manual, n int) {
	t.Helper()
	armed := func() bool { return src.Pending() > 0 }
	for i := 0; i < n; i++ {
		require.Eventually(t, armed, time.Second, 50*time.Microsecond)
		src.Advance(poll)
	}
	require.Eventually(t, armed, time.Second, 50*time.Microsecond)
}

func newTestDetector(src *clock.Manual, bursts ...Burst) (*Detector, *Scripted) {
	stream := NewScripted(src, 44100, bursts...)
	cfg := DefaultConfig()
	cfg.PollInterval = poll
	return NewDetector(stream, src, src, cfg), stream
}

func TestDetectorThresholdAndOnsetTimes(t *testing.T) {
	src := clock.NewManual()
	d, _ := newTestDetector(src,
		Burst{At: 100 * time.Millisecond, Length: 50 * time.Millisecond, Amplitude: 0.5},
		Burst{At: 400 * time.Millisecond, Length: 50 * time.Millisecond, Amplitude: 0.1},
		Burst{At: 600 * time.Millisecond, Length: 30 * time.Millisecond, Amplitude: 0.3},
	)
	c := &collector{}
	require.NoError(t, d.Start(c.add))
	polls(t, src, 100)
	d.Stop()

	assert.Equal(t, []time.Duration{100 * time.Millisecond, 600 * time.Millisecond}, c.times())
	assert.InDelta(t, 0.5, c.got[0].RMS, 1e-9)
}

func TestDetectorDebounce(t *testing.T) {
	src := clock.NewManual()
	d, _ := newTestDetector(src, Burst{At: 0, Length: 300 * time.Millisecond, Amplitude: 0.8})
	c := &collector{}
	require.NoError(t, d.Start(c.add))
	polls(t, src, 30)
	d.Stop()

	assert.Equal(t, []time.Duration{
		10 * time.Millisecond,
		110 * time.Millisecond,
		210 * time.Millisecond,
	}, c.times())
}

func TestDetectorFluxTracksEveryFrame(t *testing.T) {
	src := clock.NewManual()
	ring := NewRing(1024, 44100)
	cfg := DefaultConfig()
	cfg.PollInterval = poll
	d := NewDetector(ring, src, src, cfg)
	c := &collector{}

	tone := func(amp float64) []float32 {
		out := make([]float32, 1024)
		for i := range out {
			out[i] = float32(amp * math.Sin(2*math.Pi*1000*float64(i)/44100))
		}
		return out
	}

	ring.Write(tone(0.5))
	require.NoError(t, d.Start(c.add))
	defer d.Stop()
	polls(t, src, 1)
	ring.Write(make([]float32, 1024))
	polls(t, src, 1)
	polls(t, src, 15) // no new audio, past the debounce
	ring.Write(tone(0.3))
	polls(t, src, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.got, 2)
	assert.Greater(t, c.got[0].Features.Flux, 0.0)
	want := SpectralFlux(Magnitudes(floats(tone(0.3))), nil)
	assert.InDelta(t, want, c.got[1].Features.Flux, 1e-9, "measured against the silent frame before it")
}

func floats(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func TestDetectorStopAndClose(t *testing.T) {
	debug.SetStrict(false)
	src := clock.NewManual()
	d, stream := newTestDetector(src, Burst{At: 0, Length: time.Hour, Amplitude: 0.8})
	c := &collector{}

	require.NoError(t, d.Start(c.add))
	assert.ErrorIs(t, d.Start(c.add), ErrRunning)
	polls(t, src, 1)
	d.Stop()
	n := len(c.times())

	src.Advance(time.Second)
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, n, len(c.times()))

	require.NoError(t, d.Close())
	assert.True(t, stream.Closed())
	assert.ErrorIs(t, d.Start(c.add), ErrInputUnavailable)
	require.NoError(t, d.Close())
}

func TestMicrophoneAcquire(t *testing.T) {
	src := clock.NewManual()
	stream := NewScripted(src, 44100)
	ok := &Microphone{Source: &StreamSource{Stream: stream}, Timeline: src, Clock: src}
	l, err := ok.Acquire()
	require.NoError(t, err)
	require.NoError(t, l.Close())
	assert.True(t, stream.Closed())

	denied := &Microphone{Source: &StreamSource{Err: errors.New("permission denied")}}
	_, err = denied.Acquire()
	assert.ErrorIs(t, err, ErrInputUnavailable)
	assert.Contains(t, err.Error(), "permission denied")

	_, err = (&Microphone{}).Acquire()
	assert.ErrorIs(t, err, ErrInputUnavailable)
}

func TestPortAudioRefusesProcessing(t *testing.T) {
	p := &PortAudio{}
	_, err := p.Open(Constraints{NoiseSuppression: true})
	assert.ErrorIs(t, err, ErrUnsupportedConstraints)
}

func TestRingLatest(t *testing.T) {
	r := NewRing(4, 8000)
	frame := make([]float64, 3)

	n, seq := r.Latest(frame)
	assert.Zero(t, n)
	assert.Zero(t, seq)

	r.Write([]float32{1, 2})
	n, _ = r.Latest(frame)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float64{1, 2}, frame[:n])

	r.Write([]float32{3, 4, 5})
	n, seq = r.Latest(frame)
	assert.Equal(t, 3, n)
	assert.Equal(t, uint64(2), seq)
	assert.Equal(t, []float64{3, 4, 5}, frame)
}

func TestFeatures(t *testing.T) {
	assert.InDelta(t, 0.5, RMS([]float64{0.5, -0.5, 0.5, -0.5}), 1e-12)
	assert.Zero(t, RMS(nil))
	assert.InDelta(t, 1.0, ZeroCrossingRate([]float64{1, -1, 1, -1}), 1e-12)
	assert.Zero(t, ZeroCrossingRate([]float64{1, 1, 1}))

	const rate = 44100.0
	// exactly on bin 23, so there is no leakage
	freq := 23 * rate / 1024
	sine := make([]float64, 1024)
	for i := range sine {
		sine[i] = math.Sin(2 * math.Pi * freq * float64(i) / rate)
	}
	mags := Magnitudes(sine)
	require.Len(t, mags, 512)
	assert.InDelta(t, freq, SpectralCentroid(mags, rate), 1)

	assert.Greater(t, SpectralFlux(mags, nil), 0.0)
	assert.Zero(t, SpectralFlux(mags, mags))
}
