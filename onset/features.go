package onset

import (
	"math"
	"math/cmplx"

	"github.com/maddyblue/go-dsp/fft"
)

// RMS is the root mean square of frame
func RMS(frame []float64) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// ZeroCrossingRate is the fraction of adjacent samples that change sign
func ZeroCrossingRate(frame []float64) float64 {
	if len(frame) < 2 {
		return 0
	}
	n := 0
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] >= 0) != (frame[i] >= 0) {
			n++
		}
	}
	return float64(n) / float64(len(frame)-1)
}

// Magnitudes returns the magnitude spectrum up to Nyquist
func Magnitudes(frame []float64) []float64 {
	if len(frame) == 0 {
		return nil
	}
	spec := fft.FFTReal(frame)
	mags := make([]float64, len(spec)/2)
	for i := range mags {
		mags[i] = cmplx.Abs(spec[i])
	}
	return mags
}

// SpectralCentroid is the magnitude-weighted mean frequency in Hz
func SpectralCentroid(mags []float64, sampleRate float64) float64 {
	if len(mags) == 0 {
		return 0
	}
	binHz := sampleRate / float64(2*len(mags))
	var num, den float64
	for i, m := range mags {
		num += float64(i) * binHz * m
		den += m
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// SpectralFlux sums the increases in magnitude since prev, normalized by
// bin count. A missing prev compares against silence.
func SpectralFlux(mags, prev []float64) float64 {
	if len(mags) == 0 {
		return 0
	}
	var sum float64
	for i, m := range mags {
		var p float64
		if i < len(prev) {
			p = prev[i]
		}
		if d := m - p; d > 0 {
			sum += d * d
		}
	}
	return math.Sqrt(sum) / float64(len(mags))
}
