package meter

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	minDecibels = -100.0
	maxDecibels = -30.0
)

// spectrum reproduces a browser analyser node's byte frequency data:
// Blackman window, FFT magnitude, per-bin exponential smoothing and a
// [-100 dB, -30 dB] → 0..255 mapping.
type spectrum struct {
	size      int
	smoothing float64
	fft       *fourier.FFT
	window    []float64
	frame     []float64
	smoothed  []float64
	bytes     []uint8
}

func newSpectrum(size int, smoothing float64) *spectrum {
	s := &spectrum{
		size:      size,
		smoothing: smoothing,
		fft:       fourier.NewFFT(size),
		window:    make([]float64, size),
		frame:     make([]float64, size),
		smoothed:  make([]float64, size/2),
		bytes:     make([]uint8, size/2),
	}
	const a0, a1, a2 = 0.42, 0.5, 0.08
	for i := range s.window {
		x := float64(i) / float64(size)
		s.window[i] = a0 - a1*math.Cos(2*math.Pi*x) + a2*math.Cos(4*math.Pi*x)
	}
	return s
}

// level analyses one window of samples in [-1, 1] and returns the mean bin
// value divided by 255.
func (s *spectrum) level(samples []float64) float64 {
	for i := range s.frame {
		s.frame[i] = samples[i] * s.window[i]
	}
	coeffs := s.fft.Coefficients(nil, s.frame)

	scale := 255.0 / (maxDecibels - minDecibels)
	var sum float64
	for k := range s.smoothed {
		mag := cmplx.Abs(coeffs[k]) / float64(s.size)
		s.smoothed[k] = s.smoothing*s.smoothed[k] + (1-s.smoothing)*mag

		db := minDecibels
		if s.smoothed[k] > 0 {
			db = 20 * math.Log10(s.smoothed[k])
		}
		v := math.Floor(scale * (db - minDecibels))
		switch {
		case v < 0:
			v = 0
		case v > 255:
			v = 255
		}
		s.bytes[k] = uint8(v)
		sum += v
	}
	return sum / float64(len(s.bytes)) / 255
}
