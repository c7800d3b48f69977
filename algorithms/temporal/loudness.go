package temporal

import (
	"strings"

	"github.com/RyanBlaney/sonido-stems/algorithms/common"
	"github.com/RyanBlaney/sonido-stems/logging"
)

// Reduction names the statistic used to collapse each window of the power
// signal into one loudness value
type Reduction string

const (
	ReductionMean     Reduction = "mean"
	ReductionMedian   Reduction = "median"
	ReductionMax      Reduction = "max"
	ReductionRootMean Reduction = "rms"
	ReductionStrided  Reduction = "sample"
)

type reduceFunc func(power []float64, windowSize, windows int) []float64

var reducers = map[Reduction]reduceFunc{
	ReductionMean:     aggregate(common.Mean),
	ReductionMedian:   aggregate(common.Median),
	ReductionMax:      aggregate(common.Max),
	ReductionRootMean: aggregate(common.RootMean),
	ReductionStrided:  strided,
}

// Reductions lists the supported reduction methods
func Reductions() []Reduction {
	return []Reduction{ReductionMean, ReductionMedian, ReductionMax, ReductionRootMean, ReductionStrided}
}

// ParseReduction maps a method name onto a Reduction. Names that match no
// known method are returned unchanged; Reduce falls back to strided sampling
// for them.
func ParseReduction(name string) Reduction {
	r := Reduction(strings.ToLower(strings.TrimSpace(name)))
	if r == "" {
		return ReductionMean
	}
	return r
}

// Supported reports whether r has a reducer
func (r Reduction) Supported() bool {
	_, ok := reducers[r]
	return ok
}

// LoudnessReducer turns a power signal into a coarse per-window loudness signal
type LoudnessReducer struct {
	method Reduction
	logger logging.Logger
}

// NewLoudnessReducer creates a reducer for the given method
func NewLoudnessReducer(method Reduction) *LoudnessReducer {
	return &LoudnessReducer{
		method: method,
		logger: logging.WithFields(logging.Fields{
			"component": "loudness_reducer",
		}),
	}
}

// Method returns the configured reduction method
func (lr *LoudnessReducer) Method() Reduction {
	return lr.method
}

// Reduce produces floor(len(power)/windowSize) loudness values. A trailing
// partial window is dropped.
func (lr *LoudnessReducer) Reduce(power []float64, windowSize int) []float64 {
	if windowSize <= 0 || len(power) < windowSize {
		return []float64{}
	}

	reduce, ok := reducers[lr.method]
	if !ok {
		lr.logger.Warn("Reduction method not implemented, falling back to strided sampling", logging.Fields{
			"method":   string(lr.method),
			"fallback": string(ReductionStrided),
		})
		reduce = strided
	}

	return reduce(power, windowSize, len(power)/windowSize)
}

// WindowSize is the loudness window for a sample rate: half a second
func WindowSize(sampleRate int) int {
	return sampleRate / 2
}

// PowerSignal rectifies a waveform
func PowerSignal(waveform []float64) []float64 {
	return common.Abs(waveform)
}

func aggregate(stat func([]float64) float64) reduceFunc {
	return func(power []float64, windowSize, windows int) []float64 {
		out := make([]float64, windows)
		for i := range windows {
			start := i * windowSize
			out[i] = stat(power[start : start+windowSize])
		}
		return out
	}
}

func strided(power []float64, windowSize, windows int) []float64 {
	out := make([]float64, windows)
	for i := range windows {
		out[i] = power[i*windowSize]
	}
	return out
}
