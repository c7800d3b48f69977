package quantize

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/RyanBlaney/sonido-stems/algorithms/common"
)

// Calibration holds the constants behind the Normal and Percentile scales
// as measured on a set of loudness signals
type Calibration struct {
	Instrument  string    `json:"instrument"`
	Mu          float64   `json:"mu"`
	Sigma       float64   `json:"sigma"`
	Percentiles []float64 `json:"percentiles"`
	Windows     int       `json:"windows"` // audible windows the constants were measured on
}

// Calibrate measures the Normal and Percentile constants of instrument from
// loudness windows pooled across songs. Windows below sensitivity are
// ignored. Percentiles[i] is the i/(PercentileTableSize-1) quantile, with
// Percentiles[0] fixed at 0 like the built-in tables.
func Calibrate(instrument string, loudness []float64, sensitivity float64) (*Calibration, error) {
	audible := make([]float64, 0, len(loudness))
	for _, v := range loudness {
		if v >= sensitivity {
			audible = append(audible, v)
		}
	}
	if len(audible) < 2 {
		return nil, fmt.Errorf("%w: %d audible loudness windows, need at least 2",
			common.ErrInput, len(audible))
	}
	slices.Sort(audible)

	mu, sigma := stat.MeanStdDev(audible, nil)

	percentiles := make([]float64, PercentileTableSize)
	for i := 1; i < PercentileTableSize; i++ {
		p := float64(i) / float64(PercentileTableSize-1)
		percentiles[i] = stat.Quantile(p, stat.LinInterp, audible, nil)
	}

	return &Calibration{
		Instrument:  instrument,
		Mu:          mu,
		Sigma:       sigma,
		Percentiles: percentiles,
		Windows:     len(audible),
	}, nil
}
