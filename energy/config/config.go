package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/RyanBlaney/sonido-stems/algorithms/common"
	"github.com/RyanBlaney/sonido-stems/algorithms/quantize"
	"github.com/RyanBlaney/sonido-stems/algorithms/segmentation"
	"github.com/RyanBlaney/sonido-stems/algorithms/temporal"
)

// AnalyzerConfig is fixed for the lifetime of an analyzer
type AnalyzerConfig struct {
	// Segment duration constraints
	MinSegmentSec float64 `json:"min_segment_sec"`
	MaxSegmentSec float64 `json:"max_segment_sec"`
	MinWidthSec   float64 `json:"min_width_sec"` // window for silence skip and boundary checks

	// Quantization
	NumberOfLevels   int                `json:"number_of_levels"`
	SensitivityPower float64            `json:"sensitivity_power"` // loudness treated as silence by the relative scale
	Scale            quantize.Scale     `json:"scale"`             // "relative", "normal", "percentile"
	Reduction        temporal.Reduction `json:"reduction"`         // "mean", "median", "max", "rms", "sample"
	NormalizeValues  bool               `json:"normalize_values"`

	// Segmentation behavior
	Boundary    segmentation.BoundaryPolicy `json:"boundary"` // "midpoint", "search"
	IncludeTail bool                        `json:"include_tail"`

	// Verbose prints a run-length summary of every analyzed stem
	Verbose bool `json:"verbose,omitempty"`
}

// DefaultAnalyzerConfig returns the default analyzer configuration
func DefaultAnalyzerConfig() *AnalyzerConfig {
	return &AnalyzerConfig{
		MinSegmentSec:    5.0,
		MaxSegmentSec:    40.0,
		MinWidthSec:      1.0,
		NumberOfLevels:   5,
		SensitivityPower: quantize.DefaultSensitivityPower,
		Scale:            quantize.ScaleRelative,
		Reduction:        temporal.ReductionMean,
		NormalizeValues:  false,
		Boundary:         segmentation.BoundaryMidpoint,
		IncludeTail:      false,
	}
}

// ScaleOptimizedConfig returns defaults tuned for a quantization scale
func ScaleOptimizedConfig(scale quantize.Scale) *AnalyzerConfig {
	config := DefaultAnalyzerConfig()
	config.Scale = scale

	switch scale {
	case quantize.ScaleNormal:
		config.Reduction = temporal.ReductionMean
		config.NumberOfLevels = 5
		config.NormalizeValues = true

	case quantize.ScalePercentile:
		config.Reduction = temporal.ReductionMean
		config.NumberOfLevels = 4
		config.NormalizeValues = true

	default:
		// Use defaults
	}

	return config
}

// Validate rejects parameter combinations the analyzer cannot run with
func (c *AnalyzerConfig) Validate() error {
	switch {
	case c.NumberOfLevels < 2:
		return fmt.Errorf("%w: number of levels must be at least 2, got %d", common.ErrConfiguration, c.NumberOfLevels)
	case c.MinSegmentSec <= 0 || c.MaxSegmentSec <= 0 || c.MinWidthSec <= 0:
		return fmt.Errorf("%w: segment durations must be positive", common.ErrConfiguration)
	case c.MinSegmentSec >= c.MaxSegmentSec:
		return fmt.Errorf("%w: min segment length %gs must be below max segment length %gs",
			common.ErrConfiguration, c.MinSegmentSec, c.MaxSegmentSec)
	case c.MinWidthSec > c.MinSegmentSec:
		return fmt.Errorf("%w: min width %gs exceeds min segment length %gs",
			common.ErrConfiguration, c.MinWidthSec, c.MinSegmentSec)
	case c.SensitivityPower < 0:
		return fmt.Errorf("%w: sensitivity power must not be negative", common.ErrConfiguration)
	case !c.scale().Valid():
		return fmt.Errorf("%w: unknown scale %q", common.ErrConfiguration, c.Scale)
	case c.scale() == quantize.ScalePercentile && c.NumberOfLevels > quantize.MaxPercentileLevels:
		return fmt.Errorf("%w: percentile scale supports at most %d levels",
			common.ErrConfiguration, quantize.MaxPercentileLevels)
	case !c.boundary().Valid():
		return fmt.Errorf("%w: unknown boundary policy %q", common.ErrConfiguration, c.Boundary)
	}

	// unsupported reductions are not rejected; the reducer falls back to strided sampling
	return nil
}

// SegmentationParams returns the segmenter parameters
func (c *AnalyzerConfig) SegmentationParams() segmentation.Params {
	return segmentation.Params{
		MinSegmentSec: c.MinSegmentSec,
		MaxSegmentSec: c.MaxSegmentSec,
		MinWidthSec:   c.MinWidthSec,
		Boundary:      c.boundary(),
		IncludeTail:   c.IncludeTail,
	}
}

// Builder returns a quantizer builder for the configured scale
func (c *AnalyzerConfig) Builder() *quantize.Builder {
	return quantize.NewBuilder(c.scale(), c.NumberOfLevels, c.SensitivityPower)
}

// Fingerprint is a stable key for every setting that affects segment
// output. Verbose is excluded.
func (c *AnalyzerConfig) Fingerprint() string {
	return c.FingerprintWith()
}

// FingerprintWith is Fingerprint with extra input settings, such as the
// decoder's sample rate, folded into the key
func (c *AnalyzerConfig) FingerprintWith(extra ...string) string {
	key := *c
	key.Verbose = false
	key.Scale = c.scale()
	key.Boundary = c.boundary()
	key.Reduction = temporal.ParseReduction(string(c.Reduction))

	// only numbers, bools and strings: Marshal cannot fail
	data, _ := json.Marshal(key)
	h := sha256.New()
	h.Write(data)
	for _, e := range extra {
		h.Write([]byte{0})
		h.Write([]byte(e))
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}

func (c *AnalyzerConfig) scale() quantize.Scale {
	if c.Scale == "" {
		return quantize.ScaleRelative
	}
	return c.Scale
}

func (c *AnalyzerConfig) boundary() segmentation.BoundaryPolicy {
	if c.Boundary == "" {
		return segmentation.BoundaryMidpoint
	}
	return c.Boundary
}
