package quantize

import (
	"fmt"
	"slices"
	"strings"

	"github.com/RyanBlaney/sonido-stems/algorithms/common"
	"github.com/RyanBlaney/sonido-stems/logging"
)

// Scale selects how reference levels are derived
type Scale string

const (
	// ScaleRelative spreads the levels over the audible part of the signal's
	// own loudness distribution
	ScaleRelative Scale = "relative"

	// ScaleNormal places the levels at mu-2σ..mu+2σ of a per-instrument
	// normal distribution calibrated offline
	ScaleNormal Scale = "normal"

	// ScalePercentile picks evenly spaced entries of a per-instrument
	// percentile table
	ScalePercentile Scale = "percentile"
)

// DefaultSensitivityPower is the loudness below which Relative treats
// windows as silent
const DefaultSensitivityPower = 0.001

// ParseScale maps "", "none" and "relative" onto ScaleRelative and the other
// names onto their scale. Unknown names are returned as-is.
func ParseScale(name string) Scale {
	switch s := strings.ToLower(strings.TrimSpace(name)); s {
	case "", "none", "relative":
		return ScaleRelative
	default:
		return Scale(s)
	}
}

// Valid reports whether s names a known strategy
func (s Scale) Valid() bool {
	_, ok := strategies[s]
	return ok
}

type strategy func(b *Builder, loudness []float64, instrument string) (ReferenceLevels, error)

var strategies = map[Scale]strategy{
	ScaleRelative:   buildRelative,
	ScaleNormal:     buildNormal,
	ScalePercentile: buildPercentile,
}

// Builder derives reference levels for a stem
type Builder struct {
	scale            Scale
	numberOfLevels   int
	sensitivityPower float64
	logger           logging.Logger
}

// NewBuilder creates a builder. An empty scale means ScaleRelative.
func NewBuilder(scale Scale, numberOfLevels int, sensitivityPower float64) *Builder {
	if scale == "" {
		scale = ScaleRelative
	}
	return &Builder{
		scale:            scale,
		numberOfLevels:   numberOfLevels,
		sensitivityPower: sensitivityPower,
		logger: logging.WithFields(logging.Fields{
			"component": "quantizer_builder",
			"scale":     string(scale),
		}),
	}
}

// Build derives the reference levels. loudness is only read by the Relative
// scale; instrument is only read by the Normal and Percentile scales.
func (b *Builder) Build(loudness []float64, instrument string) (ReferenceLevels, error) {
	if b.numberOfLevels < 2 {
		return nil, fmt.Errorf("%w: number of levels must be at least 2, got %d",
			common.ErrConfiguration, b.numberOfLevels)
	}

	build, ok := strategies[b.scale]
	if !ok {
		return nil, fmt.Errorf("%w: unknown scale %q", common.ErrConfiguration, b.scale)
	}

	levels, err := build(b, loudness, instrument)
	if err != nil {
		return nil, err
	}

	b.logger.Debug("Reference levels built", logging.Fields{
		"instrument": instrument,
		"levels":     levels,
	})

	return levels, nil
}

// Quantizer builds the reference levels and wraps them in a Quantizer
func (b *Builder) Quantizer(loudness []float64, instrument string, normalize bool) (*Quantizer, error) {
	levels, err := b.Build(loudness, instrument)
	if err != nil {
		return nil, err
	}
	return NewQuantizer(levels, b.numberOfLevels, normalize), nil
}

func buildRelative(b *Builder, loudness []float64, _ string) (ReferenceLevels, error) {
	if len(loudness) == 0 {
		return nil, fmt.Errorf("%w: empty loudness signal", common.ErrInput)
	}

	sorted := slices.Clone(loudness)
	slices.Sort(sorted)

	idx := common.LowerBound(sorted, b.sensitivityPower)
	if idx >= len(sorted) {
		return nil, fmt.Errorf("%w: every loudness value is below the sensitivity power %g",
			common.ErrInput, b.sensitivityPower)
	}

	step := (len(sorted) - idx) / b.numberOfLevels
	if step == 0 {
		return nil, fmt.Errorf("%w: %d audible loudness values cannot span %d levels",
			common.ErrInput, len(sorted)-idx, b.numberOfLevels)
	}

	levels := make(ReferenceLevels, b.numberOfLevels)
	for i := 1; i < b.numberOfLevels; i++ {
		levels[i] = sorted[idx+i*step]
	}

	return levels, nil
}

func buildNormal(b *Builder, _ []float64, instrument string) (ReferenceLevels, error) {
	mu, sigma, ok := StandardValues(instrument)
	if !ok {
		return nil, fmt.Errorf("%w: no standard values for instrument %q", common.ErrLookup, instrument)
	}

	deviations := common.Linspace(-2, 2, b.numberOfLevels)
	levels := make(ReferenceLevels, len(deviations))
	for i, d := range deviations {
		levels[i] = mu + d*sigma
	}

	return levels, nil
}

func buildPercentile(b *Builder, _ []float64, instrument string) (ReferenceLevels, error) {
	table, ok := PercentileScale(instrument)
	if !ok {
		return nil, fmt.Errorf("%w: no percentile scale for instrument %q", common.ErrLookup, instrument)
	}

	step := percentileSpan / b.numberOfLevels
	if step == 0 {
		return nil, fmt.Errorf("%w: percentile scale supports at most %d levels, got %d",
			common.ErrConfiguration, MaxPercentileLevels, b.numberOfLevels)
	}

	levels := make(ReferenceLevels, b.numberOfLevels)
	for i := range levels {
		levels[i] = table[i*step]
	}
	levels[0] = 0

	return levels, nil
}
