package quantize

import (
	"github.com/RyanBlaney/sonido-stems/algorithms/common"
)

// ReferenceLevels is an ascending list of thresholds. A value below
// levels[0] quantizes to -1, a value in [levels[i-1], levels[i]) to i-1, and
// a value at or above the last threshold to len(levels).
type ReferenceLevels []float64

// Quantizer maps loudness values onto ordinal energy levels
type Quantizer struct {
	levels         ReferenceLevels
	numberOfLevels int
	normalize      bool
}

// NewQuantizer creates a quantizer over levels. numberOfLevels is the
// divisor used when normalize is set.
func NewQuantizer(levels ReferenceLevels, numberOfLevels int, normalize bool) *Quantizer {
	own := make(ReferenceLevels, len(levels))
	copy(own, levels)
	return &Quantizer{
		levels:         own,
		numberOfLevels: numberOfLevels,
		normalize:      normalize,
	}
}

// Level returns the raw ordinal level of value
func (q *Quantizer) Level(value float64) int {
	return Level(value, q.levels)
}

// Value returns the level of value as a float. With normalization enabled
// the level is clamped to [0, numberOfLevels] and divided by
// numberOfLevels, so the result always lies in [0, 1].
func (q *Quantizer) Value(value float64) float64 {
	return q.LevelValue(q.Level(value))
}

// LevelValue converts an already computed level the same way Value does
func (q *Quantizer) LevelValue(level int) float64 {
	if !q.normalize || q.numberOfLevels <= 0 {
		return float64(level)
	}
	return float64(common.Clamp(level, 0, q.numberOfLevels)) / float64(q.numberOfLevels)
}

// Normalize reports whether Value normalizes to [0, 1]
func (q *Quantizer) Normalize() bool {
	return q.normalize
}

// NumberOfLevels returns the configured level count
func (q *Quantizer) NumberOfLevels() int {
	return q.numberOfLevels
}

// Levels returns a copy of the reference levels
func (q *Quantizer) Levels() ReferenceLevels {
	out := make(ReferenceLevels, len(q.levels))
	copy(out, q.levels)
	return out
}

// Level scans levels in ascending order and returns i-1 for the first
// threshold that exceeds value, or len(levels) when none does.
func Level(value float64, levels ReferenceLevels) int {
	for i, threshold := range levels {
		if value < threshold {
			return i - 1
		}
	}
	return len(levels)
}
