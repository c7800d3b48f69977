package segmentation

// Segment is a span of samples [Start, End) with one quantized level.
// Power is the level as reported to consumers: normalized to [0, 1] when the
// quantizer normalizes, otherwise the level itself.
type Segment struct {
	Start    int     `json:"start"`
	End      int     `json:"end"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Level    int     `json:"level"`
	Power    float64 `json:"power"`
}

// Samples returns the number of samples the segment covers
func (s Segment) Samples() int {
	return s.End - s.Start
}

// Run is a maximal stretch of equal values in a flattened level sequence
type Run struct {
	Start    int     `json:"start"`
	End      int     `json:"end"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Value    float64 `json:"value"`
}

// Flatten expands r into one value per sample of the power signal. Samples
// outside every segment (leading silence, uncovered tail) are 0.
func Flatten(r *Result) []float64 {
	if r == nil {
		return []float64{}
	}

	levels := make([]float64, r.Length)
	for _, seg := range r.Segments {
		for i := seg.Start; i < seg.End && i < len(levels); i++ {
			levels[i] = seg.Power
		}
	}
	return levels
}

// Collapse turns a per-sample level sequence back into runs, starting a new
// run wherever the value changes
func Collapse(levels []float64, sampleRate int) []Run {
	runs := []Run{}
	if len(levels) == 0 || sampleRate <= 0 {
		return runs
	}

	sr := float64(sampleRate)
	start := 0
	for i := 1; i <= len(levels); i++ {
		if i < len(levels) && levels[i] == levels[start] {
			continue
		}
		runs = append(runs, Run{
			Start:    start,
			End:      i,
			StartSec: float64(start) / sr,
			EndSec:   float64(i) / sr,
			Value:    levels[start],
		})
		start = i
	}
	return runs
}
