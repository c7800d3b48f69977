package segmentation

import (
	"errors"
	"fmt"

	"github.com/RyanBlaney/sonido-stems/algorithms/common"
	"github.com/RyanBlaney/sonido-stems/logging"
)

// BoundaryPolicy decides where a segment ends once its level is known
type BoundaryPolicy string

const (
	// BoundaryMidpoint ends the segment halfway between its start and the
	// minimum-length candidate end, so every segment is minSeg/2 samples
	// long. This reproduces the historical output; the boundary search is
	// not consulted.
	BoundaryMidpoint BoundaryPolicy = "midpoint"

	// BoundarySearch ends the segment where the boundary search converged:
	// the first sample past the run of windows that keep the segment's level.
	BoundarySearch BoundaryPolicy = "search"
)

// Valid reports whether p is a known policy
func (p BoundaryPolicy) Valid() bool {
	return p == BoundaryMidpoint || p == BoundarySearch
}

var (
	// ErrSilentSignal is returned when no window of the silence skip finds a
	// non-zero level
	ErrSilentSignal = fmt.Errorf("%w: signal is silent", common.ErrInput)

	// ErrShortSignal is returned for signals that cannot hold one minimum-length segment
	ErrShortSignal = fmt.Errorf("%w: signal is shorter than the minimum segment", common.ErrInput)

	// ErrNoProgress is returned when the greedy loop stops advancing
	ErrNoProgress = errors.New("segmentation made no progress")
)

// Leveler quantizes loudness values. *quantize.Quantizer implements it.
type Leveler interface {
	Level(value float64) int
	LevelValue(level int) float64
}

// Params are the duration constraints of a segmentation run
type Params struct {
	MinSegmentSec float64        `json:"min_segment_sec"`
	MaxSegmentSec float64        `json:"max_segment_sec"`
	MinWidthSec   float64        `json:"min_width_sec"`
	Boundary      BoundaryPolicy `json:"boundary"`

	// IncludeTail emits the samples left after the last full step as a
	// final segment instead of leaving them uncovered
	IncludeTail bool `json:"include_tail"`
}

// Segmenter partitions a power signal into constant-level segments
type Segmenter struct {
	leveler     Leveler
	sampleRate  int
	minSeg      int
	maxSeg      int
	width       int
	hop         int
	boundary    BoundaryPolicy
	includeTail bool
	logger      logging.Logger
}

// NewSegmenter converts p into sample counts for sampleRate and validates them
func NewSegmenter(leveler Leveler, sampleRate int, p Params) (*Segmenter, error) {
	if leveler == nil {
		return nil, fmt.Errorf("%w: nil quantizer", common.ErrConfiguration)
	}
	if sampleRate < 2 {
		return nil, fmt.Errorf("%w: sample rate must be at least 2, got %d", common.ErrInput, sampleRate)
	}

	boundary := p.Boundary
	if boundary == "" {
		boundary = BoundaryMidpoint
	}
	if !boundary.Valid() {
		return nil, fmt.Errorf("%w: unknown boundary policy %q", common.ErrConfiguration, boundary)
	}

	sr := float64(sampleRate)
	s := &Segmenter{
		leveler:     leveler,
		sampleRate:  sampleRate,
		minSeg:      int(p.MinSegmentSec * sr),
		maxSeg:      int(p.MaxSegmentSec * sr),
		width:       int(p.MinWidthSec * sr),
		hop:         sampleRate / 2,
		boundary:    boundary,
		includeTail: p.IncludeTail,
		logger: logging.WithFields(logging.Fields{
			"component": "segmenter",
		}),
	}

	switch {
	case s.width < 1:
		return nil, fmt.Errorf("%w: min width %gs is below one sample", common.ErrConfiguration, p.MinWidthSec)
	case s.minSeg < 2:
		return nil, fmt.Errorf("%w: min segment length %gs is below two samples", common.ErrConfiguration, p.MinSegmentSec)
	case s.minSeg < s.width:
		return nil, fmt.Errorf("%w: min width %gs exceeds min segment length %gs",
			common.ErrConfiguration, p.MinWidthSec, p.MinSegmentSec)
	case s.maxSeg <= s.minSeg:
		return nil, fmt.Errorf("%w: min segment length %gs must be below max segment length %gs",
			common.ErrConfiguration, p.MinSegmentSec, p.MaxSegmentSec)
	}

	return s, nil
}

// Result is the segmentation of one power signal
type Result struct {
	// Start is the first sample after the leading silence
	Start      int       `json:"start"`
	Length     int       `json:"length"`
	SampleRate int       `json:"sample_rate"`
	Segments   []Segment `json:"segments"`
}

// Segment runs the silence skip and the greedy extension loop over power.
// Segments are contiguous from Result.Start; samples after the last full
// step are left uncovered unless IncludeTail is set.
func (s *Segmenter) Segment(power []float64) (*Result, error) {
	n := len(power)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty power signal", common.ErrInput)
	}
	if n <= s.minSeg {
		return nil, ErrShortSignal
	}

	start, err := s.skipSilence(power)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Start:      start,
		Length:     n,
		SampleRate: s.sampleRate,
		Segments:   []Segment{},
	}

	cur := start
	for iterations := 0; cur+s.minSeg < n; iterations++ {
		if iterations > n {
			return nil, fmt.Errorf("%w: exceeded %d iterations", ErrNoProgress, n)
		}

		var end int
		switch s.boundary {
		case BoundarySearch:
			section := s.leveler.Level(common.Mean(power[cur : cur+s.minSeg]))
			end = s.searchBoundary(power, cur, section)
		default:
			end = (cur + cur + s.minSeg) / 2
		}

		if end <= cur {
			return nil, fmt.Errorf("%w: boundary %d does not pass segment start %d", ErrNoProgress, end, cur)
		}

		result.Segments = append(result.Segments, s.emit(power, cur, end))
		cur = end
	}

	if s.includeTail && cur < n {
		result.Segments = append(result.Segments, s.emit(power, cur, n))
	}

	s.logger.Debug("Segmentation complete", logging.Fields{
		"start":    start,
		"samples":  n,
		"segments": len(result.Segments),
		"boundary": string(s.boundary),
	})

	return result, nil
}

// skipSilence checks a window every hop samples, starting half a window in,
// and returns the center of the first window whose median is not level 0.
// Levels below 0 count as silence.
func (s *Segmenter) skipSilence(power []float64) (int, error) {
	for center := s.width / 2; center < len(power); center += s.hop {
		if max(s.windowLevel(power, center), 0) != 0 {
			return center, nil
		}
	}
	return 0, ErrSilentSignal
}

// searchBoundary binary-searches [start+minSeg, start+maxSeg] (clipped to
// the signal) for the first sample where the segment can no longer keep
// level section. left grows while the predicate holds and right shrinks when
// it fails, so the loop converges on that sample even when the predicate is
// not monotonic.
func (s *Segmenter) searchBoundary(power []float64, start, section int) int {
	left := start + s.minSeg
	right := min(start+s.maxSeg, len(power))

	for left < right {
		mid := left + (right-left)/2
		if s.holds(power, start, mid, section) {
			left = mid + 1
		} else {
			right = mid
		}
	}

	return left
}

// holds reports whether the window centered at mid and every width-sized
// window from start up to mid quantize to section
func (s *Segmenter) holds(power []float64, start, mid, section int) bool {
	if s.windowLevel(power, mid) != section {
		return false
	}
	for k := start; k+s.width <= mid; k += s.width {
		if s.leveler.Level(common.Median(power[k:k+s.width])) != section {
			return false
		}
	}
	return true
}

// windowLevel quantizes the median of the width-wide window centered at
// center, clipped to the signal
func (s *Segmenter) windowLevel(power []float64, center int) int {
	lo := max(center-s.width/2, 0)
	hi := min(lo+s.width, len(power))
	if lo >= hi {
		lo = max(hi-1, 0)
	}
	return s.leveler.Level(common.Median(power[lo:hi]))
}

func (s *Segmenter) emit(power []float64, start, end int) Segment {
	level := s.leveler.Level(common.Mean(power[start:end]))
	sr := float64(s.sampleRate)
	return Segment{
		Start:    start,
		End:      end,
		StartSec: float64(start) / sr,
		EndSec:   float64(end) / sr,
		Level:    level,
		Power:    s.leveler.LevelValue(level),
	}
}
