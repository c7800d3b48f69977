package energy

import (
	"github.com/RyanBlaney/sonido-stems/algorithms/common"
	"github.com/RyanBlaney/sonido-stems/algorithms/segmentation"
)

// Error taxonomy. Every error returned by the analyzer wraps one of these.
var (
	// ErrInput: empty or degenerate waveform, missing stem file
	ErrInput = common.ErrInput

	// ErrConfiguration: invalid level count or duration constraints
	ErrConfiguration = common.ErrConfiguration

	// ErrLookup: instrument without built-in scale parameters
	ErrLookup = common.ErrLookup

	// ErrSilentSignal: the whole stem quantizes to level 0
	ErrSilentSignal = segmentation.ErrSilentSignal

	// ErrNoProgress: the segmentation loop stopped advancing
	ErrNoProgress = segmentation.ErrNoProgress
)
