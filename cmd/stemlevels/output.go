package main

import (
	"math"

	"github.com/RyanBlaney/sonido-stems/algorithms/segmentation"
	"github.com/RyanBlaney/sonido-stems/energy"
)

type segmentOutput struct {
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Level    float64 `json:"level"`
}

type songOutput struct {
	Song  string                     `json:"song"`
	Stems map[string][]segmentOutput `json:"stems"`
}

// newSongOutput converts analyzer results into the JSON document. Level is
// the normalized value when normalization is on, otherwise the raw level.
func newSongOutput(songID string, segments map[energy.Stem][]segmentation.Segment) songOutput {
	out := songOutput{
		Song:  songID,
		Stems: make(map[string][]segmentOutput, len(segments)),
	}
	for stem, segs := range segments {
		list := make([]segmentOutput, len(segs))
		for i, s := range segs {
			list[i] = segmentOutput{StartSec: roundSec(s.StartSec), EndSec: roundSec(s.EndSec), Level: s.Power}
		}
		out.Stems[string(stem)] = list
	}
	return out
}

// roundSec keeps millisecond precision
func roundSec(sec float64) float64 {
	return math.Round(sec*1000) / 1000
}
