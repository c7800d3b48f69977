package energy

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"

	"github.com/RyanBlaney/sonido-stems/algorithms/segmentation"
)

var (
	accentColor = lipgloss.Color("#D97706")
	mutedColor  = lipgloss.Color("#888888")

	reportTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(accentColor)

	reportKeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	reportValueStyle = lipgloss.NewStyle().
				Bold(true)
)

// WriteReport prints the run-length summary of one stem: every stretch of
// equal level with its start and end time in seconds
func WriteReport(w io.Writer, analysis *StemAnalysis, normalized bool) error {
	runs := reportRuns(analysis)

	title := fmt.Sprintf("%s: %d segments, %d runs", analysis.Stem, len(analysis.Segments), len(runs))
	if analysis.Cached {
		title += " (cached)"
	}
	if _, err := fmt.Fprintln(w, reportTitleStyle.Render(title)); err != nil {
		return err
	}

	for _, run := range runs {
		span := fmt.Sprintf("%8.2fs - %8.2fs", run.StartSec, run.EndSec)
		if _, err := fmt.Fprintf(w, "  %s  %s\n",
			reportKeyStyle.Render(span),
			reportValueStyle.Render(formatLevel(run.Value, normalized)),
		); err != nil {
			return err
		}
	}
	return nil
}

// reportRuns collapses the flattened levels, or the segments themselves when
// the analysis came from the cache and has no per-sample levels
func reportRuns(analysis *StemAnalysis) []segmentation.Run {
	if len(analysis.Levels) > 0 && analysis.SampleRate > 0 {
		return segmentation.Collapse(analysis.Levels, analysis.SampleRate)
	}

	runs := []segmentation.Run{}
	for _, seg := range analysis.Segments {
		if n := len(runs); n > 0 && runs[n-1].End == seg.Start && runs[n-1].Value == seg.Power {
			runs[n-1].End = seg.End
			runs[n-1].EndSec = seg.EndSec
			continue
		}
		runs = append(runs, segmentation.Run{
			Start:    seg.Start,
			End:      seg.End,
			StartSec: seg.StartSec,
			EndSec:   seg.EndSec,
			Value:    seg.Power,
		})
	}
	return runs
}

func formatLevel(value float64, normalized bool) string {
	if normalized {
		return strconv.FormatFloat(value, 'f', 3, 64)
	}
	return "level " + strconv.Itoa(int(value))
}
