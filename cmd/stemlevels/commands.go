package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/RyanBlaney/sonido-stems/algorithms/quantize"
	"github.com/RyanBlaney/sonido-stems/algorithms/segmentation"
	"github.com/RyanBlaney/sonido-stems/algorithms/temporal"
	"github.com/RyanBlaney/sonido-stems/energy"
	"github.com/RyanBlaney/sonido-stems/energy/config"
	"github.com/RyanBlaney/sonido-stems/logging"
	"github.com/RyanBlaney/sonido-stems/store"
	"github.com/RyanBlaney/sonido-stems/transcode"
)

// AnalysisFlags maps onto config.AnalyzerConfig
type AnalysisFlags struct {
	MinSegment  float64 `name:"min-segment" default:"5" help:"Minimum segment length in seconds"`
	MaxSegment  float64 `name:"max-segment" default:"40" help:"Maximum segment length in seconds"`
	MinWidth    float64 `name:"min-width" default:"1" help:"Level check window in seconds"`
	Levels      int     `name:"levels" short:"n" default:"5" help:"Number of energy levels"`
	Sensitivity float64 `name:"sensitivity" default:"0.001" help:"Loudness treated as silence by the relative scale"`
	Scale       string  `name:"scale" default:"relative" enum:"relative,none,normal,percentile" help:"Reference level scale"`
	Reduction   string  `name:"reduction" default:"mean" help:"Loudness reduction (mean, median, max, rms, sample)"`
	Boundary    string  `name:"boundary" default:"midpoint" enum:"midpoint,search" help:"Segment boundary policy"`
	Normalize   bool    `name:"normalize" help:"Report levels in [0, 1]"`
	IncludeTail bool    `name:"include-tail" help:"Emit the uncovered end of the stem as a final segment"`
	Verbose     bool    `short:"v" help:"Print a run-length summary of each stem to stderr"`
}

// Config builds and validates the analyzer configuration
func (f AnalysisFlags) Config() (*config.AnalyzerConfig, error) {
	cfg := config.DefaultAnalyzerConfig()
	cfg.MinSegmentSec = f.MinSegment
	cfg.MaxSegmentSec = f.MaxSegment
	cfg.MinWidthSec = f.MinWidth
	cfg.NumberOfLevels = f.Levels
	cfg.SensitivityPower = f.Sensitivity
	cfg.Scale = quantize.ParseScale(f.Scale)
	cfg.Reduction = temporal.ParseReduction(f.Reduction)
	cfg.Boundary = segmentation.BoundaryPolicy(strings.ToLower(f.Boundary))
	cfg.NormalizeValues = f.Normalize
	cfg.IncludeTail = f.IncludeTail
	cfg.Verbose = f.Verbose

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DecodeFlags configure stem decoding
type DecodeFlags struct {
	MaxDuration time.Duration `name:"max-duration" help:"Only analyze the first part of each stem (e.g. 90s)"`
	SampleRate  int           `name:"sample-rate" default:"44100" help:"Resampling rate for formats decoded through ffmpeg"`
	FFmpeg      string        `name:"ffmpeg" default:"ffmpeg" help:"ffmpeg binary"`
}

func (f DecodeFlags) decoder() *transcode.Decoder {
	cfg := transcode.DefaultDecoderConfig()
	cfg.MaxDuration = f.MaxDuration
	cfg.TargetSampleRate = f.SampleRate
	cfg.FFmpegPath = f.FFmpeg
	return transcode.NewDecoder(cfg)
}

// OutputFlags select where JSON goes
type OutputFlags struct {
	Output string `short:"o" type:"path" help:"Write JSON to this file instead of stdout"`
	Pretty bool   `help:"Indent JSON output"`
}

func (f OutputFlags) write(v any) error {
	var w io.Writer = os.Stdout
	if f.Output != "" {
		file, err := os.Create(f.Output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		w = file
	}

	enc := json.NewEncoder(w)
	if f.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// SongCmd segments the stems of <root>/<song>/
type SongCmd struct {
	Root   string   `arg:"" type:"existingdir" help:"Directory holding one sub-directory per song"`
	SongID string   `arg:"" name:"song" help:"Song id (sub-directory name)"`
	Stems  []string `name:"stems" default:"bass,drums,vocals,other,main" help:"Stems to analyze"`
	Cache  string   `name:"cache" help:"SQLite segment cache (empty disables caching)"`

	Analysis AnalysisFlags `embed:""`
	Decode   DecodeFlags   `embed:""`
	Out      OutputFlags   `embed:""`
}

func (c *SongCmd) Run(app *appContext) error {
	cfg, err := c.Analysis.Config()
	if err != nil {
		return err
	}

	stems, err := parseStems(c.Stems)
	if err != nil {
		return err
	}

	source := transcode.NewDirectorySource(c.Root)
	source.Decoder = c.Decode.decoder()

	opts := []energy.Option{
		energy.WithSource(source),
		energy.WithReportWriter(os.Stderr),
	}

	if c.Cache != "" {
		segmentStore, err := store.Open(c.Cache)
		if err != nil {
			return err
		}
		defer segmentStore.Close()
		opts = append(opts, energy.WithStore(segmentStore))
	}

	progress := newStemProgress(c.SongID, len(stems))
	if progress != nil {
		opts = append(opts, energy.WithProgress(progress.increment))
	}

	analyzer, err := energy.NewAnalyzer(cfg, opts...)
	if err != nil {
		return err
	}

	start := time.Now()
	segments, err := analyzer.RunStems(app.ctx, c.SongID, stems)
	progress.finish(err == nil)
	if err != nil {
		return err
	}

	app.logger.Info("Song analyzed", logging.Fields{
		"song":     c.SongID,
		"stems":    len(segments),
		"duration": time.Since(start).String(),
	})

	return c.Out.write(newSongOutput(c.SongID, segments))
}

// FileCmd segments one decoded file
type FileCmd struct {
	Path string `arg:"" type:"existingfile" help:"Audio file of a single stem"`
	Stem string `name:"stem" short:"s" default:"main" help:"Instrument the file contains"`

	Analysis AnalysisFlags `embed:""`
	Decode   DecodeFlags   `embed:""`
	Out      OutputFlags   `embed:""`
}

func (c *FileCmd) Run(app *appContext) error {
	cfg, err := c.Analysis.Config()
	if err != nil {
		return err
	}

	stem, err := energy.ParseStem(c.Stem)
	if err != nil {
		return err
	}

	audio, err := c.Decode.decoder().DecodeFile(app.ctx, c.Path)
	if err != nil {
		return err
	}

	analyzer, err := energy.NewAnalyzer(cfg, energy.WithReportWriter(os.Stderr))
	if err != nil {
		return err
	}

	analysis, err := analyzer.AnalyzeStem(audio.PCM, audio.SampleRate, stem)
	if err != nil {
		return err
	}

	if c.Analysis.Verbose {
		PrintKeyValue("File", c.Path)
		PrintKeyValue("Sample rate", audio.SampleRate)
		PrintKeyValue("Duration", audio.Duration.Round(time.Millisecond))
		PrintKeyValue("Levels", analysis.ReferenceLevels)
	}

	name := strings.TrimSuffix(filepath.Base(c.Path), filepath.Ext(c.Path))
	return c.Out.write(newSongOutput(name, map[energy.Stem][]segmentation.Segment{
		stem: analysis.Segments,
	}))
}

// CalibrateCmd measures the Normal and Percentile scale constants on a set of songs
type CalibrateCmd struct {
	Root        string   `arg:"" type:"existingdir" help:"Directory holding one sub-directory per song"`
	Songs       []string `arg:"" name:"songs" help:"Song ids to pool"`
	Stems       []string `name:"stems" default:"bass,drums,vocals,other,main" help:"Stems to calibrate"`
	Reduction   string   `name:"reduction" default:"mean" help:"Loudness reduction the scales will be used with"`
	Sensitivity float64  `name:"sensitivity" default:"0.001" help:"Loudness treated as silence"`

	Decode DecodeFlags `embed:""`
	Out    OutputFlags `embed:""`
}

func (c *CalibrateCmd) Run(app *appContext) error {
	stems, err := parseStems(c.Stems)
	if err != nil {
		return err
	}

	source := transcode.NewDirectorySource(c.Root)
	source.Decoder = c.Decode.decoder()
	reducer := temporal.NewLoudnessReducer(temporal.ParseReduction(c.Reduction))

	calibrations := make([]*quantize.Calibration, 0, len(stems))
	for _, stem := range stems {
		var pooled []float64
		for _, songID := range c.Songs {
			if err := app.ctx.Err(); err != nil {
				return err
			}
			audio, err := source.LoadStem(app.ctx, songID, string(stem))
			if err != nil {
				return fmt.Errorf("song %s: %w", songID, err)
			}
			power := temporal.PowerSignal(audio.PCM)
			pooled = append(pooled, reducer.Reduce(power, temporal.WindowSize(audio.SampleRate))...)
		}

		calibration, err := quantize.Calibrate(string(stem), pooled, c.Sensitivity)
		if err != nil {
			return fmt.Errorf("stem %s: %w", stem, err)
		}
		app.logger.Info("Stem calibrated", logging.Fields{
			"stem":    string(stem),
			"windows": calibration.Windows,
			"mu":      calibration.Mu,
			"sigma":   calibration.Sigma,
		})
		calibrations = append(calibrations, calibration)
	}

	return c.Out.write(calibrations)
}

// CacheCmd groups the cache maintenance commands
type CacheCmd struct {
	List  CacheListCmd  `cmd:"" help:"List cached results of a song"`
	Clear CacheClearCmd `cmd:"" help:"Remove cached results of a song"`
}

type CacheListCmd struct {
	SongID string `arg:"" name:"song" help:"Song id"`
	Cache  string `name:"cache" default:"./data/segments.db" help:"SQLite segment cache"`
}

func (c *CacheListCmd) Run(app *appContext) error {
	segmentStore, err := store.Open(c.Cache)
	if err != nil {
		return err
	}
	defer segmentStore.Close()

	entries, err := segmentStore.List(app.ctx, c.SongID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		PrintKeyValue(c.SongID, "no cached results")
		return nil
	}
	for _, e := range entries {
		PrintKeyValue(e.Stem, fmt.Sprintf("%d segments, config %s, %s",
			len(e.Segments), e.ConfigKey, e.CreatedAt.Format(time.RFC3339)))
	}
	return nil
}

type CacheClearCmd struct {
	SongID string `arg:"" name:"song" help:"Song id"`
	Cache  string `name:"cache" default:"./data/segments.db" help:"SQLite segment cache"`
}

func (c *CacheClearCmd) Run(app *appContext) error {
	segmentStore, err := store.Open(c.Cache)
	if err != nil {
		return err
	}
	defer segmentStore.Close()

	n, err := segmentStore.Delete(app.ctx, c.SongID)
	if err != nil {
		return err
	}
	PrintKeyValue(c.SongID, fmt.Sprintf("removed %d cached results", n))
	return nil
}

func parseStems(names []string) ([]energy.Stem, error) {
	if len(names) == 0 {
		return energy.AllStems, nil
	}

	seen := make(map[energy.Stem]bool, len(names))
	stems := make([]energy.Stem, 0, len(names))
	for _, name := range names {
		stem, err := energy.ParseStem(name)
		if err != nil {
			return nil, err
		}
		if !seen[stem] {
			seen[stem] = true
			stems = append(stems, stem)
		}
	}
	return stems, nil
}

// stemProgress draws one bar advancing per analyzed stem. It is nil when
// stderr is not a terminal; the nil methods are no-ops.
type stemProgress struct {
	p   *mpb.Progress
	bar *mpb.Bar
}

func newStemProgress(songID string, total int) *stemProgress {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return nil
	}

	p := mpb.New(mpb.WithOutput(os.Stderr), mpb.WithWidth(40))
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(songID+" "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.Elapsed(decor.ET_STYLE_GO),
		),
	)
	return &stemProgress{p: p, bar: bar}
}

func (sp *stemProgress) increment(energy.Stem, int, int) {
	sp.bar.Increment()
}

func (sp *stemProgress) finish(ok bool) {
	if sp == nil {
		return
	}
	if !ok {
		sp.bar.Abort(false)
	}
	sp.p.Wait()
}

// exitCode maps the error taxonomy onto process exit codes
func exitCode(err error) int {
	switch {
	case errors.Is(err, energy.ErrConfiguration):
		return 2
	case errors.Is(err, energy.ErrInput), errors.Is(err, energy.ErrLookup):
		return 3
	default:
		return 1
	}
}
