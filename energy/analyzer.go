package energy

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/RyanBlaney/sonido-stems/algorithms/quantize"
	"github.com/RyanBlaney/sonido-stems/algorithms/segmentation"
	"github.com/RyanBlaney/sonido-stems/algorithms/temporal"
	"github.com/RyanBlaney/sonido-stems/energy/config"
	"github.com/RyanBlaney/sonido-stems/logging"
	"github.com/RyanBlaney/sonido-stems/transcode"
)

// SegmentStore caches segment results between runs
type SegmentStore interface {
	Load(ctx context.Context, songID, stem, fingerprint string) ([]segmentation.Segment, bool, error)
	Save(ctx context.Context, songID, stem, fingerprint string, segments []segmentation.Segment) error
}

// CacheKeyer is implemented by stem sources whose settings change the
// decoded audio. The key is folded into the cache fingerprint.
type CacheKeyer interface {
	CacheKey() string
}

// ProgressFunc is called after each stem finishes
type ProgressFunc func(stem Stem, done, total int)

// StemAnalysis holds everything computed for one stem. Loudness,
// ReferenceLevels and Levels are empty when the segments came from the cache.
type StemAnalysis struct {
	Stem            Stem                     `json:"stem"`
	SampleRate      int                      `json:"sample_rate"`
	Loudness        []float64                `json:"loudness,omitempty"`
	ReferenceLevels quantize.ReferenceLevels `json:"reference_levels,omitempty"`
	Start           int                      `json:"start"`
	Segments        []segmentation.Segment   `json:"segments"`
	Levels          []float64                `json:"-"` // one value per sample of the power signal
	Cached          bool                     `json:"cached,omitempty"`
}

// Analyzer converts song stems into energy-level segments
type Analyzer struct {
	config   config.AnalyzerConfig
	source   transcode.StemSource
	cache    SegmentStore
	reducer  *temporal.LoudnessReducer
	builder  *quantize.Builder
	logger   logging.Logger
	report   io.Writer
	progress ProgressFunc
}

// Option customizes an Analyzer
type Option func(*Analyzer)

// WithSource sets where Run loads stems from
func WithSource(source transcode.StemSource) Option {
	return func(a *Analyzer) { a.source = source }
}

// WithStore enables the segment cache for Run
func WithStore(store SegmentStore) Option {
	return func(a *Analyzer) { a.cache = store }
}

// WithLogger replaces the component logger
func WithLogger(logger logging.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithReportWriter sets where verbose summaries are printed (default stdout)
func WithReportWriter(w io.Writer) Option {
	return func(a *Analyzer) { a.report = w }
}

// WithProgress registers a per-stem progress callback
func WithProgress(fn ProgressFunc) Option {
	return func(a *Analyzer) { a.progress = fn }
}

// NewAnalyzer validates cfg and creates an analyzer. cfg is copied, later
// changes to it have no effect. A nil cfg means the defaults.
func NewAnalyzer(cfg *config.AnalyzerConfig, opts ...Option) (*Analyzer, error) {
	if cfg == nil {
		cfg = config.DefaultAnalyzerConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Analyzer{
		config:  *cfg,
		reducer: temporal.NewLoudnessReducer(temporal.ParseReduction(string(cfg.Reduction))),
		builder: cfg.Builder(),
		logger: logging.WithFields(logging.Fields{
			"component": "song_analyzer",
		}),
		report: os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Config returns a copy of the analyzer configuration
func (a *Analyzer) Config() config.AnalyzerConfig {
	return a.config
}

// Run analyzes every stem of songID
func (a *Analyzer) Run(ctx context.Context, songID string) (map[Stem][]segmentation.Segment, error) {
	return a.RunStems(ctx, songID, AllStems)
}

// RunStems analyzes the given stems of songID. The first failing stem
// aborts the run; no partial results are returned.
func (a *Analyzer) RunStems(ctx context.Context, songID string, stems []Stem) (map[Stem][]segmentation.Segment, error) {
	if a.source == nil {
		return nil, fmt.Errorf("%w: analyzer has no stem source", ErrConfiguration)
	}

	inputs := make([]stemInput, len(stems))
	for i, stem := range stems {
		inputs[i] = stemInput{
			stem: stem,
			load: func(ctx context.Context) (*transcode.AudioData, error) {
				return a.source.LoadStem(ctx, songID, string(stem))
			},
		}
	}

	analyses, err := a.analyze(ctx, songID, inputs)
	if err != nil {
		return nil, err
	}

	segmentsByStem := make(map[Stem][]segmentation.Segment, len(analyses))
	for _, analysis := range analyses {
		segmentsByStem[analysis.Stem] = analysis.Segments
	}
	return segmentsByStem, nil
}

// AnalyzeStem analyzes one waveform. The cache is not consulted.
func (a *Analyzer) AnalyzeStem(waveform []float64, sampleRate int, stem Stem) (*StemAnalysis, error) {
	input := stemInput{
		stem: stem,
		load: func(context.Context) (*transcode.AudioData, error) {
			return &transcode.AudioData{PCM: waveform, SampleRate: sampleRate, Channels: 1}, nil
		},
	}

	analyses, err := a.analyze(context.Background(), "", []stemInput{input})
	if err != nil {
		return nil, err
	}
	return analyses[0], nil
}

type stemInput struct {
	stem Stem
	load func(ctx context.Context) (*transcode.AudioData, error)
}

// analyze is the single orchestration path behind Run and AnalyzeStem.
// Stems are processed in order; songID "" disables the cache.
func (a *Analyzer) analyze(ctx context.Context, songID string, inputs []stemInput) ([]*StemAnalysis, error) {
	fingerprint := a.cacheKey()
	analyses := make([]*StemAnalysis, 0, len(inputs))

	for i, input := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		stemCtx := logging.ContextWithFields(ctx, logging.Fields{
			"song": songID,
			"stem": string(input.stem),
		})
		logger := a.logger.WithContext(stemCtx)

		analysis, err := a.analyzeInput(stemCtx, songID, fingerprint, input, logger)
		if err != nil {
			logger.Error(err, "Stem analysis failed")
			return nil, fmt.Errorf("stem %s: %w", input.stem, err)
		}

		if a.config.Verbose && a.report != nil {
			if err := WriteReport(a.report, analysis, a.config.NormalizeValues); err != nil {
				logger.Warn("Failed to write segment report", logging.Fields{"error": err.Error()})
			}
		}

		analyses = append(analyses, analysis)
		if a.progress != nil {
			a.progress(input.stem, i+1, len(inputs))
		}
	}

	return analyses, nil
}

// cacheKey fingerprints the analyzer settings together with the source's
// decoding settings
func (a *Analyzer) cacheKey() string {
	if keyed, ok := a.source.(CacheKeyer); ok {
		return a.config.FingerprintWith(keyed.CacheKey())
	}
	return a.config.Fingerprint()
}

func (a *Analyzer) analyzeInput(ctx context.Context, songID, fingerprint string, input stemInput, logger logging.Logger) (*StemAnalysis, error) {
	useCache := a.cache != nil && songID != ""

	if useCache {
		segments, ok, err := a.cache.Load(ctx, songID, string(input.stem), fingerprint)
		switch {
		case err != nil:
			logger.Warn("Segment cache lookup failed", logging.Fields{"error": err.Error()})
		case ok:
			logger.Debug("Segments loaded from cache", logging.Fields{"segments": len(segments)})
			analysis := &StemAnalysis{Stem: input.stem, Segments: segments, Cached: true}
			if len(segments) > 0 {
				analysis.Start = segments[0].Start
			}
			return analysis, nil
		}
	}

	audio, err := input.load(ctx)
	if err != nil {
		return nil, err
	}

	analysis, err := a.analyzeWaveform(audio.PCM, audio.SampleRate, input.stem)
	if err != nil {
		return nil, err
	}

	logger.Info("Stem segmented", logging.Fields{
		"sample_rate": analysis.SampleRate,
		"start_sec":   float64(analysis.Start) / float64(analysis.SampleRate),
		"segments":    len(analysis.Segments),
	})

	if useCache {
		if err := a.cache.Save(ctx, songID, string(input.stem), fingerprint, analysis.Segments); err != nil {
			logger.Warn("Failed to cache segments", logging.Fields{"error": err.Error()})
		}
	}

	return analysis, nil
}

// analyzeWaveform runs the reduce -> build -> segment pipeline on one waveform
func (a *Analyzer) analyzeWaveform(waveform []float64, sampleRate int, stem Stem) (*StemAnalysis, error) {
	if len(waveform) == 0 {
		return nil, fmt.Errorf("%w: empty waveform", ErrInput)
	}
	if sampleRate < 2 {
		return nil, fmt.Errorf("%w: sample rate must be at least 2, got %d", ErrInput, sampleRate)
	}

	power := temporal.PowerSignal(waveform)
	loudness := a.reducer.Reduce(power, temporal.WindowSize(sampleRate))

	quantizer, err := a.builder.Quantizer(loudness, string(stem), a.config.NormalizeValues)
	if err != nil {
		return nil, err
	}

	segmenter, err := segmentation.NewSegmenter(quantizer, sampleRate, a.config.SegmentationParams())
	if err != nil {
		return nil, err
	}

	result, err := segmenter.Segment(power)
	if err != nil {
		return nil, err
	}

	return &StemAnalysis{
		Stem:            stem,
		SampleRate:      sampleRate,
		Loudness:        loudness,
		ReferenceLevels: quantizer.Levels(),
		Start:           result.Start,
		Segments:        result.Segments,
		Levels:          segmentation.Flatten(result),
	}, nil
}
