package energy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/RyanBlaney/sonido-stems/algorithms/quantize"
	"github.com/RyanBlaney/sonido-stems/algorithms/segmentation"
	"github.com/RyanBlaney/sonido-stems/algorithms/temporal"
	"github.com/RyanBlaney/sonido-stems/energy/config"
	"github.com/RyanBlaney/sonido-stems/logging"
	"github.com/RyanBlaney/sonido-stems/transcode"
)

const testSampleRate = 1000

// staircase is five 4s blocks of rising amplitude. The values are dyadic so
// block means and medians are exact.
func staircase() []float64 {
	amplitudes := []float64{0.0625, 0.125, 0.25, 0.375, 0.5}
	out := make([]float64, 0, len(amplitudes)*4*testSampleRate)
	for i, a := range amplitudes {
		for j := range 4 * testSampleRate {
			// alternate the sign so the waveform looks like audio; power is |x|
			if (i+j)%2 == 0 {
				out = append(out, a)
			} else {
				out = append(out, -a)
			}
		}
	}
	return out
}

// testConfig uses max reduction so the relative thresholds are exactly the
// block amplitudes, and 2s segments so each block spans several of them
func testConfig() *config.AnalyzerConfig {
	cfg := config.DefaultAnalyzerConfig()
	cfg.Reduction = temporal.ReductionMax
	cfg.MinSegmentSec = 2
	cfg.MaxSegmentSec = 8
	cfg.MinWidthSec = 0.1
	return cfg
}

// staircaseLevels is the level of each 1s midpoint segment of the staircase
// from 4050 on. The first block is level 0 and is skipped.
var staircaseLevels = []int{1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 5, 5}

func newTestAnalyzer(t *testing.T, cfg *config.AnalyzerConfig, opts ...Option) *Analyzer {
	t.Helper()
	opts = append([]Option{WithLogger(&logging.NoOpLogger{})}, opts...)
	a, err := NewAnalyzer(cfg, opts...)
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	return a
}

type fakeSource struct {
	stems map[string][]float64
	loads int
}

func (s *fakeSource) LoadStem(_ context.Context, songID, stem string) (*transcode.AudioData, error) {
	s.loads++
	pcm, ok := s.stems[songID+"/"+stem]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", transcode.ErrStemNotFound, songID, stem)
	}
	return &transcode.AudioData{PCM: pcm, SampleRate: testSampleRate, Channels: 1}, nil
}

func songSource(songID string) *fakeSource {
	src := &fakeSource{stems: map[string][]float64{}}
	for _, stem := range AllStems {
		src.stems[songID+"/"+string(stem)] = staircase()
	}
	return src
}

// keyedSource reports decoder settings like transcode.DirectorySource
type keyedSource struct {
	*fakeSource
	key string
}

func (s *keyedSource) CacheKey() string { return s.key }

type memoryStore struct {
	entries map[string][]segmentation.Segment
	saves   int
}

func (m *memoryStore) key(songID, stem, fingerprint string) string {
	return songID + "|" + stem + "|" + fingerprint
}

func (m *memoryStore) Load(_ context.Context, songID, stem, fingerprint string) ([]segmentation.Segment, bool, error) {
	segments, ok := m.entries[m.key(songID, stem, fingerprint)]
	return segments, ok, nil
}

func (m *memoryStore) Save(_ context.Context, songID, stem, fingerprint string, segments []segmentation.Segment) error {
	m.saves++
	m.entries[m.key(songID, stem, fingerprint)] = segments
	return nil
}

type span struct {
	start, end, level int
}

func spans(segments []segmentation.Segment) []span {
	out := make([]span, len(segments))
	for i, s := range segments {
		out[i] = span{s.Start, s.End, s.Level}
	}
	return out
}

func TestAnalyzeStemStaircase(t *testing.T) {
	a := newTestAnalyzer(t, testConfig())

	analysis, err := a.AnalyzeStem(staircase(), testSampleRate, StemBass)
	if err != nil {
		t.Fatalf("AnalyzeStem: %v", err)
	}

	wantLevels := quantize.ReferenceLevels{0, 0.125, 0.25, 0.375, 0.5}
	if !reflect.DeepEqual(analysis.ReferenceLevels, wantLevels) {
		t.Errorf("reference levels = %v, want %v", analysis.ReferenceLevels, wantLevels)
	}
	if len(analysis.Loudness) != 40 {
		t.Errorf("loudness has %d windows, want 40", len(analysis.Loudness))
	}

	// the first block sits below the first non-zero threshold; 4050 is the
	// first window center whose window lies in the second block
	if analysis.Start != 4050 {
		t.Errorf("Start = %d, want 4050", analysis.Start)
	}

	want := make([]span, len(staircaseLevels))
	for i, level := range staircaseLevels {
		want[i] = span{4050 + i*1000, 5050 + i*1000, level}
	}
	if got := spans(analysis.Segments); !reflect.DeepEqual(got, want) {
		t.Errorf("segments = %v, want %v", got, want)
	}

	if len(analysis.Levels) != 20000 {
		t.Fatalf("flattened levels = %d samples, want 20000", len(analysis.Levels))
	}
	for _, i := range []int{0, 4049, 18050, 19999} {
		if analysis.Levels[i] != 0 {
			t.Errorf("Levels[%d] = %v, want 0", i, analysis.Levels[i])
		}
	}
	if analysis.Levels[13000] != 3 {
		t.Errorf("Levels[13000] = %v, want 3", analysis.Levels[13000])
	}
}

func TestAnalyzeStemNormalized(t *testing.T) {
	cfg := testConfig()
	cfg.NormalizeValues = true
	a := newTestAnalyzer(t, cfg)

	analysis, err := a.AnalyzeStem(staircase(), testSampleRate, StemBass)
	if err != nil {
		t.Fatalf("AnalyzeStem: %v", err)
	}

	for _, v := range analysis.Levels {
		if v < 0 || v > 1 {
			t.Fatalf("normalized level %v outside [0, 1]", v)
		}
	}
	if last := analysis.Segments[len(analysis.Segments)-1]; last.Power != 1 {
		t.Errorf("loudest segment power = %v, want 1", last.Power)
	}
}

func TestAnalyzeStemIsIdempotent(t *testing.T) {
	a := newTestAnalyzer(t, testConfig())
	waveform := staircase()

	first, err := a.AnalyzeStem(waveform, testSampleRate, StemDrums)
	if err != nil {
		t.Fatalf("AnalyzeStem: %v", err)
	}
	second, err := a.AnalyzeStem(waveform, testSampleRate, StemDrums)
	if err != nil {
		t.Fatalf("AnalyzeStem: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated analyses of the same waveform differ")
	}
}

func TestAnalyzeStemErrors(t *testing.T) {
	normal := testConfig()
	normal.Scale = quantize.ScaleNormal

	tests := []struct {
		name       string
		cfg        *config.AnalyzerConfig
		waveform   []float64
		sampleRate int
		stem       Stem
		want       error
	}{
		{"empty waveform", testConfig(), nil, testSampleRate, StemBass, ErrInput},
		{"bad sample rate", testConfig(), staircase(), 1, StemBass, ErrInput},
		{"silent waveform", testConfig(), make([]float64, 20000), testSampleRate, StemBass, ErrInput},
		{"too short", testConfig(), staircase()[:1500], testSampleRate, StemBass, ErrInput},
		{"unknown instrument", normal, staircase(), testSampleRate, Stem("kazoo"), ErrLookup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestAnalyzer(t, tt.cfg).AnalyzeStem(tt.waveform, tt.sampleRate, tt.stem)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewAnalyzerRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultAnalyzerConfig()
	cfg.NumberOfLevels = 1
	if _, err := NewAnalyzer(cfg); !errors.Is(err, ErrConfiguration) {
		t.Errorf("err = %v, want configuration error", err)
	}

	a, err := NewAnalyzer(nil)
	if err != nil {
		t.Fatalf("NewAnalyzer(nil): %v", err)
	}
	if got := a.Config(); got != *config.DefaultAnalyzerConfig() {
		t.Errorf("nil config = %+v, want defaults", got)
	}
}

func TestRunAnalyzesEveryStem(t *testing.T) {
	var progress []Stem
	a := newTestAnalyzer(t, testConfig(),
		WithSource(songSource("song1")),
		WithProgress(func(stem Stem, done, total int) {
			if total != len(AllStems) || done != len(progress)+1 {
				t.Errorf("progress(%s, %d, %d) out of order", stem, done, total)
			}
			progress = append(progress, stem)
		}),
	)

	result, err := a.Run(context.Background(), "song1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result) != len(AllStems) {
		t.Errorf("got %d stems, want %d", len(result), len(AllStems))
	}
	for _, stem := range AllStems {
		if len(result[stem]) != len(staircaseLevels) {
			t.Errorf("%s: %d segments, want %d", stem, len(result[stem]), len(staircaseLevels))
		}
	}
	if !reflect.DeepEqual(progress, AllStems) {
		t.Errorf("progress order = %v, want %v", progress, AllStems)
	}
}

func TestRunFailsOnMissingStem(t *testing.T) {
	src := songSource("song1")
	delete(src.stems, "song1/vocals")
	a := newTestAnalyzer(t, testConfig(), WithSource(src))

	_, err := a.Run(context.Background(), "song1")
	if !errors.Is(err, transcode.ErrStemNotFound) || !errors.Is(err, ErrInput) {
		t.Fatalf("err = %v, want stem not found", err)
	}
	if !strings.Contains(err.Error(), "stem vocals") {
		t.Errorf("error %q does not name the stem", err)
	}
}

func TestRunWithoutSource(t *testing.T) {
	_, err := newTestAnalyzer(t, testConfig()).Run(context.Background(), "song1")
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("err = %v, want configuration error", err)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	src := songSource("song1")
	a := newTestAnalyzer(t, testConfig(), WithSource(src))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.Run(ctx, "song1"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if src.loads != 0 {
		t.Errorf("loaded %d stems after cancellation", src.loads)
	}
}

func TestRunUsesStore(t *testing.T) {
	src := songSource("song1")
	store := &memoryStore{entries: map[string][]segmentation.Segment{}}
	a := newTestAnalyzer(t, testConfig(), WithSource(src), WithStore(store))

	first, err := a.RunStems(context.Background(), "song1", []Stem{StemBass, StemMain})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if store.saves != 2 || src.loads != 2 {
		t.Fatalf("saves = %d, loads = %d, want 2 and 2", store.saves, src.loads)
	}

	second, err := a.RunStems(context.Background(), "song1", []Stem{StemBass, StemMain})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if src.loads != 2 {
		t.Errorf("second run decoded %d more stems", src.loads-2)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("cached segments differ from the computed ones")
	}

	// a different configuration must not hit the cache
	cfg := testConfig()
	cfg.NumberOfLevels = 4
	other := newTestAnalyzer(t, cfg, WithSource(src), WithStore(store))
	if _, err := other.RunStems(context.Background(), "song1", []Stem{StemBass}); err != nil {
		t.Fatalf("run with other config: %v", err)
	}
	if src.loads != 3 {
		t.Errorf("loads = %d, want 3", src.loads)
	}
}

func TestRunStoreKeyIncludesSourceSettings(t *testing.T) {
	src := &keyedSource{fakeSource: songSource("song1"), key: "sr=44100;max=30s"}
	store := &memoryStore{entries: map[string][]segmentation.Segment{}}
	a := newTestAnalyzer(t, testConfig(), WithSource(src), WithStore(store))

	if _, err := a.RunStems(context.Background(), "song1", []Stem{StemDrums}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	src.key = "sr=44100;max=0s"
	if _, err := a.RunStems(context.Background(), "song1", []Stem{StemDrums}); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if src.loads != 2 || store.saves != 2 {
		t.Errorf("loads = %d, saves = %d, want 2 and 2", src.loads, store.saves)
	}

	src.key = "sr=44100;max=30s"
	if _, err := a.RunStems(context.Background(), "song1", []Stem{StemDrums}); err != nil {
		t.Fatalf("third run: %v", err)
	}
	if src.loads != 2 {
		t.Errorf("loads = %d, want the first key to hit the store", src.loads)
	}
}

func TestRunLogsSongAndStem(t *testing.T) {
	src := songSource("song1")
	delete(src.stems, "song1/other")

	var buf bytes.Buffer
	a := newTestAnalyzer(t, testConfig(), WithSource(src), WithLogger(logging.NewWriterLogger(&buf)))

	if _, err := a.Run(context.Background(), "song1"); err == nil {
		t.Fatal("expected an error for the missing stem")
	}

	out := buf.String()
	for _, want := range []string{"Stem analysis failed", "song=song1", "stem=other"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestVerboseReport(t *testing.T) {
	cfg := testConfig()
	cfg.Verbose = true

	var buf bytes.Buffer
	a := newTestAnalyzer(t, cfg, WithReportWriter(&buf))

	if _, err := a.AnalyzeStem(staircase(), testSampleRate, StemVocals); err != nil {
		t.Fatalf("AnalyzeStem: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"vocals: 14 segments, 6 runs", "4.05s", "16.05s", "level 5"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestReportFromCachedSegments(t *testing.T) {
	analysis := &StemAnalysis{
		Stem:   StemDrums,
		Cached: true,
		Segments: []segmentation.Segment{
			{Start: 0, End: 10, EndSec: 1, Power: 0.5},
			{Start: 10, End: 20, StartSec: 1, EndSec: 2, Power: 0.5},
			{Start: 20, End: 30, StartSec: 2, EndSec: 3, Power: 1},
		},
	}

	var buf bytes.Buffer
	if err := WriteReport(&buf, analysis, true); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "drums: 3 segments, 2 runs (cached)") {
		t.Errorf("unexpected title:\n%s", out)
	}
	if !strings.Contains(out, "0.500") || !strings.Contains(out, "1.000") {
		t.Errorf("missing normalized values:\n%s", out)
	}
}

func TestParseStem(t *testing.T) {
	tests := map[string]Stem{
		"bass":   StemBass,
		" Drums": StemDrums,
		"mix":    StemMain,
		"main":   StemMain,
	}
	for in, want := range tests {
		got, err := ParseStem(in)
		if err != nil || got != want {
			t.Errorf("ParseStem(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseStem("kazoo"); !errors.Is(err, ErrLookup) {
		t.Errorf("unknown stem: err = %v, want lookup error", err)
	}
}
