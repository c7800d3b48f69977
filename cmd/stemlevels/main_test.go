package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/alecthomas/kong"

	"github.com/RyanBlaney/sonido-stems/algorithms/quantize"
	"github.com/RyanBlaney/sonido-stems/algorithms/segmentation"
	"github.com/RyanBlaney/sonido-stems/energy"
)

func parseArgs(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("stemlevels"),
		kong.Vars{"version": version},
		kong.Exit(func(int) { t.Fatal("kong tried to exit") }),
	)
	if err != nil {
		t.Fatalf("kong.New: %v", err)
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	return cli, kctx
}

func TestParseSongCommand(t *testing.T) {
	root := t.TempDir()
	cli, kctx := parseArgs(t, "song", root, "abc123",
		"--levels", "4", "--scale", "percentile", "--stems", "bass,mix", "--boundary", "search")

	if kctx.Command() != "song <root> <song>" {
		t.Errorf("command = %q", kctx.Command())
	}
	if cli.Song.SongID != "abc123" || cli.LogLevel != "warn" {
		t.Errorf("parsed %+v", cli.Song)
	}

	cfg, err := cli.Song.Analysis.Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if cfg.NumberOfLevels != 4 || cfg.Scale != quantize.ScalePercentile || cfg.Boundary != segmentation.BoundarySearch {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.MinSegmentSec != 5 || cfg.MaxSegmentSec != 40 || cfg.MinWidthSec != 1 {
		t.Errorf("duration defaults = %v %v %v", cfg.MinSegmentSec, cfg.MaxSegmentSec, cfg.MinWidthSec)
	}

	stems, err := parseStems(cli.Song.Stems)
	if err != nil {
		t.Fatal(err)
	}
	if want := []energy.Stem{energy.StemBass, energy.StemMain}; !reflect.DeepEqual(stems, want) {
		t.Errorf("stems = %v, want %v", stems, want)
	}
}

func TestAnalysisFlagsRejectInvalidConfig(t *testing.T) {
	root := t.TempDir()
	cli, _ := parseArgs(t, "song", root, "abc", "--min-segment", "45")

	if _, err := cli.Song.Analysis.Config(); !errors.Is(err, energy.ErrConfiguration) {
		t.Errorf("err = %v, want configuration error", err)
	}
}

func TestParseStems(t *testing.T) {
	stems, err := parseStems(nil)
	if err != nil || !reflect.DeepEqual(stems, energy.AllStems) {
		t.Errorf("parseStems(nil) = %v, %v", stems, err)
	}

	stems, err = parseStems([]string{"drums", "drums", "vocals"})
	if err != nil || len(stems) != 2 {
		t.Errorf("duplicates not removed: %v, %v", stems, err)
	}

	if _, err := parseStems([]string{"kazoo"}); !errors.Is(err, energy.ErrLookup) {
		t.Errorf("err = %v, want lookup error", err)
	}
}

func TestSongOutputJSON(t *testing.T) {
	out := newSongOutput("abc", map[energy.Stem][]segmentation.Segment{
		energy.StemBass: {
			{Start: 0, End: 1000, StartSec: 0, EndSec: 0.5, Level: 2, Power: 0.4},
		},
	})

	data, err := json.Marshal(out)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"song":"abc","stems":{"bass":[{"start_sec":0,"end_sec":0.5,"level":0.4}]}}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
}

func TestSongOutputRoundsSeconds(t *testing.T) {
	out := newSongOutput("abc", map[energy.Stem][]segmentation.Segment{
		energy.StemVocals: {
			{Start: 1, End: 7351, StartSec: 1.0 / 44100, EndSec: 7351.0 / 44100, Level: 1, Power: 1},
		},
	})

	seg := out.Stems["vocals"][0]
	if seg.StartSec != 0 || seg.EndSec != 0.167 {
		t.Errorf("seconds = %v - %v, want 0 - 0.167", seg.StartSec, seg.EndSec)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("stem bass: %w", energy.ErrInput), 3},
		{fmt.Errorf("%w: bad levels", energy.ErrConfiguration), 2},
		{energy.ErrLookup, 3},
		{errors.New("disk on fire"), 1},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
