package energy

import (
	"fmt"
	"strings"
)

// Stem identifies one separated instrument track, or the full mix
type Stem string

const (
	StemBass   Stem = "bass"
	StemDrums  Stem = "drums"
	StemVocals Stem = "vocals"
	StemOther  Stem = "other"
	StemMain   Stem = "main" // full mix
)

// AllStems is the order Run analyzes a song in
var AllStems = []Stem{StemBass, StemDrums, StemVocals, StemOther, StemMain}

// ParseStem maps a name onto a Stem. "mix" is accepted for the full mix.
func ParseStem(name string) (Stem, error) {
	switch s := Stem(strings.ToLower(strings.TrimSpace(name))); s {
	case StemBass, StemDrums, StemVocals, StemOther, StemMain:
		return s, nil
	case "mix":
		return StemMain, nil
	default:
		return "", fmt.Errorf("%w: unknown stem %q", ErrLookup, name)
	}
}

func (s Stem) String() string {
	return string(s)
}
