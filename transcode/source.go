package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/RyanBlaney/sonido-stems/algorithms/common"
)

// ErrStemNotFound is returned when no file exists for a requested stem
var ErrStemNotFound = fmt.Errorf("%w: stem not found", common.ErrInput)

// StemSource loads the waveform of one stem of a song
type StemSource interface {
	LoadStem(ctx context.Context, songID, stem string) (*AudioData, error)
}

// DefaultExtensions is the lookup order DirectorySource uses
var DefaultExtensions = []string{".wav", ".mp3", ".flac", ".ogg", ".m4a"}

// DirectorySource finds stems laid out by the separation step as
// <root>/<songID>/<stem><ext>, e.g. songs/abc123/vocals.wav
type DirectorySource struct {
	Root       string
	Extensions []string
	Decoder    *Decoder
}

// NewDirectorySource creates a source rooted at root with the default
// extensions and decoder
func NewDirectorySource(root string) *DirectorySource {
	return &DirectorySource{
		Root:       root,
		Extensions: DefaultExtensions,
		Decoder:    NewDecoder(nil),
	}
}

// LoadStem decodes the first existing file for stem
func (s *DirectorySource) LoadStem(ctx context.Context, songID, stem string) (*AudioData, error) {
	path, err := s.Path(songID, stem)
	if err != nil {
		return nil, err
	}
	return s.decoder().DecodeFile(ctx, path)
}

// CacheKey reports the decoder settings, so results cached under one
// sample rate or duration limit are not reused under another
func (s *DirectorySource) CacheKey() string {
	return s.decoder().CacheKey()
}

func (s *DirectorySource) decoder() *Decoder {
	if s.Decoder == nil {
		return NewDecoder(nil)
	}
	return s.Decoder
}

// Path resolves the file that LoadStem would decode
func (s *DirectorySource) Path(songID, stem string) (string, error) {
	if err := validateName(songID); err != nil {
		return "", fmt.Errorf("song id: %w", err)
	}
	if err := validateName(stem); err != nil {
		return "", fmt.Errorf("stem: %w", err)
	}

	exts := s.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	base := filepath.Join(s.Root, songID, stem)
	for _, ext := range exts {
		path := base + ext
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}

	return "", fmt.Errorf("%w: %s (tried %s)", ErrStemNotFound, base, strings.Join(exts, ", "))
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: invalid name %q", common.ErrInput, name)
	}
	return nil
}
