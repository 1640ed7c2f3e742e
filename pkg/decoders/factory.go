// Package decoders selects and opens the planar types.Decoder
// implementation matching a file's extension.
package decoders

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/drgolem/gaplessplayer/pkg/decoders/flac"
	"github.com/drgolem/gaplessplayer/pkg/decoders/mp3"
	"github.com/drgolem/gaplessplayer/pkg/decoders/wav"
	"github.com/drgolem/gaplessplayer/pkg/types"
)

// NewDecoder creates and opens the appropriate decoder based on file
// extension. Supports .mp3, .flac, .fla, and .wav. Returns an opened
// decoder ready for use, or an error if the format is unsupported or
// the file cannot be opened.
func NewDecoder(fileName string) (types.Decoder, error) {
	ext := strings.ToLower(filepath.Ext(fileName))

	var decoder types.Decoder

	switch ext {
	case ".mp3":
		decoder = mp3.NewDecoder(fileName)
	case ".flac", ".fla":
		decoder = flac.NewDecoder(fileName)
	case ".wav":
		decoder = wav.NewDecoder(fileName)
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: .mp3, .flac, .fla, .wav)", ext)
	}

	if err := decoder.Open(); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", fileName, err)
	}

	return decoder, nil
}
