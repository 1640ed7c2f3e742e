// Command decode dumps a FLAC file's samples to raw s16le PCM,
// exercising pkg/decoders/flac's DecodeInto directly (no playback
// core involved).
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/drgolem/gaplessplayer/pkg/decoders/flac"
)

// AudioMetadata contains format information for the decoded audio.
type AudioMetadata struct {
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	SourceFile string `json:"source_file"`
	RawFile    string `json:"raw_file"`
}

const framesPerChunk = 4 * 1024

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: decode <input.flac> [output_prefix|--pipe|-]")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Decodes a FLAC file to raw s16le PCM and a metadata sidecar.")
		os.Exit(1)
	}

	inputFile := os.Args[1]
	pipeMode := len(os.Args) >= 3 && (os.Args[2] == "--pipe" || os.Args[2] == "-")

	decoder := flac.NewDecoder(inputFile)
	if err := decoder.Open(); err != nil {
		slog.Error("Failed to open file", "error", err)
		os.Exit(1)
	}
	defer decoder.Close()

	format := decoder.ProcessingFormat()
	slog.Info("Audio format", "sample_rate", format.SampleRate, "channels", format.Channels)

	var out *os.File
	var rawFile string
	if pipeMode {
		out = os.Stdout
		channelLayout := "stereo"
		if format.Channels == 1 {
			channelLayout = "mono"
		}
		slog.Info("To play, use", "command", fmt.Sprintf("ffplay -f s16le -ar %d -ch_layout %s -", format.SampleRate, channelLayout))
	} else {
		outputPrefix := "output"
		if len(os.Args) >= 3 {
			outputPrefix = os.Args[2]
		} else {
			base := filepath.Base(inputFile)
			outputPrefix = strings.TrimSuffix(base, filepath.Ext(base))
		}
		rawFile = outputPrefix + ".raw"

		var err error
		out, err = os.Create(rawFile)
		if err != nil {
			slog.Error("Failed to create output file", "error", err)
			os.Exit(1)
		}
		defer out.Close()
	}

	planes := make([][]float32, format.Channels)
	for c := range planes {
		planes[c] = make([]float32, framesPerChunk)
	}
	buf := make([]byte, framesPerChunk*format.Channels*2)

	totalFrames := int64(0)
	for {
		n, err := decoder.DecodeInto(planes, framesPerChunk)
		if err != nil {
			slog.Error("Decode failed", "error", err)
			break
		}
		if n == 0 {
			break
		}

		byteLen := n * format.Channels * 2
		for i := 0; i < n; i++ {
			for c := 0; c < format.Channels; c++ {
				off := (i*format.Channels + c) * 2
				v := int16(planes[c][i] * 32768)
				buf[off] = byte(v)
				buf[off+1] = byte(v >> 8)
			}
		}
		if _, err := out.Write(buf[:byteLen]); err != nil {
			slog.Error("Failed to write output", "error", err)
			os.Exit(1)
		}
		totalFrames += int64(n)
	}
	slog.Info("Decoding complete", "frames", totalFrames)

	if pipeMode {
		return
	}

	metadata := AudioMetadata{
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		SourceFile: inputFile,
		RawFile:    rawFile,
	}
	metaJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		slog.Error("Failed to create metadata", "error", err)
		os.Exit(1)
	}
	metaFile := strings.TrimSuffix(rawFile, ".raw") + ".meta"
	if err := os.WriteFile(metaFile, metaJSON, 0644); err != nil {
		slog.Error("Failed to write metadata file", "error", err)
		os.Exit(1)
	}
	slog.Info("Metadata saved", "file", metaFile)
}
