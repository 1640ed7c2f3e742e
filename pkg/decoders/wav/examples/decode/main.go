// Command decode dumps a WAV file's samples to raw s16le PCM,
// exercising pkg/decoders/wav's DecodeInto directly (no playback
// core involved).
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/drgolem/gaplessplayer/pkg/decoders/wav"
)

const framesPerChunk = 4 * 1024

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: decode <input.wav>")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Decodes a WAV file and prints information about it")
		os.Exit(1)
	}

	inputFile := os.Args[1]

	decoder := wav.NewDecoder(inputFile)
	fmt.Printf("Opening: %s\n", inputFile)
	if err := decoder.Open(); err != nil {
		slog.Error("Failed to open WAV file", "error", err)
		os.Exit(1)
	}
	defer decoder.Close()

	format := decoder.ProcessingFormat()
	fmt.Printf("Sample Rate: %d Hz\n", format.SampleRate)
	fmt.Printf("Channels: %d\n", format.Channels)
	fmt.Printf("Frame Length: %d\n", decoder.FrameLength())
	fmt.Println()

	planes := make([][]float32, format.Channels)
	for c := range planes {
		planes[c] = make([]float32, framesPerChunk)
	}

	totalFrames := 0
	iterations := 0

	fmt.Printf("Decoding %d frames at a time...\n", framesPerChunk)

	for {
		n, err := decoder.DecodeInto(planes, framesPerChunk)
		if err != nil {
			slog.Error("Decode failed", "error", err)
			break
		}
		if n == 0 {
			break
		}

		totalFrames += n
		iterations++

		if iterations <= 3 || iterations%100 == 0 {
			fmt.Printf("Iteration %d: Read %d frames\n", iterations, n)
		}
	}

	fmt.Println()
	fmt.Printf("Total frames decoded: %d\n", totalFrames)
	fmt.Printf("Total iterations: %d\n", iterations)

	duration := float64(totalFrames) / float64(format.SampleRate)
	fmt.Printf("Duration: %.2f seconds\n", duration)
}
