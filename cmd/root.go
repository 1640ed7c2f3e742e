package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gaplessplayer",
	Short: "Gapless audio player core with a PortAudio-backed CLI",
	Long: `gaplessplayer - a queued, gapless audio player built around a
planar-frame SPSC ring, a realtime render callback, and a cooperative
event pipeline for lifecycle notifications.

Features:
  - Lock-free SPSC ringbuffers for both audio frames and lifecycle events
  - Decoder worker feeding a fixed-format render callback with no gaps
    between queued items
  - Support for MP3, FLAC, and WAV audio formats, plus arbitrary
    packetized sources via the stream decoder
  - Seeking, cancellation, and queue management while playing
  - Sample rate transformation and format conversion

Commands:
  - play: Play one or more audio files back to back, gaplessly
  - transform: Convert audio files to different sample rates and WAV format`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
