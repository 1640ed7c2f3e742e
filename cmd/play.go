package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drgolem/gaplessplayer/pkg/audioplayer"
	"github.com/drgolem/gaplessplayer/pkg/decoders"
	"github.com/drgolem/gaplessplayer/pkg/player"
	"github.com/drgolem/gaplessplayer/pkg/types"

	"github.com/drgolem/go-portaudio/portaudio"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	playDeviceIdx       int
	playFramesPerBuffer int
	playOutputBits      int
	playRingFrames      uint64
	playEventRingBytes  uint64
	playSlotTableSize   int
	playVerbose         bool
	playShowVersion     bool
)

// playCmd plays one or more audio files back to back through the
// gapless engine: every file is opened and validated up front and
// queued onto the same Player, so the render callback crosses from
// one item into the next with no silence gap between them.
var playCmd = &cobra.Command{
	Use:   "play <audio_file> [audio_file...]",
	Short: "Play one or more audio files, gaplessly",
	Long: `Play one or more audio files back to back with no gap between them.

Every file is opened and validated up front, then queued onto the same
decoder worker and render callback, so a file boundary never produces
a silence gap or a PortAudio stream restart the way reopening the
device per file would.

Examples:
  # Play a single file
  gaplessplayer play music.mp3

  # Play an album gaplessly
  gaplessplayer play -d 0 track1.flac track2.flac track3.flac

  # Lower latency with a smaller PortAudio buffer
  gaplessplayer play -p 256 music.mp3

Supported Formats:
  MP3:  .mp3 (16-bit lossy)
  FLAC: .flac, .fla (16/24/32-bit lossless)
  WAV:  .wav (8/16/24/32-bit PCM)`,
	Args: cobra.MinimumNArgs(1),
	Run:  runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().IntVarP(&playDeviceIdx, "device", "d", 1, "Audio output device index")
	playCmd.Flags().IntVarP(&playFramesPerBuffer, "paframes", "p", 512, "PortAudio frames per buffer")
	playCmd.Flags().IntVar(&playOutputBits, "output-bits", 16, "Output PCM bit depth (16, 24, or 32)")
	playCmd.Flags().Uint64VarP(&playRingFrames, "ring-frames", "r", 0, "Audio ring capacity in frames (0 = engine default)")
	playCmd.Flags().Uint64Var(&playEventRingBytes, "event-ring-bytes", 0, "Event ring capacity in bytes (0 = engine default)")
	playCmd.Flags().IntVar(&playSlotTableSize, "slots", 0, "Concurrently-active decoder slots (0 = engine default)")
	playCmd.Flags().BoolVarP(&playVerbose, "verbose", "v", false, "Verbose output (debug logging)")
	playCmd.Flags().BoolVar(&playShowVersion, "version", false, "Show version information")
}

func runPlay(cmd *cobra.Command, args []string) {
	if playShowVersion {
		fmt.Printf("gaplessplayer v%s\n", version)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if playVerbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	files := args

	decs := make([]types.Decoder, 0, len(files))
	for _, fileName := range files {
		if _, err := os.Stat(fileName); os.IsNotExist(err) {
			slog.Error("File not found", "path", fileName)
			os.Exit(1)
		}
		dec, err := decoders.NewDecoder(fileName)
		if err != nil {
			slog.Error("Failed to open file", "file", fileName, "error", err)
			os.Exit(1)
		}
		decs = append(decs, dec)
	}

	slog.Info("Initializing PortAudio")
	if err := portaudio.Initialize(); err != nil {
		slog.Error("Failed to initialize PortAudio", "error", err)
		slog.Error("Hint: Make sure PortAudio is installed on your system")
		os.Exit(1)
	}
	defer portaudio.Terminate()
	slog.Info("PortAudio initialized", "version", portaudio.GetVersion())

	format := decs[0].ProcessingFormat()
	cfg := player.DefaultConfig(format)
	if playRingFrames > 0 {
		cfg.AudioRingCapacityFrames = playRingFrames
	}
	if playEventRingBytes > 0 {
		cfg.EventRingCapacityBytes = playEventRingBytes
	}
	if playSlotTableSize > 0 {
		cfg.SlotTableSize = playSlotTableSize
	}

	ended := make(chan struct{}, 1)
	cfg.Delegate = &cliDelegate{ended: ended}

	p := player.NewPlayer(cfg)
	defer p.Close()

	for _, dec := range decs {
		if err := p.Enqueue(dec); err != nil {
			slog.Error("Failed to enqueue decoder", "error", err)
			os.Exit(1)
		}
	}

	sinkCfg := audioplayer.DefaultConfig()
	sinkCfg.DeviceIndex = playDeviceIdx
	sinkCfg.FramesPerBuffer = playFramesPerBuffer
	sinkCfg.OutputBitsPerSample = playOutputBits
	sink, err := audioplayer.NewHostSink(p, sinkCfg)
	if err != nil {
		slog.Error("Failed to open output device", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting playback", "files", len(files), "sample_rate", format.SampleRate, "channels", format.Channels)
	if err := sink.Start(); err != nil {
		slog.Error("Failed to start playback", "error", err)
		os.Exit(1)
	}
	p.Play()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	statusDone := make(chan struct{})
	go monitorPlayback(p, statusDone)

	select {
	case <-ended:
		slog.Info("All files completed")
	case sig := <-sigChan:
		slog.Info("Signal received, stopping playback", "signal", sig)
	}

	close(statusDone)
	if err := sink.Stop(); err != nil {
		slog.Error("Failed to stop sink", "error", err)
	}

	writeOps, underruns := sink.Metrics()
	slog.Info("Sink metrics", "write_ops", writeOps, "underruns", underruns)
	slog.Info("Exiting")
}

// cliDelegate signals ended when the ring drains with nothing left
// queued, the cue for the CLI to exit.
type cliDelegate struct {
	types.NoopDelegate
	ended chan struct{}
}

func (d *cliDelegate) AudioWillEnd(hostTime uint64) {
	select {
	case d.ended <- struct{}{}:
	default:
	}
}

func (d *cliDelegate) EncounteredError(err error) {
	slog.Error("Engine reported an error", "error", err)
}

// monitorPlayback logs playback status every 2 seconds for any PlaybackMonitor.
func monitorPlayback(monitor types.PlaybackMonitor, done chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			status := monitor.GetPlaybackStatus()
			playedTimeSeconds := float64(status.PlayedSamples) / float64(status.SampleRate)
			bufferedTimeSeconds := float64(status.BufferedSamples) / float64(status.SampleRate)

			slog.Info("Playback status",
				"format", fmt.Sprintf("%dHz:%dch", status.SampleRate, status.Channels),
				"played", fmt.Sprintf("%.3fs", playedTimeSeconds),
				"buffered", fmt.Sprintf("%.3fs", bufferedTimeSeconds),
				"elapsed", status.ElapsedTime)
		case <-done:
			return
		}
	}
}
