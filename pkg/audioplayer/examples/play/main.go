// Command play demonstrates the gapless player core end to end:
// open a file, hand it to pkg/player.Player, and drive a real
// PortAudio output device through pkg/audioplayer.HostSink.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drgolem/gaplessplayer/pkg/audioplayer"
	"github.com/drgolem/gaplessplayer/pkg/decoders"
	"github.com/drgolem/gaplessplayer/pkg/player"

	"github.com/drgolem/go-portaudio/portaudio"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	deviceIdx := flag.Int("device", 1, "Audio output device index (default: 1)")
	frames := flag.Int("frames", 512, "Audio frames per PortAudio buffer")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: play [options] <audio_file>")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Plays an MP3, FLAC, or WAV file through the gapless player core.")
		fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	fileName := flag.Arg(0)

	slog.Info("Initializing PortAudio")
	if err := portaudio.Initialize(); err != nil {
		slog.Error("Failed to initialize PortAudio", "error", err)
		os.Exit(1)
	}
	defer portaudio.Terminate()
	slog.Info("PortAudio initialized", "version", portaudio.GetVersion())

	slog.Info("Opening file", "path", fileName)
	dec, err := decoders.NewDecoder(fileName)
	if err != nil {
		slog.Error("Failed to open file", "error", err)
		os.Exit(1)
	}

	p := player.NewPlayer(player.DefaultConfig(dec.ProcessingFormat()))
	defer p.Close()

	if err := p.Enqueue(dec); err != nil {
		slog.Error("Failed to enqueue decoder", "error", err)
		os.Exit(1)
	}

	sinkCfg := audioplayer.DefaultConfig()
	sinkCfg.DeviceIndex = *deviceIdx
	sinkCfg.FramesPerBuffer = *frames
	sink, err := audioplayer.NewHostSink(p, sinkCfg)
	if err != nil {
		slog.Error("Failed to open output device", "error", err)
		os.Exit(1)
	}

	if err := sink.Start(); err != nil {
		slog.Error("Failed to start playback", "error", err)
		os.Exit(1)
	}
	p.Play()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	statusTicker := time.NewTicker(2 * time.Second)
	defer statusTicker.Stop()

	for {
		select {
		case <-statusTicker.C:
			status := p.GetPlaybackStatus()
			position, length, ok := p.PlaybackPosition()
			slog.Info("Playback progress",
				"position_frames", position,
				"length_frames", length,
				"elapsed", status.ElapsedTime)
			if ok && length >= 0 && position >= length {
				slog.Info("Playback completed")
				sink.Stop()
				return
			}
		case sig := <-sigChan:
			slog.Info("Signal received, stopping playback", "signal", sig)
			sink.Stop()
			return
		}
	}
}
