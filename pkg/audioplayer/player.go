// Package audioplayer drives a PortAudio output stream from a
// pkg/player.Player's render callback. It plays the same role the
// teacher's producer/consumer player did — pulling audio out of the
// gapless core and onto a real device — but the core now renders
// planar float32 directly, so there is no decode producer here: the
// stream's blocking Write call IS the pull, the way the teacher's
// consumer loop pulled from its ringbuffer.
package audioplayer

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drgolem/go-portaudio/portaudio"

	"github.com/drgolem/gaplessplayer/pkg/player"
	"github.com/drgolem/gaplessplayer/pkg/types"
)

// Config holds host sink configuration.
type Config struct {
	FramesPerBuffer    int // PortAudio buffer size in frames
	DeviceIndex        int // Audio output device index
	OutputBitsPerSample int // 16, 24, or 32 — PortAudio has no float32 output format
}

// DefaultConfig returns default host sink configuration.
func DefaultConfig() Config {
	return Config{
		FramesPerBuffer:     512,
		DeviceIndex:         1,
		OutputBitsPerSample: 16,
	}
}

// HostSink drives a *player.Player's render callback against a real
// PortAudio output stream. Each iteration renders one buffer's worth
// of planar float32 frames, converts them to the device's native PCM
// width, and blocks on stream.Write the way the teacher's consumer
// blocked on a ringbuffer read.
type HostSink struct {
	p      *player.Player
	stream *portaudio.PaStream

	framesPerBuffer int
	channels        int
	bytesPerSample  int

	sampleTime int64

	stopChan chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	stopped bool

	writeOps  atomic.Uint64
	underruns atomic.Uint64
}

// NewHostSink opens a PortAudio stream sized to p's fixed rendering
// format and wraps it around p's render callback. The stream is
// opened but not yet started; call Start to begin playback.
func NewHostSink(p *player.Player, cfg Config) (*HostSink, error) {
	format := p.Format()

	var sampleFormat portaudio.PaSampleFormat
	switch cfg.OutputBitsPerSample {
	case 16:
		sampleFormat = portaudio.SampleFmtInt16
	case 24:
		sampleFormat = portaudio.SampleFmtInt24
	case 32:
		sampleFormat = portaudio.SampleFmtInt32
	default:
		return nil, fmt.Errorf("unsupported output bit depth: %d", cfg.OutputBitsPerSample)
	}

	framesPerBuffer := cfg.FramesPerBuffer
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultConfig().FramesPerBuffer
	}

	outParams := portaudio.PaStreamParameters{
		DeviceIndex:  cfg.DeviceIndex,
		ChannelCount: format.Channels,
		SampleFormat: sampleFormat,
	}

	stream, err := portaudio.NewStream(outParams, float64(format.SampleRate))
	if err != nil {
		return nil, fmt.Errorf("create portaudio stream: %w", err)
	}
	if err := stream.Open(framesPerBuffer); err != nil {
		return nil, fmt.Errorf("open portaudio stream: %w", err)
	}

	return &HostSink{
		p:               p,
		stream:          stream,
		framesPerBuffer: framesPerBuffer,
		channels:        format.Channels,
		bytesPerSample:  cfg.OutputBitsPerSample / 8,
		stopChan:        make(chan struct{}),
	}, nil
}

// Start starts the PortAudio stream and the render loop.
func (s *HostSink) Start() error {
	if err := s.stream.StartStream(); err != nil {
		return fmt.Errorf("start portaudio stream: %w", err)
	}
	s.wg.Add(1)
	go s.run()
	slog.Info("host sink started", "frames_per_buffer", s.framesPerBuffer, "channels", s.channels)
	return nil
}

// Wait blocks until the render loop exits.
func (s *HostSink) Wait() { s.wg.Wait() }

// Stop halts the render loop and tears down the stream. Idempotent.
func (s *HostSink) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()

	if err := s.stream.StopStream(); err != nil {
		slog.Warn("failed to stop portaudio stream", "error", err)
	}
	return s.stream.Close()
}

func (s *HostSink) run() {
	defer s.wg.Done()

	render := s.p.RenderCallback()

	planes := make([][]float32, s.channels)
	for c := range planes {
		planes[c] = make([]float32, s.framesPerBuffer)
	}
	out := make([]byte, s.framesPerBuffer*s.channels*s.bytesPerSample)

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		ts := types.HostTimestamp{
			HostTimeTicks: uint64(time.Now().UnixNano()),
			SampleTime:    s.sampleTime,
		}

		var silence bool
		status := render(&silence, ts, s.framesPerBuffer, planes)
		if status != types.RenderOK {
			slog.Error("render callback reported an error, stopping host sink")
			return
		}
		if silence {
			s.underruns.Add(1)
		}
		s.sampleTime += int64(s.framesPerBuffer)

		n := interleave(planes, out, s.framesPerBuffer, s.channels, s.bytesPerSample)

		if err := s.stream.Write(s.framesPerBuffer, out[:n]); err != nil {
			slog.Error("write to portaudio stream failed", "error", err)
			return
		}
		s.writeOps.Add(1)
	}
}

// Metrics reports sink-level counters. Decode and render-jitter
// metrics live on the wrapped player.Player itself.
func (s *HostSink) Metrics() (writeOps, underruns uint64) {
	return s.writeOps.Load(), s.underruns.Load()
}

func interleave(planes [][]float32, out []byte, frames, channels, bytesPerSample int) int {
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * bytesPerSample
			encodeSample(planes[c][i], out[off:off+bytesPerSample], bytesPerSample)
		}
	}
	return frames * channels * bytesPerSample
}

// encodeSample converts a [-1, 1] float32 sample into bytesPerSample
// bytes of little-endian signed PCM, the inverse of the normalization
// the decoders in pkg/decoders perform.
func encodeSample(v float32, b []byte, bytesPerSample int) {
	switch bytesPerSample {
	case 2:
		iv := clampToInt32(v, 32768)
		b[0] = byte(iv)
		b[1] = byte(iv >> 8)
	case 3:
		iv := clampToInt32(v, 8388608)
		b[0] = byte(iv)
		b[1] = byte(iv >> 8)
		b[2] = byte(iv >> 16)
	case 4:
		iv := clampToInt32(v, 2147483648)
		b[0] = byte(iv)
		b[1] = byte(iv >> 8)
		b[2] = byte(iv >> 16)
		b[3] = byte(iv >> 24)
	}
}

func clampToInt32(v float32, scale float64) int32 {
	f := float64(v) * scale
	if f > scale-1 {
		f = scale - 1
	}
	if f < -scale {
		f = -scale
	}
	return int32(f)
}
