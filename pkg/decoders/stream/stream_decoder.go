// Package stream adapts an arbitrary packetized audio source (network
// stream, buffer, any push-model producer) into the planar
// types.Decoder the gapless core consumes — generalizing the teacher's
// "play audio from any source" StreamDecoder into the gapless engine's
// frame-based contract.
package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/drgolem/gaplessplayer/pkg/audioframe"
	"github.com/drgolem/gaplessplayer/pkg/types"
)

// AudioFormat describes the audio stream format a packet carries.
type AudioFormat struct {
	SampleRate     int
	Channels       int
	BytesPerSample int
}

// AudioPacket represents a chunk of decoded audio data: interleaved
// PCM at Format's sample width.
type AudioPacket struct {
	Audio        []byte
	SamplesCount int
	Format       AudioFormat
}

// AudioPacketProvider is the interface for sources that provide audio
// data, letting the player consume any source: network streams,
// buffers, etc.
type AudioPacketProvider interface {
	// ReadAudioPacket reads the next audio packet. Returns the packet
	// and any error (io.EOF when the stream ends).
	ReadAudioPacket(ctx context.Context, samples int) (*AudioPacket, error)
}

// Decoder implements types.Decoder for an AudioPacketProvider. Frame
// length is always unknown (-1), and seeking is never supported — a
// live/streamed source has no frame index to seek within.
type Decoder struct {
	provider AudioPacketProvider
	ctx      context.Context

	formatMx     sync.RWMutex
	format       AudioFormat
	formatChange chan AudioFormat

	pos    int64
	opened bool
}

// NewDecoder creates a decoder for a streaming audio source. ctx
// bounds every ReadAudioPacket call; cancel it to unblock DecodeInto.
func NewDecoder(ctx context.Context, provider AudioPacketProvider, initialFormat AudioFormat) *Decoder {
	return &Decoder{
		provider:     provider,
		ctx:          ctx,
		format:       initialFormat,
		formatChange: make(chan AudioFormat, 1),
	}
}

// Open is a no-op: the provider is already live when the decoder is
// constructed.
func (d *Decoder) Open() error {
	d.opened = true
	return nil
}

// IsOpen reports whether Open has run and Close has not.
func (d *Decoder) IsOpen() bool { return d.opened }

// SupportsSeeking always reports false: a live packet source has no
// frame index to seek within.
func (d *Decoder) SupportsSeeking() bool { return false }

// ProcessingFormat reports the stream's initial sample rate and
// channel count; DecodeInto rejects a packet whose rate or channel
// count has drifted from this snapshot, since the engine's rendering
// format is fixed for the lifetime of a decoder.
func (d *Decoder) ProcessingFormat() types.RenderingFormat {
	d.formatMx.RLock()
	defer d.formatMx.RUnlock()
	return types.RenderingFormat{SampleRate: d.format.SampleRate, Channels: d.format.Channels, Sample: types.SampleFloat32}
}

// FrameLength always returns -1: a streaming source's length is
// unknown until it ends.
func (d *Decoder) FrameLength() int64 { return -1 }

// FramePosition returns the number of frames decoded so far.
func (d *Decoder) FramePosition() int64 { return d.pos }

// SeekToFrame always fails: this decoder does not support seeking.
func (d *Decoder) SeekToFrame(frame int64) (int64, error) {
	return 0, fmt.Errorf("%w: stream decoder", types.ErrSeekNotSupported)
}

// DecodeInto reads one packet from the provider and de-interleaves it
// into planes, up to maxFrames. A format change in sample rate or
// channel count is reported as an error, since it would violate the
// engine's fixed-format contract for this decoder; a change in sample
// width alone is absorbed transparently.
func (d *Decoder) DecodeInto(planes [][]float32, maxFrames int) (int, error) {
	pkt, err := d.provider.ReadAudioPacket(d.ctx, maxFrames)
	if err != nil {
		return 0, fmt.Errorf("read audio packet: %w", err)
	}
	if pkt == nil || pkt.SamplesCount == 0 {
		return 0, nil
	}

	current := d.ProcessingFormat()
	if pkt.Format.SampleRate != current.SampleRate || pkt.Format.Channels != current.Channels {
		return 0, fmt.Errorf("%w: stream sample rate/channels changed mid-playback", types.ErrFormatNotSupported)
	}

	d.formatMx.Lock()
	if d.format.BytesPerSample != pkt.Format.BytesPerSample {
		d.format.BytesPerSample = pkt.Format.BytesPerSample
		select {
		case d.formatChange <- pkt.Format:
		default:
		}
	}
	d.formatMx.Unlock()

	frames := pkt.SamplesCount
	if frames > maxFrames {
		frames = maxFrames
	}

	bytesPerSample := pkt.Format.BytesPerSample
	for i := 0; i < frames; i++ {
		for c := 0; c < pkt.Format.Channels && c < len(planes); c++ {
			off := (i*pkt.Format.Channels + c) * bytesPerSample
			planes[c][i] = decodeStreamSample(pkt.Audio[off:off+bytesPerSample], bytesPerSample)
		}
	}

	d.pos += int64(frames)
	return frames, nil
}

// Close releases no resources of its own; the provider outlives the
// decoder.
func (d *Decoder) Close() error {
	d.opened = false
	return nil
}

// FormatChanges returns a channel that receives notifications when the
// provider's sample width changes mid-stream.
func (d *Decoder) FormatChanges() <-chan AudioFormat {
	return d.formatChange
}

// DecodeFramePacket decodes a wire-format audioframe.AudioFrame (as
// produced by its Marshal method) into an AudioPacket, for providers
// that hand this decoder raw framed bytes read off a socket or file
// rather than building AudioPacket fields themselves.
func DecodeFramePacket(data []byte) (*AudioPacket, error) {
	var frame audioframe.AudioFrame
	if err := frame.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("decode audio frame: %w", err)
	}
	return &AudioPacket{
		Audio:        frame.Audio,
		SamplesCount: int(frame.SamplesCount),
		Format: AudioFormat{
			SampleRate:     int(frame.Format.SampleRate),
			Channels:       int(frame.Format.Channels),
			BytesPerSample: int(frame.Format.BitsPerSample) / 8,
		},
	}, nil
}

func decodeStreamSample(b []byte, bytesPerSample int) float32 {
	switch bytesPerSample {
	case 2:
		v := int16(uint16(b[0]) | uint16(b[1])<<8)
		return float32(v) / 32768
	case 3:
		v := int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16)
		if v&0x800000 != 0 {
			v |= ^int32(0xFFFFFF)
		}
		return float32(v) / 8388608
	case 4:
		v := int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
		return float32(v) / 2147483648
	default:
		return 0
	}
}
