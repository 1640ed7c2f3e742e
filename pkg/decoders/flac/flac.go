// Package flac adapts drgolem/go-flac into the planar types.Decoder
// the gapless core consumes.
package flac

import (
	"fmt"

	goflac "github.com/drgolem/go-flac/flac"

	"github.com/drgolem/gaplessplayer/pkg/types"
)

// outputBitsPerSample is the PCM depth requested from the underlying
// frame decoder; go-flac decodes into this width regardless of the
// source file's native bit depth.
const outputBitsPerSample = 16

// Decoder wraps goflac.FlacDecoder. Implements types.Decoder.
//
// The underlying library exposes no seek or frame-length query, so
// this decoder reports SupportsSeeking() false and FrameLength() -1 —
// true for any FLAC source until decoding reaches its end, per §3/§4.3
// ("FrameLength may return -1 when unknown").
type Decoder struct {
	fileName string

	decoder  *goflac.FlacDecoder
	rate     int
	channels int
	bps      int

	pos int64
}

// NewDecoder creates a FLAC decoder for fileName.
func NewDecoder(fileName string) *Decoder {
	return &Decoder{fileName: fileName}
}

// Open opens fileName and initializes the underlying frame decoder.
func (d *Decoder) Open() error {
	decoder, err := goflac.NewFlacFrameDecoder(outputBitsPerSample)
	if err != nil {
		return fmt.Errorf("failed to create FLAC decoder: %w", err)
	}

	if err := decoder.Open(d.fileName); err != nil {
		decoder.Delete()
		return fmt.Errorf("failed to open file %s: %w", d.fileName, err)
	}

	rate, channels, bps := decoder.GetFormat()

	d.decoder = decoder
	d.rate = rate
	d.channels = channels
	d.bps = bps
	d.pos = 0

	return nil
}

// IsOpen reports whether Open has succeeded and Close has not yet run.
func (d *Decoder) IsOpen() bool { return d.decoder != nil }

// SupportsSeeking reports false: the underlying frame decoder offers
// no seek primitive.
func (d *Decoder) SupportsSeeking() bool { return false }

// ProcessingFormat reports the format frames will be produced in.
func (d *Decoder) ProcessingFormat() types.RenderingFormat {
	return types.RenderingFormat{SampleRate: d.rate, Channels: d.channels, Sample: types.SampleFloat32}
}

// FrameLength always returns -1: unknown until end of stream.
func (d *Decoder) FrameLength() int64 { return -1 }

// FramePosition returns the next frame index DecodeInto will produce.
func (d *Decoder) FramePosition() int64 { return d.pos }

// SeekToFrame always fails: this decoder does not support seeking.
func (d *Decoder) SeekToFrame(frame int64) (int64, error) {
	return 0, fmt.Errorf("%w: FLAC decoder", types.ErrSeekNotSupported)
}

// DecodeInto fills planes with up to maxFrames of decoded audio.
func (d *Decoder) DecodeInto(planes [][]float32, maxFrames int) (int, error) {
	if d.decoder == nil {
		return 0, fmt.Errorf("flac decoder not opened")
	}

	bytesPerSample := outputBitsPerSample / 8
	buf := make([]byte, maxFrames*d.channels*bytesPerSample)

	frames, err := d.decoder.DecodeSamples(maxFrames, buf)
	if err != nil {
		return 0, fmt.Errorf("decode FLAC samples: %w", err)
	}
	if frames == 0 {
		return 0, nil
	}

	for i := 0; i < frames; i++ {
		for c := 0; c < d.channels && c < len(planes); c++ {
			off := (i*d.channels + c) * bytesPerSample
			v := int16(uint16(buf[off]) | uint16(buf[off+1])<<8)
			planes[c][i] = float32(v) / 32768
		}
	}
	d.pos += int64(frames)
	return frames, nil
}

// Close releases resources held by the underlying frame decoder.
func (d *Decoder) Close() error {
	if d.decoder != nil {
		d.decoder.Close()
		d.decoder.Delete()
		d.decoder = nil
	}
	return nil
}
