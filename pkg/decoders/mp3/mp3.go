// Package mp3 adapts imcarsen/go-mp3 (a pure-Go MPEG decoder, no cgo)
// into the planar types.Decoder the gapless core consumes.
package mp3

import (
	"fmt"
	"io"
	"os"

	gomp3 "github.com/imcarsen/go-mp3"

	"github.com/drgolem/gaplessplayer/pkg/types"
)

// mp3BytesPerFrame is fixed: go-mp3 always decodes to 16-bit stereo PCM.
const (
	mp3Channels      = 2
	mp3BytesPerFrame = mp3Channels * 2
)

// Decoder wraps a gomp3.Decoder. Implements types.Decoder.
type Decoder struct {
	fileName string

	file *os.File
	dec  *gomp3.Decoder

	rate        int
	totalFrames int64
	pos         int64
}

// NewDecoder creates an MP3 decoder for fileName.
func NewDecoder(fileName string) *Decoder {
	return &Decoder{fileName: fileName}
}

// Open opens fileName and initializes the underlying decoder.
func (d *Decoder) Open() error {
	file, err := os.Open(d.fileName)
	if err != nil {
		return fmt.Errorf("failed to open MP3 file: %w", err)
	}

	dec, err := gomp3.NewDecoder(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to create MP3 decoder: %w", err)
	}

	d.file = file
	d.dec = dec
	d.rate = dec.SampleRate()
	if length := dec.Length(); length >= 0 {
		d.totalFrames = length / mp3BytesPerFrame
	} else {
		d.totalFrames = -1
	}
	d.pos = 0

	return nil
}

// IsOpen reports whether Open has succeeded and Close has not yet run.
func (d *Decoder) IsOpen() bool { return d.dec != nil }

// SupportsSeeking reports true once the decoder is open (false before
// Open): gomp3.Decoder seeks over a seekable source, and files opened
// here always are.
func (d *Decoder) SupportsSeeking() bool { return d.dec != nil }

// ProcessingFormat reports planar float32 stereo at the stream's sample
// rate; go-mp3's 16-bit stereo output is converted to float32 on decode.
func (d *Decoder) ProcessingFormat() types.RenderingFormat {
	return types.RenderingFormat{SampleRate: d.rate, Channels: mp3Channels, Sample: types.SampleFloat32}
}

// FrameLength returns the total frame count, or -1 if unknown.
func (d *Decoder) FrameLength() int64 { return d.totalFrames }

// FramePosition returns the next frame index DecodeInto will produce.
func (d *Decoder) FramePosition() int64 { return d.pos }

// SeekToFrame seeks to frame and returns the position landed on.
func (d *Decoder) SeekToFrame(frame int64) (int64, error) {
	if frame < 0 {
		frame = 0
	}
	newOffset, err := d.dec.Seek(frame*mp3BytesPerFrame, io.SeekStart)
	if err != nil {
		return 0, fmt.Errorf("seek MP3 stream: %w", err)
	}
	d.pos = newOffset / mp3BytesPerFrame
	return d.pos, nil
}

// DecodeInto fills planes with up to maxFrames of decoded audio.
func (d *Decoder) DecodeInto(planes [][]float32, maxFrames int) (int, error) {
	if d.dec == nil {
		return 0, fmt.Errorf("mp3 decoder not opened")
	}

	buf := make([]byte, maxFrames*mp3BytesPerFrame)
	n, err := io.ReadFull(d.dec, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, fmt.Errorf("decode MP3 samples: %w", err)
	}

	frames := n / mp3BytesPerFrame
	if frames == 0 {
		return 0, nil
	}

	for i := 0; i < frames; i++ {
		for c := 0; c < mp3Channels && c < len(planes); c++ {
			off := (i*mp3Channels + c) * 2
			v := int16(uint16(buf[off]) | uint16(buf[off+1])<<8)
			planes[c][i] = float32(v) / 32768
		}
	}
	d.pos += int64(frames)
	return frames, nil
}

// Close releases the underlying file handle.
func (d *Decoder) Close() error {
	d.dec = nil
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
