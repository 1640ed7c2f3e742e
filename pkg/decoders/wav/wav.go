// Package wav adapts youpy/go-wav into the planar types.Decoder the
// gapless core consumes.
package wav

import (
	"fmt"
	"io"
	"os"

	"github.com/youpy/go-wav"

	"github.com/drgolem/gaplessplayer/pkg/types"
)

// Decoder wraps go-wav for decoding WAV PCM files into planar float32.
// go-wav is used only to validate and parse the fmt chunk; sample data
// is then read directly off the file handle so seeking is just a byte
// offset computation, which go-wav's sequential Reader does not expose.
type Decoder struct {
	fileName string

	file     *os.File
	rate     int
	channels int
	bps      int

	dataOffset int64
	blockAlign int64
	totalFrames int64

	pos int64
}

// NewDecoder creates a WAV decoder for fileName.
func NewDecoder(fileName string) *Decoder {
	return &Decoder{fileName: fileName}
}

// Open parses the WAV header and positions the decoder at frame 0.
func (d *Decoder) Open() error {
	file, err := os.Open(d.fileName)
	if err != nil {
		return fmt.Errorf("failed to open WAV file: %w", err)
	}

	reader := wav.NewReader(file)
	format, err := reader.Format()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to read WAV format: %w", err)
	}
	if format.AudioFormat != wav.AudioFormatPCM {
		file.Close()
		return fmt.Errorf("unsupported WAV format: %d (only PCM supported)", format.AudioFormat)
	}

	dataOffset, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to locate WAV data chunk: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat WAV file: %w", err)
	}

	d.file = file
	d.rate = int(format.SampleRate)
	d.channels = int(format.NumChannels)
	d.bps = int(format.BitsPerSample)
	d.dataOffset = dataOffset
	d.blockAlign = int64(d.channels * (d.bps / 8))
	if d.blockAlign <= 0 {
		file.Close()
		return fmt.Errorf("invalid WAV block align: channels=%d bps=%d", d.channels, d.bps)
	}
	// go-wav's Reader exposes the fmt chunk but not the data chunk's own
	// declared size, so this assumes sample data runs to EOF; a file with
	// trailing chunks after "data" will overstate totalFrames.
	d.totalFrames = (info.Size() - dataOffset) / d.blockAlign
	d.pos = 0

	return nil
}

// IsOpen reports whether Open has succeeded and Close has not yet run.
func (d *Decoder) IsOpen() bool { return d.file != nil }

// SupportsSeeking always reports true: WAV PCM data is a flat array of
// frames, trivially seekable by byte offset.
func (d *Decoder) SupportsSeeking() bool { return true }

// ProcessingFormat reports the format frames will be produced in.
func (d *Decoder) ProcessingFormat() types.RenderingFormat {
	return types.RenderingFormat{SampleRate: d.rate, Channels: d.channels, Sample: types.SampleFloat32}
}

// FrameLength returns the total frame count derived from file size.
func (d *Decoder) FrameLength() int64 { return d.totalFrames }

// FramePosition returns the next frame index DecodeInto will produce.
func (d *Decoder) FramePosition() int64 { return d.pos }

// SeekToFrame seeks to frame and returns the position landed on.
func (d *Decoder) SeekToFrame(frame int64) (int64, error) {
	if frame < 0 {
		frame = 0
	}
	if frame > d.totalFrames {
		frame = d.totalFrames
	}
	if _, err := d.file.Seek(d.dataOffset+frame*d.blockAlign, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek WAV file: %w", err)
	}
	d.pos = frame
	return d.pos, nil
}

// DecodeInto fills planes with up to maxFrames of decoded audio.
func (d *Decoder) DecodeInto(planes [][]float32, maxFrames int) (int, error) {
	if d.file == nil {
		return 0, fmt.Errorf("wav decoder not opened")
	}

	byteCount := maxFrames * int(d.blockAlign)
	buf := make([]byte, byteCount)

	n, err := io.ReadFull(d.file, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, fmt.Errorf("read WAV samples: %w", err)
	}

	frames := n / int(d.blockAlign)
	if frames == 0 {
		return 0, nil
	}

	decodePlanarPCM(buf, planes, frames, d.channels, d.bps)
	d.pos += int64(frames)
	return frames, nil
}

// Close releases the underlying file handle.
func (d *Decoder) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// decodePlanarPCM de-interleaves and normalizes bps-wide little-endian
// PCM into [-1, 1] float32 planes.
func decodePlanarPCM(buf []byte, planes [][]float32, frames, channels, bps int) {
	bytesPerSample := bps / 8
	for i := 0; i < frames; i++ {
		for c := 0; c < channels && c < len(planes); c++ {
			off := (i*channels + c) * bytesPerSample
			planes[c][i] = decodeSample(buf[off:off+bytesPerSample], bps)
		}
	}
}

func decodeSample(b []byte, bps int) float32 {
	switch bps {
	case 8:
		// 8-bit WAV PCM is unsigned, offset-binary.
		return (float32(b[0]) - 128) / 128
	case 16:
		v := int16(uint16(b[0]) | uint16(b[1])<<8)
		return float32(v) / 32768
	case 24:
		v := int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16)
		if v&0x800000 != 0 {
			v |= ^int32(0xFFFFFF)
		}
		return float32(v) / 8388608
	case 32:
		v := int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
		return float32(v) / 2147483648
	default:
		return 0
	}
}
