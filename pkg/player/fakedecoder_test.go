package player

import (
	"math"

	"github.com/drgolem/gaplessplayer/pkg/types"
)

// fakeDecoder is a synthetic sine-wave generator, grounded on
// internal/engine's test decoder of the same shape, used here to
// exercise the façade without a real audio file.
type fakeDecoder struct {
	format      types.RenderingFormat
	totalFrames int64
	pos         int64

	openErr  error
	seekable bool
	opened   bool
}

func newFakeDecoder(format types.RenderingFormat, totalFrames int64) *fakeDecoder {
	return &fakeDecoder{format: format, totalFrames: totalFrames, seekable: true}
}

func (d *fakeDecoder) Open() error {
	if d.openErr != nil {
		return d.openErr
	}
	d.opened = true
	return nil
}

func (d *fakeDecoder) IsOpen() bool                            { return d.opened }
func (d *fakeDecoder) SupportsSeeking() bool                   { return d.seekable }
func (d *fakeDecoder) ProcessingFormat() types.RenderingFormat { return d.format }
func (d *fakeDecoder) FrameLength() int64                      { return d.totalFrames }
func (d *fakeDecoder) FramePosition() int64                    { return d.pos }

func (d *fakeDecoder) Close() error {
	d.opened = false
	return nil
}

func (d *fakeDecoder) SeekToFrame(frame int64) (int64, error) {
	d.pos = frame
	if d.pos > d.totalFrames {
		d.pos = d.totalFrames
	}
	return d.pos, nil
}

func (d *fakeDecoder) DecodeInto(planes [][]float32, maxFrames int) (int, error) {
	remaining := d.totalFrames - d.pos
	if remaining <= 0 {
		return 0, nil
	}
	n := int64(maxFrames)
	if n > remaining {
		n = remaining
	}
	for c := range planes {
		for i := int64(0); i < n; i++ {
			t := float64(d.pos+i) / float64(d.format.SampleRate)
			planes[c][i] = float32(math.Sin(2 * math.Pi * 440 * t))
		}
	}
	d.pos += n
	return int(n), nil
}
