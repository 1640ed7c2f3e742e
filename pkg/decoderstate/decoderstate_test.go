package decoderstate

import (
	"errors"
	"testing"

	"github.com/drgolem/gaplessplayer/pkg/types"
)

// fakeDecoder is a minimal in-memory types.Decoder used to exercise
// DecoderState without any real audio file.
type fakeDecoder struct {
	format      types.RenderingFormat
	totalFrames int64
	pos         int64
	seekErr     error
	seekDrift   int64 // actual landing offset from requested target
}

func newFakeDecoder(channels int, totalFrames int64) *fakeDecoder {
	return &fakeDecoder{
		format:      types.RenderingFormat{SampleRate: 44100, Channels: channels, Sample: types.SampleFloat32},
		totalFrames: totalFrames,
	}
}

func (d *fakeDecoder) Open() error                          { return nil }
func (d *fakeDecoder) IsOpen() bool                         { return true }
func (d *fakeDecoder) SupportsSeeking() bool                { return true }
func (d *fakeDecoder) ProcessingFormat() types.RenderingFormat { return d.format }
func (d *fakeDecoder) FrameLength() int64                   { return d.totalFrames }
func (d *fakeDecoder) FramePosition() int64                 { return d.pos }
func (d *fakeDecoder) Close() error                          { return nil }

func (d *fakeDecoder) SeekToFrame(frame int64) (int64, error) {
	if d.seekErr != nil {
		return 0, d.seekErr
	}
	d.pos = frame + d.seekDrift
	if d.pos < 0 {
		d.pos = 0
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
			planes[c][i] = float32(d.pos + i)
		}
	}
	d.pos += n
	return int(n), nil
}

func TestDecodeChunkAdvancesAndCompletes(t *testing.T) {
	dec := newFakeDecoder(2, 10)
	st := New(1, dec, 2, 4)

	n, err := st.DecodeChunk()
	if err != nil || n != 4 {
		t.Fatalf("DecodeChunk: got n=%d err=%v, want 4, nil", n, err)
	}
	if st.FramesDecoded() != 4 {
		t.Errorf("FramesDecoded: got %d, want 4", st.FramesDecoded())
	}
	if st.HasFlag(FlagDecodingComplete) {
		t.Error("DecodingComplete set prematurely")
	}

	st.DecodeChunk() // 4 -> 8
	n, err = st.DecodeChunk() // 8 -> 10 (partial, only 2 frames left)
	if err != nil || n != 2 {
		t.Fatalf("final DecodeChunk: got n=%d err=%v, want 2, nil", n, err)
	}

	n, err = st.DecodeChunk() // EOS
	if err != nil || n != 0 {
		t.Fatalf("EOS DecodeChunk: got n=%d err=%v, want 0, nil", n, err)
	}
	if !st.HasFlag(FlagDecodingComplete) {
		t.Error("expected DecodingComplete after EOS")
	}
}

func TestSeekResetsCounters(t *testing.T) {
	dec := newFakeDecoder(1, 1000)
	st := New(1, dec, 1, 16)

	st.DecodeChunk()
	st.RecordAvailable(16)
	st.RecordRendered(16)

	st.RequestSeek(500)
	if !st.HasPendingSeek() {
		t.Fatal("expected pending seek")
	}
	if st.FramePosition() != 500 {
		t.Errorf("FramePosition while seek pending: got %d, want 500", st.FramePosition())
	}

	newPos, err := st.PerformSeek()
	if err != nil {
		t.Fatalf("PerformSeek: %v", err)
	}
	if newPos != 500 {
		t.Errorf("PerformSeek: got %d, want 500", newPos)
	}
	if st.HasPendingSeek() {
		t.Error("seek target should be cleared after PerformSeek")
	}
	if st.FramesDecoded() != 500 || st.FramesAvailable() != 500 || st.FramesRendered() != 500 {
		t.Errorf("counters not reset to seek position: decoded=%d available=%d rendered=%d",
			st.FramesDecoded(), st.FramesAvailable(), st.FramesRendered())
	}
}

func TestSeekInaccurateDoesNotError(t *testing.T) {
	dec := newFakeDecoder(1, 1000)
	dec.seekDrift = 3
	st := New(1, dec, 1, 16)

	st.RequestSeek(500)
	newPos, err := st.PerformSeek()
	if err != nil {
		t.Fatalf("inaccurate seek should not surface as error: %v", err)
	}
	if newPos != 503 {
		t.Errorf("got %d, want 503 (drifted)", newPos)
	}
}

func TestSeekErrorPropagates(t *testing.T) {
	dec := newFakeDecoder(1, 1000)
	dec.seekErr = errors.New("boom")
	st := New(1, dec, 1, 16)

	st.RequestSeek(10)
	_, err := st.PerformSeek()
	if err == nil {
		t.Fatal("expected error from failing seek")
	}
}

func TestSetFlagIsOneShot(t *testing.T) {
	st := New(1, newFakeDecoder(1, 100), 1, 16)

	first := st.SetFlag(FlagRenderingStarted)
	second := st.SetFlag(FlagRenderingStarted)
	if !first {
		t.Error("first SetFlag should report the transition")
	}
	if second {
		t.Error("second SetFlag should report no transition")
	}
	if !st.HasFlag(FlagRenderingStarted) {
		t.Error("flag should be set")
	}
}

func TestIsActive(t *testing.T) {
	st := New(1, newFakeDecoder(1, 100), 1, 16)
	if !st.IsActive() {
		t.Error("fresh state should be active")
	}
	st.SetFlag(FlagRenderingComplete)
	if st.IsActive() {
		t.Error("RenderingComplete state should not be active")
	}

	st2 := New(2, newFakeDecoder(1, 100), 1, 16)
	st2.SetFlag(FlagMarkedForRemoval)
	if st2.IsActive() {
		t.Error("MarkedForRemoval state should not be active")
	}
}
