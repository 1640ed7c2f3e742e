package flac

import (
	"testing"

	"github.com/drgolem/gaplessplayer/pkg/types"
)

func TestNewDecoder(t *testing.T) {
	decoder := NewDecoder("nonexistent.flac")
	if decoder == nil {
		t.Fatal("NewDecoder returned nil")
	}
	if decoder.IsOpen() {
		t.Error("a freshly constructed decoder must not report open")
	}
}

func TestDecoderNotSeekable(t *testing.T) {
	decoder := NewDecoder("nonexistent.flac")
	if decoder.SupportsSeeking() {
		t.Error("the FLAC adapter does not support seeking")
	}
	if _, err := decoder.SeekToFrame(0); err == nil {
		t.Error("expected SeekToFrame to fail")
	}
}

func TestDecoderFrameLengthUnknown(t *testing.T) {
	decoder := NewDecoder("nonexistent.flac")
	if decoder.FrameLength() != -1 {
		t.Errorf("expected FrameLength() == -1 before decoding starts, got %d", decoder.FrameLength())
	}
}

func TestDecoderCloseWithoutOpen(t *testing.T) {
	decoder := NewDecoder("nonexistent.flac")

	if err := decoder.Close(); err != nil {
		t.Errorf("Close on unopened decoder failed: %v", err)
	}
	if err := decoder.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestDecodeIntoWithoutOpen(t *testing.T) {
	decoder := NewDecoder("nonexistent.flac")

	planes := [][]float32{make([]float32, 1024)}
	if _, err := decoder.DecodeInto(planes, 1024); err == nil {
		t.Error("expected error decoding without opening file")
	}
}

func TestOpenMissingFileFails(t *testing.T) {
	decoder := NewDecoder("does-not-exist.flac")
	if err := decoder.Open(); err == nil {
		t.Error("expected Open to fail for a missing file")
		decoder.Close()
	}
}

var _ types.Decoder = (*Decoder)(nil)
