package stream

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/drgolem/gaplessplayer/pkg/audioframe"
	"github.com/drgolem/gaplessplayer/pkg/types"
)

type fakeProvider struct {
	packets []*AudioPacket
	idx     int
	err     error
}

func (p *fakeProvider) ReadAudioPacket(ctx context.Context, samples int) (*AudioPacket, error) {
	if p.idx >= len(p.packets) {
		if p.err != nil {
			return nil, p.err
		}
		return nil, io.EOF
	}
	pkt := p.packets[p.idx]
	p.idx++
	return pkt, nil
}

func pcm16(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		buf[2*i] = byte(s)
		buf[2*i+1] = byte(s >> 8)
	}
	return buf
}

func TestDecodeIntoDeinterleaves(t *testing.T) {
	provider := &fakeProvider{
		packets: []*AudioPacket{
			{
				Audio:        pcm16(100, -200, 300, -400),
				SamplesCount: 2,
				Format:       AudioFormat{SampleRate: 44100, Channels: 2, BytesPerSample: 2},
			},
		},
	}
	dec := NewDecoder(context.Background(), provider, AudioFormat{SampleRate: 44100, Channels: 2, BytesPerSample: 2})
	if err := dec.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}

	planes := [][]float32{make([]float32, 4), make([]float32, 4)}
	n, err := dec.DecodeInto(planes, 4)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 frames, got %d", n)
	}
	if planes[0][0] != float32(100)/32768 || planes[1][0] != float32(-200)/32768 {
		t.Errorf("unexpected de-interleaved samples: %v %v", planes[0][0], planes[1][0])
	}
}

func TestDecodeIntoRejectsRateDrift(t *testing.T) {
	provider := &fakeProvider{
		packets: []*AudioPacket{
			{
				Audio:        pcm16(1, 2),
				SamplesCount: 1,
				Format:       AudioFormat{SampleRate: 48000, Channels: 2, BytesPerSample: 2},
			},
		},
	}
	dec := NewDecoder(context.Background(), provider, AudioFormat{SampleRate: 44100, Channels: 2, BytesPerSample: 2})
	dec.Open()

	planes := [][]float32{make([]float32, 1), make([]float32, 1)}
	_, err := dec.DecodeInto(planes, 1)
	if !errors.Is(err, types.ErrFormatNotSupported) {
		t.Fatalf("expected ErrFormatNotSupported, got %v", err)
	}
}

func TestDecodeIntoAbsorbsWidthDrift(t *testing.T) {
	provider := &fakeProvider{
		packets: []*AudioPacket{
			{
				Audio:        []byte{0, 1, 0, 0, 1, 0},
				SamplesCount: 1,
				Format:       AudioFormat{SampleRate: 44100, Channels: 2, BytesPerSample: 3},
			},
		},
	}
	dec := NewDecoder(context.Background(), provider, AudioFormat{SampleRate: 44100, Channels: 2, BytesPerSample: 2})
	dec.Open()

	planes := [][]float32{make([]float32, 1), make([]float32, 1)}
	n, err := dec.DecodeInto(planes, 1)
	if err != nil {
		t.Fatalf("expected width drift to be absorbed, got error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 frame, got %d", n)
	}
	select {
	case <-dec.FormatChanges():
	default:
		t.Error("expected a format change notification for the width drift")
	}
}

func TestNeverSeekable(t *testing.T) {
	dec := NewDecoder(context.Background(), &fakeProvider{}, AudioFormat{SampleRate: 44100, Channels: 2, BytesPerSample: 2})
	if dec.SupportsSeeking() {
		t.Error("stream decoder must never report seek support")
	}
	if dec.FrameLength() != -1 {
		t.Errorf("expected FrameLength() == -1, got %d", dec.FrameLength())
	}
	if _, err := dec.SeekToFrame(0); err == nil {
		t.Error("expected SeekToFrame to fail")
	}
}

func TestDecodeFramePacketRoundTrip(t *testing.T) {
	frame := audioframe.AudioFrame{
		Format: audioframe.FrameFormat{
			SampleRate:    44100,
			Channels:      2,
			BitsPerSample: 16,
		},
		SamplesCount: 2,
		Audio:        pcm16(10, 20, 30, 40),
	}
	wire := frame.Marshal()

	pkt, err := DecodeFramePacket(wire)
	if err != nil {
		t.Fatalf("DecodeFramePacket: %v", err)
	}
	if pkt.Format.SampleRate != 44100 || pkt.Format.Channels != 2 || pkt.Format.BytesPerSample != 2 {
		t.Errorf("unexpected format: %+v", pkt.Format)
	}
	if pkt.SamplesCount != 2 {
		t.Errorf("expected SamplesCount 2, got %d", pkt.SamplesCount)
	}
	if len(pkt.Audio) != len(frame.Audio) {
		t.Errorf("expected %d audio bytes, got %d", len(frame.Audio), len(pkt.Audio))
	}
}

func TestDecodeFramePacketTooShort(t *testing.T) {
	if _, err := DecodeFramePacket([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated frame")
	}
}

var _ types.Decoder = (*Decoder)(nil)
