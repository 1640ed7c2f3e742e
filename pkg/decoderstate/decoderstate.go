// Package decoderstate implements the per-adopted-decoder state the
// worker creates when it pulls an item off the decoder queue: the
// sequence number, atomic status flags, frame counters, pending seek
// target, and the scratch buffer used to decode one chunk at a time.
package decoderstate

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/drgolem/gaplessplayer/pkg/types"
)

// Flag is a bit in the state's atomic status bitset.
type Flag uint32

const (
	FlagCancelRequested Flag = 1 << iota
	FlagDecodingStarted
	FlagDecodingComplete
	FlagRenderingStarted
	FlagRenderingComplete
	FlagMarkedForRemoval
)

// NoSeek is the sentinel stored in frameToSeek when no seek is
// pending.
const NoSeek int64 = -1

// State is the per-decoded-item state described in §3/§4.3. Exactly
// one worker goroutine writes to a given State; the render callback
// reads the counters it does not own, and the event processor and
// slot table only ever read flags/sequence.
type State struct {
	sequence uint64
	decoder  types.Decoder
	channels int
	chunk    int

	flags atomic.Uint32

	framesDecoded   atomic.Int64
	framesAvailable atomic.Int64
	framesRendered  atomic.Int64
	frameLength     atomic.Int64
	frameToSeek     atomic.Int64

	scratch [][]float32
}

// New creates decoder state for a just-adopted decoder. chunkFrames
// sizes the owned scratch buffer; channels must match the player's
// rendering format.
func New(sequence uint64, decoder types.Decoder, channels, chunkFrames int) *State {
	s := &State{
		sequence: sequence,
		decoder:  decoder,
		channels: channels,
		chunk:    chunkFrames,
	}
	s.frameLength.Store(decoder.FrameLength())
	s.frameToSeek.Store(NoSeek)

	scratch := make([][]float32, channels)
	for c := range scratch {
		scratch[c] = make([]float32, chunkFrames)
	}
	s.scratch = scratch

	// A decoder may already be positioned part-way through its stream
	// (e.g. a stream decoder resuming); reflect that in the counters
	// so frame_position() and the rendered/available/decoded
	// invariant start consistent.
	if pos := decoder.FramePosition(); pos > 0 {
		s.framesDecoded.Store(pos)
		s.framesAvailable.Store(pos)
		s.framesRendered.Store(pos)
	}

	return s
}

// Sequence returns the monotonically increasing sequence number
// assigned to this decoder at adoption time.
func (s *State) Sequence() uint64 { return s.sequence }

// Decoder returns the underlying decoder this state was created for.
func (s *State) Decoder() types.Decoder { return s.decoder }

// ChunkFrames returns the fixed chunk size used for decode/write.
func (s *State) ChunkFrames() int { return s.chunk }

// ScratchPlanes returns the state's owned scratch buffer. It is only
// ever touched by the worker that owns this state.
func (s *State) ScratchPlanes() [][]float32 { return s.scratch }

// FramesDecoded returns the number of frames the decoder has produced
// so far.
func (s *State) FramesDecoded() int64 { return s.framesDecoded.Load() }

// FramesAvailable returns the number of frames written into the audio
// ring for this decoder so far.
func (s *State) FramesAvailable() int64 { return s.framesAvailable.Load() }

// FramesRendered returns the number of frames the render callback has
// attributed to this decoder so far.
func (s *State) FramesRendered() int64 { return s.framesRendered.Load() }

// FrameLength returns the decoder's total frame count, or -1 if still
// unknown.
func (s *State) FrameLength() int64 { return s.frameLength.Load() }

// DecodeChunk decodes up to ChunkFrames() frames into the scratch
// buffer, advances frames_decoded, and sets DecodingComplete when the
// decoder reports end of stream (zero frames, nil error). It returns
// the number of frames decoded this call.
func (s *State) DecodeChunk() (int, error) {
	n, err := s.decoder.DecodeInto(s.scratch, s.chunk)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrDecodeFailed, err)
	}
	if n == 0 {
		s.SetFlag(FlagDecodingComplete)
		if length := s.decoder.FramePosition(); length >= 0 {
			s.frameLength.Store(length)
		}
		return 0, nil
	}
	s.framesDecoded.Add(int64(n))
	return n, nil
}

// RecordAvailable advances frames_available after n frames have been
// written into the audio ring for this decoder.
func (s *State) RecordAvailable(n int) {
	if n > 0 {
		s.framesAvailable.Add(int64(n))
	}
}

// RecordRendered advances frames_rendered after the render callback
// has attributed n frames to this decoder.
func (s *State) RecordRendered(n int) {
	if n > 0 {
		s.framesRendered.Add(int64(n))
	}
}

// RequestSeek records a pending seek to targetFrame, to be carried out
// by the worker's next PerformSeek call.
func (s *State) RequestSeek(targetFrame int64) {
	s.frameToSeek.Store(targetFrame)
}

// HasPendingSeek reports whether a seek is pending.
func (s *State) HasPendingSeek() bool {
	return s.frameToSeek.Load() != NoSeek
}

// PendingSeekTarget returns the pending seek target, or NoSeek if
// none is set.
func (s *State) PendingSeekTarget() int64 {
	return s.frameToSeek.Load()
}

// PerformSeek seeks the underlying decoder to the pending target and
// clears it. On success all frame counters are reset to the actual
// new position the decoder reports — decoders are permitted to land
// inexactly, and the mismatch (if any) is only logged, never
// surfaced as an error, per §4.3.
func (s *State) PerformSeek() (int64, error) {
	target := s.frameToSeek.Load()
	if target == NoSeek {
		return s.framesRendered.Load(), nil
	}
	s.frameToSeek.Store(NoSeek)

	newPos, err := s.decoder.SeekToFrame(target)
	if err != nil {
		return 0, fmt.Errorf("seek to frame %d: %w", target, err)
	}

	if newPos != target {
		slog.Warn("decoder seek landed inaccurately",
			"sequence", s.sequence, "requested", target, "actual", newPos)
	}

	s.framesDecoded.Store(newPos)
	s.framesAvailable.Store(newPos)
	s.framesRendered.Store(newPos)
	return newPos, nil
}

// FramePosition returns the pending seek target if one is set,
// otherwise the number of frames rendered so far.
func (s *State) FramePosition() int64 {
	if target := s.frameToSeek.Load(); target != NoSeek {
		return target
	}
	return s.framesRendered.Load()
}

// SetFlag atomically sets f and returns whether this call was the one
// that transitioned it from clear to set (useful for one-shot event
// emission: "the first thread to flip RenderingStarted emits").
func (s *State) SetFlag(f Flag) bool {
	for {
		old := s.flags.Load()
		if old&uint32(f) != 0 {
			return false
		}
		if s.flags.CompareAndSwap(old, old|uint32(f)) {
			return true
		}
	}
}

// ClearFlag atomically clears f.
func (s *State) ClearFlag(f Flag) {
	for {
		old := s.flags.Load()
		next := old &^ uint32(f)
		if next == old {
			return
		}
		if s.flags.CompareAndSwap(old, next) {
			return
		}
	}
}

// HasFlag reports whether f is currently set.
func (s *State) HasFlag(f Flag) bool {
	return s.flags.Load()&uint32(f) != 0
}

// IsActive reports whether this state should still be considered an
// "active decoder" per the glossary: in the slot table and neither
// MarkedForRemoval nor RenderingComplete.
func (s *State) IsActive() bool {
	return !s.HasFlag(FlagMarkedForRemoval) && !s.HasFlag(FlagRenderingComplete)
}
