// Package types holds the shared contracts between the gapless engine,
// its decoders, and the host application: the rendering format, the
// Decoder capability the engine consumes, the render-callback and
// delegate interfaces it exposes, and the error taxonomy surfaced
// across that boundary.
package types

import (
	"errors"
	"time"
)

// SampleFormat identifies the PCM sample representation the engine
// renders in. 32-bit float is the only format the core currently
// targets; the type exists so a host can assert on it defensively.
type SampleFormat int

const (
	SampleFloat32 SampleFormat = iota
)

func (s SampleFormat) String() string {
	switch s {
	case SampleFloat32:
		return "float32"
	default:
		return "unknown"
	}
}

// RenderingFormat is the immutable, non-interleaved PCM description
// chosen at player construction. Every decoder enqueued into the
// player must report this exact format; the core never performs
// sample-rate conversion or channel remapping.
type RenderingFormat struct {
	SampleRate int
	Channels   int
	Sample     SampleFormat
}

// Equal reports whether two rendering formats are identical.
func (f RenderingFormat) Equal(o RenderingFormat) bool {
	return f.SampleRate == o.SampleRate && f.Channels == o.Channels && f.Sample == o.Sample
}

// Decoder is the external capability the core consumes. Implementations
// are responsible for file/stream parsing, bitstream decoding, and any
// format bookkeeping; the core only calls this interface.
//
// FrameLength may return -1 when unknown (e.g. streaming sources). A
// decoder is adopted by exactly one worker at a time, and DecodeInto /
// SeekToFrame are never called concurrently.
type Decoder interface {
	// Open prepares the decoder for reading. Safe to call once.
	Open() error

	// IsOpen reports whether Open has succeeded and Close has not yet
	// been called.
	IsOpen() bool

	// SupportsSeeking reports whether SeekToFrame is usable.
	SupportsSeeking() bool

	// ProcessingFormat returns the format frames will be produced in.
	// The engine rejects the decoder at enqueue time if this does not
	// equal the player's configured RenderingFormat.
	ProcessingFormat() RenderingFormat

	// FrameLength returns the total frame count, or -1 if unknown
	// until end of stream.
	FrameLength() int64

	// FramePosition returns the next frame index DecodeInto will
	// produce.
	FramePosition() int64

	// SeekToFrame seeks to the given frame and returns the frame
	// actually landed on (decoders are permitted to be inexact).
	SeekToFrame(frame int64) (int64, error)

	// DecodeInto fills planes (one slice per channel, all of equal
	// capacity) with up to maxFrames of decoded audio, returning the
	// number of frames actually written. Zero frames with a nil error
	// signals end of stream.
	DecodeInto(planes [][]float32, maxFrames int) (int, error)

	// Close releases any resources held by the decoder.
	Close() error
}

// HostTimestamp carries the realtime clock values a render callback
// receives from its host output sink. HostTimeTicks is a monotonic
// tick count on the same clock used to schedule lifecycle events;
// SampleTime is the host's running sample position.
type HostTimestamp struct {
	HostTimeTicks uint64
	SampleTime    int64
}

// RenderStatus is the result a RenderFunc reports back to its host.
type RenderStatus int

const (
	RenderOK RenderStatus = iota
	RenderError
)

// RenderFunc is the realtime-safe render callback contract: given an
// output plane list, a frame count, and a host timestamp, fill output
// with PCM in the player's rendering format and report whether silence
// was written. Implementations must never block, allocate, or make a
// syscall.
type RenderFunc func(silenceOut *bool, ts HostTimestamp, frameCount int, output [][]float32) RenderStatus

// Delegate receives lifecycle notifications from the engine's event
// processor. All methods run on a delegate worker, never on the
// realtime render path. Embed NoopDelegate to implement only the
// callbacks of interest.
type Delegate interface {
	DecodingStarted(seq uint64)
	DecodingComplete(seq uint64)
	DecodingCanceled(seq uint64, partiallyRendered bool)
	RenderingWillStart(seq uint64, hostTime uint64)
	RenderingWillComplete(seq uint64, hostTime uint64)
	AudioWillEnd(hostTime uint64)
	EncounteredError(err error)
}

// NoopDelegate is an embeddable Delegate implementation whose methods
// all do nothing, so callers only need to override what they use.
type NoopDelegate struct{}

func (NoopDelegate) DecodingStarted(seq uint64)                          {}
func (NoopDelegate) DecodingComplete(seq uint64)                         {}
func (NoopDelegate) DecodingCanceled(seq uint64, partiallyRendered bool) {}
func (NoopDelegate) RenderingWillStart(seq uint64, hostTime uint64)      {}
func (NoopDelegate) RenderingWillComplete(seq uint64, hostTime uint64)   {}
func (NoopDelegate) AudioWillEnd(hostTime uint64)                        {}
func (NoopDelegate) EncounteredError(err error)                          {}

// ErrorKind classifies errors surfaced by the engine, per the error
// taxonomy: configuration errors are rejected synchronously, source
// and resource errors are posted through the event ring and the
// offending decoder is abandoned, invariant violations never leave
// the process as errors at all.
type ErrorKind int

const (
	ErrKindConfiguration ErrorKind = iota
	ErrKindSource
	ErrKindResource
)

// EngineError wraps an underlying error with the kind and, where
// applicable, the sequence number of the decoder it concerns.
type EngineError struct {
	Kind     ErrorKind
	Sequence uint64
	Err      error
}

func (e *EngineError) Error() string {
	return e.Err.Error()
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Sentinel errors surfaced externally, per spec §6.
var (
	ErrFormatNotSupported = errors.New("format not supported")
	ErrDecoderOpenFailed  = errors.New("decoder open failed")
	ErrDecodeFailed       = errors.New("decode failed")
	ErrAllocationFailed   = errors.New("allocation failed")
	ErrInternal           = errors.New("internal error")
	ErrNoActiveDecoder    = errors.New("no active decoder")
	ErrSeekNotSupported   = errors.New("decoder does not support seeking")
)

// PlaybackStatus holds unified playback information for audio players.
type PlaybackStatus struct {
	FileName        string        // Name of the currently playing item, if known
	SampleRate      int           // Audio sample rate in Hz (e.g., 44100, 48000)
	Channels        int           // Number of audio channels (1=mono, 2=stereo)
	BitsPerSample   int           // Bit depth reported for status/metrics display
	FramesPerBuffer int           // Render callback frames per burst
	PlayedSamples   uint64        // Frames actually delivered to the output sink
	BufferedSamples uint64        // Frames decoded but not yet rendered (in-flight)
	ElapsedTime     time.Duration // Wall-clock time since playback started
}

// PlaybackMonitor is an interface for types that can report playback
// status, letting status-reporting code stay agnostic of the concrete
// player implementation.
type PlaybackMonitor interface {
	GetPlaybackStatus() PlaybackStatus
}

// Common ringbuffer errors used by the byte-based, planar-frame, and
// event ringbuffers alike. These enable consistent error handling and
// comparison using errors.Is().
var (
	// ErrInsufficientSpace indicates the ringbuffer doesn't have enough space for the write operation
	ErrInsufficientSpace = errors.New("insufficient space in ringbuffer")

	// ErrInsufficientData indicates the ringbuffer doesn't have enough data for the read operation
	ErrInsufficientData = errors.New("insufficient data in ringbuffer")
)
