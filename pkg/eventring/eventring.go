// Package eventring implements the event ring buffer: an SPSC byte
// ring used to marshal typed lifecycle events from the render
// callback and decoder worker to the cooperative event processor. It
// is built directly on pkg/ringbuffer's byte ring, adding a
// length-prefixed, per-tag-fixed-layout record codec modelled on
// pkg/audioframe's explicit little-endian encode/decode.
package eventring

import (
	"encoding/binary"

	"github.com/drgolem/gaplessplayer/pkg/ringbuffer"
)

// Tag identifies the kind of record stored in the ring. Each tag has a
// fixed payload layout (see §3 of the design): DecodingStarted/Complete
// carry a sequence number, DecodingCanceled adds a partial-render flag,
// RenderingStarted/Complete add a host-time tick value, EndOfAudio
// carries only a host time, and Error carries a side-table handle.
type Tag uint32

const (
	TagDecodingStarted Tag = iota + 1
	TagDecodingComplete
	TagDecodingCanceled
	TagRenderingStarted
	TagRenderingComplete
	TagEndOfAudio
	TagError
)

const headerSize = 4 // tag

// payloadSize returns the fixed payload length for a tag, or -1 if the
// tag is unknown.
func payloadSize(tag Tag) int {
	switch tag {
	case TagDecodingStarted, TagDecodingComplete:
		return 8 // u64 seq
	case TagDecodingCanceled:
		return 9 // u64 seq, u8 partially_rendered
	case TagRenderingStarted, TagRenderingComplete:
		return 16 // u64 seq, u64 host_time_ticks
	case TagEndOfAudio:
		return 8 // u64 host_time_ticks
	case TagError:
		return 8 // u64 handle
	default:
		return -1
	}
}

// Record is a decoded event ring entry. Only the fields relevant to
// Tag are populated; the rest are zero.
type Record struct {
	Tag               Tag
	Sequence          uint64
	PartiallyRendered bool
	HostTimeTicks     uint64
	ErrorHandle       uint64
}

// Ring wraps a byte ringbuffer with the typed record codec. The
// producer is either the decoder worker or the render callback, never
// both for the same logical event kind (Decoding* comes from the
// worker, Rendering*/EndOfAudio from the render callback; Error may
// come from either) — see §5 of the design.
type Ring struct {
	bytes *ringbuffer.RingBuffer
}

// New creates an event ring with at least capacityBytes of storage
// (rounded up to a power of two by the underlying byte ring).
func New(capacityBytes uint64) *Ring {
	if capacityBytes < 256 {
		capacityBytes = 256
	}
	return &Ring{bytes: ringbuffer.New(capacityBytes)}
}

func encode(tag Tag, r Record) []byte {
	size := payloadSize(tag)
	buf := make([]byte, headerSize+size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(tag))

	switch tag {
	case TagDecodingStarted, TagDecodingComplete:
		binary.LittleEndian.PutUint64(buf[4:12], r.Sequence)
	case TagDecodingCanceled:
		binary.LittleEndian.PutUint64(buf[4:12], r.Sequence)
		if r.PartiallyRendered {
			buf[12] = 1
		}
	case TagRenderingStarted, TagRenderingComplete:
		binary.LittleEndian.PutUint64(buf[4:12], r.Sequence)
		binary.LittleEndian.PutUint64(buf[12:20], r.HostTimeTicks)
	case TagEndOfAudio:
		binary.LittleEndian.PutUint64(buf[4:12], r.HostTimeTicks)
	case TagError:
		binary.LittleEndian.PutUint64(buf[4:12], r.ErrorHandle)
	}
	return buf
}

// writeRecord composes the record bytes and performs a single
// all-or-nothing write. It never blocks; if the consumer is behind
// far enough that the record does not fit, the record is dropped —
// this is not expected in normal operation and indicates a bug
// upstream (an event-processor stall), not a transient condition to
// retry.
func (r *Ring) writeRecord(tag Tag, rec Record) (ok bool) {
	buf := encode(tag, rec)
	_, err := r.bytes.Write(buf)
	return err == nil
}

// WriteDecodingStarted posts a DecodingStarted event for seq.
func (r *Ring) WriteDecodingStarted(seq uint64) bool {
	return r.writeRecord(TagDecodingStarted, Record{Sequence: seq})
}

// WriteDecodingComplete posts a DecodingComplete event for seq.
func (r *Ring) WriteDecodingComplete(seq uint64) bool {
	return r.writeRecord(TagDecodingComplete, Record{Sequence: seq})
}

// WriteDecodingCanceled posts a DecodingCanceled event for seq.
func (r *Ring) WriteDecodingCanceled(seq uint64, partiallyRendered bool) bool {
	return r.writeRecord(TagDecodingCanceled, Record{Sequence: seq, PartiallyRendered: partiallyRendered})
}

// WriteRenderingStarted posts a RenderingStarted event for seq with
// the predicted host time.
func (r *Ring) WriteRenderingStarted(seq uint64, hostTime uint64) bool {
	return r.writeRecord(TagRenderingStarted, Record{Sequence: seq, HostTimeTicks: hostTime})
}

// WriteRenderingComplete posts a RenderingComplete event for seq with
// the predicted host time.
func (r *Ring) WriteRenderingComplete(seq uint64, hostTime uint64) bool {
	return r.writeRecord(TagRenderingComplete, Record{Sequence: seq, HostTimeTicks: hostTime})
}

// WriteEndOfAudio posts an EndOfAudio event with the predicted host
// time.
func (r *Ring) WriteEndOfAudio(hostTime uint64) bool {
	return r.writeRecord(TagEndOfAudio, Record{HostTimeTicks: hostTime})
}

// WriteError posts an Error event referencing a side-table handle.
func (r *Ring) WriteError(handle uint64) bool {
	return r.writeRecord(TagError, Record{ErrorHandle: handle})
}

// Read drains one record from the ring, if a complete one is
// available. It returns ok=false if fewer than a full record's bytes
// are currently buffered (including the degenerate case of an empty
// ring), in which case the caller should stop draining for this pass.
func (r *Ring) Read() (rec Record, ok bool) {
	if r.bytes.AvailableRead() < headerSize {
		return Record{}, false
	}

	header := r.bytes.PeekContiguous()
	var tagBytes [4]byte
	if len(header) >= 4 {
		copy(tagBytes[:], header[:4])
	} else {
		// Header itself wraps the ring; use ReadSlices to stitch it.
		first, second, _ := r.bytes.ReadSlices()
		n := copy(tagBytes[:], first)
		copy(tagBytes[n:], second)
	}
	tag := Tag(binary.LittleEndian.Uint32(tagBytes[:]))

	size := payloadSize(tag)
	if size < 0 {
		// Unknown tag: the ring is corrupt or desynced. Drop one byte
		// so a future call can attempt resynchronization rather than
		// spinning forever on the same bad header.
		var discard [1]byte
		r.bytes.Read(discard[:])
		return Record{}, false
	}

	total := headerSize + size
	if r.bytes.AvailableRead() < uint64(total) {
		return Record{}, false
	}

	buf := make([]byte, total)
	n, err := r.bytes.Read(buf)
	if err != nil || n != total {
		return Record{}, false
	}

	rec = Record{Tag: tag}
	switch tag {
	case TagDecodingStarted, TagDecodingComplete:
		rec.Sequence = binary.LittleEndian.Uint64(buf[4:12])
	case TagDecodingCanceled:
		rec.Sequence = binary.LittleEndian.Uint64(buf[4:12])
		rec.PartiallyRendered = buf[12] != 0
	case TagRenderingStarted, TagRenderingComplete:
		rec.Sequence = binary.LittleEndian.Uint64(buf[4:12])
		rec.HostTimeTicks = binary.LittleEndian.Uint64(buf[12:20])
	case TagEndOfAudio:
		rec.HostTimeTicks = binary.LittleEndian.Uint64(buf[4:12])
	case TagError:
		rec.ErrorHandle = binary.LittleEndian.Uint64(buf[4:12])
	}
	return rec, true
}

// AvailableRead reports the number of bytes currently buffered,
// letting the event processor decide whether draining is worthwhile.
func (r *Ring) AvailableRead() uint64 {
	return r.bytes.AvailableRead()
}
