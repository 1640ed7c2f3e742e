// Package audioring implements the audio ring buffer: a fixed-capacity,
// single-producer/single-consumer ring of non-interleaved (planar) PCM
// frames in the player's rendering format. It is the sole channel by
// which the decoder worker hands decoded audio to the realtime render
// callback.
package audioring

import (
	"sync/atomic"

	"github.com/drgolem/gaplessplayer/pkg/types"
)

// Re-export the common ring errors for callers that only import this
// package.
var (
	ErrInsufficientSpace = types.ErrInsufficientSpace
	ErrInsufficientData  = types.ErrInsufficientData
)

// Ring is a lock-free SPSC ring of planar float32 frames. The worker
// goroutine is the sole writer; the render callback is the sole
// reader. Reset must only be called while the render callback is
// known to be producing silence (see the mute handshake in
// internal/engine).
type Ring struct {
	planes   [][]float32 // one backing slice per channel, each len == size
	channels int
	size     uint64 // capacity in frames, power of 2
	mask     uint64
	writePos atomic.Uint64
	readPos  atomic.Uint64
}

// New creates a ring buffer sized to hold capacityFrames frames across
// channels planes. Capacity is rounded up to the next power of two.
func New(channels int, capacityFrames uint64) *Ring {
	size := nextPowerOf2(capacityFrames)
	planes := make([][]float32, channels)
	for c := range planes {
		planes[c] = make([]float32, size)
	}
	return &Ring{
		planes:   planes,
		channels: channels,
		size:     size,
		mask:     size - 1,
	}
}

// Write copies up to frames frames from source (one slice per channel)
// into the ring, returning the number of frames actually written. It
// never performs a partial per-frame write: the returned count is
// always min(frames, FramesWritable()) at the moment of the call, and
// the write positions for all channels stay in lockstep so no channel
// can desync from another.
//
// Must only be called by the producer (decoder worker) goroutine.
func (r *Ring) Write(source [][]float32, frames int) int {
	if frames <= 0 {
		return 0
	}

	writable := r.FramesWritable()
	toWrite := uint64(frames)
	if toWrite > writable {
		toWrite = writable
	}
	if toWrite == 0 {
		return 0
	}

	writePos := r.writePos.Load()
	start := writePos & r.mask
	end := (writePos + toWrite) & r.mask

	for c := 0; c < r.channels && c < len(source); c++ {
		dst := r.planes[c]
		src := source[c]
		if end > start {
			copy(dst[start:end], src[:toWrite])
		} else {
			firstChunk := r.size - start
			copy(dst[start:], src[:firstChunk])
			copy(dst[:end], src[firstChunk:toWrite])
		}
	}

	r.writePos.Store(writePos + toWrite)
	return int(toWrite)
}

// Read copies up to frames frames from the ring into dest (one slice
// per channel), returning the number of frames actually read. Callers
// must zero any trailing region of dest themselves if fewer frames
// were read than requested; Read never blocks and never returns an
// error — an empty ring simply yields zero frames.
//
// Must only be called by the consumer (render callback).
func (r *Ring) Read(dest [][]float32, frames int) int {
	if frames <= 0 {
		return 0
	}

	readable := r.FramesReadable()
	toRead := uint64(frames)
	if toRead > readable {
		toRead = readable
	}
	if toRead == 0 {
		return 0
	}

	readPos := r.readPos.Load()
	start := readPos & r.mask
	end := (readPos + toRead) & r.mask

	for c := 0; c < r.channels && c < len(dest); c++ {
		src := r.planes[c]
		dst := dest[c]
		if end > start {
			copy(dst[:toRead], src[start:end])
		} else {
			firstChunk := r.size - start
			copy(dst[:firstChunk], src[start:])
			copy(dst[firstChunk:toRead], src[:end])
		}
	}

	r.readPos.Store(readPos + toRead)
	return int(toRead)
}

// FramesReadable returns a coherent snapshot of how many frames are
// currently available to Read.
func (r *Ring) FramesReadable() uint64 {
	return r.writePos.Load() - r.readPos.Load()
}

// FramesWritable returns a coherent snapshot of how many frames are
// currently available to Write.
func (r *Ring) FramesWritable() uint64 {
	return r.size - r.FramesReadable()
}

// Capacity returns the ring's total capacity in frames.
func (r *Ring) Capacity() uint64 {
	return r.size
}

// Channels returns the number of planes the ring holds.
func (r *Ring) Channels() int {
	return r.channels
}

// Reset zeroes the read/write indices, discarding any buffered audio.
// Callers must guarantee the consumer is producing silence (e.g. via
// the mute handshake) for the duration of the call; Reset does not
// itself synchronize with a concurrent reader.
func (r *Ring) Reset() {
	r.readPos.Store(0)
	r.writePos.Store(0)
}

func nextPowerOf2(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	n++
	return n
}
