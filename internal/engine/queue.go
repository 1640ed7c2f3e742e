package engine

import (
	"sync"

	"github.com/drgolem/gaplessplayer/pkg/types"
)

// Queue is the decoder FIFO: pending decoders awaiting adoption by the
// worker. Guarded by a mutex held only while pushing/popping, never
// during I/O, grounded on the teacher's playlist loop
// (cmd/fileplayer.go: runPlaylist) generalized from an outer for-loop
// over filenames into an in-engine queue so transitions are gapless
// rather than stream-reopen-per-file.
type Queue struct {
	mu    sync.Mutex
	items []types.Decoder
}

// NewQueue creates an empty decoder queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends a decoder to the back of the queue.
func (q *Queue) Push(d types.Decoder) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, d)
}

// Pop removes and returns the decoder at the front of the queue, or
// nil if the queue is empty.
func (q *Queue) Pop() types.Decoder {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	d := q.items[0]
	q.items = q.items[1:]
	return d
}

// Clear drops every waiting decoder, returning them so the caller can
// close them.
func (q *Queue) Clear() []types.Decoder {
	q.mu.Lock()
	defer q.mu.Unlock()
	dropped := q.items
	q.items = nil
	return dropped
}

// Len reports the number of decoders currently waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
