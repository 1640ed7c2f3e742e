// Package slottable implements the active decoder slot table: a fixed
// capacity array of decoder states, each stored in whichever slot was
// free when it was inserted (slot position says nothing about sequence
// order), that the worker, render callback, event processor, and collector all
// consult without taking a lock. Per §4.4 of the design, insertion
// blocks (briefly) under the rare condition that all slots are
// occupied by decoders not yet reaped; lookups and scans never block.
package slottable

import (
	"sync/atomic"
	"time"

	"github.com/drgolem/gaplessplayer/pkg/decoderstate"
)

// DefaultSize is the slot count used when a player config does not
// override it.
const DefaultSize = 8

// insertBackoff is the pause between insertion attempts when every
// slot is occupied.
const insertBackoff = 50 * time.Millisecond

// Table is a fixed-capacity set of decoder state slots.
type Table struct {
	slots []atomic.Pointer[decoderstate.State]
}

// New creates a table with size slots (DefaultSize if size <= 0).
func New(size int) *Table {
	if size <= 0 {
		size = DefaultSize
	}
	return &Table{slots: make([]atomic.Pointer[decoderstate.State], size)}
}

// Size returns the slot capacity.
func (t *Table) Size() int { return len(t.slots) }

// Insert places st into the first empty slot. If the table is full it
// spins with a short sleep between attempts until the collector frees
// a slot or stop reports true, in which case Insert returns false.
func (t *Table) Insert(st *decoderstate.State, stop func() bool) bool {
	for {
		for i := range t.slots {
			if t.slots[i].CompareAndSwap(nil, st) {
				return true
			}
		}
		if stop != nil && stop() {
			return false
		}
		time.Sleep(insertBackoff)
	}
}

// TryInsert attempts a single non-blocking pass and reports whether a
// free slot was found.
func (t *Table) TryInsert(st *decoderstate.State) bool {
	for i := range t.slots {
		if t.slots[i].CompareAndSwap(nil, st) {
			return true
		}
	}
	return false
}

// Find returns the state with the given sequence number, or nil.
func (t *Table) Find(seq uint64) *decoderstate.State {
	for i := range t.slots {
		if st := t.slots[i].Load(); st != nil && st.Sequence() == seq {
			return st
		}
	}
	return nil
}

// Each calls fn for every occupied slot. fn must not block.
func (t *Table) Each(fn func(st *decoderstate.State)) {
	for i := range t.slots {
		if st := t.slots[i].Load(); st != nil {
			fn(st)
		}
	}
}

// ActiveSmallestSequence returns the active decoder (per
// decoderstate.State.IsActive) with the smallest sequence number —
// the one currently nearest the front of playback — or nil if none is
// active.
func (t *Table) ActiveSmallestSequence() *decoderstate.State {
	var best *decoderstate.State
	t.Each(func(st *decoderstate.State) {
		if !st.IsActive() {
			return
		}
		if best == nil || st.Sequence() < best.Sequence() {
			best = st
		}
	})
	return best
}

// ActiveFollowing returns the active decoder with the smallest
// sequence number strictly greater than seq, or nil if there is none —
// used to find "the next decoder in program order" for gapless
// handoff.
func (t *Table) ActiveFollowing(seq uint64) *decoderstate.State {
	var best *decoderstate.State
	t.Each(func(st *decoderstate.State) {
		if !st.IsActive() || st.Sequence() <= seq {
			return
		}
		if best == nil || st.Sequence() < best.Sequence() {
			best = st
		}
	})
	return best
}

// Count returns the number of occupied slots.
func (t *Table) Count() int {
	n := 0
	t.Each(func(*decoderstate.State) { n++ })
	return n
}

// Reap clears every slot flagged MarkedForRemoval, returning the
// states that were removed so the caller can close their decoders.
func (t *Table) Reap() []*decoderstate.State {
	var removed []*decoderstate.State
	for i := range t.slots {
		st := t.slots[i].Load()
		if st == nil || !st.HasFlag(decoderstate.FlagMarkedForRemoval) {
			continue
		}
		if t.slots[i].CompareAndSwap(st, nil) {
			removed = append(removed, st)
		}
	}
	return removed
}
