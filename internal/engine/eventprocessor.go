package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/drgolem/gaplessplayer/pkg/eventring"
	"github.com/drgolem/gaplessplayer/pkg/types"
)

// dispatchWait bounds how long Shutdown waits for outstanding delegate
// callbacks to finish, per §5's "teardown ... waits up to 5 seconds on
// the dispatch group before forcing."
const dispatchWait = 5 * time.Second

// EventProcessor drains the event ring, resolves sequence numbers via
// the slot table, and dispatches to a Delegate on a small worker pool
// acting as the "delegate queue" of §4.7/§6. The pool takes records one
// at a time under dispatchMu, so delegate methods run one after another
// in event-ring order. Grounded on the teacher's
// slog-based structured logging for the "log a fault and continue"
// path when a sequence is unknown.
type EventProcessor struct {
	e *Engine

	delegateMu sync.RWMutex
	delegate   types.Delegate

	work       chan eventring.Record
	dispatchMu sync.Mutex
	wg         sync.WaitGroup
}

// NewEventProcessor creates a processor bound to e, dispatching to
// delegate on workers goroutines (at least 1).
func NewEventProcessor(e *Engine, delegate types.Delegate, workers int) *EventProcessor {
	if delegate == nil {
		delegate = types.NoopDelegate{}
	}
	if workers < 1 {
		workers = 1
	}
	p := &EventProcessor{
		e:        e,
		delegate: delegate,
		work:     make(chan eventring.Record, 64),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.dispatchLoop()
	}
	return p
}

// Wake signals the processor that new data is available in the event
// ring; safe to call from any goroutine, non-blocking.
func (p *EventProcessor) Wake() { p.e.SignalEventProcessor() }

// SetDelegate swaps the delegate dispatched to. Safe to call while
// Run is active; in-flight dispatches may still use the previous
// delegate.
func (p *EventProcessor) SetDelegate(delegate types.Delegate) {
	if delegate == nil {
		delegate = types.NoopDelegate{}
	}
	p.delegateMu.Lock()
	p.delegate = delegate
	p.delegateMu.Unlock()
}

func (p *EventProcessor) currentDelegate() types.Delegate {
	p.delegateMu.RLock()
	defer p.delegateMu.RUnlock()
	return p.delegate
}

// Run drains the event ring whenever the engine signals new data (or
// on a fallback tick, in case a signal was missed), until ctx is
// cancelled.
func (p *EventProcessor) Run(ctx context.Context) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(p.work)
			p.wg.Wait()
			return
		case <-p.e.eventWake:
			p.drain()
		case <-ticker.C:
			p.drain()
		}
	}
}

func (p *EventProcessor) drain() {
	for p.e.EventRing.AvailableRead() >= 4 {
		rec, ok := p.e.EventRing.Read()
		if !ok {
			return
		}
		p.work <- rec
	}
}

func (p *EventProcessor) dispatchLoop() {
	defer p.wg.Done()
	for {
		p.dispatchMu.Lock()
		rec, ok := <-p.work
		if !ok {
			p.dispatchMu.Unlock()
			return
		}
		p.dispatch(rec)
		p.dispatchMu.Unlock()
	}
}

// dispatch resolves rec's sequence, where applicable, and invokes the
// matching delegate method. Resolution here is a direct pass-through
// of the sequence number (the delegate interface deals in sequence
// numbers, not decoder handles); per §4.7, a delegate resolution that
// fails because the sequence is unknown logs a fault and continues —
// that path exists only for TagError, the one record referencing an
// out-of-band resource (the error side table) that can legitimately
// go missing if the handle was already consumed.
func (p *EventProcessor) dispatch(rec eventring.Record) {
	delegate := p.currentDelegate()
	switch rec.Tag {
	case eventring.TagDecodingStarted:
		delegate.DecodingStarted(rec.Sequence)
	case eventring.TagDecodingComplete:
		delegate.DecodingComplete(rec.Sequence)
	case eventring.TagDecodingCanceled:
		delegate.DecodingCanceled(rec.Sequence, rec.PartiallyRendered)
	case eventring.TagRenderingStarted:
		delegate.RenderingWillStart(rec.Sequence, rec.HostTimeTicks)
	case eventring.TagRenderingComplete:
		delegate.RenderingWillComplete(rec.Sequence, rec.HostTimeTicks)
	case eventring.TagEndOfAudio:
		delegate.AudioWillEnd(rec.HostTimeTicks)
	case eventring.TagError:
		err, ok := p.e.Errors.Take(rec.ErrorHandle)
		if !ok {
			slog.Error("event processor: unknown error handle", "fault", true, "handle", rec.ErrorHandle)
			return
		}
		delegate.EncounteredError(err)
	default:
		slog.Error("event processor: unknown tag", "fault", true, "tag", rec.Tag)
	}
}

// Shutdown waits up to dispatchWait for outstanding dispatches to
// drain after ctx has been cancelled and Run has returned.
func (p *EventProcessor) Shutdown() {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(dispatchWait):
		slog.Warn("event processor: dispatch group did not drain within deadline")
	}
}
