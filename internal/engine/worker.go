package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/drgolem/gaplessplayer/pkg/decoderstate"
	"github.com/drgolem/gaplessplayer/pkg/types"
)

// Worker runs the adoption-and-drain loop of §4.5: pop a decoder from
// the queue, validate and adopt it into the slot table, then decode
// chunks into the audio ring until the decoder completes or is
// cancelled. Grounded on internal/fileplayer.FilePlayer.producer()
// (cooperative decode loop, retry-on-full-buffer, stop-channel check,
// EOS detection) and pkg/audioplayer.Player.producer() (format check
// before decode).
type Worker struct {
	e *Engine
}

// NewWorker creates a worker bound to e.
func NewWorker(e *Engine) *Worker {
	return &Worker{e: e}
}

// Run drives the worker loop until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		w.adoptAndDrainOne(ctx)
	}
}

// adoptAndDrainOne pops one decoder (waiting briefly if the queue is
// empty) and, if one was adopted, drains it to completion or
// cancellation before returning.
func (w *Worker) adoptAndDrainOne(ctx context.Context) {
	e := w.e

	dec := e.Queue.Pop()
	if dec == nil {
		// A Stop/ResetAndEnqueue/CancelCurrent with nothing queued behind
		// it leaves no decoder for drain's own ringReset check to run
		// against; consume the request here so stale buffered audio
		// doesn't resurface on the next Play() with no new Enqueue.
		if e.ringReset.CompareAndSwap(true, false) {
			e.muteAndReset(ctx, func() {
				e.AudioRing.Reset()
			})
		}
		e.waitWorkerSem(workerSemTimeout)
		return
	}

	if !dec.IsOpen() {
		if err := dec.Open(); err != nil {
			w.postError(fmt.Errorf("%w: %v", types.ErrDecoderOpenFailed, err))
			return
		}
	}

	if !dec.ProcessingFormat().Equal(e.Format()) {
		w.postError(fmt.Errorf("%w: decoder format %v, rendering format %v",
			types.ErrFormatNotSupported, dec.ProcessingFormat(), e.Format()))
		dec.Close()
		return
	}

	seq := e.NextSequence()
	st := decoderstate.New(seq, dec, e.Format().Channels, e.ChunkFrames())

	if !e.Slots.Insert(st, func() bool { return ctx.Err() != nil }) {
		dec.Close()
		return
	}

	w.drain(ctx, st)
}

// drain runs the decode loop of §4.5 step 5 for one adopted decoder
// until it completes, is cancelled, or ctx is done.
func (w *Worker) drain(ctx context.Context, st *decoderstate.State) {
	e := w.e

	for {
		if ctx.Err() != nil {
			return
		}

		if st.HasPendingSeek() {
			e.muteAndReset(ctx, func() {
				e.AudioRing.Reset()
				if _, err := st.PerformSeek(); err != nil {
					w.postError(fmt.Errorf("%w: %v", types.ErrDecodeFailed, err))
				}
			})
			continue
		}

		if e.ringReset.CompareAndSwap(true, false) {
			e.muteAndReset(ctx, func() {
				e.AudioRing.Reset()
			})
			continue
		}

		writable := e.AudioRing.FramesWritable()
		if writable >= uint64(e.ChunkFrames()) {
			if st.SetFlag(decoderstate.FlagDecodingStarted) {
				e.EventRing.WriteDecodingStarted(st.Sequence())
				e.SignalEventProcessor()
			}

			n, err := st.DecodeChunk()
			if err != nil {
				w.postError(err)
				st.SetFlag(decoderstate.FlagMarkedForRemoval)
				return
			}

			if n > 0 {
				written := e.AudioRing.Write(st.ScratchPlanes(), n)
				if written < n {
					slog.Warn("partial write to audio ring",
						"sequence", st.Sequence(), "decoded", n, "written", written)
				}
				st.RecordAvailable(written)
				continue
			}

			// n == 0: DecodeChunk already flagged DecodingComplete.
			e.EventRing.WriteDecodingComplete(st.Sequence())
			e.SignalEventProcessor()
			return
		}

		if st.HasFlag(decoderstate.FlagCancelRequested) {
			e.RequestRingReset()
			e.EventRing.WriteDecodingCanceled(st.Sequence(), st.FramesRendered() > 0)
			e.SignalEventProcessor()
			st.SetFlag(decoderstate.FlagMarkedForRemoval)
			e.SignalCollector()
			return
		}

		e.waitWorkerSem(workerSemTimeout)
	}
}

func (w *Worker) postError(err error) {
	handle := w.e.Errors.Store(err)
	w.e.EventRing.WriteError(handle)
	w.e.SignalEventProcessor()
	slog.Error("decoder error", "error", err)
}
