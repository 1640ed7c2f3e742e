// Package engine implements the decode/render core: the audio ring,
// event ring, slot table, and decoder queue tying a Worker, a Render
// callback, an EventProcessor and a Collector together, plus the mute
// handshake that is the sole synchronization between the worker and
// the realtime render path.
package engine

import (
	"context"
	"time"

	"github.com/drgolem/gaplessplayer/pkg/audioring"
	"github.com/drgolem/gaplessplayer/pkg/eventring"
	"github.com/drgolem/gaplessplayer/pkg/slottable"
	"github.com/drgolem/gaplessplayer/pkg/types"

	"sync/atomic"
)

// Defaults mirror the configuration options in §6 of the design.
const (
	DefaultAudioRingCapacityFrames = 16384
	DefaultChunkFrames             = 2048
	DefaultEventRingCapacityBytes  = 256

	// workerSemTimeout bounds the worker's wait on its semaphore when
	// the decoder queue is empty and no decoder needs draining.
	workerSemTimeout = 100 * time.Millisecond

	// muteSemTimeout bounds each poll of the worker semaphore while
	// waiting for the render callback to acknowledge a mute request.
	muteSemTimeout = 10 * time.Millisecond
)

// Config configures a new Engine.
type Config struct {
	Format                  types.RenderingFormat
	AudioRingCapacityFrames uint64
	ChunkFrames             int
	SlotTableSize           int
	EventRingCapacityBytes  uint64
}

func (c Config) withDefaults() Config {
	if c.AudioRingCapacityFrames == 0 {
		c.AudioRingCapacityFrames = DefaultAudioRingCapacityFrames
	}
	if c.ChunkFrames == 0 {
		c.ChunkFrames = DefaultChunkFrames
	}
	if c.SlotTableSize == 0 {
		c.SlotTableSize = slottable.DefaultSize
	}
	if c.EventRingCapacityBytes == 0 {
		c.EventRingCapacityBytes = DefaultEventRingCapacityBytes
	}
	return c
}

// Engine holds the shared state the Worker, Render callback,
// EventProcessor and Collector all operate on.
type Engine struct {
	format types.RenderingFormat
	chunk  int

	AudioRing *audioring.Ring
	EventRing *eventring.Ring
	Slots     *slottable.Table
	Queue     *Queue
	Errors    *ErrorTable

	nextSequence atomic.Uint64

	isPlaying     atomic.Bool
	muteRequested atomic.Bool
	outputMuted   atomic.Bool
	ringReset     atomic.Bool
	audioEnded    atomic.Bool

	// workerSem stands in for the "worker semaphore" of §4.5/§5: a
	// capacity-1 buffered channel signalled non-blockingly by the
	// render callback and other producers, and waited on (with a
	// bounded timeout) by the worker.
	workerSem chan struct{}

	// collectorWake wakes the Collector promptly when the worker
	// marks a state for removal, instead of relying solely on its
	// fallback tick.
	collectorWake chan struct{}

	// eventWake wakes the EventProcessor promptly whenever the worker
	// or the render callback posts a new record, instead of relying
	// solely on its fallback tick.
	eventWake chan struct{}
}

// New creates an Engine per cfg, applying defaults for zero fields.
func New(cfg Config) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		format:        cfg.Format,
		chunk:         cfg.ChunkFrames,
		AudioRing:     audioring.New(cfg.Format.Channels, cfg.AudioRingCapacityFrames),
		EventRing:     eventring.New(cfg.EventRingCapacityBytes),
		Slots:         slottable.New(cfg.SlotTableSize),
		Queue:         NewQueue(),
		Errors:        NewErrorTable(),
		workerSem:     make(chan struct{}, 1),
		collectorWake: make(chan struct{}, 1),
		eventWake:     make(chan struct{}, 1),
	}
	return e
}

// Format returns the fixed rendering format this engine was built for.
func (e *Engine) Format() types.RenderingFormat { return e.format }

// ChunkFrames returns the fixed chunk size used for decode/write.
func (e *Engine) ChunkFrames() int { return e.chunk }

// IsPlaying reports whether the engine is currently in the playing
// state.
func (e *Engine) IsPlaying() bool { return e.isPlaying.Load() }

// SetPlaying sets the playing state.
func (e *Engine) SetPlaying(playing bool) { e.isPlaying.Store(playing) }

// TogglePlaying flips the playing state and returns the new value.
func (e *Engine) TogglePlaying() bool {
	for {
		old := e.isPlaying.Load()
		if e.isPlaying.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// SignalWorker wakes the worker from a semaphore wait. Safe to call
// from the render callback: a non-blocking channel send, no
// allocation, no lock.
func (e *Engine) SignalWorker() {
	select {
	case e.workerSem <- struct{}{}:
	default:
	}
}

// waitWorkerSem blocks until SignalWorker is called or timeout
// elapses, whichever comes first.
func (e *Engine) waitWorkerSem(timeout time.Duration) {
	select {
	case <-e.workerSem:
	case <-time.After(timeout):
	}
}

// SignalCollector wakes the collector promptly; safe to call from any
// goroutine, non-blocking.
func (e *Engine) SignalCollector() {
	select {
	case e.collectorWake <- struct{}{}:
	default:
	}
}

// SignalEventProcessor wakes the event processor promptly; safe to
// call from any goroutine, including the realtime render callback
// (non-blocking, no allocation).
func (e *Engine) SignalEventProcessor() {
	select {
	case e.eventWake <- struct{}{}:
	default:
	}
}

// NextSequence returns the next monotonically increasing sequence
// number, starting at 0.
func (e *Engine) NextSequence() uint64 {
	return e.nextSequence.Add(1) - 1
}

// RequestRingReset asks the worker to flush and reset the audio ring
// (without a seek) the next time the mute handshake runs; used by
// stop/reset_and_enqueue/cancel_current to discard stale buffered
// audio.
func (e *Engine) RequestRingReset() { e.ringReset.Store(true) }

// MuteRequested reports whether a mute has been requested but not yet
// acknowledged by the render callback.
func (e *Engine) MuteRequested() bool { return e.muteRequested.Load() }

// OutputMuted reports whether the render callback is currently
// producing silence on behalf of a pending ring mutation.
func (e *Engine) OutputMuted() bool { return e.outputMuted.Load() }

// AcknowledgeMute is called by the render callback when it observes
// MuteRequested: it sets OutputMuted, clears MuteRequested and signals
// the worker, per the protocol in §5.
func (e *Engine) AcknowledgeMute() {
	e.outputMuted.Store(true)
	e.muteRequested.Store(false)
	e.SignalWorker()
}

// muteAndReset performs the producer side of the mute handshake: it
// requests a mute, waits for acknowledgement (or mutes directly if
// the engine is not currently playing, since there is no render
// thread to race with), performs fn while rendering is muted, then
// unmutes. Abandons the wait (without running fn) if ctx is cancelled
// first — the render callback may never run again after a host sink
// has stopped pulling it, and this is what lets the worker goroutine
// still exit on shutdown instead of waiting on an acknowledgement
// that will never come.
func (e *Engine) muteAndReset(ctx context.Context, fn func()) {
	if !e.IsPlaying() {
		e.outputMuted.Store(true)
		fn()
		e.outputMuted.Store(false)
		return
	}

	e.muteRequested.Store(true)
	for e.muteRequested.Load() {
		if ctx.Err() != nil {
			e.muteRequested.Store(false)
			return
		}
		e.waitWorkerSem(muteSemTimeout)
	}

	fn()
	e.outputMuted.Store(false)
}
