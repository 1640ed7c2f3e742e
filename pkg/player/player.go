// Package player is the public control surface over the decode/render
// core in internal/engine: play/pause/stop, gapless enqueueing, seeking,
// and playback position/time, plus the render callback a host output
// sink drives. Generalizes pkg/audioplayer.Player and
// internal/fileplayer.FilePlayer's public API ("one file at a time via
// PortAudio") into queued gapless playback against the render-callback
// contract, reusing their metrics idiom.
package player

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drgolem/gaplessplayer/internal/engine"
	"github.com/drgolem/gaplessplayer/pkg/decoderstate"
	"github.com/drgolem/gaplessplayer/pkg/slottable"
	"github.com/drgolem/gaplessplayer/pkg/types"
)

// Config configures a new Player.
type Config struct {
	// Format is the fixed rendering format every enqueued decoder must
	// match. Required.
	Format types.RenderingFormat

	AudioRingCapacityFrames uint64
	ChunkSizeFrames         int
	SlotTableSize           int
	EventRingCapacityBytes  uint64

	// DelegateWorkers sizes the event processor's dispatch pool.
	DelegateWorkers int

	// FramesPerBuffer and DeviceIndex are carried for a host output
	// sink (e.g. PortAudio) to size and select its stream; the player
	// itself never opens a device.
	FramesPerBuffer int
	DeviceIndex     int

	Delegate types.Delegate
}

// DefaultConfig returns a Config with the engine's defaults filled in
// for format.
func DefaultConfig(format types.RenderingFormat) Config {
	return Config{
		Format:                  format,
		AudioRingCapacityFrames: engine.DefaultAudioRingCapacityFrames,
		ChunkSizeFrames:         engine.DefaultChunkFrames,
		SlotTableSize:           slottable.DefaultSize,
		EventRingCapacityBytes:  engine.DefaultEventRingCapacityBytes,
		DelegateWorkers:         2,
		FramesPerBuffer:         512,
		DeviceIndex:             1,
	}
}

// Player ties an Engine to a running Worker, EventProcessor and
// Collector, and exposes the operations of §4.9.
type Player struct {
	e         *engine.Engine
	worker    *engine.Worker
	eventProc *engine.EventProcessor
	collector *engine.Collector

	framesPerBuffer int
	deviceIndex     int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	mu        sync.Mutex
	startTime time.Time

	metrics struct {
		renderOps    atomic.Uint64
		underruns    atomic.Uint64
		jitterSum    atomic.Uint64 // microseconds
		jitterOps    atomic.Uint64
		maxJitterUs  atomic.Uint64
		lastCallNano atomic.Int64
	}
}

// NewPlayer creates a Player and immediately starts its background
// worker, event processor and collector loops — these run regardless
// of playing state, per §5's scheduling model; only the render path is
// gated on IsPlaying.
func NewPlayer(cfg Config) *Player {
	e := engine.New(engine.Config{
		Format:                  cfg.Format,
		AudioRingCapacityFrames: cfg.AudioRingCapacityFrames,
		ChunkFrames:             cfg.ChunkSizeFrames,
		SlotTableSize:           cfg.SlotTableSize,
		EventRingCapacityBytes:  cfg.EventRingCapacityBytes,
	})

	workers := cfg.DelegateWorkers
	if workers < 1 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Player{
		e:               e,
		worker:          engine.NewWorker(e),
		eventProc:       engine.NewEventProcessor(e, cfg.Delegate, workers),
		collector:       engine.NewCollector(e),
		framesPerBuffer: cfg.FramesPerBuffer,
		deviceIndex:     cfg.DeviceIndex,
		ctx:             ctx,
		cancel:          cancel,
	}

	p.wg.Add(3)
	go func() { defer p.wg.Done(); p.worker.Run(ctx) }()
	go func() { defer p.wg.Done(); p.eventProc.Run(ctx) }()
	go func() { defer p.wg.Done(); p.collector.Run(ctx) }()

	return p
}

// SetDelegate swaps the delegate the event processor dispatches to.
func (p *Player) SetDelegate(delegate types.Delegate) { p.eventProc.SetDelegate(delegate) }

// Format returns the fixed rendering format this player was configured
// for.
func (p *Player) Format() types.RenderingFormat { return p.e.Format() }

// FramesPerBuffer and DeviceIndex report the values a host output sink
// should use to size/select its stream.
func (p *Player) FramesPerBuffer() int { return p.framesPerBuffer }
func (p *Player) DeviceIndex() int     { return p.deviceIndex }

// Close cancels the background loops, waits for the worker, event
// processor and collector goroutines to actually exit, then closes
// every decoder still held by the slot table. Waiting for the worker
// first matters: it may be mid-DecodeChunk on a decoder when Close is
// called, and closing that decoder's file handle out from under it
// would race.
func (p *Player) Close() {
	p.cancel()
	p.wg.Wait()
	p.eventProc.Shutdown()
	closeDropped(p.e.Queue.Clear())
	p.e.Slots.Each(func(st *decoderstate.State) {
		st.SetFlag(decoderstate.FlagMarkedForRemoval)
	})
	for _, st := range p.e.Slots.Reap() {
		st.Decoder().Close()
	}
}

// Play sets IsPlaying, per §4.9.
func (p *Player) Play() {
	p.startOnce.Do(func() {
		p.mu.Lock()
		p.startTime = time.Now()
		p.mu.Unlock()
	})
	p.e.SetPlaying(true)
}

// Pause clears IsPlaying.
func (p *Player) Pause() { p.e.SetPlaying(false) }

// Toggle XORs IsPlaying and returns the new value.
func (p *Player) Toggle() bool { return p.e.TogglePlaying() }

// IsPlaying reports the current playing state.
func (p *Player) IsPlaying() bool { return p.e.IsPlaying() }

// Stop clears IsPlaying, clears the decoder queue, requests
// cancellation of the active decoder, and signals the worker.
func (p *Player) Stop() {
	p.e.SetPlaying(false)
	closeDropped(p.e.Queue.Clear())
	p.CancelCurrent()
	p.e.SignalWorker()
}

// closeDropped closes decoders dropped from the queue — Enqueue opens
// them eagerly, so the queue is the only place that can leak an open
// decoder that a worker never adopted.
func closeDropped(dropped []types.Decoder) {
	for _, d := range dropped {
		d.Close()
	}
}

// openAndValidate opens dec if not already open and checks its
// processing format against the player's rendering format, returning
// promptly so a caller gets synchronous feedback instead of an
// asynchronous error event.
func (p *Player) openAndValidate(dec types.Decoder) error {
	if !dec.IsOpen() {
		if err := dec.Open(); err != nil {
			return fmt.Errorf("%w: %v", types.ErrDecoderOpenFailed, err)
		}
	}
	if !dec.ProcessingFormat().Equal(p.e.Format()) {
		return fmt.Errorf("%w: decoder format %v, rendering format %v",
			types.ErrFormatNotSupported, dec.ProcessingFormat(), p.e.Format())
	}
	return nil
}

// Enqueue opens, validates, and appends dec to the decoder queue, then
// signals the worker.
func (p *Player) Enqueue(dec types.Decoder) error {
	if err := p.openAndValidate(dec); err != nil {
		return err
	}
	p.e.Queue.Push(dec)
	p.e.SignalWorker()
	return nil
}

// ResetAndEnqueue opens and validates dec, clears the decoder queue,
// cancels the currently active decoder, enqueues dec, and signals the
// worker — the gapless-restart path used when a host wants to jump
// straight to a new item.
func (p *Player) ResetAndEnqueue(dec types.Decoder) error {
	if err := p.openAndValidate(dec); err != nil {
		return err
	}
	closeDropped(p.e.Queue.Clear())
	p.CancelCurrent()
	p.e.Queue.Push(dec)
	p.e.SignalWorker()
	return nil
}

// CancelCurrent sets CancelRequested on the smallest-sequence active
// decoder and signals the worker. A no-op if nothing is active.
func (p *Player) CancelCurrent() {
	st := p.e.Slots.ActiveSmallestSequence()
	if st == nil {
		return
	}
	st.SetFlag(decoderstate.FlagCancelRequested)
	p.e.SignalWorker()
}

// ClearQueue drops every decoder still waiting in the decoder queue
// without touching the active decoder.
func (p *Player) ClearQueue() { closeDropped(p.e.Queue.Clear()) }

// activeDecoder returns the smallest-sequence active decoder state, or
// nil if nothing is active.
func (p *Player) activeDecoder() *decoderstate.State {
	return p.e.Slots.ActiveSmallestSequence()
}

// SeekToFrame clamps frame to [0, frame_length-1] and requests the
// worker perform the seek on the active decoder. Rejected if there is
// no active decoder or it does not support seeking.
func (p *Player) SeekToFrame(frame int64) error {
	st := p.activeDecoder()
	if st == nil {
		return types.ErrNoActiveDecoder
	}
	if !st.Decoder().SupportsSeeking() {
		return types.ErrSeekNotSupported
	}

	length := st.FrameLength()
	if frame < 0 {
		frame = 0
	}
	if length >= 0 && frame > length-1 {
		frame = length - 1
	}
	if frame < 0 {
		frame = 0
	}

	st.RequestSeek(frame)
	p.e.SignalWorker()
	return nil
}

// SeekBySeconds converts seconds into a frame offset at the player's
// configured sample rate and seeks to it.
func (p *Player) SeekBySeconds(seconds float64) error {
	frame := int64(seconds * float64(p.e.Format().SampleRate))
	return p.SeekToFrame(frame)
}

// PlaybackPosition returns the active decoder's frame position and
// frame length (-1 if unknown). ok is false if nothing is active.
func (p *Player) PlaybackPosition() (position, length int64, ok bool) {
	st := p.activeDecoder()
	if st == nil {
		return 0, 0, false
	}
	return st.FramePosition(), st.FrameLength(), true
}

// PlaybackTime is PlaybackPosition converted to durations at the
// player's configured sample rate.
func (p *Player) PlaybackTime() (position, length time.Duration, ok bool) {
	framePos, frameLen, active := p.PlaybackPosition()
	if !active {
		return 0, 0, false
	}
	rate := float64(p.e.Format().SampleRate)
	position = time.Duration(float64(framePos) / rate * float64(time.Second))
	if frameLen >= 0 {
		length = time.Duration(float64(frameLen) / rate * float64(time.Second))
	} else {
		length = -1
	}
	return position, length, true
}

// GetBufferStatus reports the audio ring's current occupancy and
// capacity, in frames.
func (p *Player) GetBufferStatus() (readable, capacity uint64) {
	return p.e.AudioRing.FramesReadable(), p.e.AudioRing.Capacity()
}

// GetPlaybackStatus reports a PlaybackStatus snapshot in the shape
// shared with the teacher's other players.
func (p *Player) GetPlaybackStatus() types.PlaybackStatus {
	p.mu.Lock()
	elapsed := time.Duration(0)
	if !p.startTime.IsZero() {
		elapsed = time.Since(p.startTime)
	}
	p.mu.Unlock()

	format := p.e.Format()
	readable, _ := p.GetBufferStatus()

	var played uint64
	if st := p.activeDecoder(); st != nil {
		played = uint64(st.FramesRendered())
	}

	return types.PlaybackStatus{
		SampleRate:      format.SampleRate,
		Channels:        format.Channels,
		FramesPerBuffer: p.framesPerBuffer,
		PlayedSamples:   played,
		BufferedSamples: readable,
		ElapsedTime:     elapsed,
	}
}

// RenderCallback returns the realtime render callback a host output
// sink drives, instrumented with render-op counts, underrun counts and
// timing jitter — all lock-free atomics, preserving §4.6's no-block/
// no-allocate/no-syscall contract.
func (p *Player) RenderCallback() types.RenderFunc {
	inner := p.e.Render()
	return func(silenceOut *bool, ts types.HostTimestamp, frameCount int, output [][]float32) types.RenderStatus {
		now := time.Now()
		p.metrics.renderOps.Add(1)

		if last := p.metrics.lastCallNano.Swap(now.UnixNano()); last != 0 {
			interval := now.Sub(time.Unix(0, last))
			p.updateJitter(interval)
		}

		status := inner(silenceOut, ts, frameCount, output)
		if *silenceOut {
			p.metrics.underruns.Add(1)
		}
		return status
	}
}

func (p *Player) updateJitter(interval time.Duration) {
	us := interval.Microseconds()
	if us < 0 {
		us = -us
	}
	p.metrics.jitterOps.Add(1)
	p.metrics.jitterSum.Add(uint64(us))
	for {
		old := p.metrics.maxJitterUs.Load()
		if uint64(us) <= old {
			break
		}
		if p.metrics.maxJitterUs.CompareAndSwap(old, uint64(us)) {
			break
		}
	}
}

// RenderMetrics holds the render-path instrumentation RenderCallback
// accumulates.
type RenderMetrics struct {
	RenderOps uint64
	Underruns uint64
	AvgJitter time.Duration
	MaxJitter time.Duration
}

// Metrics snapshots the render-path instrumentation.
func (p *Player) Metrics() RenderMetrics {
	ops := p.metrics.jitterOps.Load()
	var avg time.Duration
	if ops > 0 {
		avg = time.Duration(p.metrics.jitterSum.Load()/ops) * time.Microsecond
	}
	return RenderMetrics{
		RenderOps: p.metrics.renderOps.Load(),
		Underruns: p.metrics.underruns.Load(),
		AvgJitter: avg,
		MaxJitter: time.Duration(p.metrics.maxJitterUs.Load()) * time.Microsecond,
	}
}
