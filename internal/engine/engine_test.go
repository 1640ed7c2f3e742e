package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/drgolem/gaplessplayer/pkg/decoderstate"
	"github.com/drgolem/gaplessplayer/pkg/types"
)

type recordingDelegate struct {
	types.NoopDelegate
	mu     sync.Mutex
	events []string
}

func (d *recordingDelegate) record(s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, s)
}

func (d *recordingDelegate) DecodingStarted(seq uint64)  { d.record(fmt.Sprintf("DecodingStarted(%d)", seq)) }
func (d *recordingDelegate) DecodingComplete(seq uint64) { d.record(fmt.Sprintf("DecodingComplete(%d)", seq)) }
func (d *recordingDelegate) DecodingCanceled(seq uint64, partial bool) {
	d.record(fmt.Sprintf("DecodingCanceled(%d,partial=%v)", seq, partial))
}
func (d *recordingDelegate) RenderingWillStart(seq uint64, hostTime uint64) {
	d.record(fmt.Sprintf("RenderingWillStart(%d)", seq))
}
func (d *recordingDelegate) RenderingWillComplete(seq uint64, hostTime uint64) {
	d.record(fmt.Sprintf("RenderingWillComplete(%d)", seq))
}
func (d *recordingDelegate) AudioWillEnd(hostTime uint64) { d.record("AudioWillEnd") }
func (d *recordingDelegate) EncounteredError(err error)   { d.record(fmt.Sprintf("EncounteredError(%v)", err)) }

func (d *recordingDelegate) snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.events))
	copy(out, d.events)
	return out
}

// indexOf returns the index of the first event with the given prefix,
// or -1.
func indexOf(events []string, prefix string) int {
	for i, e := range events {
		if strings.HasPrefix(e, prefix) {
			return i
		}
	}
	return -1
}

// harness drives a real Worker/EventProcessor/Collector against an
// Engine, plus a background goroutine that continuously invokes the
// render callback the way a realtime audio thread would — tests never
// call the render function directly, matching how no caller in
// production ever "steps" playback by hand.
type harness struct {
	engine   *Engine
	delegate *recordingDelegate

	mu      sync.Mutex
	samples []float32 // channel 0 output, concatenated in render order
}

const testBurstFrames = 256

func newHarness(t *testing.T, format types.RenderingFormat, chunk int, ringCap uint64) *harness {
	t.Helper()
	e := New(Config{Format: format, ChunkFrames: chunk, AudioRingCapacityFrames: ringCap})
	delegate := &recordingDelegate{}

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(e)
	ep := NewEventProcessor(e, delegate, 2)
	col := NewCollector(e)

	go w.Run(ctx)
	go ep.Run(ctx)
	go col.Run(ctx)

	h := &harness{engine: e, delegate: delegate}

	renderFn := e.Render()
	go func() {
		output := make([][]float32, format.Channels)
		for c := range output {
			output[c] = make([]float32, testBurstFrames)
		}
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		var ticks uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var silence bool
				ts := types.HostTimestamp{HostTimeTicks: ticks}
				renderFn(&silence, ts, testBurstFrames, output)
				ticks += uint64(testBurstFrames)

				h.mu.Lock()
				h.samples = append(h.samples, append([]float32(nil), output[0]...)...)
				h.mu.Unlock()
			}
		}
	}()

	t.Cleanup(func() {
		cancel()
		ep.Shutdown()
	})

	e.SetPlaying(true)
	return h
}

func (h *harness) samplesSnapshot() []float32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]float32, len(h.samples))
	copy(out, h.samples)
	return out
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func TestS1SingleDecoderNoGap(t *testing.T) {
	format := types.RenderingFormat{SampleRate: 44100, Channels: 1}
	h := newHarness(t, format, 2048, 16384)

	dec := newFakeDecoder(format, 44100)
	h.engine.Queue.Push(dec)
	h.engine.SignalWorker()

	ok := waitUntil(t, 5*time.Second, func() bool {
		return indexOf(h.delegate.snapshot(), "AudioWillEnd") >= 0
	})
	if !ok {
		t.Fatalf("AudioWillEnd never observed; events=%v", h.delegate.snapshot())
	}

	events := h.delegate.snapshot()
	order := []string{"DecodingStarted(0)", "DecodingComplete(0)", "RenderingWillStart(0)", "RenderingWillComplete(0)", "AudioWillEnd"}
	prev := -1
	for _, label := range order {
		idx := indexOf(events, label)
		if idx < 0 {
			t.Fatalf("missing expected event %q in %v", label, events)
		}
		if idx <= prev {
			t.Fatalf("event %q out of order in %v", label, events)
		}
		prev = idx
	}

	// Each event must have been emitted exactly once.
	for _, label := range order {
		count := 0
		for _, e := range events {
			if e == label || strings.HasPrefix(e, label) {
				count++
			}
		}
		if count != 1 {
			t.Errorf("expected exactly one %q, got %d in %v", label, count, events)
		}
	}
}

func TestS2GaplessJoin(t *testing.T) {
	format := types.RenderingFormat{SampleRate: 44100, Channels: 1}
	h := newHarness(t, format, 1024, 16384)

	decA := newFakeDecoder(format, 10000)
	decB := newFakeDecoder(format, 5000)
	h.engine.Queue.Push(decA)
	h.engine.Queue.Push(decB)
	h.engine.SignalWorker()

	ok := waitUntil(t, 5*time.Second, func() bool {
		return indexOf(h.delegate.snapshot(), "RenderingWillComplete(1)") >= 0
	})
	if !ok {
		t.Fatalf("RenderingWillComplete(1) never observed; events=%v", h.delegate.snapshot())
	}

	events := h.delegate.snapshot()
	completeA := indexOf(events, "RenderingWillComplete(0)")
	startB := indexOf(events, "RenderingWillStart(1)")
	if completeA < 0 || startB < 0 {
		t.Fatalf("expected both transition events, got %v", events)
	}
	if completeA > startB {
		t.Errorf("RenderingComplete(0) must precede RenderingStarted(1); got %v", events)
	}

	samples := h.samplesSnapshot()
	if len(samples) < 15000 {
		t.Fatalf("expected at least 15000 rendered samples, got %d", len(samples))
	}
	zeroRun := 0
	for _, s := range samples[:15000] {
		if s == 0 {
			zeroRun++
		}
	}
	if zeroRun > 2 {
		t.Errorf("unexpected silence within joined playback: %d zero samples", zeroRun)
	}
}

func TestS3ResetAndEnqueueMidPlayback(t *testing.T) {
	format := types.RenderingFormat{SampleRate: 44100, Channels: 1}
	h := newHarness(t, format, 1024, 16384)

	decA := newFakeDecoder(format, 100000)
	h.engine.Queue.Push(decA)
	h.engine.SignalWorker()

	waitUntil(t, time.Second, func() bool {
		st := h.engine.Slots.Find(0)
		return st != nil && st.HasFlag(decoderstate.FlagRenderingStarted)
	})

	// Simulate the façade's reset_and_enqueue(B): cancel A, clear the
	// queue, enqueue B.
	stA := h.engine.Slots.Find(0)
	stA.SetFlag(decoderstate.FlagCancelRequested)
	h.engine.Queue.Clear()
	decB := newFakeDecoder(format, 20000)
	h.engine.Queue.Push(decB)
	h.engine.SignalWorker()

	ok := waitUntil(t, 5*time.Second, func() bool {
		return indexOf(h.delegate.snapshot(), "DecodingCanceled(0") >= 0
	})
	if !ok {
		t.Fatalf("DecodingCanceled(0,...) never observed; events=%v", h.delegate.snapshot())
	}

	events := h.delegate.snapshot()
	if indexOf(events, "DecodingCanceled(0,partial=true)") < 0 {
		t.Fatalf("expected DecodingCanceled(0,partial=true), got %v", events)
	}
}

func TestS4SeekAccurateDecoder(t *testing.T) {
	format := types.RenderingFormat{SampleRate: 44100, Channels: 1}
	h := newHarness(t, format, 1024, 16384)

	dec := newFakeDecoder(format, 100000)
	h.engine.Queue.Push(dec)
	h.engine.SignalWorker()

	waitUntil(t, time.Second, func() bool {
		st := h.engine.Slots.Find(0)
		return st != nil && st.FramesRendered() > 1000
	})

	st := h.engine.Slots.Find(0)
	st.RequestSeek(50000)
	h.engine.SignalWorker()

	ok := waitUntil(t, 5*time.Second, func() bool { return !st.HasPendingSeek() })
	if !ok {
		t.Fatal("seek never completed")
	}

	// Give the worker a moment to resume decoding post-seek and the
	// render loop a moment to attribute a post-seek frame.
	time.Sleep(20 * time.Millisecond)

	if st.FramesAvailable() < 50000 {
		t.Errorf("expected frames_available to have resumed from 50000, got %d", st.FramesAvailable())
	}
}

func TestS5FormatMismatch(t *testing.T) {
	renderFormat := types.RenderingFormat{SampleRate: 44100, Channels: 2}
	h := newHarness(t, renderFormat, 1024, 16384)

	mismatched := newFakeDecoder(types.RenderingFormat{SampleRate: 44100, Channels: 1}, 1000)
	h.engine.Queue.Push(mismatched)
	h.engine.SignalWorker()

	ok := waitUntil(t, 5*time.Second, func() bool {
		return indexOf(h.delegate.snapshot(), "EncounteredError") >= 0
	})
	if !ok {
		t.Fatalf("expected EncounteredError, got %v", h.delegate.snapshot())
	}

	if h.engine.Slots.Find(0) != nil {
		t.Error("no DecoderState should have been created for a format mismatch")
	}
	events := h.delegate.snapshot()
	for _, e := range events {
		if strings.HasPrefix(e, "DecodingStarted") {
			t.Errorf("no decoding events expected for a rejected decoder: %v", events)
		}
	}
}

func TestS6SlotExhaustion(t *testing.T) {
	format := types.RenderingFormat{SampleRate: 44100, Channels: 1}
	h := newHarness(t, format, 256, 4096)
	h.engine.SetPlaying(false) // render thread never consumes audio

	for i := 0; i < 9; i++ {
		h.engine.Queue.Push(newFakeDecoder(format, 64))
		h.engine.SignalWorker()
	}

	waitUntil(t, 2*time.Second, func() bool {
		return h.engine.Slots.Count() == h.engine.Slots.Size()
	})
	if got := h.engine.Slots.Count(); got != h.engine.Slots.Size() {
		t.Fatalf("expected all %d slots occupied, got %d", h.engine.Slots.Size(), got)
	}

	// Free one slot so the 9th can be adopted.
	var freed *decoderstate.State
	h.engine.Slots.Each(func(st *decoderstate.State) {
		if freed == nil {
			freed = st
		}
	})
	freed.SetFlag(decoderstate.FlagMarkedForRemoval)
	h.engine.SignalCollector()

	ok := waitUntil(t, 2*time.Second, func() bool {
		count := 0
		for _, e := range h.delegate.snapshot() {
			if strings.HasPrefix(e, "DecodingStarted") {
				count++
			}
		}
		return count >= 9
	})
	if !ok {
		count := 0
		for _, e := range h.delegate.snapshot() {
			if strings.HasPrefix(e, "DecodingStarted") {
				count++
			}
		}
		t.Errorf("expected all 9 decoders to eventually emit DecodingStarted, got %d in %v", count, h.delegate.snapshot())
	}
}
