package engine

import (
	"time"

	"github.com/drgolem/gaplessplayer/pkg/decoderstate"
	"github.com/drgolem/gaplessplayer/pkg/types"
)

// secondsToHostTicks converts a frame-offset-derived duration into
// host-time ticks. There is no portable Go host-time clock exposed by
// the output sinks this engine targets, so ticks are nanoseconds of
// the same monotonic clock HostTimestamp.HostTimeTicks is stamped
// from — consistent within a single engine instance, which is all §5
// requires (host times are only ever compared to each other).
func secondsToHostTicks(seconds float64) uint64 {
	if seconds <= 0 {
		return 0
	}
	return uint64(seconds * float64(time.Second))
}

func zeroPlanes(planes [][]float32, from, count int) {
	for c := range planes {
		p := planes[c]
		end := from + count
		if end > len(p) {
			end = len(p)
		}
		for i := from; i < end; i++ {
			p[i] = 0
		}
	}
}

// Render returns the realtime render callback bound to e: non-
// blocking, no allocation, no unbounded work, per §4.6. Grounded on
// internal/fileplayer.FilePlayer.audioCallback (the teacher's only
// realtime-constrained callback: reads from the ring, falls back to
// silence, tracks played samples) generalized to multi-decoder
// attribution and lifecycle events.
func (e *Engine) Render() types.RenderFunc {
	return func(silenceOut *bool, ts types.HostTimestamp, frameCount int, output [][]float32) types.RenderStatus {
		if e.muteRequested.Load() {
			e.AcknowledgeMute()
		}

		readable := e.AudioRing.FramesReadable()

		if !e.IsPlaying() || e.outputMuted.Load() || readable == 0 {
			zeroPlanes(output, 0, frameCount)
			*silenceOut = true
			return types.RenderOK
		}

		toRead := int(readable)
		if toRead > frameCount {
			toRead = frameCount
		}

		read := e.AudioRing.Read(output, toRead)
		if read < frameCount {
			zeroPlanes(output, read, frameCount-read)
		}
		if read == 0 {
			*silenceOut = true
		}

		if e.AudioRing.FramesWritable() >= uint64(e.ChunkFrames()) {
			e.SignalWorker()
		}

		if read == 0 {
			return types.RenderOK
		}

		sampleRate := float64(e.format.SampleRate)
		remaining := read
		frameOffset := 0

		st := e.Slots.ActiveSmallestSequence()
		if st != nil {
			// Audio is flowing again; a future exhaustion should be able
			// to emit EndOfAudio once more.
			e.audioEnded.Store(false)
		}
		for st != nil && remaining > 0 {
			available := st.FramesAvailable()
			rendered := st.FramesRendered()
			take := available - rendered
			if take > int64(remaining) {
				take = int64(remaining)
			}
			if take < 0 {
				take = 0
			}

			if st.SetFlag(decoderstate.FlagRenderingStarted) {
				hostTime := ts.HostTimeTicks + secondsToHostTicks(float64(frameOffset)/sampleRate)
				e.EventRing.WriteRenderingStarted(st.Sequence(), hostTime)
				e.SignalEventProcessor()
			}

			st.RecordRendered(int(take))
			remaining -= int(take)
			frameOffset += int(take)

			if st.HasFlag(decoderstate.FlagDecodingComplete) && st.FramesRendered() == st.FramesAvailable() {
				if st.SetFlag(decoderstate.FlagRenderingComplete) {
					hostTime := ts.HostTimeTicks + secondsToHostTicks(float64(frameOffset)/sampleRate)
					e.EventRing.WriteRenderingComplete(st.Sequence(), hostTime)
					e.SignalEventProcessor()
					// The render callback is the only observer of this
					// transition, so it is also the one that retires the
					// slot; the collector does the actual reaping off the
					// realtime path.
					st.SetFlag(decoderstate.FlagMarkedForRemoval)
					e.SignalCollector()
				}
			}

			if remaining == 0 {
				break
			}
			st = e.Slots.ActiveFollowing(st.Sequence())
		}

		if e.Slots.ActiveSmallestSequence() == nil && e.audioEnded.CompareAndSwap(false, true) {
			hostTime := ts.HostTimeTicks + secondsToHostTicks(float64(read)/sampleRate)
			e.EventRing.WriteEndOfAudio(hostTime)
			e.SignalEventProcessor()
		}

		return types.RenderOK
	}
}
