package engine

import (
	"context"
	"log/slog"
	"time"
)

// collectorTick is the fallback scan interval; most reaping happens
// promptly via Wake, this just bounds how stale a forgotten signal can
// get. Modelled on the teacher's time.NewTicker-driven
// monitorPlayback/monitorBufferStatus loops.
const collectorTick = 100 * time.Millisecond

// Collector scans the slot table on demand (or on its fallback tick)
// and reaps states flagged MarkedForRemoval, closing each one's decoder
// and freeing its slot, per §4.8. While the player runs this is the only
// reaper; Player.Close reaps whatever remains after shutdown.
type Collector struct {
	e *Engine
}

// NewCollector creates a collector bound to e.
func NewCollector(e *Engine) *Collector {
	return &Collector{e: e}
}

// Wake signals the collector to scan promptly; safe to call from any
// goroutine, non-blocking.
func (c *Collector) Wake() { c.e.SignalCollector() }

// Run drives the collector until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(collectorTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.e.collectorWake:
			c.reap()
		case <-ticker.C:
			c.reap()
		}
	}
}

func (c *Collector) reap() {
	for _, st := range c.e.Slots.Reap() {
		if err := st.Decoder().Close(); err != nil {
			slog.Warn("error closing reaped decoder", "sequence", st.Sequence(), "error", err)
		}
	}
}
