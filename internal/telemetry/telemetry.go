package telemetry

import (
	"sync/atomic"
	"time"
)

// Counters track relay traffic and tick health. Everything is atomic so
// the stats endpoint can read while the tick loop writes.
type Counters struct {
	messagesIn        atomic.Uint64
	messagesOut       atomic.Uint64
	bytesOut          atomic.Uint64
	broadcasts        atomic.Uint64
	rejectedIntents   atomic.Uint64
	ticks             atomic.Uint64
	skippedTicks      atomic.Uint64
	tickDurationMs    atomic.Int64
	disconnectsForced atomic.Uint64
}

// Snapshot is the JSON shape served by /api/stats.
type Snapshot struct {
	MessagesIn        uint64 `json:"messagesIn"`
	MessagesOut       uint64 `json:"messagesOut"`
	BytesOut          uint64 `json:"bytesOut"`
	Broadcasts        uint64 `json:"broadcasts"`
	RejectedIntents   uint64 `json:"rejectedIntents"`
	Ticks             uint64 `json:"ticks"`
	SkippedTicks      uint64 `json:"skippedTicks"`
	TickDurationMs    int64  `json:"tickDurationMillis"`
	DisconnectsForced uint64 `json:"disconnectsForced"`
}

// New returns zeroed counters.
func New() *Counters {
	return &Counters{}
}

// RecordMessageIn counts one client message received.
func (c *Counters) RecordMessageIn() {
	c.messagesIn.Add(1)
}

// RecordBroadcast counts one fan-out of size bytes to n connections.
func (c *Counters) RecordBroadcast(bytes, conns int) {
	if bytes < 0 {
		bytes = 0
	}
	if conns < 0 {
		conns = 0
	}
	c.broadcasts.Add(1)
	c.messagesOut.Add(uint64(conns))
	c.bytesOut.Add(uint64(bytes) * uint64(conns))
}

// RecordRejectedIntent counts one validation rejection.
func (c *Counters) RecordRejectedIntent() {
	c.rejectedIntents.Add(1)
}

// RecordForcedDisconnect counts one anti-cheat disconnect.
func (c *Counters) RecordForcedDisconnect() {
	c.disconnectsForced.Add(1)
}

// RecordTick stores the latest tick duration and counts a skip whenever
// processing overran the tick interval.
func (c *Counters) RecordTick(duration, interval time.Duration) {
	millis := duration.Milliseconds()
	if millis < 0 {
		millis = 0
	}
	c.ticks.Add(1)
	c.tickDurationMs.Store(millis)
	if interval > 0 && duration > interval {
		c.skippedTicks.Add(1)
	}
}

// Read copies the counters.
func (c *Counters) Read() Snapshot {
	return Snapshot{
		MessagesIn:        c.messagesIn.Load(),
		MessagesOut:       c.messagesOut.Load(),
		BytesOut:          c.bytesOut.Load(),
		Broadcasts:        c.broadcasts.Load(),
		RejectedIntents:   c.rejectedIntents.Load(),
		Ticks:             c.ticks.Load(),
		SkippedTicks:      c.skippedTicks.Load(),
		TickDurationMs:    c.tickDurationMs.Load(),
		DisconnectsForced: c.disconnectsForced.Load(),
	}
}
