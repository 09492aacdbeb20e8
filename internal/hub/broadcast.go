package hub

import (
	"context"
	"time"

	"emberfall/server/internal/protocol"
)

// Run drives the fixed-rate tick loop until the context is canceled. Each
// tick sweeps respawn timers, snapshots the world, and broadcasts one
// world:update. Snapshots are eventually consistent: a tick that overruns
// its interval simply yields to the next ticker fire: stale ticks are
// dropped, never queued, so the loop cannot fall progressively behind.
func (h *Hub) Run(ctx context.Context) {
	interval := time.Second / time.Duration(h.cfg.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			start := time.Now()
			h.step(now)
			h.tel.RecordTick(time.Since(start), interval)
		}
	}
}

// step runs a single tick.
func (h *Hub) step(now time.Time) {
	h.mu.Lock()
	respawned := h.world.Advance(now)
	players, enemies := h.world.Snapshot()
	h.tick++
	tick := h.tick
	h.mu.Unlock()

	for _, enemy := range respawned {
		h.broadcast(protocol.TypeEnemyRespawned, protocol.EnemyRespawned{Enemy: enemy}, "")
	}

	h.broadcast(protocol.TypeWorldUpdate, protocol.WorldUpdate{
		Tick:       tick,
		ServerTime: now.UnixMilli(),
		Players:    players,
		Enemies:    enemies,
	}, "")
}

// broadcast marshals once and fans the frame out to every live connection,
// optionally excluding one player. A failed write only closes that
// subscriber's transport; its read pump then runs the normal disconnect
// path, so broadcast never mutates the registry itself.
func (h *Hub) broadcast(msgType string, payload any, excludePlayerID string) {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		h.log.Error().Str("msgType", msgType).Err(err).Msg("failed to marshal broadcast")
		return
	}

	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for id, sub := range h.subscribers {
		if id == excludePlayerID {
			continue
		}
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		if err := sub.write(data, h.cfg.WriteWait); err != nil {
			h.log.Debug().Str("player", sub.playerID).Err(err).Msg("broadcast write failed")
			sub.close()
		}
	}
	h.tel.RecordBroadcast(len(data), len(subs))
}
