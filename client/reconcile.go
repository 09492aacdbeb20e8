package client

import (
	json "github.com/goccy/go-json"

	"emberfall/server/internal/protocol"
)

// applyInit resets the shadow world from a game:init snapshot. Init is
// structural: displayed positions snap, they do not interpolate.
func (c *Client) applyInit(init protocol.GameInit) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.selfID = init.PlayerID
	c.reconnectToken = init.ReconnectToken
	c.self = init.Player

	c.players = make(map[string]*RemotePlayer, len(init.Players))
	for _, p := range init.Players {
		c.players[p.ID] = newRemotePlayer(p)
	}
	c.enemies = make(map[string]*RemoteEnemy, len(init.Enemies))
	for _, e := range init.Enemies {
		c.enemies[e.ID] = newRemoteEnemy(e)
	}
	c.chat = append(c.chat[:0], init.ChatMessages...)
}

// apply routes one server message into the shadow state. Bulk updates feed
// interpolation targets; point events apply structurally and immediately.
func (c *Client) apply(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeWorldUpdate:
		var update protocol.WorldUpdate
		if json.Unmarshal(env.Data, &update) == nil {
			c.applyWorldUpdate(update)
		}
	case protocol.TypePlayerJoined:
		var msg protocol.PlayerJoined
		if json.Unmarshal(env.Data, &msg) == nil {
			c.addPlayer(msg.Player)
		}
	case protocol.TypePlayerReconnected:
		var msg protocol.PlayerReconnected
		if json.Unmarshal(env.Data, &msg) == nil {
			c.addPlayer(msg.Player)
		}
	case protocol.TypePlayerLeft:
		var msg protocol.PlayerLeft
		if json.Unmarshal(env.Data, &msg) == nil {
			c.mu.Lock()
			delete(c.players, msg.PlayerID)
			c.mu.Unlock()
		}
	case protocol.TypePlayerMoved:
		var msg protocol.PlayerMoved
		if json.Unmarshal(env.Data, &msg) == nil {
			c.mu.Lock()
			if p, ok := c.players[msg.PlayerID]; ok {
				p.targetPos = msg.Position
				p.targetRot = msg.Rotation
			}
			c.mu.Unlock()
		}
	case protocol.TypePlayerDamaged:
		var msg protocol.PlayerDamaged
		if json.Unmarshal(env.Data, &msg) == nil {
			c.applyPlayerDamage(msg)
		}
	case protocol.TypePlayerRespawned:
		var msg protocol.PlayerRespawned
		if json.Unmarshal(env.Data, &msg) == nil {
			c.applyPlayerRespawn(msg.Player)
		}
	case protocol.TypeEnemyDamaged:
		var msg protocol.EnemyDamaged
		if json.Unmarshal(env.Data, &msg) == nil {
			c.mu.Lock()
			if e, ok := c.enemies[msg.EnemyID]; ok {
				e.Health -= msg.Damage
				if e.Health < 0 {
					e.Health = 0
				}
				if msg.Killed {
					e.Alive = false
				}
			}
			c.mu.Unlock()
		}
	case protocol.TypeEnemyRespawned:
		var msg protocol.EnemyRespawned
		if json.Unmarshal(env.Data, &msg) == nil {
			c.mu.Lock()
			c.enemies[msg.Enemy.ID] = newRemoteEnemy(msg.Enemy)
			c.mu.Unlock()
		}
	case protocol.TypeChatMessage:
		var msg protocol.ChatMessage
		if json.Unmarshal(env.Data, &msg) == nil {
			c.mu.Lock()
			c.chat = append(c.chat, protocol.ChatEntry{
				PlayerID: msg.PlayerID,
				Username: msg.Username,
				Message:  msg.Message,
			})
			c.mu.Unlock()
		}
	case protocol.TypePlayerUsedAbility:
		// Visual-effect trigger only; nothing to reconcile.
	case protocol.TypeServerShutdown:
		var msg protocol.ServerShutdown
		reason := "server shutdown"
		if json.Unmarshal(env.Data, &msg) == nil && msg.Message != "" {
			reason = msg.Message
		}
		c.setState(StateClosed, reason)
	default:
		c.log.Debug().Str("msgType", env.Type).Msg("ignoring unknown server message")
	}
}

// applyWorldUpdate stores the latest authoritative positions as
// interpolation targets. The local player is skipped: it is predicted
// locally and only its health is taken from the server.
func (c *Client) applyWorldUpdate(update protocol.WorldUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]struct{}, len(update.Players))
	for _, p := range update.Players {
		if p.ID == c.selfID {
			c.self.Health = p.Health
			c.self.MaxHealth = p.MaxHealth
			continue
		}
		seen[p.ID] = struct{}{}
		shadow, ok := c.players[p.ID]
		if !ok {
			// A player we missed the join event for; appear in place.
			c.players[p.ID] = newRemotePlayer(p)
			continue
		}
		shadow.Player = p
		shadow.targetPos = p.Position
		shadow.targetRot = p.Rotation
	}
	// Players absent from the snapshot are gone; the point event may have
	// been lost with a dropped connection, so the tick is the backstop.
	for id := range c.players {
		if _, ok := seen[id]; !ok {
			delete(c.players, id)
		}
	}

	for _, e := range update.Enemies {
		shadow, ok := c.enemies[e.ID]
		if !ok {
			c.enemies[e.ID] = newRemoteEnemy(e)
			continue
		}
		shadow.Enemy = e
		shadow.targetPos = e.Position
	}
}

func (c *Client) addPlayer(p protocol.Player) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.ID == c.selfID {
		return
	}
	c.players[p.ID] = newRemotePlayer(p)
}

func (c *Client) applyPlayerDamage(msg protocol.PlayerDamaged) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.PlayerID == c.selfID {
		c.self.Health -= msg.Damage
		if c.self.Health < 0 {
			c.self.Health = 0
		}
		return
	}
	if p, ok := c.players[msg.PlayerID]; ok {
		p.Health -= msg.Damage
		if p.Health < 0 {
			p.Health = 0
		}
	}
}

func (c *Client) applyPlayerRespawn(player protocol.Player) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if player.ID == c.selfID {
		c.self = player
		return
	}
	// Respawn teleports; snap rather than interpolate across the map.
	c.players[player.ID] = newRemotePlayer(player)
}

// Step advances every shadow entity toward its network target by the blend
// factor. Call it once per render frame; the fraction-of-remaining-distance
// blend hides tick granularity without ever overshooting.
func (c *Client) Step() {
	c.mu.Lock()
	defer c.mu.Unlock()
	alpha := c.opts.BlendFactor
	for _, p := range c.players {
		p.Display = lerpVec(p.Display, p.targetPos, alpha)
		p.Rotation = p.Rotation + (p.targetRot-p.Rotation)*alpha
	}
	for _, e := range c.enemies {
		e.Display = lerpVec(e.Display, e.targetPos, alpha)
	}
}

func newRemotePlayer(p protocol.Player) *RemotePlayer {
	return &RemotePlayer{Player: p, Display: p.Position, targetPos: p.Position, targetRot: p.Rotation}
}

func newRemoteEnemy(e protocol.Enemy) *RemoteEnemy {
	return &RemoteEnemy{Enemy: e, Display: e.Position, targetPos: e.Position}
}

func lerpVec(from, to protocol.Vec3, alpha float64) protocol.Vec3 {
	return protocol.Vec3{
		X: from.X + (to.X-from.X)*alpha,
		Y: from.Y + (to.Y-from.Y)*alpha,
		Z: from.Z + (to.Z-from.Z)*alpha,
	}
}
