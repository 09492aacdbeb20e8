package world

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"emberfall/server/internal/protocol"
)

const healthEpsilon = 1e-6

var (
	// ErrUnknownPlayer is returned when a mutation names a player id that
	// is not in the store.
	ErrUnknownPlayer = errors.New("world: unknown player")
	// ErrUnknownEnemy is returned when a mutation names an enemy id that
	// is not in the store.
	ErrUnknownEnemy = errors.New("world: unknown enemy")
	// ErrNotDead guards respawn: a living player cannot respawn-heal.
	ErrNotDead = errors.New("world: player is not dead")
)

// Config captures the store's tunables.
type Config struct {
	ChatHistoryCap    int
	PlayerMaxHealth   float64
	SpawnPoint        protocol.Vec3
	EnemyRespawnDelay time.Duration
}

// DefaultConfig mirrors the reference session settings.
func DefaultConfig() Config {
	return Config{
		ChatHistoryCap:    50,
		PlayerMaxHealth:   100,
		EnemyRespawnDelay: 10 * time.Second,
	}
}

// Normalized returns a config with zero values replaced by defaults.
func (cfg Config) Normalized() Config {
	def := DefaultConfig()
	if cfg.ChatHistoryCap <= 0 {
		cfg.ChatHistoryCap = def.ChatHistoryCap
	}
	if cfg.PlayerMaxHealth <= 0 {
		cfg.PlayerMaxHealth = def.PlayerMaxHealth
	}
	if cfg.EnemyRespawnDelay <= 0 {
		cfg.EnemyRespawnDelay = def.EnemyRespawnDelay
	}
	return cfg
}

type playerState struct {
	protocol.Player
}

type enemyState struct {
	protocol.Enemy
	spawnPosition protocol.Vec3
	spawnHealth   float64
	respawnAt     time.Time
}

// World is the authoritative in-memory state: every player, every
// server-controlled enemy, and the bounded chat history. It performs no
// network I/O and is not goroutine-safe; the hub serializes all access, so
// the store itself never needs a lock. Construct one per server instance;
// there is no package-level singleton.
type World struct {
	cfg     Config
	log     zerolog.Logger
	players map[string]*playerState
	enemies map[string]*enemyState
	chat    []protocol.ChatEntry
}

// New returns an empty world.
func New(cfg Config, log zerolog.Logger) *World {
	return &World{
		cfg:     cfg.Normalized(),
		log:     log.With().Str("component", "world").Logger(),
		players: make(map[string]*playerState),
		enemies: make(map[string]*enemyState),
	}
}

// Config returns the store's normalized configuration.
func (w *World) Config() Config { return w.cfg }

// UpsertPlayer inserts or replaces a player record.
func (w *World) UpsertPlayer(p protocol.Player) {
	if p.MaxHealth <= 0 {
		p.MaxHealth = w.cfg.PlayerMaxHealth
	}
	if p.Health <= 0 || p.Health > p.MaxHealth {
		p.Health = p.MaxHealth
	}
	if p.Level < 1 {
		p.Level = 1
	}
	w.players[p.ID] = &playerState{Player: p}
}

// RemovePlayer deletes a player; removing an absent id is a no-op.
func (w *World) RemovePlayer(id string) {
	delete(w.players, id)
}

// Player looks up a player's public view.
func (w *World) Player(id string) (protocol.Player, bool) {
	state, ok := w.players[id]
	if !ok {
		return protocol.Player{}, false
	}
	return state.Player, true
}

// HasTarget reports whether the id names a store entry of the given target
// type. Attack validation routes through this.
func (w *World) HasTarget(id, targetType string) bool {
	switch targetType {
	case protocol.TargetPlayer:
		_, ok := w.players[id]
		return ok
	case protocol.TargetEnemy:
		_, ok := w.enemies[id]
		return ok
	default:
		return false
	}
}

// SetPlayerPosition stores a validated position and rotation. All player
// position writes flow through here so only ingest-accepted values are
// ever broadcast.
func (w *World) SetPlayerPosition(id string, pos protocol.Vec3, rotation float64) error {
	state, ok := w.players[id]
	if !ok {
		w.log.Debug().Str("player", id).Msg("dropping position for unknown player")
		return ErrUnknownPlayer
	}
	state.Position = pos
	state.Rotation = rotation
	return nil
}

// DamagePlayer applies damage clamped to remaining health and reports the
// applied amount. A player already at zero absorbs nothing further.
func (w *World) DamagePlayer(id string, amount float64) (applied float64, killed bool, err error) {
	state, ok := w.players[id]
	if !ok {
		w.log.Debug().Str("player", id).Msg("dropping damage for unknown player")
		return 0, false, ErrUnknownPlayer
	}
	if amount <= 0 || state.Health <= 0 {
		return 0, false, nil
	}
	applied = math.Min(amount, state.Health)
	state.Health -= applied
	if state.Health < healthEpsilon {
		state.Health = 0
		killed = true
	}
	return applied, killed, nil
}

// RespawnPlayer restores a dead player to full health at the spawn point.
func (w *World) RespawnPlayer(id string) (protocol.Player, error) {
	state, ok := w.players[id]
	if !ok {
		return protocol.Player{}, ErrUnknownPlayer
	}
	if state.Health > 0 {
		return protocol.Player{}, ErrNotDead
	}
	state.Health = state.MaxHealth
	state.Position = w.cfg.SpawnPoint
	return state.Player, nil
}

// UpsertEnemy inserts or replaces a server-controlled enemy. The position
// and health at insertion become the respawn template.
func (w *World) UpsertEnemy(e protocol.Enemy) {
	if e.MaxHealth <= 0 {
		e.MaxHealth = e.Health
	}
	if e.Health > 0 {
		e.Alive = true
	}
	w.enemies[e.ID] = &enemyState{
		Enemy:         e,
		spawnPosition: e.Position,
		spawnHealth:   e.MaxHealth,
	}
}

// Enemy looks up an enemy's public view.
func (w *World) Enemy(id string) (protocol.Enemy, bool) {
	state, ok := w.enemies[id]
	if !ok {
		return protocol.Enemy{}, false
	}
	return state.Enemy, true
}

// DamageEnemy applies damage clamped to remaining health. Health never goes
// negative and Alive flips to false exactly once; further damage to a dead
// enemy is a no-op reporting applied=0, which keeps simultaneous kill
// claims from two players safe in either processing order.
func (w *World) DamageEnemy(id string, amount float64, now time.Time) (applied float64, killed bool, err error) {
	state, ok := w.enemies[id]
	if !ok {
		w.log.Debug().Str("enemy", id).Msg("dropping damage for unknown enemy")
		return 0, false, ErrUnknownEnemy
	}
	if amount <= 0 || !state.Alive {
		return 0, false, nil
	}
	applied = math.Min(amount, state.Health)
	state.Health -= applied
	if state.Health < healthEpsilon {
		state.Health = 0
		state.Alive = false
		state.respawnAt = now.Add(w.cfg.EnemyRespawnDelay)
		killed = true
	}
	return applied, killed, nil
}

// Advance sweeps enemy respawn timers and returns the enemies restored this
// step, in id order so broadcasts are deterministic.
func (w *World) Advance(now time.Time) []protocol.Enemy {
	var respawned []protocol.Enemy
	for _, state := range w.enemies {
		if state.Alive || state.respawnAt.IsZero() || now.Before(state.respawnAt) {
			continue
		}
		state.Health = state.spawnHealth
		state.Position = state.spawnPosition
		state.Alive = true
		state.respawnAt = time.Time{}
		respawned = append(respawned, state.Enemy)
	}
	sort.Slice(respawned, func(i, j int) bool { return respawned[i].ID < respawned[j].ID })
	return respawned
}

// Snapshot copies every player and enemy for broadcasting, sorted by id so
// consecutive snapshots are comparable.
func (w *World) Snapshot() ([]protocol.Player, []protocol.Enemy) {
	players := make([]protocol.Player, 0, len(w.players))
	for _, state := range w.players {
		players = append(players, state.Player)
	}
	enemies := make([]protocol.Enemy, 0, len(w.enemies))
	for _, state := range w.enemies {
		enemies = append(enemies, state.Enemy)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
	sort.Slice(enemies, func(i, j int) bool { return enemies[i].ID < enemies[j].ID })
	return players, enemies
}

// PlayersExcept copies every player except the named one. The join snapshot
// uses this so a client never sees itself in the remote list.
func (w *World) PlayersExcept(id string) []protocol.Player {
	players := make([]protocol.Player, 0, len(w.players))
	for _, state := range w.players {
		if state.ID == id {
			continue
		}
		players = append(players, state.Player)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
	return players
}

// Counts reports the current population for the stats endpoint.
func (w *World) Counts() (players, enemies int) {
	return len(w.players), len(w.enemies)
}

// AppendChat records a chat line, evicting the oldest once the history cap
// is reached.
func (w *World) AppendChat(entry protocol.ChatEntry) {
	w.chat = append(w.chat, entry)
	if excess := len(w.chat) - w.cfg.ChatHistoryCap; excess > 0 {
		w.chat = append(w.chat[:0], w.chat[excess:]...)
	}
}

// RecentChat returns up to limit of the newest chat lines, oldest first.
func (w *World) RecentChat(limit int) []protocol.ChatEntry {
	if limit <= 0 || limit > len(w.chat) {
		limit = len(w.chat)
	}
	recent := make([]protocol.ChatEntry, limit)
	copy(recent, w.chat[len(w.chat)-limit:])
	return recent
}
