// Package hub owns the live sessions: the connection registry, the session
// lifecycle (join, grace-window reconnect, leave, shutdown), and the
// broadcast scheduler that fans world state out to every client.
package hub

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"emberfall/server/internal/ingest"
	"emberfall/server/internal/protocol"
	"emberfall/server/internal/telemetry"
	"emberfall/server/internal/world"
)

// Config captures the session and scheduling tunables.
type Config struct {
	TickRate        int           // world:update broadcasts per second
	WriteWait       time.Duration // per-message write deadline
	JoinTimeout     time.Duration // handshake must complete within this
	GracePeriod     time.Duration // 0 disables reconnect grace
	MaxMessageBytes int64
	ChatReplay      int // chat lines replayed in game:init
	ShutdownMessage string
}

// DefaultConfig mirrors the reference session settings.
func DefaultConfig() Config {
	return Config{
		TickRate:        20,
		WriteWait:       10 * time.Second,
		JoinTimeout:     10 * time.Second,
		GracePeriod:     30 * time.Second,
		MaxMessageBytes: 4096,
		ChatReplay:      50,
		ShutdownMessage: "server shutting down",
	}
}

// Normalized returns a config with zero values replaced by defaults.
func (cfg Config) Normalized() Config {
	def := DefaultConfig()
	if cfg.TickRate <= 0 {
		cfg.TickRate = def.TickRate
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = def.JoinTimeout
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = def.MaxMessageBytes
	}
	if cfg.ChatReplay <= 0 {
		cfg.ChatReplay = def.ChatReplay
	}
	if cfg.ShutdownMessage == "" {
		cfg.ShutdownMessage = def.ShutdownMessage
	}
	return cfg
}

// graceEntry holds a disconnected player pending reconnect. The timer
// forces the Left transition on expiry unless Join reclaims the entry
// first; whichever side deletes the map entry under the lock wins, which
// is what makes the player:left broadcast exactly-once.
type graceEntry struct {
	playerID string
	timer    *time.Timer
}

// Hub is the server-side session manager. One mutex guards the registry
// and, transitively, the world store: every mutation of shared state runs
// inside a hub-held critical section, so the store itself stays lock-free.
type Hub struct {
	cfg    Config
	log    zerolog.Logger
	world  *world.World
	ingest *ingest.Handler
	tel    *telemetry.Counters

	mu          sync.Mutex
	subscribers map[string]*subscriber // player id -> live connection
	tokens      map[string]string      // player id -> reconnect token
	graces      map[string]*graceEntry // reconnect token -> pending player
	tick        uint64
	closed      bool
	started     time.Time
}

// New wires a hub over the given store.
func New(cfg Config, w *world.World, ing *ingest.Handler, tel *telemetry.Counters, log zerolog.Logger) *Hub {
	return &Hub{
		cfg:         cfg.Normalized(),
		log:         log.With().Str("component", "hub").Logger(),
		world:       w,
		ingest:      ing,
		tel:         tel,
		subscribers: make(map[string]*subscriber),
		tokens:      make(map[string]string),
		graces:      make(map[string]*graceEntry),
		started:     time.Now(),
	}
}

// TickRate returns the configured broadcast rate.
func (h *Hub) TickRate() int { return h.cfg.TickRate }

// Uptime reports how long the hub has been serving.
func (h *Hub) Uptime() time.Duration { return time.Since(h.started) }

// SeedEnemies installs the server-controlled spawn table. Clients only
// ever author damage intents against these ids, never the enemies
// themselves.
func (h *Hub) SeedEnemies(enemies []protocol.Enemy) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range enemies {
		h.world.UpsertEnemy(e)
	}
}

// Players copies the current player list for the read-only HTTP surface.
func (h *Hub) Players() []protocol.Player {
	h.mu.Lock()
	defer h.mu.Unlock()
	players, _ := h.world.Snapshot()
	return players
}

// Counts reports the current population.
func (h *Hub) Counts() (players, enemies int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.world.Counts()
}

// PendingGraces reports how many disconnected players are parked in the
// reconnect window.
func (h *Hub) PendingGraces() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.graces)
}

// TelemetrySnapshot exposes the counters for /api/stats.
func (h *Hub) TelemetrySnapshot() telemetry.Snapshot {
	return h.tel.Read()
}

// join admits a new or reconnecting player and returns the id, the init
// snapshot, and the announcement to broadcast to everyone else.
func (h *Hub) join(req protocol.JoinRequest, sub *subscriber) (string, protocol.GameInit, ingest.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return "", protocol.GameInit{}, ingest.Event{}, false
	}

	var (
		playerID  string
		announce  ingest.Event
		reclaimed bool
	)

	if req.ReconnectToken != "" {
		if entry, ok := h.graces[req.ReconnectToken]; ok {
			entry.timer.Stop()
			delete(h.graces, req.ReconnectToken)
			playerID = entry.playerID
			reclaimed = true
		}
	}

	if reclaimed {
		player, ok := h.world.Player(playerID)
		if !ok {
			// Grace entry outlived the player somehow; fall through to a
			// fresh join rather than failing the handshake.
			reclaimed = false
		} else {
			h.log.Info().Str("player", playerID).Msg("player reclaimed from grace window")
			announce = ingest.Event{
				Type: protocol.TypePlayerReconnected,
				Data: protocol.PlayerReconnected{Player: player},
			}
		}
	}

	if !reclaimed {
		playerID = uuid.NewString()
		player := protocol.Player{
			ID:       playerID,
			Username: sanitizeUsername(req.Username),
			Class:    sanitizeClass(req.Class),
			Level:    req.Level,
			Position: h.world.Config().SpawnPoint,
		}
		if req.Position.Finite() {
			player.Position = req.Position
		}
		h.world.UpsertPlayer(player)
		stored, _ := h.world.Player(playerID)
		h.log.Info().Str("player", playerID).Str("username", stored.Username).
			Str("class", stored.Class).Msg("player joined")
		announce = ingest.Event{
			Type: protocol.TypePlayerJoined,
			Data: protocol.PlayerJoined{Player: stored},
		}
	}

	token, ok := h.tokens[playerID]
	if !ok {
		token = uuid.NewString()
		h.tokens[playerID] = token
	}

	if existing, ok := h.subscribers[playerID]; ok {
		existing.close()
	}
	sub.playerID = playerID
	h.subscribers[playerID] = sub

	self, _ := h.world.Player(playerID)
	_, enemies := h.world.Snapshot()
	init := protocol.GameInit{
		PlayerID:       playerID,
		ReconnectToken: token,
		Player:         self,
		Players:        h.world.PlayersExcept(playerID),
		Enemies:        enemies,
		ChatMessages:   h.world.RecentChat(h.cfg.ChatReplay),
	}
	return playerID, init, announce, true
}

// dropConnection detaches a subscriber after transport loss. With grace
// configured the player is parked for reconnect; otherwise the Left
// transition runs immediately.
func (h *Hub) dropConnection(sub *subscriber) {
	h.mu.Lock()
	playerID := sub.playerID
	current, ok := h.subscribers[playerID]
	if !ok || current != sub {
		// A reconnect already replaced this subscriber.
		h.mu.Unlock()
		sub.close()
		return
	}
	delete(h.subscribers, playerID)

	if h.closed {
		h.mu.Unlock()
		sub.close()
		return
	}

	if h.cfg.GracePeriod > 0 {
		token := h.tokens[playerID]
		entry := &graceEntry{playerID: playerID}
		entry.timer = time.AfterFunc(h.cfg.GracePeriod, func() {
			h.expireGrace(token)
		})
		h.graces[token] = entry
		h.mu.Unlock()
		sub.close()
		h.log.Info().Str("player", playerID).Dur("grace", h.cfg.GracePeriod).
			Msg("connection lost, grace window open")
		return
	}

	left := h.removePlayerLocked(playerID)
	h.mu.Unlock()
	sub.close()
	h.broadcast(protocol.TypePlayerLeft, left, "")
}

// expireGrace forces the Left transition once the reconnect window closes.
func (h *Hub) expireGrace(token string) {
	h.mu.Lock()
	entry, ok := h.graces[token]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.graces, token)
	left := h.removePlayerLocked(entry.playerID)
	h.mu.Unlock()
	h.log.Info().Str("player", entry.playerID).Msg("grace window expired")
	h.broadcast(protocol.TypePlayerLeft, left, "")
}

// removePlayerLocked finishes the Left transition: world state, anti-cheat
// state, and the reconnect token all go together.
func (h *Hub) removePlayerLocked(playerID string) protocol.PlayerLeft {
	player, _ := h.world.Player(playerID)
	h.world.RemovePlayer(playerID)
	h.ingest.Forget(playerID)
	delete(h.tokens, playerID)
	return protocol.PlayerLeft{PlayerID: playerID, Username: player.Username}
}

// kick removes a player immediately, bypassing grace. Used when the
// violation threshold is crossed; repeated cheaters do not get a reconnect
// window.
func (h *Hub) kick(playerID string) {
	h.tel.RecordForcedDisconnect()
	h.mu.Lock()
	sub, hasSub := h.subscribers[playerID]
	delete(h.subscribers, playerID)
	left := h.removePlayerLocked(playerID)
	h.mu.Unlock()

	h.log.Warn().Str("player", playerID).Msg("disconnecting player after repeated violations")
	if hasSub {
		sub.close()
	}
	h.broadcast(protocol.TypePlayerLeft, left, "")
}

// Shutdown broadcasts server:shutdown and closes every connection so
// clients can show a graceful message instead of a silent drop.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for token, entry := range h.graces {
		entry.timer.Stop()
		delete(h.graces, token)
	}
	subs := make([]*subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	data, err := protocol.Encode(protocol.TypeServerShutdown,
		protocol.ServerShutdown{Message: h.cfg.ShutdownMessage})
	if err == nil {
		for _, sub := range subs {
			_ = sub.write(data, h.cfg.WriteWait)
		}
	}
	for _, sub := range subs {
		sub.close()
	}
	h.log.Info().Int("connections", len(subs)).Msg("shutdown broadcast sent")
}

func sanitizeUsername(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "adventurer"
	}
	if runes := []rune(name); len(runes) > 24 {
		name = string(runes[:24])
	}
	return name
}

func sanitizeClass(class string) string {
	switch class {
	case "warrior", "mage", "ranger", "cleric":
		return class
	default:
		return "warrior"
	}
}
