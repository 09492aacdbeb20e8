// Package ingest is the single entry point for client intents. Every
// mutation a client can cause flows through Handler.Handle, which applies
// the anti-cheat checks before touching the world store, so no unvalidated
// input is ever stored or rebroadcast.
package ingest

import (
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"emberfall/server/internal/protocol"
	"emberfall/server/internal/world"
)

// Config captures the validation thresholds.
type Config struct {
	MaxSpeed        float64 // world units per second
	SpeedTolerance  float64 // slack added per check for jitter and float error
	MoveRate        float64 // accepted move messages per second
	MoveBurst       float64 // token bucket capacity
	MaxDamagePerHit float64
	ChatMaxLen      int
	MaxViolations   int // violations before the player is flagged for disconnect
}

// DefaultConfig mirrors the reference anti-cheat thresholds.
func DefaultConfig() Config {
	return Config{
		MaxSpeed:        12,
		SpeedTolerance:  0.5,
		MoveRate:        30,
		MoveBurst:       30,
		MaxDamagePerHit: 75,
		ChatMaxLen:      256,
		MaxViolations:   10,
	}
}

// Normalized returns a config with zero values replaced by defaults.
func (cfg Config) Normalized() Config {
	def := DefaultConfig()
	if cfg.MaxSpeed <= 0 {
		cfg.MaxSpeed = def.MaxSpeed
	}
	if cfg.SpeedTolerance <= 0 {
		cfg.SpeedTolerance = def.SpeedTolerance
	}
	if cfg.MoveRate <= 0 {
		cfg.MoveRate = def.MoveRate
	}
	if cfg.MoveBurst <= 0 {
		cfg.MoveBurst = cfg.MoveRate
	}
	if cfg.MaxDamagePerHit <= 0 {
		cfg.MaxDamagePerHit = def.MaxDamagePerHit
	}
	if cfg.ChatMaxLen <= 0 {
		cfg.ChatMaxLen = def.ChatMaxLen
	}
	if cfg.MaxViolations <= 0 {
		cfg.MaxViolations = def.MaxViolations
	}
	return cfg
}

// Event is a point event produced by an accepted intent, queued for
// immediate broadcast rather than the next tick.
type Event struct {
	Type string
	Data any
}

// Result reports what an intent produced. Disconnect is set once a player
// crosses the violation threshold; enforcement is the hub's concern.
type Result struct {
	Accepted   bool
	Events     []Event
	Disconnect bool
}

// tracker holds the per-player anti-cheat state: the last accepted move
// sample and a token bucket for move rate limiting.
type tracker struct {
	lastMoveAt time.Time
	lastPos    protocol.Vec3
	hasMove    bool
	tokens     float64
	lastRefill time.Time
	violations int
}

// Handler validates intents and dispatches accepted ones into the world
// store. It is not goroutine-safe; the hub serializes calls.
type Handler struct {
	cfg      Config
	log      zerolog.Logger
	world    *world.World
	trackers map[string]*tracker
}

// New returns a handler bound to the given store.
func New(cfg Config, w *world.World, log zerolog.Logger) *Handler {
	return &Handler{
		cfg:      cfg.Normalized(),
		log:      log.With().Str("component", "ingest").Logger(),
		world:    w,
		trackers: make(map[string]*tracker),
	}
}

// Forget drops a player's anti-cheat state on removal.
func (h *Handler) Forget(playerID string) {
	delete(h.trackers, playerID)
}

// Handle validates one intent and, on acceptance, applies the matching
// world mutation. Rejections are dropped silently toward the client and
// logged here; they never return an error because a hostile sender must
// not be able to distinguish a drop from a crash.
func (h *Handler) Handle(playerID string, intent protocol.Intent, now time.Time) Result {
	switch v := intent.(type) {
	case protocol.MoveIntent:
		return h.handleMove(playerID, v, now)
	case protocol.AttackIntent:
		return h.handleAttack(playerID, v, now)
	case protocol.AbilityIntent:
		return h.handleAbility(playerID, v, now)
	case protocol.ChatIntent:
		return h.handleChat(playerID, v, now)
	case protocol.RespawnIntent:
		return h.handleRespawn(playerID)
	default:
		h.log.Warn().Str("player", playerID).Msgf("unhandled intent %T", intent)
		return Result{}
	}
}

func (h *Handler) trackerFor(playerID string, now time.Time) *tracker {
	t, ok := h.trackers[playerID]
	if !ok {
		t = &tracker{tokens: h.cfg.MoveBurst, lastRefill: now}
		h.trackers[playerID] = t
	}
	return t
}

// violation bumps a player's violation count and reports whether the
// disconnect threshold was crossed.
func (h *Handler) violation(t *tracker, playerID, reason string) Result {
	t.violations++
	h.log.Debug().Str("player", playerID).Str("reason", reason).
		Int("violations", t.violations).Msg("intent rejected")
	return Result{Disconnect: t.violations >= h.cfg.MaxViolations}
}

func (h *Handler) handleMove(playerID string, move protocol.MoveIntent, now time.Time) Result {
	player, ok := h.world.Player(playerID)
	if !ok {
		return Result{}
	}
	t := h.trackerFor(playerID, now)

	// Rate limit first: flooding is bounded before any geometry runs.
	if elapsed := now.Sub(t.lastRefill).Seconds(); elapsed > 0 {
		t.tokens = math.Min(t.tokens+elapsed*h.cfg.MoveRate, h.cfg.MoveBurst)
		t.lastRefill = now
	}
	if t.tokens < 1 {
		h.log.Debug().Str("player", playerID).Msg("move rate limited")
		return Result{}
	}
	t.tokens--

	if !move.Position.Finite() || math.IsNaN(move.Rotation) || math.IsInf(move.Rotation, 0) {
		return h.violation(t, playerID, "non-finite move")
	}

	// Speed cap: the displacement since the last accepted move must be
	// coverable at max speed. The first sample after join is taken on
	// trust against the stored spawn position.
	origin := player.Position
	elapsed := h.cfg.SpeedTolerance
	if t.hasMove {
		origin = t.lastPos
		elapsed += now.Sub(t.lastMoveAt).Seconds() * h.cfg.MaxSpeed
	} else {
		elapsed += h.cfg.MaxSpeed
	}
	if move.Position.Dist(origin) > elapsed {
		return h.violation(t, playerID, "speed cap exceeded")
	}

	if err := h.world.SetPlayerPosition(playerID, move.Position, move.Rotation); err != nil {
		return Result{}
	}
	t.lastMoveAt = now
	t.lastPos = move.Position
	t.hasMove = true

	return Result{Accepted: true, Events: []Event{{
		Type: protocol.TypePlayerMoved,
		Data: protocol.PlayerMoved{PlayerID: playerID, Position: move.Position, Rotation: move.Rotation},
	}}}
}

// clampDamage bounds a client damage claim. The server is the source of
// truth for damage, not a passthrough; absurd claims count as violations.
func (h *Handler) clampDamage(amount float64) (float64, bool) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return 0, false
	}
	return math.Min(amount, h.cfg.MaxDamagePerHit), true
}

func (h *Handler) handleAttack(playerID string, attack protocol.AttackIntent, now time.Time) Result {
	if _, ok := h.world.Player(playerID); !ok {
		return Result{}
	}
	t := h.trackerFor(playerID, now)

	damage, ok := h.clampDamage(attack.Damage)
	if !ok {
		return h.violation(t, playerID, "malformed damage")
	}
	if !h.world.HasTarget(attack.TargetID, attack.TargetType) {
		// Stale target ids happen legitimately right after a death
		// broadcast, so this is a logged no-op, not a crash.
		h.log.Warn().Str("player", playerID).Str("target", attack.TargetID).
			Str("targetType", attack.TargetType).Msg("attack on unknown target")
		return h.violation(t, playerID, "unknown target")
	}

	events := h.applyDamage(playerID, attack.TargetID, attack.TargetType, damage, now)
	return Result{Accepted: true, Events: events}
}

func (h *Handler) handleAbility(playerID string, ability protocol.AbilityIntent, now time.Time) Result {
	if _, ok := h.world.Player(playerID); !ok {
		return Result{}
	}
	t := h.trackerFor(playerID, now)

	damage, ok := h.clampDamage(ability.Damage)
	if !ok {
		return h.violation(t, playerID, "malformed damage")
	}
	if !ability.TargetPosition.Finite() {
		return h.violation(t, playerID, "non-finite target position")
	}

	events := []Event{{
		Type: protocol.TypePlayerUsedAbility,
		Data: protocol.PlayerUsedAbility{
			PlayerID:       playerID,
			AbilityID:      ability.AbilityID,
			TargetPosition: ability.TargetPosition,
		},
	}}
	for _, targetID := range ability.Targets {
		targetType := protocol.TargetEnemy
		if !h.world.HasTarget(targetID, targetType) {
			targetType = protocol.TargetPlayer
			if !h.world.HasTarget(targetID, targetType) {
				h.log.Warn().Str("player", playerID).Str("target", targetID).
					Msg("ability target unknown")
				continue
			}
		}
		events = append(events, h.applyDamage(playerID, targetID, targetType, damage, now)...)
	}
	return Result{Accepted: true, Events: events}
}

// applyDamage routes validated damage into the store and converts the
// outcome into point events carrying the server-applied amount.
func (h *Handler) applyDamage(playerID, targetID, targetType string, damage float64, now time.Time) []Event {
	switch targetType {
	case protocol.TargetEnemy:
		applied, killed, err := h.world.DamageEnemy(targetID, damage, now)
		if err != nil || applied <= 0 {
			return nil
		}
		return []Event{{
			Type: protocol.TypeEnemyDamaged,
			Data: protocol.EnemyDamaged{EnemyID: targetID, Damage: applied, Killed: killed},
		}}
	case protocol.TargetPlayer:
		if targetID == playerID {
			return nil
		}
		applied, killed, err := h.world.DamagePlayer(targetID, damage)
		if err != nil || applied <= 0 {
			return nil
		}
		return []Event{{
			Type: protocol.TypePlayerDamaged,
			Data: protocol.PlayerDamaged{PlayerID: targetID, Damage: applied, Killed: killed},
		}}
	default:
		return nil
	}
}

func (h *Handler) handleChat(playerID string, chat protocol.ChatIntent, now time.Time) Result {
	player, ok := h.world.Player(playerID)
	if !ok {
		return Result{}
	}

	text := sanitizeChat(chat.Message, h.cfg.ChatMaxLen)
	if text == "" {
		return Result{}
	}

	entry := protocol.ChatEntry{
		PlayerID: playerID,
		Username: player.Username,
		Message:  text,
		SentAt:   now.UnixMilli(),
	}
	h.world.AppendChat(entry)

	return Result{Accepted: true, Events: []Event{{
		Type: protocol.TypeChatMessage,
		Data: protocol.ChatMessage{PlayerID: playerID, Username: player.Username, Message: text},
	}}}
}

func (h *Handler) handleRespawn(playerID string) Result {
	player, err := h.world.RespawnPlayer(playerID)
	if err != nil {
		h.log.Debug().Str("player", playerID).Err(err).Msg("respawn refused")
		return Result{}
	}
	return Result{Accepted: true, Events: []Event{{
		Type: protocol.TypePlayerRespawned,
		Data: protocol.PlayerRespawned{Player: player},
	}}}
}

// sanitizeChat strips control characters, trims whitespace, and bounds the
// rune length of a chat line.
func sanitizeChat(text string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	cleaned = strings.TrimSpace(cleaned)
	if runes := []rune(cleaned); len(runes) > maxLen {
		cleaned = string(runes[:maxLen])
	}
	return cleaned
}
