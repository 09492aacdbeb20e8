package protocol

import (
	"math"

	json "github.com/goccy/go-json"
)

// Version is bumped whenever a wire message changes shape incompatibly.
const Version = 1

// Message type identifiers. Client-to-server types carry player intents;
// server-to-client types carry state and point events.
const (
	// client -> server
	TypePlayerJoin    = "player:join"
	TypePlayerMove    = "player:move"
	TypePlayerAttack  = "player:attack"
	TypePlayerAbility = "player:ability"
	TypeChatSend      = "chat:send"
	TypePlayerRespawn = "player:respawn"

	// server -> client
	TypeGameInit          = "game:init"
	TypePlayerJoined      = "player:joined"
	TypePlayerReconnected = "player:reconnected"
	TypePlayerLeft        = "player:left"
	TypePlayerMoved       = "player:moved"
	TypePlayerDamaged     = "player:damaged"
	TypePlayerUsedAbility = "player:used_ability"
	TypePlayerRespawned   = "player:respawned"
	TypeWorldUpdate       = "world:update"
	TypeEnemyDamaged      = "enemy:damaged"
	TypeEnemyRespawned    = "enemy:respawned"
	TypeChatMessage       = "chat:message"
	TypeServerShutdown    = "server:shutdown"
)

// Envelope frames every message on the wire.
type Envelope struct {
	Ver  int             `json:"v"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode wraps a payload in a versioned envelope and marshals it.
func Encode(msgType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Ver: Version, Type: msgType, Data: data})
}

// Decode parses an envelope without touching its payload.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Vec3 is a world-space position.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Dist returns the Euclidean distance between two points.
func (v Vec3) Dist(o Vec3) float64 {
	dx := v.X - o.X
	dy := v.Y - o.Y
	dz := v.Z - o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Finite reports whether every component is a real number. Positions
// arriving off the wire can carry NaN or Inf and must never be stored.
func (v Vec3) Finite() bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Player is the public view of a participant, as broadcast to clients.
type Player struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Class     string  `json:"class"`
	Level     int     `json:"level"`
	Position  Vec3    `json:"position"`
	Rotation  float64 `json:"rotation"`
	Health    float64 `json:"health"`
	MaxHealth float64 `json:"maxHealth"`
}

// Enemy is the public view of a server-controlled combatant.
type Enemy struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	Position  Vec3    `json:"position"`
	Rotation  float64 `json:"rotation"`
	Health    float64 `json:"health"`
	MaxHealth float64 `json:"maxHealth"`
	Alive     bool    `json:"alive"`
}

// ChatEntry is one line of chat history.
type ChatEntry struct {
	PlayerID string `json:"playerId"`
	Username string `json:"username"`
	Message  string `json:"message"`
	SentAt   int64  `json:"sentAt"`
}

// Target types accepted by attack and ability intents.
const (
	TargetEnemy  = "enemy"
	TargetPlayer = "player"
)
