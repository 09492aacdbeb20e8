package protocol

// JoinRequest opens a session. A non-empty ReconnectToken asks the server
// to reclaim a player held in the disconnect grace window instead of
// allocating a fresh one.
type JoinRequest struct {
	Username       string `json:"username"`
	Class          string `json:"class"`
	Level          int    `json:"level"`
	Position       Vec3   `json:"position"`
	ReconnectToken string `json:"reconnectToken,omitempty"`
}

// GameInit is the full snapshot sent to a player immediately after join.
// Players excludes the joining player itself.
type GameInit struct {
	PlayerID       string      `json:"playerId"`
	ReconnectToken string      `json:"reconnectToken"`
	Player         Player      `json:"player"`
	Players        []Player    `json:"players"`
	Enemies        []Enemy     `json:"enemies"`
	ChatMessages   []ChatEntry `json:"chatMessages"`
}

// PlayerJoined announces a new participant to everyone already connected.
type PlayerJoined struct {
	Player Player `json:"player"`
}

// PlayerReconnected announces a player reclaiming state from the grace window.
type PlayerReconnected struct {
	Player Player `json:"player"`
}

// PlayerLeft announces a departure, after grace expiry if grace is enabled.
type PlayerLeft struct {
	PlayerID string `json:"playerId"`
	Username string `json:"username"`
}

// MoveIntent is a client-reported position sample. The server validates
// implied speed before accepting it.
type MoveIntent struct {
	Position Vec3    `json:"position"`
	Rotation float64 `json:"rotation"`
}

// PlayerMoved echoes an accepted move to other clients.
type PlayerMoved struct {
	PlayerID string  `json:"playerId"`
	Position Vec3    `json:"position"`
	Rotation float64 `json:"rotation"`
}

// AttackIntent asks the server to apply damage to a single target. The
// damage field is a claim, not an instruction: the server clamps it.
type AttackIntent struct {
	TargetID   string  `json:"targetId"`
	TargetType string  `json:"targetType"`
	Damage     float64 `json:"damage"`
}

// AbilityIntent is an area or multi-target action.
type AbilityIntent struct {
	AbilityID      string   `json:"abilityId"`
	TargetPosition Vec3     `json:"targetPosition"`
	Targets        []string `json:"targets"`
	Damage         float64  `json:"damage"`
}

// PlayerUsedAbility relays an accepted ability cast for client-side effects.
type PlayerUsedAbility struct {
	PlayerID       string `json:"playerId"`
	AbilityID      string `json:"abilityId"`
	TargetPosition Vec3   `json:"targetPosition"`
}

// PlayerDamaged carries the server-applied damage, never the client claim.
type PlayerDamaged struct {
	PlayerID string  `json:"playerId"`
	Damage   float64 `json:"damage"`
	Killed   bool    `json:"killed"`
}

// EnemyDamaged carries the server-applied damage, never the client claim.
type EnemyDamaged struct {
	EnemyID string  `json:"enemyId"`
	Damage  float64 `json:"damage"`
	Killed  bool    `json:"killed"`
}

// EnemyRespawned announces an enemy returning after its death timer.
type EnemyRespawned struct {
	Enemy Enemy `json:"enemy"`
}

// PlayerRespawned announces a dead player returning at the spawn point.
type PlayerRespawned struct {
	Player Player `json:"player"`
}

// ChatIntent submits a chat line. Text is sanitized and bounded server-side.
type ChatIntent struct {
	Message string `json:"message"`
}

// ChatMessage relays an accepted chat line to every client.
type ChatMessage struct {
	PlayerID string `json:"playerId"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// RespawnIntent requests a respawn; honored only when health is zero.
type RespawnIntent struct{}

// WorldUpdate is the bulk tick snapshot. Intermediate states between ticks
// are not observable by clients; each update supersedes the previous one.
type WorldUpdate struct {
	Tick       uint64   `json:"t"`
	ServerTime int64    `json:"serverTime"`
	Players    []Player `json:"players"`
	Enemies    []Enemy  `json:"enemies"`
}

// ServerShutdown is broadcast before the process exits so clients can show
// a graceful message instead of a silent drop.
type ServerShutdown struct {
	Message string `json:"message"`
}
