// Package client is the reconciliation layer a game front end sits on: it
// maintains shadow copies of every remote player and enemy, smooths their
// motion between tick snapshots, and drives reconnect-with-backoff when
// the transport drops. The local player is never reconciled here; the
// front end predicts it.
package client

import (
	"context"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"emberfall/server/internal/protocol"
)

// State is the user-visible connection state. The UI must always be able
// to show one of these; a silent hang is a defect.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateReconnecting
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options tune the session and the smoothing.
type Options struct {
	Username    string
	Class       string
	Level       int
	BlendFactor float64 // fraction of remaining distance covered per Step
	MaxRetries  int     // reconnect attempts before giving up
	BaseBackoff time.Duration
	JoinTimeout time.Duration
	Logger      zerolog.Logger
}

func (o Options) normalized() Options {
	if o.Username == "" {
		o.Username = "adventurer"
	}
	if o.Class == "" {
		o.Class = "warrior"
	}
	if o.Level < 1 {
		o.Level = 1
	}
	if o.BlendFactor <= 0 || o.BlendFactor > 1 {
		o.BlendFactor = 0.3
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 500 * time.Millisecond
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = 10 * time.Second
	}
	return o
}

// RemotePlayer is a shadow entity. Display trails the network target by
// the blend factor so tick-rate granularity never shows as snapping.
type RemotePlayer struct {
	protocol.Player
	Display   protocol.Vec3
	targetPos protocol.Vec3
	targetRot float64
}

// RemoteEnemy is the enemy counterpart of RemotePlayer.
type RemoteEnemy struct {
	protocol.Enemy
	Display   protocol.Vec3
	targetPos protocol.Vec3
}

// Client is one relay session. All accessors are safe to call from a
// render loop while the read pump runs.
type Client struct {
	url  string
	opts Options
	log  zerolog.Logger

	mu             sync.Mutex
	state          State
	stateReason    string
	conn           *websocket.Conn
	selfID         string
	reconnectToken string
	self           protocol.Player
	players        map[string]*RemotePlayer
	enemies        map[string]*RemoteEnemy
	chat           []protocol.ChatEntry
}

// New prepares a session against ws://host/ws. Nothing is dialed until Run.
func New(url string, opts Options) *Client {
	opts = opts.normalized()
	return &Client{
		url:     url,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "client").Logger(),
		state:   StateConnecting,
		players: make(map[string]*RemotePlayer),
		enemies: make(map[string]*RemoteEnemy),
	}
}

// Run dials, joins, and consumes messages until the context is canceled,
// the server shuts down, or the retry budget is exhausted. Each transport
// drop retries with exponential backoff, reusing the reconnect token so
// the server can reclaim the player from its grace window.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		if err := c.connect(ctx); err != nil {
			attempt++
			if attempt > c.opts.MaxRetries {
				c.setState(StateFailed, "retry budget exhausted")
				return eris.Wrap(err, "connect")
			}
			c.setState(StateReconnecting, "")
			backoff := c.opts.BaseBackoff << (attempt - 1)
			c.log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).
				Msg("connect failed, backing off")
			select {
			case <-ctx.Done():
				c.setState(StateClosed, "")
				return ctx.Err()
			case <-time.After(backoff):
			}
			continue
		}
		attempt = 0

		err := c.readLoop(ctx)
		if ctx.Err() != nil {
			c.closeConn()
			c.setState(StateClosed, "")
			return ctx.Err()
		}
		if c.State() == StateClosed {
			// Server said goodbye; not an error.
			return nil
		}
		c.closeConn()
		c.setState(StateReconnecting, "")
		c.log.Warn().Err(err).Msg("connection lost, reconnecting")
	}
}

// connect dials and runs the join handshake: game:init must arrive within
// the join timeout or the attempt fails.
func (c *Client) connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.JoinTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.url, nil)
	if err != nil {
		return eris.Wrap(err, "dial")
	}

	c.mu.Lock()
	token := c.reconnectToken
	c.mu.Unlock()

	join, err := protocol.Encode(protocol.TypePlayerJoin, protocol.JoinRequest{
		Username:       c.opts.Username,
		Class:          c.opts.Class,
		Level:          c.opts.Level,
		ReconnectToken: token,
	})
	if err != nil {
		conn.Close()
		return eris.Wrap(err, "encode join")
	}
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		conn.Close()
		return eris.Wrap(err, "send join")
	}

	conn.SetReadDeadline(time.Now().Add(c.opts.JoinTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return eris.Wrap(err, "await game:init")
	}
	env, err := protocol.Decode(raw)
	if err != nil || env.Type != protocol.TypeGameInit {
		conn.Close()
		return eris.New("handshake did not yield game:init")
	}
	var init protocol.GameInit
	if err := json.Unmarshal(env.Data, &init); err != nil {
		conn.Close()
		return eris.Wrap(err, "decode game:init")
	}
	conn.SetReadDeadline(time.Time{})

	c.applyInit(init)
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateConnected, "")
	c.log.Info().Str("playerId", init.PlayerID).Msg("joined")
	return nil
}

func (c *Client) readLoop(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return eris.New("not connected")
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			c.log.Debug().Err(err).Msg("discarding malformed server message")
			continue
		}
		c.apply(env)
		if c.State() == StateClosed {
			return nil
		}
	}
}

func (c *Client) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (c *Client) setState(s State, reason string) {
	c.mu.Lock()
	c.state = s
	c.stateReason = reason
	c.mu.Unlock()
}

// State returns the current connection state for the UI indicator.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StateReason explains a Failed or Closed state.
func (c *Client) StateReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateReason
}

// Self returns the local player record the server acknowledged.
func (c *Client) Self() protocol.Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// Players copies the remote shadow players.
func (c *Client) Players() []RemotePlayer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RemotePlayer, 0, len(c.players))
	for _, p := range c.players {
		out = append(out, *p)
	}
	return out
}

// Enemies copies the shadow enemies.
func (c *Client) Enemies() []RemoteEnemy {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RemoteEnemy, 0, len(c.enemies))
	for _, e := range c.enemies {
		out = append(out, *e)
	}
	return out
}

// Chat copies the chat log.
func (c *Client) Chat() []protocol.ChatEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.ChatEntry, len(c.chat))
	copy(out, c.chat)
	return out
}

func (c *Client) send(msgType string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return eris.New("not connected")
	}
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		return eris.Wrap(err, "encode")
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// SendMove reports the locally predicted position.
func (c *Client) SendMove(pos protocol.Vec3, rotation float64) error {
	c.mu.Lock()
	c.self.Position = pos
	c.self.Rotation = rotation
	c.mu.Unlock()
	return c.send(protocol.TypePlayerMove, protocol.MoveIntent{Position: pos, Rotation: rotation})
}

// SendAttack submits a damage intent against one target.
func (c *Client) SendAttack(targetID, targetType string, damage float64) error {
	return c.send(protocol.TypePlayerAttack, protocol.AttackIntent{
		TargetID: targetID, TargetType: targetType, Damage: damage,
	})
}

// SendAbility submits a multi-target action.
func (c *Client) SendAbility(abilityID string, target protocol.Vec3, targets []string, damage float64) error {
	return c.send(protocol.TypePlayerAbility, protocol.AbilityIntent{
		AbilityID: abilityID, TargetPosition: target, Targets: targets, Damage: damage,
	})
}

// SendChat submits a chat line.
func (c *Client) SendChat(message string) error {
	return c.send(protocol.TypeChatSend, protocol.ChatIntent{Message: message})
}

// SendRespawn asks to come back after death.
func (c *Client) SendRespawn() error {
	return c.send(protocol.TypePlayerRespawn, protocol.RespawnIntent{})
}
