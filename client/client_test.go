package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emberfall/server/internal/protocol"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c := New("ws://unused/ws", Options{Username: "tester"})
	c.applyInit(protocol.GameInit{
		PlayerID:       "self",
		ReconnectToken: "token",
		Player:         protocol.Player{ID: "self", Username: "tester", Health: 100, MaxHealth: 100},
		Players: []protocol.Player{
			{ID: "p1", Username: "Aria", Position: protocol.Vec3{X: 10}},
		},
		Enemies: []protocol.Enemy{
			{ID: "e1", Type: "skeleton", Health: 40, MaxHealth: 40, Alive: true, Position: protocol.Vec3{X: 5}},
		},
		ChatMessages: []protocol.ChatEntry{{PlayerID: "p1", Username: "Aria", Message: "welcome"}},
	})
	return c
}

func mkEnv(t *testing.T, msgType string, payload any) protocol.Envelope {
	t.Helper()
	raw, err := protocol.Encode(msgType, payload)
	require.NoError(t, err)
	env, err := protocol.Decode(raw)
	require.NoError(t, err)
	return env
}

func TestInitPopulatesShadowState(t *testing.T) {
	c := newTestClient(t)

	players := c.Players()
	require.Len(t, players, 1)
	assert.Equal(t, "p1", players[0].ID)
	assert.Equal(t, protocol.Vec3{X: 10}, players[0].Display, "init snaps, never interpolates")

	enemies := c.Enemies()
	require.Len(t, enemies, 1)
	assert.Equal(t, "e1", enemies[0].ID)

	chat := c.Chat()
	require.Len(t, chat, 1)
	assert.Equal(t, "welcome", chat[0].Message)
}

func TestWorldUpdateFeedsInterpolationTargets(t *testing.T) {
	c := newTestClient(t)

	c.apply(mkEnv(t, protocol.TypeWorldUpdate, protocol.WorldUpdate{
		Tick: 1,
		Players: []protocol.Player{
			{ID: "self", Health: 80, MaxHealth: 100},
			{ID: "p1", Username: "Aria", Position: protocol.Vec3{X: 20}},
		},
		Enemies: []protocol.Enemy{
			{ID: "e1", Health: 40, MaxHealth: 40, Alive: true, Position: protocol.Vec3{X: 8}},
		},
	}))

	players := c.Players()
	require.Len(t, players, 1)
	assert.Equal(t, 10.0, players[0].Display.X, "display position lags until Step runs")
	assert.Equal(t, 20.0, players[0].Position.X, "authoritative record updates immediately")
}

func TestStepConvergesOnTarget(t *testing.T) {
	c := newTestClient(t)
	c.apply(mkEnv(t, protocol.TypeWorldUpdate, protocol.WorldUpdate{
		Players: []protocol.Player{{ID: "p1", Position: protocol.Vec3{X: 20}}},
	}))

	// First frame covers the blend fraction of the gap.
	c.Step()
	display := c.Players()[0].Display.X
	assert.InDelta(t, 13.0, display, 1e-9, "10 + (20-10)*0.3")

	// Repeated frames converge without overshooting.
	for i := 0; i < 60; i++ {
		c.Step()
	}
	display = c.Players()[0].Display.X
	assert.InDelta(t, 20.0, display, 0.01)
	assert.LessOrEqual(t, display, 20.0)
}

func TestSelfIsNeverInterpolated(t *testing.T) {
	c := newTestClient(t)

	c.apply(mkEnv(t, protocol.TypeWorldUpdate, protocol.WorldUpdate{
		Players: []protocol.Player{
			{ID: "self", Health: 55, MaxHealth: 100, Position: protocol.Vec3{X: 99}},
			{ID: "p1", Position: protocol.Vec3{X: 10}},
		},
	}))

	for _, p := range c.Players() {
		assert.NotEqual(t, "self", p.ID, "local player never appears in the shadow set")
	}
	self := c.Self()
	assert.Equal(t, 55.0, self.Health, "server health is taken")
	assert.Equal(t, 0.0, self.Position.X, "server position is not: the front end predicts it")
}

func TestPlayerLeftIsStructural(t *testing.T) {
	c := newTestClient(t)

	c.apply(mkEnv(t, protocol.TypePlayerLeft, protocol.PlayerLeft{PlayerID: "p1", Username: "Aria"}))
	assert.Empty(t, c.Players(), "departures apply immediately, not through interpolation")
}

func TestWorldUpdatePrunesAbsentPlayers(t *testing.T) {
	c := newTestClient(t)

	c.apply(mkEnv(t, protocol.TypeWorldUpdate, protocol.WorldUpdate{
		Players: []protocol.Player{{ID: "p2", Username: "Borin"}},
	}))

	players := c.Players()
	require.Len(t, players, 1)
	assert.Equal(t, "p2", players[0].ID, "tick snapshot is the membership backstop")
}

func TestEnemyRespawnSnapsDisplay(t *testing.T) {
	c := newTestClient(t)

	c.apply(mkEnv(t, protocol.TypeEnemyDamaged, protocol.EnemyDamaged{EnemyID: "e1", Damage: 40, Killed: true}))
	enemies := c.Enemies()
	require.Len(t, enemies, 1)
	assert.False(t, enemies[0].Alive)
	assert.Equal(t, 0.0, enemies[0].Health)

	c.apply(mkEnv(t, protocol.TypeEnemyRespawned, protocol.EnemyRespawned{
		Enemy: protocol.Enemy{ID: "e1", Health: 40, MaxHealth: 40, Alive: true, Position: protocol.Vec3{X: 5}},
	}))
	enemies = c.Enemies()
	require.Len(t, enemies, 1)
	assert.True(t, enemies[0].Alive)
	assert.Equal(t, protocol.Vec3{X: 5}, enemies[0].Display, "respawn snaps into place")
}

func TestChatAppends(t *testing.T) {
	c := newTestClient(t)
	c.apply(mkEnv(t, protocol.TypeChatMessage, protocol.ChatMessage{PlayerID: "p1", Username: "Aria", Message: "gg"}))

	chat := c.Chat()
	require.Len(t, chat, 2)
	assert.Equal(t, "gg", chat[1].Message)
}

func TestServerShutdownClosesSession(t *testing.T) {
	c := newTestClient(t)
	c.apply(mkEnv(t, protocol.TypeServerShutdown, protocol.ServerShutdown{Message: "maintenance"}))

	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, "maintenance", c.StateReason())
}

func TestRunGivesUpAfterRetryBudget(t *testing.T) {
	c := New("ws://127.0.0.1:1/ws", Options{
		MaxRetries:  2,
		BaseBackoff: 5 * time.Millisecond,
		JoinTimeout: 200 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, StateFailed, c.State(), "give-up must surface a visible failure state")
	assert.NotEmpty(t, c.StateReason())
}
