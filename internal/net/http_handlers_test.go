package net

import (
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emberfall/server/internal/hub"
	"emberfall/server/internal/ingest"
	"emberfall/server/internal/protocol"
	"emberfall/server/internal/telemetry"
	"emberfall/server/internal/world"
)

func newTestServer(t *testing.T) (*httptest.Server, *hub.Hub) {
	t.Helper()
	log := zerolog.Nop()
	w := world.New(world.Config{}, log)
	ing := ingest.New(ingest.Config{}, w, log)
	h := hub.New(hub.Config{}, w, ing, telemetry.New(), log)
	h.SeedEnemies([]protocol.Enemy{{ID: "enemy_1", Type: "skeleton", Health: 40, MaxHealth: 40}})

	srv := httptest.NewServer(NewHTTPHandler(h, HTTPHandlerConfig{Logger: log}))
	t.Cleanup(srv.Close)
	return srv, h
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := nethttp.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestStatsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := nethttp.Get(srv.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)

	var payload struct {
		Status   string `json:"status"`
		TickRate int    `json:"tickRate"`
		Enemies  int    `json:"enemies"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "ok", payload.Status)
	assert.Equal(t, 20, payload.TickRate)
	assert.Equal(t, 1, payload.Enemies)
}

func TestStatsRejectsPost(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := nethttp.Post(srv.URL+"/api/stats", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, nethttp.StatusMethodNotAllowed, resp.StatusCode)
}

func TestPlayersEndpointReflectsJoins(t *testing.T) {
	srv, _ := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	join, err := protocol.Encode(protocol.TypePlayerJoin, protocol.JoinRequest{Username: "Aria", Class: "mage"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, join))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, protocol.TypeGameInit, env.Type)

	resp, err := nethttp.Get(srv.URL + "/api/players")
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload struct {
		Players []protocol.Player `json:"players"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Len(t, payload.Players, 1)
	assert.Equal(t, "Aria", payload.Players[0].Username)
	assert.Equal(t, "mage", payload.Players[0].Class)
}

func TestWebsocketJoinHandshake(t *testing.T) {
	srv, _ := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	join, err := protocol.Encode(protocol.TypePlayerJoin, protocol.JoinRequest{Username: "Aria"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, join))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	env, err := protocol.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, protocol.TypeGameInit, env.Type)

	var init protocol.GameInit
	require.NoError(t, json.Unmarshal(env.Data, &init))
	assert.NotEmpty(t, init.PlayerID)
	assert.NotEmpty(t, init.ReconnectToken)
	assert.Len(t, init.Enemies, 1)
}
