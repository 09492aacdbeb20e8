// Package net is the operational HTTP surface: read-only status endpoints
// plus the websocket upgrade that hands connections to the hub. No business
// logic lives here.
package net

import (
	nethttp "net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"emberfall/server/internal/hub"
)

// HTTPHandlerConfig carries the handler dependencies.
type HTTPHandlerConfig struct {
	Logger zerolog.Logger
}

// NewHTTPHandler builds the mux for /health, /api/stats, /api/players, and
// /ws.
func NewHTTPHandler(h *hub.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger.With().Str("component", "http").Logger()

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/stats", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}

		players, enemies := h.Counts()
		payload := struct {
			Status        string `json:"status"`
			ServerTime    int64  `json:"serverTime"`
			UptimeSeconds int64  `json:"uptimeSeconds"`
			TickRate      int    `json:"tickRate"`
			Players       int    `json:"players"`
			Enemies       int    `json:"enemies"`
			GracePending  int    `json:"gracePending"`
			Telemetry     any    `json:"telemetry"`
		}{
			Status:        "ok",
			ServerTime:    time.Now().UnixMilli(),
			UptimeSeconds: int64(h.Uptime().Seconds()),
			TickRate:      h.TickRate(),
			Players:       players,
			Enemies:       enemies,
			GracePending:  h.PendingGraces(),
			Telemetry:     h.TelemetrySnapshot(),
		}
		writeJSON(w, payload)
	})

	mux.HandleFunc("/api/players", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}

		payload := struct {
			Players any `json:"players"`
		}{Players: h.Players()}
		writeJSON(w, payload)
	})

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	mux.HandleFunc("/ws", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
			return
		}
		go h.ServeConn(conn)
	})

	return mux
}

func writeJSON(w nethttp.ResponseWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	w.Write([]byte(message))
}
