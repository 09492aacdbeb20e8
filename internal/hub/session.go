package hub

import (
	"time"

	json "github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	"emberfall/server/internal/ingest"
	"emberfall/server/internal/protocol"
)

// ServeConn runs the session for one upgraded connection: the join
// handshake, then the intent read pump until the transport drops. It
// blocks for the life of the connection.
func (h *Hub) ServeConn(conn Conn) {
	sub := newSubscriber(conn)

	playerID, err := h.handshake(conn, sub)
	if err != nil {
		h.log.Debug().Err(err).Msg("handshake failed")
		sub.close()
		return
	}

	h.readPump(playerID, conn, sub)
}

// handshake waits for exactly one player:join within the join timeout,
// admits the player, and delivers game:init before any other traffic.
func (h *Hub) handshake(conn Conn, sub *subscriber) (string, error) {
	conn.SetReadLimit(h.cfg.MaxMessageBytes)
	if err := conn.SetReadDeadline(time.Now().Add(h.cfg.JoinTimeout)); err != nil {
		return "", eris.Wrap(err, "set join deadline")
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return "", eris.Wrap(err, "read join")
	}
	env, err := protocol.Decode(raw)
	if err != nil {
		return "", eris.Wrap(err, "decode join envelope")
	}
	if env.Type != protocol.TypePlayerJoin {
		return "", eris.Errorf("expected %s, got %s", protocol.TypePlayerJoin, env.Type)
	}
	var req protocol.JoinRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		return "", eris.Wrap(err, "decode join payload")
	}

	// Registration makes the subscriber visible to broadcasts, so the
	// write mutex is held from before join until game:init is on the
	// wire: any tick or point event landing in between queues behind it
	// and game:init stays the first frame the client sees.
	sub.reserve()
	playerID, init, announce, ok := h.join(req, sub)
	if !ok {
		sub.release()
		return "", eris.New("hub is shutting down")
	}

	data, err := protocol.Encode(protocol.TypeGameInit, init)
	if err != nil {
		sub.release()
		h.dropConnection(sub)
		return "", eris.Wrap(err, "encode game:init")
	}
	writeErr := sub.writeReserved(data, h.cfg.WriteWait)
	sub.release()
	if writeErr != nil {
		h.dropConnection(sub)
		return "", eris.Wrap(writeErr, "send game:init")
	}

	// Announce to everyone already in; the joiner has the init snapshot.
	h.broadcast(announce.Type, announce.Data, playerID)

	// Handshake done; idle sessions stay open as long as the socket does.
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return "", eris.Wrap(err, "clear read deadline")
	}
	return playerID, nil
}

// readPump decodes and dispatches intents until the connection errors out.
func (h *Hub) readPump(playerID string, conn Conn, sub *subscriber) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			h.dropConnection(sub)
			return
		}
		h.tel.RecordMessageIn()

		env, err := protocol.Decode(raw)
		if err != nil {
			h.log.Debug().Str("player", playerID).Err(err).Msg("discarding malformed message")
			continue
		}
		intent, err := protocol.DecodeIntent(env)
		if err != nil {
			h.log.Debug().Str("player", playerID).Err(err).Msg("discarding unknown intent")
			continue
		}

		h.dispatch(playerID, intent)
	}
}

// dispatch runs one intent through validation and fans out the resulting
// point events. The recover guard isolates a panicking handler so one bad
// message cannot take the event loop down with it.
func (h *Hub) dispatch(playerID string, intent protocol.Intent) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Str("player", playerID).Interface("panic", r).
				Msg("intent handler panicked")
		}
	}()

	// The deferred unlock keeps the registry usable even when Handle
	// panics past the recover guard above.
	result := func() ingest.Result {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.ingest.Handle(playerID, intent, time.Now())
	}()

	if !result.Accepted {
		h.tel.RecordRejectedIntent()
	}

	for _, event := range result.Events {
		exclude := ""
		if event.Type == protocol.TypePlayerMoved {
			// The mover predicts locally; echoing its own move back
			// would fight the prediction.
			exclude = playerID
		}
		h.broadcast(event.Type, event.Data, exclude)
	}

	if result.Disconnect {
		h.kick(playerID)
	}
}
