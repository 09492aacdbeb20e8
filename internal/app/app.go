// Package app wires the relay together: config, logging, the hub, and the
// HTTP server, with a graceful shutdown path that broadcasts
// server:shutdown before the process exits.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"emberfall/server/internal/hub"
	"emberfall/server/internal/ingest"
	servernet "emberfall/server/internal/net"
	"emberfall/server/internal/protocol"
	"emberfall/server/internal/telemetry"
	"emberfall/server/internal/world"
)

// Run starts the relay and blocks until the context is canceled or the
// listener fails.
func Run(ctx context.Context, cfg Config) error {
	logger := newLogger(cfg.LogLevel)

	w := world.New(cfg.worldConfig(), logger)
	ing := ingest.New(cfg.ingestConfig(), w, logger)
	tel := telemetry.New()
	h := hub.New(cfg.hubConfig(), w, ing, tel, logger)
	h.SeedEnemies(spawnTable(cfg.EnemyCount))

	tickCtx, cancelTick := context.WithCancel(ctx)
	defer cancelTick()
	go h.Run(tickCtx)

	handler := servernet.NewHTTPHandler(h, servernet.HTTPHandlerConfig{Logger: logger})
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Int("tickRate", cfg.TickRate).Msg("relay listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		h.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "http shutdown")
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "listener failed")
		}
		return nil
	}
}

// newLogger builds the root zerolog logger; components derive children
// from it rather than touching any global.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		Level(lvl).With().Timestamp().Logger()
}

// spawnTable builds the default server-controlled enemy set. Real content
// lives in the game's dungeon generator; the relay only needs stable ids,
// positions, and health templates.
func spawnTable(count int) []protocol.Enemy {
	if count <= 0 {
		return nil
	}
	templates := []struct {
		kind   string
		health float64
	}{
		{"skeleton", 40},
		{"goblin", 60},
		{"orc", 90},
		{"wraith", 120},
	}
	enemies := make([]protocol.Enemy, 0, count)
	for i := 0; i < count; i++ {
		tpl := templates[i%len(templates)]
		enemies = append(enemies, protocol.Enemy{
			ID:        fmt.Sprintf("enemy_%d", i+1),
			Type:      tpl.kind,
			Health:    tpl.health,
			MaxHealth: tpl.health,
			Alive:     true,
			Position: protocol.Vec3{
				X: float64(10 + (i%4)*12),
				Z: float64(10 + (i/4)*12),
			},
		})
	}
	return enemies
}
