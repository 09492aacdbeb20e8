// Command emberfall-bot is a headless client for smoke-testing a running
// relay: it joins, wanders at a legal speed, pokes the nearest enemy, and
// chats, all through the same reconciliation layer the browser front end
// uses.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"emberfall/server/client"
	"emberfall/server/internal/protocol"
)

func main() {
	var (
		serverURL = flag.String("server", "ws://localhost:3000/ws", "relay websocket URL")
		username  = flag.String("username", "bot", "display name")
		class     = flag.String("class", "ranger", "character class")
		duration  = flag.Duration("duration", 0, "exit after this long (0 = run until interrupted)")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	bot := client.New(*serverURL, client.Options{
		Username: *username,
		Class:    *class,
		Logger:   logger,
	})

	go drive(ctx, bot)

	if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "bot stopped: %v (%s)\n", err, bot.StateReason())
		os.Exit(1)
	}
}

// drive wanders and fights at a human-ish cadence once connected.
func drive(ctx context.Context, bot *client.Client) {
	const stepHz = 10
	ticker := time.NewTicker(time.Second / stepHz)
	defer ticker.Stop()

	heading := rand.Float64() * 2 * math.Pi
	var elapsed int

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if bot.State() != client.StateConnected {
			continue
		}
		bot.Step()
		elapsed++

		// Wander below the server's speed cap, drifting heading slowly.
		heading += (rand.Float64() - 0.5) * 0.4
		pos := bot.Self().Position
		const speed = 4.0
		pos.X += math.Cos(heading) * speed / stepHz
		pos.Z += math.Sin(heading) * speed / stepHz
		if err := bot.SendMove(pos, heading); err != nil {
			continue
		}

		if elapsed%(stepHz*2) == 0 {
			if target, ok := nearestEnemy(bot, pos); ok {
				_ = bot.SendAttack(target, protocol.TargetEnemy, 10+rand.Float64()*15)
			}
		}
		if elapsed%(stepHz*30) == 0 {
			_ = bot.SendChat("still wandering")
		}
		if bot.Self().Health <= 0 {
			_ = bot.SendRespawn()
		}
	}
}

func nearestEnemy(bot *client.Client, from protocol.Vec3) (string, bool) {
	best := ""
	bestDist := math.Inf(1)
	for _, e := range bot.Enemies() {
		if !e.Alive {
			continue
		}
		if d := e.Position.Dist(from); d < bestDist {
			best = e.ID
			bestDist = d
		}
	}
	return best, best != ""
}
