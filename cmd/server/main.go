package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"emberfall/server/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := app.Run(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}
