package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	aegissentinel "github.com/ghalamif/AegisSentinel"
)

func main() {
	cfg, err := aegissentinel.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := aegissentinel.NewRuntime(ctx, cfg)
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}
	if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("runtime exited: %v", err)
	}
}
