package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	aegissentinel "github.com/ghalamif/AegisSentinel"
)

func main() {
	cfg, err := aegissentinel.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, batches, closeBatches := aegissentinel.NewChannelSink("fanout", 32)
	defer closeBatches()

	go fanoutWorker("escalation", batches)

	rt, err := aegissentinel.NewRuntime(ctx, cfg, aegissentinel.WithSink(sink))
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}
	if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("runtime error: %v", err)
	}
}

func fanoutWorker(name string, batches <-chan []aegissentinel.Incident) {
	for batch := range batches {
		for _, inc := range batch {
			if inc.Tier.AlertOnly() {
				fmt.Printf("[%s] %s RED %s on %s: %s\n", name, time.Now().Format(time.RFC3339), inc.ID, inc.MachineID, inc.Message)
			}
		}
	}
}
