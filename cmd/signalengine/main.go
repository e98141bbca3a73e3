package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"signal-systemv1/config"
	"signal-systemv1/internal/engine"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[signalengine] invalid configuration: %v", err)
	}
	log.Printf("[signalengine] %s @ %ds, feed=%s, rule=%s", cfg.Symbol, cfg.Timeframe, cfg.FeedMode, cfg.Rule)

	svc, err := engine.New(cfg)
	if err != nil {
		log.Fatalf("[signalengine] init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[signalengine] fatal: %v", err)
	}
}
