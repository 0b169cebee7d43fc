package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/ec-checkout/internal/config"
	"github.com/example/ec-checkout/internal/infrastructure/broker"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/projection"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Projector] Invalid configuration: %v", err)
	}

	log.Println("[Projector] ========================================")
	log.Println("[Projector] Checkout Read Model Projector")
	log.Println("[Projector] ========================================")
	log.Printf("[Projector] Broker: %s", cfg.EventBroker)
	log.Printf("[Projector] Group:  %s", cfg.ProjectorGroup)

	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[Projector] Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()
	log.Println("[Projector] Connected to PostgreSQL (Read DB)")

	readStore := store.NewPostgresReadStore(db)
	if err := readStore.EnsureSchema(ctx); err != nil {
		log.Fatalf("[Projector] Failed to prepare read tables: %v", err)
	}
	projector := projection.NewProjector(readStore)

	events, err := broker.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("[Projector] Failed to open event broker: %v", err)
	}
	defer events.Close()

	consume := events.Subscribe(cfg.ProjectorGroup)
	if consume == nil {
		log.Fatalf("[Projector] EVENT_BROKER=%s cannot be consumed by a long-running projector", cfg.EventBroker)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Println("[Projector] Starting event consumer...")
		if err := consume(ctx, projector.HandleEvent); err != nil && ctx.Err() == nil {
			log.Printf("[Projector] Consumer error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-done:
	}

	log.Println("[Projector] Shutting down...")
	cancel()
	<-done
}
