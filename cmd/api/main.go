package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/example/ec-checkout/internal/api"
	"github.com/example/ec-checkout/internal/auth"
	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/command"
	"github.com/example/ec-checkout/internal/config"
	"github.com/example/ec-checkout/internal/infrastructure/broker"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/marketplace"
	"github.com/example/ec-checkout/internal/projection"
	"github.com/example/ec-checkout/internal/query"
)

// apiConsumerGroup keeps the gateway's own projection separate from the standalone projector.
const apiConsumerGroup = "checkout-api"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log.Fatalf("[API] Invalid configuration: %v", err)
	}

	log.Println("[API] ========================================")
	log.Println("[API] Checkout Gateway")
	log.Println("[API] ========================================")
	log.Printf("[API] Marketplace: %s (timeout %s)", cfg.MarketplaceURL, cfg.MarketplaceTimeout)
	log.Printf("[API] Journal: %s", cfg.JournalBackend)
	log.Printf("[API] Broker:  %s", cfg.EventBroker)

	// Read side: order views are a short-lived cache, checkouts are a projection
	views := store.NewReadStoreWithTTL(cfg.OrderCacheTTL)
	infra, err := connect(ctx, cfg)
	if err != nil {
		log.Fatalf("[API] %v", err)
	}
	defer infra.Close()

	suppressions := query.NewSuppressions(cfg.PaymentSuppressionWindow)
	client := marketplace.NewClient(cfg.MarketplaceURL, cfg.MarketplaceTimeout)
	queryHandler := query.NewHandler(client, views, infra.checkouts, suppressions)
	projector := projection.NewProjector(infra.checkouts).WithInvalidator(queryHandler)

	// Without a consumable broker the gateway projects its own events in process
	publisher := infra.broker.Publisher()
	consume := infra.broker.Subscribe(apiConsumerGroup)
	if consume == nil {
		publisher = broker.Fanout{publisher, broker.Inline(projector.HandleEvent)}
	}

	journal, err := infra.journal(ctx, cfg, publisher)
	if err != nil {
		log.Fatalf("[API] %v", err)
	}

	log.Println("[API] Replaying journal...")
	replayEvents(ctx, journal, projector)

	var wg sync.WaitGroup
	if consume != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Println("[API] Starting event consumer (async projection)...")
			if err := consume(ctx, projector.HandleEvent); err != nil && ctx.Err() == nil {
				log.Printf("[API] Projector error: %v", err)
			}
		}()
	}

	orchestrator := checkout.NewOrchestrator(client, client, client, journal, infra.recorder(ctx, cfg))
	cmdHandler := command.NewHandler(client, queryHandler, journal, suppressions)
	jwtService := auth.NewJWTService(cfg.JWTSecret, 15*time.Minute)

	router := api.NewRouter(api.NewHandlers(orchestrator, cmdHandler, queryHandler), jwtService)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[API] Server started on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[API] Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[API] Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[API] Shutdown error: %v", err)
	}

	wg.Wait()
}

// replayEvents rebuilds the checkout read models from the journal.
func replayEvents(ctx context.Context, journal store.JournalInterface, projector *projection.Projector) {
	events, err := journal.GetAllEvents(ctx)
	if err != nil {
		log.Printf("[API] Journal replay skipped: %v", err)
		return
	}
	log.Printf("[API] Replaying %d events from journal...", len(events))

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			log.Printf("[API] Error encoding event %s: %v", event.ID, err)
			continue
		}
		if err := projector.HandleEvent(ctx, []byte(event.AggregateID), data); err != nil {
			log.Printf("[API] Error replaying event %s: %v", event.ID, err)
		}
	}
	log.Println("[API] Journal replay completed - read models rebuilt")
}
