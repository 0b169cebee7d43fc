package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/config"
	"github.com/example/ec-checkout/internal/infrastructure/broker"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/metrics"
)

// deps holds the external connections of the gateway.
type deps struct {
	db        *sql.DB
	broker    *broker.Broker
	checkouts store.ReadStoreInterface
	awsCfg    *aws.Config
}

// connect opens the broker and the checkout read store. With a durable journal the read models
// live in PostgreSQL so the standalone and Lambda projectors share them.
func connect(ctx context.Context, cfg config.Config) (*deps, error) {
	b, err := broker.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open event broker: %w", err)
	}
	d := &deps{broker: b}

	if cfg.JournalBackend == config.JournalMemory {
		d.checkouts = store.NewReadStore()
		return d, nil
	}

	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	d.db = db
	log.Println("[API] Connected to PostgreSQL")

	readStore := store.NewPostgresReadStore(db)
	if err := readStore.EnsureSchema(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to prepare read tables: %w", err)
	}
	d.checkouts = readStore
	return d, nil
}

func (d *deps) aws(ctx context.Context) (aws.Config, error) {
	if d.awsCfg == nil {
		cfg, err := config.LoadAWSConfig(ctx)
		if err != nil {
			return cfg, err
		}
		d.awsCfg = &cfg
	}
	return *d.awsCfg, nil
}

// journal builds the configured journal. DynamoDB fans out through its stream, so publisher
// is only used by the memory and PostgreSQL journals.
func (d *deps) journal(ctx context.Context, cfg config.Config, publisher store.EventPublisher) (store.JournalInterface, error) {
	switch cfg.JournalBackend {
	case config.JournalPostgres:
		j := store.NewPostgresJournal(d.db, publisher)
		if err := j.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare journal table: %w", err)
		}
		return j, nil
	case config.JournalDynamoDB:
		awsCfg, err := d.aws(ctx)
		if err != nil {
			return nil, err
		}
		log.Printf("[API] DynamoDB journal table %s (fan-out via stream)", cfg.DynamoTable)
		return store.NewDynamoJournal(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable), nil
	default:
		return store.NewMemoryJournal(publisher), nil
	}
}

// recorder publishes checkout outcomes to CloudWatch when a namespace is set.
func (d *deps) recorder(ctx context.Context, cfg config.Config) checkout.Recorder {
	if cfg.MetricsNamespace == "" {
		return metrics.LogRecorder{}
	}
	awsCfg, err := d.aws(ctx)
	if err != nil {
		log.Printf("[API] CloudWatch metrics disabled: %v", err)
		return metrics.LogRecorder{}
	}
	return metrics.NewCloudWatchRecorder(cloudwatch.NewFromConfig(awsCfg), cfg.MetricsNamespace)
}

func (d *deps) Close() {
	if err := d.broker.Close(); err != nil {
		log.Printf("[API] Error closing broker: %v", err)
	}
	if d.db != nil {
		d.db.Close()
	}
}
