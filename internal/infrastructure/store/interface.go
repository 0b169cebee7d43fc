package store

import "context"

// EventPublisher fans journal events out to a broker. Kafka, RabbitMQ and SQS implement it.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// JournalInterface records checkout and order-action events in append order per aggregate.
type JournalInterface interface {
	Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error)
	GetEvents(ctx context.Context, aggregateID string) ([]Event, error)
	GetAllEvents(ctx context.Context) ([]Event, error)
}
