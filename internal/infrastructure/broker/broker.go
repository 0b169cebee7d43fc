// Package broker selects the event transport named by EVENT_BROKER and exposes it as a journal
// publisher plus consumer subscriptions.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/example/ec-checkout/internal/config"
	"github.com/example/ec-checkout/internal/infrastructure/kafka"
	"github.com/example/ec-checkout/internal/infrastructure/rabbitmq"
	sqspub "github.com/example/ec-checkout/internal/infrastructure/sqs"
	"github.com/example/ec-checkout/internal/infrastructure/store"
)

// Handler receives one journal event keyed by aggregate id.
type Handler func(ctx context.Context, key, value []byte) error

// Subscription feeds events to handler until ctx is done.
type Subscription func(ctx context.Context, handler Handler) error

type Broker struct {
	cfg       config.Config
	publisher store.EventPublisher
	rabbit    *rabbitmq.Broker
	closers   []io.Closer
}

// Open connects to the configured broker. BrokerNone yields a broker with no publisher.
func Open(ctx context.Context, cfg config.Config) (*Broker, error) {
	b := &Broker{cfg: cfg}

	switch cfg.EventBroker {
	case config.BrokerKafka:
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		b.publisher = producer
		b.closers = append(b.closers, producer)
		log.Printf("[Broker] Kafka %v topic %s", cfg.KafkaBrokers, cfg.KafkaTopic)
	case config.BrokerRabbitMQ:
		rabbit, err := rabbitmq.Dial(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, err
		}
		b.rabbit = rabbit
		b.publisher = rabbit
		b.closers = append(b.closers, rabbit)
		log.Printf("[Broker] RabbitMQ exchange %s", cfg.AMQPExchange)
	case config.BrokerSQS:
		awsCfg, err := config.LoadAWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		b.publisher = sqspub.NewPublisher(sqs.NewFromConfig(awsCfg), cfg.SQSQueueURL)
		log.Printf("[Broker] SQS queue %s", cfg.SQSQueueURL)
	case config.BrokerNone:
	default:
		return nil, fmt.Errorf("unknown event broker %q", cfg.EventBroker)
	}
	return b, nil
}

// Publisher returns nil when events are not fanned out.
func (b *Broker) Publisher() store.EventPublisher {
	return b.publisher
}

// Subscribe returns a subscription for the given consumer group, used as the RabbitMQ queue name.
// SQS is consumed by Lambda, so it and BrokerNone return nil.
func (b *Broker) Subscribe(group string) Subscription {
	switch b.cfg.EventBroker {
	case config.BrokerKafka:
		consumer := kafka.NewConsumer(b.cfg.KafkaBrokers, b.cfg.KafkaTopic, group)
		b.closers = append(b.closers, consumer)
		return func(ctx context.Context, handler Handler) error {
			return consumer.Consume(ctx, kafka.MessageHandler(handler))
		}
	case config.BrokerRabbitMQ:
		return func(ctx context.Context, handler Handler) error {
			return b.rabbit.Consume(ctx, group, rabbitmq.MessageHandler(handler))
		}
	}
	return nil
}

func (b *Broker) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Inline delivers published events straight to handler in the same process.
type Inline Handler

func (h Inline) Publish(ctx context.Context, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return h(ctx, []byte(key), data)
}

// Fanout publishes to every target, skipping nil ones. All targets are tried; the errors are joined.
type Fanout []store.EventPublisher

func (f Fanout) Publish(ctx context.Context, key string, event any) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, key, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
