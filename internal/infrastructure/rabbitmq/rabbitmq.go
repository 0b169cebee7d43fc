package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/example/ec-checkout/internal/infrastructure/store"
	amqp "github.com/rabbitmq/amqp091-go"
)

const headerAggregateID = "aggregate-id"

type MessageHandler func(ctx context.Context, key, value []byte) error

// channel is the subset of *amqp.Channel used here.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Broker publishes journal events to a topic exchange, routed by event type.
type Broker struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
}

// Dial connects and declares the exchange.
func Dial(url, exchange string) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	b, err := newBroker(ch, exchange)
	if err != nil {
		conn.Close()
		return nil, err
	}
	b.conn = conn
	return b, nil
}

func newBroker(ch channel, exchange string) (*Broker, error) {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Broker{ch: ch, exchange: exchange}, nil
}

func (b *Broker) Publish(ctx context.Context, key string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	routingKey := "event"
	msgID := ""
	switch e := event.(type) {
	case store.Event:
		routingKey, msgID = e.EventType, e.ID
	case *store.Event:
		routingKey, msgID = e.EventType, e.ID
	}

	return b.ch.PublishWithContext(ctx, b.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msgID,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{headerAggregateID: key},
		Body:         body,
	})
}

// Consume binds a durable queue to every event type and feeds deliveries to handler until ctx is done.
func (b *Broker) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	if _, err := b.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := b.ch.QueueBind(queue, "#", b.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}
	deliveries, err := b.ch.Consume(queue, queue, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", queue)
			}
			key, _ := d.Headers[headerAggregateID].(string)
			if err := handler(ctx, []byte(key), d.Body); err != nil {
				log.Printf("[RabbitMQ %s] Error handling message %s: %v", queue, d.MessageId, err)
			}
			if err := d.Ack(false); err != nil {
				log.Printf("[RabbitMQ %s] Error acking message %s: %v", queue, d.MessageId, err)
			}
		}
	}
}

func (b *Broker) Close() error {
	err := b.ch.Close()
	if b.conn != nil {
		if cerr := b.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
