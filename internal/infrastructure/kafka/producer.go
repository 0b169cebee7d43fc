package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/segmentio/kafka-go"
)

// HeaderEventType carries the journal event type so consumers can filter without decoding.
const HeaderEventType = "event-type"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes journal events to a topic, keyed by aggregate id.
type Producer struct {
	writer messageWriter
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &Producer{writer: writer}
}

func (p *Producer) Publish(ctx context.Context, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}
	if eventType := eventTypeOf(event); eventType != "" {
		msg.Headers = []kafka.Header{{Key: HeaderEventType, Value: []byte(eventType)}}
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func eventTypeOf(event any) string {
	switch e := event.(type) {
	case store.Event:
		return e.EventType
	case *store.Event:
		return e.EventType
	}
	return ""
}
