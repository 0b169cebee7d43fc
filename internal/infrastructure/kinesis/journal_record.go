package kinesis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/ec-checkout/internal/infrastructure/store"
)

// Handler consumes one journal event, in the same key/value shape the broker consumers use.
type Handler func(ctx context.Context, key, value []byte) error

// DecodeRecord turns a Kinesis record carrying a DynamoDB stream change into a journal event.
// Non-INSERT changes yield (nil, nil).
func DecodeRecord(record events.KinesisEventRecord) (*store.Event, error) {
	var change events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &change); err != nil {
		return nil, fmt.Errorf("unmarshal stream record: %w", err)
	}
	return DecodeStreamRecord(change)
}

// DecodeStreamRecord converts a DynamoDB stream change read directly from the table stream.
func DecodeStreamRecord(change events.DynamoDBEventRecord) (*store.Event, error) {
	if change.EventName != "INSERT" {
		return nil, nil
	}
	return eventFromImage(change.Change.NewImage)
}

// eventFromImage reads the item layout written by store.DynamoJournal.
func eventFromImage(image map[string]events.DynamoDBAttributeValue) (*store.Event, error) {
	if image == nil {
		return nil, fmt.Errorf("stream record has no new image")
	}

	str := func(name string) string {
		if v, ok := image[name]; ok && v.DataType() == events.DataTypeString {
			return v.String()
		}
		return ""
	}

	event := &store.Event{
		ID:            str("id"),
		AggregateID:   str("aggregate_id"),
		AggregateType: str("aggregate_type"),
		EventType:     str("event_type"),
		Data:          json.RawMessage(str("data")),
	}
	if event.ID == "" || event.AggregateID == "" || event.EventType == "" {
		return nil, fmt.Errorf("journal item missing id, aggregate_id or event_type (id=%q aggregate=%q type=%q)",
			event.ID, event.AggregateID, event.EventType)
	}

	if created := str("created_at"); created != "" {
		t, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		event.Timestamp = t
	}
	if v, ok := image["version"]; ok {
		version, err := v.Integer()
		if err != nil {
			return nil, fmt.Errorf("parse version: %w", err)
		}
		event.Version = int(version)
	}
	return event, nil
}

// Process decodes every record and hands journal events to handler. Records that fail to decode
// or to handle are returned as batch item failures so Lambda retries only those.
func Process(ctx context.Context, name string, batch events.KinesisEvent, handler Handler) events.KinesisEventResponse {
	log.Printf("[%s] Received %d records", name, len(batch.Records))

	var failures []events.KinesisBatchItemFailure
	fail := func(record events.KinesisEventRecord, err error) {
		log.Printf("[%s] Record %s failed: %v", name, record.EventID, err)
		failures = append(failures, events.KinesisBatchItemFailure{ItemIdentifier: record.Kinesis.SequenceNumber})
	}

	for _, record := range batch.Records {
		event, err := DecodeRecord(record)
		if err != nil {
			fail(record, err)
			continue
		}
		if event == nil {
			continue
		}

		payload, err := json.Marshal(event)
		if err != nil {
			fail(record, err)
			continue
		}
		if err := handler(ctx, []byte(event.AggregateID), payload); err != nil {
			fail(record, fmt.Errorf("%s %s: %w", event.EventType, event.ID, err))
		}
	}

	log.Printf("[%s] Processed %d/%d records successfully", name, len(batch.Records)-len(failures), len(batch.Records))
	return events.KinesisEventResponse{BatchItemFailures: failures}
}
