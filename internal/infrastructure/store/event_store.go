package store

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one journal entry
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
}

// Decode unmarshals the event payload into v
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

func newEvent(aggregateID, aggregateType, eventType string, data any, version int) (Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     time.Now(),
		Version:       version,
	}, nil
}

// MemoryJournal keeps events in process and publishes them after each append
type MemoryJournal struct {
	mu        sync.RWMutex
	events    map[string][]Event // aggregateID -> events
	publisher EventPublisher
}

func NewMemoryJournal(publisher EventPublisher) *MemoryJournal {
	return &MemoryJournal{
		events:    make(map[string][]Event),
		publisher: publisher,
	}
}

// Append stores an event and publishes it
func (j *MemoryJournal) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error) {
	j.mu.Lock()
	event, err := newEvent(aggregateID, aggregateType, eventType, data, len(j.events[aggregateID])+1)
	if err != nil {
		j.mu.Unlock()
		return nil, err
	}
	j.events[aggregateID] = append(j.events[aggregateID], event)
	j.mu.Unlock()

	if j.publisher != nil {
		if err := j.publisher.Publish(ctx, aggregateID, event); err != nil {
			log.Printf("[Journal] Failed to publish %s for %s: %v", eventType, aggregateID, err)
			return nil, err
		}
	}

	return &event, nil
}

// GetEvents returns all events for an aggregate
func (j *MemoryJournal) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Event, len(j.events[aggregateID]))
	copy(out, j.events[aggregateID])
	return out, nil
}

// GetAllEvents returns every event ordered by timestamp
func (j *MemoryJournal) GetAllEvents(ctx context.Context) ([]Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var all []Event
	for _, events := range j.events {
		all = append(all, events...)
	}
	sort.SliceStable(all, func(a, b int) bool {
		return all[a].Timestamp.Before(all[b].Timestamp)
	})
	return all, nil
}
