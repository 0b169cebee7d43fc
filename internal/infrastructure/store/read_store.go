package store

import (
	"sync"
	"time"
)

type entry struct {
	data      any
	expiresAt time.Time // zero means no expiry
}

// ReadStore is an in-memory read model store. It also backs the order view cache,
// so entries may carry an expiry.
type ReadStore struct {
	mu      sync.RWMutex
	data    map[string]map[string]entry // collection -> id -> entry
	ttl     time.Duration
	nowFunc func() time.Time
}

func NewReadStore() *ReadStore {
	return NewReadStoreWithTTL(0)
}

// NewReadStoreWithTTL returns a store whose entries expire after ttl. A zero ttl disables expiry.
func NewReadStoreWithTTL(ttl time.Duration) *ReadStore {
	return &ReadStore{
		data:    make(map[string]map[string]entry),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// Set stores a read model
func (rs *ReadStore) Set(collection, id string, data any) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.setLocked(collection, id, data)
}

func (rs *ReadStore) setLocked(collection, id string, data any) {
	if rs.data[collection] == nil {
		rs.data[collection] = make(map[string]entry)
	}
	e := entry{data: data}
	if rs.ttl > 0 {
		e.expiresAt = rs.nowFunc().Add(rs.ttl)
	}
	rs.data[collection][id] = e
}

func (rs *ReadStore) live(e entry) bool {
	return e.expiresAt.IsZero() || rs.nowFunc().Before(e.expiresAt)
}

// Get retrieves a read model by id
func (rs *ReadStore) Get(collection, id string) (any, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	e, ok := rs.data[collection][id]
	if !ok || !rs.live(e) {
		return nil, false
	}
	return e.data, true
}

// GetAll retrieves all live items in a collection
func (rs *ReadStore) GetAll(collection string) []any {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	items := make([]any, 0, len(rs.data[collection]))
	for _, e := range rs.data[collection] {
		if rs.live(e) {
			items = append(items, e.data)
		}
	}
	return items
}

// Delete removes a read model
func (rs *ReadStore) Delete(collection, id string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.data[collection] != nil {
		delete(rs.data[collection], id)
	}
}

// Clear drops every entry of a collection
func (rs *ReadStore) Clear(collection string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	delete(rs.data, collection)
}

// Update modifies a read model using an update function
func (rs *ReadStore) Update(collection, id string, updateFn func(current any) any) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	e, ok := rs.data[collection][id]
	if !ok || !rs.live(e) {
		return false
	}
	rs.setLocked(collection, id, updateFn(e.data))
	return true
}
