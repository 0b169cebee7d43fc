package query

import (
	"sync"
	"time"
)

// Suppressions tracks, per order, a short window after a cash confirmation during which payment
// refetch errors are expected (the backend settles asynchronously) and are not surfaced.
type Suppressions struct {
	mu      sync.Mutex
	until   map[string]time.Time
	window  time.Duration
	nowFunc func() time.Time
}

func NewSuppressions(window time.Duration) *Suppressions {
	return &Suppressions{
		until:   make(map[string]time.Time),
		window:  window,
		nowFunc: time.Now,
	}
}

// Start opens the window for orderID, replacing any earlier one.
func (s *Suppressions) Start(orderID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	expires := s.nowFunc().Add(s.window)
	s.until[orderID] = expires
	return expires
}

// Active reports whether orderID is inside its window. Expired entries are dropped.
func (s *Suppressions) Active(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expires, ok := s.until[orderID]
	if !ok {
		return false
	}
	if !s.nowFunc().Before(expires) {
		delete(s.until, orderID)
		return false
	}
	return true
}
