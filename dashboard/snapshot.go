package dashboard

import (
	"sync/atomic"
	"time"
)

// ConnectionStatus tells whether the last refresh reached the mailbox.
type ConnectionStatus string

const (
	// Disconnected is the initial state and the state after an
	// unauthorized refresh.
	Disconnected ConnectionStatus = "disconnected"
	// Connected is set by every successful refresh.
	Connected ConnectionStatus = "connected"
)

// Snapshot is an immutable view of the matching messages.  A new value is
// published per change; published values are never modified.
type Snapshot struct {
	Records          []NormalizedMessage `json:"records"`
	LastRefreshedAt  time.Time           `json:"lastRefreshedAt"`
	ConnectionStatus ConnectionStatus    `json:"connectionStatus"`
	ActiveFilter     string              `json:"activeFilter"`
	TotalCount       int                 `json:"totalCount"`
}

// SnapshotStore owns the current snapshot and the requested filter.
// Readers never block and always see a fully formed snapshot.
type SnapshotStore struct {
	current atomic.Pointer[Snapshot]
	filter  atomic.Pointer[string]
}

// NewSnapshotStore returns a store holding an empty, disconnected snapshot.
func NewSnapshotStore(initialFilter string) *SnapshotStore {
	initialFilter = sanitizeFilter(initialFilter)
	s := &SnapshotStore{}
	s.current.Store(&Snapshot{
		Records:          []NormalizedMessage{},
		LastRefreshedAt:  time.Now(),
		ConnectionStatus: Disconnected,
		ActiveFilter:     initialFilter,
	})
	s.filter.Store(&initialFilter)
	return s
}

// Get returns the current snapshot.  Callers must not modify it.
func (s *SnapshotStore) Get() *Snapshot {
	return s.current.Load()
}

// RequestedFilter returns the filter the next refresh should use.
func (s *SnapshotStore) RequestedFilter() string {
	return *s.filter.Load()
}

// setRequestedFilter records a new filter in its sanitized form.  Returns
// false when nothing is left after sanitizing.
func (s *SnapshotStore) setRequestedFilter(filter string) bool {
	filter = sanitizeFilter(filter)
	if filter == "" {
		return false
	}
	s.filter.Store(&filter)
	return true
}

// publish replaces the snapshot with the outcome of a successful refresh.
func (s *SnapshotStore) publish(records []NormalizedMessage, filter string, at time.Time) {
	if records == nil {
		records = []NormalizedMessage{}
	}
	s.current.Store(&Snapshot{
		Records:          records,
		LastRefreshedAt:  at,
		ConnectionStatus: Connected,
		ActiveFilter:     filter,
		TotalCount:       len(records),
	})
}

// markDisconnected publishes a copy of the current snapshot with its status
// set to disconnected.  Records are kept.
func (s *SnapshotStore) markDisconnected() {
	for {
		old := s.current.Load()
		if old.ConnectionStatus == Disconnected {
			return
		}
		next := *old
		next.ConnectionStatus = Disconnected
		if s.current.CompareAndSwap(old, &next) {
			return
		}
	}
}
