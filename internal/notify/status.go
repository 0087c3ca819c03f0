package notify

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Delivery outcomes reported by providers or assigned by the queue.
const (
	DeliveryStatusSent      = "sent"
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusBounced   = "bounced"
	DeliveryStatusDropped   = "dropped"
	DeliveryStatusDeferred  = "deferred"
	DeliveryStatusFailed    = "failed"
)

// DeliveryStatus records the outcome of one delivery attempt.
type DeliveryStatus struct {
	MessageID string    `json:"message_id"`
	Channel   string    `json:"channel"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Recipient string    `json:"recipient"`
	Error     string    `json:"error,omitempty"`
}

// statusSweepInterval is how often expired entries are reclaimed.
const statusSweepInterval = 1 * time.Hour

// StatusStore retains delivery statuses for a bounded window. Entries expire
// after the retention period and are swept on a fixed schedule, so the store
// never grows without bound.
type StatusStore struct {
	cache *gocache.Cache
}

// NewStatusStore creates a store that retains statuses for the given window.
// A zero retention defaults to 30 days.
func NewStatusStore(retention time.Duration) *StatusStore {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &StatusStore{
		cache: gocache.New(retention, statusSweepInterval),
	}
}

// Record stores the status under its message ID.
func (s *StatusStore) Record(status DeliveryStatus) {
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	s.cache.SetDefault(status.MessageID, status)
}

// Get returns the status for a message ID, if still retained.
func (s *StatusStore) Get(messageID string) (DeliveryStatus, bool) {
	v, ok := s.cache.Get(messageID)
	if !ok {
		return DeliveryStatus{}, false
	}
	return v.(DeliveryStatus), true
}

// Len returns the number of retained statuses.
func (s *StatusStore) Len() int {
	return s.cache.ItemCount()
}
