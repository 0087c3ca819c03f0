package notify

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pulseboard/pulseboard/internal/logger"
	"github.com/pulseboard/pulseboard/internal/observability/metrics"
)

// Priority orders queued deliveries. Lower values are processed first.
type Priority int

const (
	PriorityUrgent Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// ParsePriority converts a priority name to a Priority. Unknown names map
// to normal.
func ParsePriority(name string) Priority {
	switch name {
	case "urgent":
		return PriorityUrgent
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// Queue item lifecycle states. An item is in exactly one state at any time.
const (
	ItemPending    = "pending"
	ItemProcessing = "processing"
	ItemSent       = "sent"
	ItemFailed     = "failed"
	ItemCancelled  = "cancelled"
)

// Sender performs the external delivery for one request. Implementations
// wrap provider clients (SendGrid, Twilio); errors trigger the queue's
// retry logic.
type Sender[T any] interface {
	Send(ctx context.Context, req T) (DeliveryStatus, error)
}

// Gate is consulted immediately before each send attempt. A blocked request
// is dropped without retry. Used by the SMS queue to re-check opt-in consent
// between enqueue and send.
type Gate[T any] func(ctx context.Context, req T) (allowed bool, reason string)

// Item is one queued delivery.
type Item[T any] struct {
	ID          string
	Request     T
	Priority    Priority
	RetryCount  int
	MaxRetries  int
	ScheduledAt time.Time
	CreatedAt   time.Time
	Status      string
	LastError   string

	seq uint64 // insertion order, breaks ordering ties
}

// QueueConfig controls a delivery queue's scheduler and retry policy.
type QueueConfig struct {
	// TickInterval is the scheduler period. Defaults to 10s.
	TickInterval time.Duration
	// MaxRetries caps failed attempts before an item is marked failed.
	// Defaults to 3.
	MaxRetries int
	// BackoffBase is multiplied by 2^retryCount on reschedule.
	// Defaults to 5m.
	BackoffBase time.Duration
	// SendTimeout bounds one send attempt. Defaults to 30s.
	SendTimeout time.Duration
}

func (c *QueueConfig) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = 10 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 5 * time.Minute
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
}

// QueueStats is a point-in-time snapshot of queue activity.
type QueueStats struct {
	Channel   string `json:"channel"`
	Pending   int    `json:"pending"`
	Enqueued  uint64 `json:"enqueued"`
	Sent      uint64 `json:"sent"`
	Failed    uint64 `json:"failed"`
	Cancelled uint64 `json:"cancelled"`
	Dropped   uint64 `json:"dropped"`
}

// Queue is a priority-ordered, time-scheduled, retrying delivery queue.
// Items are processed on a fixed tick; a tick still running when the next
// timer fires is skipped, so at most one processing pass is in flight.
// Enqueue and Cancel are safe to call from any goroutine at any time.
type Queue[T any] struct {
	name     string
	sender   Sender[T]
	gate     Gate[T]
	statuses *StatusStore
	cfg      QueueConfig
	log      logger.Logger

	mu      sync.Mutex
	items   []*Item[T]
	nextSeq uint64

	enqueued  atomic.Uint64
	sent      atomic.Uint64
	failed    atomic.Uint64
	cancelled atomic.Uint64
	dropped   atomic.Uint64

	processing atomic.Bool
	stopCh     chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
}

// NewQueue creates a delivery queue. gate may be nil when the channel has
// no pre-send compliance check.
func NewQueue[T any](name string, sender Sender[T], gate Gate[T], statuses *StatusStore, cfg QueueConfig, log logger.Logger) *Queue[T] {
	cfg.applyDefaults()
	return &Queue[T]{
		name:     name,
		sender:   sender,
		gate:     gate,
		statuses: statuses,
		cfg:      cfg,
		log:      log.With(logger.String("queue", name)),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Enqueue adds a delivery request and returns its item ID. The item becomes
// due after the given delay.
func (q *Queue[T]) Enqueue(req T, priority Priority, delay time.Duration) string {
	now := time.Now()
	item := &Item[T]{
		ID:          uuid.NewString(),
		Request:     req,
		Priority:    priority,
		MaxRetries:  q.cfg.MaxRetries,
		ScheduledAt: now.Add(delay),
		CreatedAt:   now,
		Status:      ItemPending,
	}

	q.mu.Lock()
	item.seq = q.nextSeq
	q.nextSeq++
	q.items = append(q.items, item)
	depth := len(q.items)
	q.mu.Unlock()

	q.enqueued.Add(1)
	metrics.QueueDepth.WithLabelValues(q.name).Set(float64(depth))
	return item.ID
}

// Cancel removes a pending item. Cancelling an item already in flight is a
// no-op; Cancel reports whether the item was cancelled.
func (q *Queue[T]) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, item := range q.items {
		if item.ID != id {
			continue
		}
		if item.Status != ItemPending {
			return false
		}
		item.Status = ItemCancelled
		q.items = slices.Delete(q.items, i, i+1)
		q.cancelled.Add(1)
		metrics.QueueDepth.WithLabelValues(q.name).Set(float64(len(q.items)))
		return true
	}
	return false
}

// Start runs the scheduler loop until Stop is called.
func (q *Queue[T]) Start() {
	go func() {
		defer close(q.done)
		ticker := time.NewTicker(q.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				q.Process(context.Background())
			case <-q.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the scheduler loop. Safe to call multiple times.
func (q *Queue[T]) Stop() {
	q.stopOnce.Do(func() {
		close(q.stopCh)
	})
	<-q.done
}

// Process runs one scheduler pass: every pending item whose scheduled time
// has arrived is attempted once, in priority order. If a previous pass is
// still running the call returns immediately.
func (q *Queue[T]) Process(ctx context.Context) {
	if !q.processing.CompareAndSwap(false, true) {
		return
	}
	defer q.processing.Store(false)

	now := time.Now()
	q.mu.Lock()
	var due []*Item[T]
	for _, item := range q.items {
		if item.Status == ItemPending && !item.ScheduledAt.After(now) {
			item.Status = ItemProcessing
			due = append(due, item)
		}
	}
	q.mu.Unlock()

	slices.SortStableFunc(due, func(a, b *Item[T]) int {
		if a.Priority != b.Priority {
			return int(a.Priority) - int(b.Priority)
		}
		if !a.ScheduledAt.Equal(b.ScheduledAt) {
			return a.ScheduledAt.Compare(b.ScheduledAt)
		}
		return int(a.seq) - int(b.seq)
	})

	for _, item := range due {
		q.attempt(ctx, item)
	}
}

func (q *Queue[T]) attempt(ctx context.Context, item *Item[T]) {
	if q.gate != nil {
		allowed, reason := q.gate(ctx, item.Request)
		if !allowed {
			q.log.Warn("delivery blocked by pre-send gate, dropping item",
				logger.String("item_id", item.ID),
				logger.String("reason", reason))
			q.statuses.Record(DeliveryStatus{
				MessageID: item.ID,
				Channel:   q.name,
				Status:    DeliveryStatusDropped,
				Error:     reason,
			})
			q.dropped.Add(1)
			metrics.Deliveries.WithLabelValues(q.name, "dropped").Inc()
			q.remove(item.ID)
			return
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, q.cfg.SendTimeout)
	status, err := q.sender.Send(sendCtx, item.Request)
	cancel()

	if err == nil {
		q.mu.Lock()
		item.Status = ItemSent
		q.mu.Unlock()
		if status.MessageID == "" {
			status.MessageID = item.ID
		}
		if status.Status == "" {
			status.Status = DeliveryStatusSent
		}
		status.Channel = q.name
		q.statuses.Record(status)
		q.sent.Add(1)
		metrics.Deliveries.WithLabelValues(q.name, "sent").Inc()
		q.remove(item.ID)
		return
	}

	q.mu.Lock()
	item.RetryCount++
	item.LastError = err.Error()
	retries := item.RetryCount
	exhausted := retries >= item.MaxRetries
	if exhausted {
		item.Status = ItemFailed
	}
	q.mu.Unlock()

	if exhausted {
		q.log.Error("delivery failed permanently",
			logger.String("item_id", item.ID),
			logger.Int("attempts", retries),
			logger.Error(err))
		q.statuses.Record(DeliveryStatus{
			MessageID: item.ID,
			Channel:   q.name,
			Status:    DeliveryStatusFailed,
			Error:     err.Error(),
		})
		q.failed.Add(1)
		metrics.Deliveries.WithLabelValues(q.name, "failed").Inc()
		q.remove(item.ID)
		return
	}

	// Exponential backoff: 2^retryCount * base.
	backoff := time.Duration(1<<uint(retries)) * q.cfg.BackoffBase
	q.mu.Lock()
	item.ScheduledAt = time.Now().Add(backoff)
	item.Status = ItemPending
	q.mu.Unlock()

	q.log.Warn("delivery failed, rescheduled",
		logger.String("item_id", item.ID),
		logger.Int("retry_count", retries),
		logger.Duration("backoff", backoff),
		logger.Error(err))
	metrics.Deliveries.WithLabelValues(q.name, "retried").Inc()
}

func (q *Queue[T]) remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, item := range q.items {
		if item.ID == id {
			q.items = slices.Delete(q.items, i, i+1)
			break
		}
	}
	metrics.QueueDepth.WithLabelValues(q.name).Set(float64(len(q.items)))
}

// Get returns a snapshot of the item with the given ID.
func (q *Queue[T]) Get(id string) (Item[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		if item.ID == id {
			return *item, true
		}
	}
	return Item[T]{}, false
}

// Len returns the number of active (pending or processing) items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stats returns a snapshot of queue counters.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	pending := len(q.items)
	q.mu.Unlock()
	return QueueStats{
		Channel:   q.name,
		Pending:   pending,
		Enqueued:  q.enqueued.Load(),
		Sent:      q.sent.Load(),
		Failed:    q.failed.Load(),
		Cancelled: q.cancelled.Load(),
		Dropped:   q.dropped.Load(),
	}
}
