package alerting

import (
	"sync"
	"time"
)

// FeedbackEvent is a read-only snapshot of a feedback submission passed into
// rule evaluation. The core never mutates it.
type FeedbackEvent struct {
	FeedbackID    uint
	TenantID      string
	Rating        int
	Text          string
	CustomerName  string
	CustomerEmail string
	HasVoice      bool
	HasImage      bool
	LocationID    string
	QRCodeID      string
	Timestamp     time.Time
}

// Properties returns the event attributes keyed by condition field name.
func (e *FeedbackEvent) Properties() map[string]any {
	return map[string]any{
		FieldOverallRating: e.Rating,
		FieldFeedbackText:  e.Text,
		FieldCustomerName:  e.CustomerName,
		FieldCustomerEmail: e.CustomerEmail,
		FieldHasVoice:      e.HasVoice,
		FieldHasImage:      e.HasImage,
		FieldLocationID:    e.LocationID,
		FieldQRCodeID:      e.QRCodeID,
	}
}

// FeedbackEventHandler processes feedback events.
type FeedbackEventHandler func(event *FeedbackEvent)

const (
	// eventBusBufferSize is the capacity of the async event channel.
	// Events are dropped if the buffer is full to avoid blocking callers.
	eventBusBufferSize = 1000
)

// EventBus is an async pub/sub for feedback events. Publish is non-blocking:
// events are sent to a buffered channel and processed by a worker goroutine,
// so the ingestion path is never blocked by rule evaluation or delivery
// dispatch.
type EventBus struct {
	handlers []FeedbackEventHandler
	mu       sync.RWMutex
	eventCh  chan *FeedbackEvent
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewEventBus creates a new feedback event bus and starts its worker.
func NewEventBus() *EventBus {
	b := &EventBus{
		handlers: make([]FeedbackEventHandler, 0),
		eventCh:  make(chan *FeedbackEvent, eventBusBufferSize),
		stopCh:   make(chan struct{}),
	}
	go b.processLoop()
	return b
}

// Subscribe registers a handler for feedback events.
func (b *EventBus) Subscribe(handler FeedbackEventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Publish enqueues an event for async processing. Non-blocking: if the buffer
// is full the event is dropped to protect callers on hot paths.
// Events are silently dropped after Stop() has been called.
// The caller's event is never mutated; a missing timestamp is backfilled
// on a copy before delivery.
func (b *EventBus) Publish(event *FeedbackEvent) {
	select {
	case <-b.stopCh:
		return // Bus is stopped, discard event
	default:
	}

	if event.Timestamp.IsZero() {
		stamped := *event
		stamped.Timestamp = time.Now()
		event = &stamped
	}

	select {
	case b.eventCh <- event:
	default:
		// Buffer full, drop event to avoid blocking callers
	}
}

// Stop shuts down the worker goroutine. Safe to call multiple times.
func (b *EventBus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
}

// processLoop drains the event channel and dispatches to handlers.
func (b *EventBus) processLoop() {
	for {
		select {
		case event := <-b.eventCh:
			b.dispatch(event)
		case <-b.stopCh:
			// Drain remaining events before exiting
			for {
				select {
				case event := <-b.eventCh:
					b.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (b *EventBus) dispatch(event *FeedbackEvent) {
	b.mu.RLock()
	handlers := make([]FeedbackEventHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.safeCall(handler, event)
	}
}

// safeCall invokes a handler with panic recovery so a panicking handler
// cannot kill the event bus goroutine.
func (b *EventBus) safeCall(handler FeedbackEventHandler, event *FeedbackEvent) {
	defer func() {
		recover() //nolint:errcheck // intentionally swallowed to keep bus alive
	}()
	handler(event)
}
