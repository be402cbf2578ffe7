// Package events provides the in-process publish/subscribe bus that state
// containers and services use to announce changes.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/keystone-cm/filedesk/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventLog          EventType = "log"
	EventProgress     EventType = "progress"
	EventError        EventType = "error"
	EventNotification EventType = "notification"

	// Listing cache events
	EventListingInvalidated EventType = "listing_invalidated" // cached listing for a parent dropped after a mutation
	EventResyncRequired     EventType = "resync_required"     // server rejected an operation; views must re-list

	// Configuration change events
	EventConfigChanged EventType = "config_changed"
)

// LogLevel defines log severity levels
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// NewBase returns a BaseEvent stamped with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, Time: time.Now()}
}

// LogEvent represents log messages
type LogEvent struct {
	BaseEvent
	Level   LogLevel
	Message string
	EntryID string
	Error   error
}

// ProgressEvent reports bytes transferred for a download.
type ProgressEvent struct {
	BaseEvent
	EntryID      string
	Name         string
	BytesCurrent int64
	BytesTotal   int64
}

// ErrorEvent represents error conditions
type ErrorEvent struct {
	BaseEvent
	EntryID string
	Op      string
	Error   error
}

// NotificationEvent is a transient, dismissible message for the user.
type NotificationEvent struct {
	BaseEvent
	Level   LogLevel
	Message string
	EntryID string
	Op      string
	Error   error
	TTL     time.Duration
}

// ListingInvalidatedEvent names the parents whose cached listings were dropped.
type ListingInvalidatedEvent struct {
	BaseEvent
	ParentIDs []string
	Reason    string // "create", "rename", "move", "delete", "star", "conflict"
}

// ResyncRequiredEvent asks every view to re-list from the server.
type ResyncRequiredEvent struct {
	BaseEvent
	Op    string
	Error error
}

// ConfigChangedEvent represents configuration changes.
type ConfigChangedEvent struct {
	BaseEvent
	Source string // "flag", "env_var", "token_file", "config_file"
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking.
// Events for a full subscriber are dropped and counted.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}

// PublishLog is a convenience method for publishing log events
func (eb *EventBus) PublishLog(level LogLevel, message, entryID string, err error) {
	eb.Publish(&LogEvent{
		BaseEvent: NewBase(EventLog),
		Level:     level,
		Message:   message,
		EntryID:   entryID,
		Error:     err,
	})
}

// PublishProgress is a convenience method for publishing download progress
func (eb *EventBus) PublishProgress(entryID, name string, current, total int64) {
	eb.Publish(&ProgressEvent{
		BaseEvent:    NewBase(EventProgress),
		EntryID:      entryID,
		Name:         name,
		BytesCurrent: current,
		BytesTotal:   total,
	})
}

// Notify publishes a transient notification.
func (eb *EventBus) Notify(level LogLevel, op, entryID, message string, err error) {
	eb.Publish(&NotificationEvent{
		BaseEvent: NewBase(EventNotification),
		Level:     level,
		Message:   message,
		EntryID:   entryID,
		Op:        op,
		Error:     err,
		TTL:       constants.NotificationTTL,
	})
}

// Unsubscribe removes a subscription channel from a specific event type
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	subscribers := eb.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
			close(subCh)
			break
		}
	}
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}
