package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aetherflow/collabedit/internal/transform"
)

// EventType tags an event fanned out to session participants.
type EventType string

const (
	EventTypeOperation       EventType = "operation"
	EventTypeLock            EventType = "lock"
	EventTypeUnlock          EventType = "unlock"
	EventTypeCursor          EventType = "cursor"
	EventTypeJoined          EventType = "joined"
	EventTypeLeft            EventType = "left"
	EventTypeConflictDropped EventType = "conflict_dropped"
	EventTypeRestore         EventType = "restore"
)

// Event is one session change delivered to subscribers. Exactly the
// fields relevant to the type are set.
type Event struct {
	ID         string                    `json:"id"`
	Type       EventType                 `json:"type"`
	DocumentID string                    `json:"document_id"`
	UserID     string                    `json:"user_id"`
	Operation  *transform.Operation      `json:"operation,omitempty"`
	Lock       *Lock                     `json:"lock,omitempty"`
	Cursor     *transform.CursorPosition `json:"cursor,omitempty"`
	Timestamp  time.Time                 `json:"timestamp"`
}

// Subscriber is one participant's event feed for a document.
type Subscriber struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	DocumentID string      `json:"document_id"`
	Channel    chan *Event `json:"-"`
	CreatedAt  time.Time   `json:"created_at"`
	Active     bool        `json:"active"`
}

// Broadcaster fans session events out to subscribed participants. A
// broadcast never blocks on an individual recipient.
type Broadcaster interface {
	// Subscribe registers a participant's event feed for a document.
	Subscribe(ctx context.Context, docID, userID string) (*Subscriber, error)

	// Unsubscribe removes a subscriber and closes its channel.
	Unsubscribe(subscriberID string) error

	// BroadcastToDocument delivers an event to the document's
	// subscribers. The author of the event (event.UserID) is skipped:
	// participants never receive an echo of their own activity.
	BroadcastToDocument(ctx context.Context, docID string, event *Event) error

	// BroadcastToUser delivers an event to one user's subscribers,
	// e.g. to tell an author their operation lost a conflict.
	BroadcastToUser(ctx context.Context, userID string, event *Event) error

	// SubscriberCount returns the number of active subscribers for a
	// document.
	SubscriberCount(docID string) int

	// Close shuts the broadcaster down and closes all channels.
	Close() error
}

// sendTimeout bounds how long a broadcast waits on one slow
// subscriber before dropping the event for it.
const sendTimeout = 100 * time.Millisecond

// MemoryBroadcaster is the in-process Broadcaster used for
// single-instance deployments and tests.
type MemoryBroadcaster struct {
	mu sync.RWMutex

	subscribers       map[string]*Subscriber
	subscribersByDoc  map[string][]string
	subscribersByUser map[string][]string

	channelBufferSize int
	logger            *zap.Logger

	closed bool
}

// NewMemoryBroadcaster creates an in-memory broadcaster.
func NewMemoryBroadcaster(logger *zap.Logger) *MemoryBroadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MemoryBroadcaster{
		subscribers:       make(map[string]*Subscriber),
		subscribersByDoc:  make(map[string][]string),
		subscribersByUser: make(map[string][]string),
		channelBufferSize: 100,
		logger:            logger,
	}
}

func (b *MemoryBroadcaster) Subscribe(ctx context.Context, docID, userID string) (*Subscriber, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("broadcaster is closed")
	}

	subID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate subscriber ID: %w", err)
	}

	subscriber := &Subscriber{
		ID:         subID.String(),
		UserID:     userID,
		DocumentID: docID,
		Channel:    make(chan *Event, b.channelBufferSize),
		CreatedAt:  time.Now(),
		Active:     true,
	}

	b.subscribers[subscriber.ID] = subscriber
	b.subscribersByDoc[docID] = append(b.subscribersByDoc[docID], subscriber.ID)
	b.subscribersByUser[userID] = append(b.subscribersByUser[userID], subscriber.ID)

	b.logger.Debug("subscriber added",
		zap.String("subscriber_id", subscriber.ID),
		zap.String("user_id", userID),
		zap.String("document_id", docID),
	)

	return subscriber, nil
}

func (b *MemoryBroadcaster) Unsubscribe(subscriberID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscriber, exists := b.subscribers[subscriberID]
	if !exists {
		return fmt.Errorf("subscriber not found")
	}

	subscriber.Active = false
	close(subscriber.Channel)
	delete(b.subscribers, subscriberID)

	b.subscribersByDoc[subscriber.DocumentID] = removeID(b.subscribersByDoc[subscriber.DocumentID], subscriberID)
	b.subscribersByUser[subscriber.UserID] = removeID(b.subscribersByUser[subscriber.UserID], subscriberID)

	b.logger.Debug("subscriber removed",
		zap.String("subscriber_id", subscriberID),
		zap.String("user_id", subscriber.UserID),
		zap.String("document_id", subscriber.DocumentID),
	)

	return nil
}

func (b *MemoryBroadcaster) BroadcastToDocument(ctx context.Context, docID string, event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("broadcaster is closed")
	}

	sent, dropped := 0, 0
	for _, subID := range b.subscribersByDoc[docID] {
		subscriber, exists := b.subscribers[subID]
		if !exists || !subscriber.Active {
			continue
		}
		// Do not echo the author's own events back to them. Restores
		// are the exception: the buffer changed under the restoring
		// user as well, so their live connections must hear it too.
		if event.Type != EventTypeRestore && event.UserID != "" && subscriber.UserID == event.UserID {
			continue
		}

		if b.deliver(ctx, subscriber, event) {
			sent++
		} else {
			dropped++
		}
	}

	b.logger.Debug("event broadcast to document",
		zap.String("document_id", docID),
		zap.String("event_type", string(event.Type)),
		zap.Int("sent", sent),
		zap.Int("dropped", dropped),
	)

	return nil
}

func (b *MemoryBroadcaster) BroadcastToUser(ctx context.Context, userID string, event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("broadcaster is closed")
	}

	for _, subID := range b.subscribersByUser[userID] {
		subscriber, exists := b.subscribers[subID]
		if !exists || !subscriber.Active {
			continue
		}
		b.deliver(ctx, subscriber, event)
	}

	return nil
}

// deliver sends without ever blocking the broadcast on one recipient:
// a full channel gets a short grace, then the event is dropped for
// that subscriber and logged.
func (b *MemoryBroadcaster) deliver(ctx context.Context, subscriber *Subscriber, event *Event) bool {
	select {
	case subscriber.Channel <- event:
		return true
	case <-time.After(sendTimeout):
		b.logger.Warn("subscriber too slow, event dropped",
			zap.String("subscriber_id", subscriber.ID),
			zap.String("event_type", string(event.Type)),
		)
		return false
	case <-ctx.Done():
		return false
	}
}

func (b *MemoryBroadcaster) SubscriberCount(docID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, subID := range b.subscribersByDoc[docID] {
		if subscriber, exists := b.subscribers[subID]; exists && subscriber.Active {
			count++
		}
	}
	return count
}

func (b *MemoryBroadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, subscriber := range b.subscribers {
		if subscriber.Active {
			subscriber.Active = false
			close(subscriber.Channel)
		}
	}

	b.subscribers = make(map[string]*Subscriber)
	b.subscribersByDoc = make(map[string][]string)
	b.subscribersByUser = make(map[string][]string)

	b.logger.Info("broadcaster closed")
	return nil
}

func removeID(ids []string, id string) []string {
	for i, candidate := range ids {
		if candidate == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// newEvent builds an event with a fresh id and current timestamp.
func newEvent(eventType EventType, docID, userID string) *Event {
	id, _ := uuid.NewV7()
	return &Event{
		ID:         id.String(),
		Type:       eventType,
		DocumentID: docID,
		UserID:     userID,
		Timestamp:  time.Now(),
	}
}
