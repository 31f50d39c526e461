package books

import (
	"context"
	"log/slog"
	"time"

	"github.com/SeaRoll/bookshelf/queue"
	jsoniter "github.com/json-iterator/go"
)

const (
	EventCreated = "books.created"
	EventUpdated = "books.updated"
	EventDeleted = "books.deleted"
)

var json = jsoniter.ConfigFastest

// Publisher sends a message to a topic. queue.Queue satisfies it.
type Publisher interface {
	Publish(topic string, message []byte, timeout ...time.Duration) error
}

// EventBook is the book carried by an event. Deleted books only carry their id.
type EventBook struct {
	ID     int64  `json:"id"`
	Title  string `json:"title,omitempty"`
	Author string `json:"author,omitempty"`
}

type BookEvent struct {
	Type       string    `json:"type"`
	Book       EventBook `json:"book"`
	OccurredAt time.Time `json:"occurredAt"`
}

const eventBufferSize = 256

type pendingEvent struct {
	eventType string
	bookID    int64
	payload   []byte
}

// EventPublisher publishes book changes below a topic prefix.
// Publish only queues an event, Run sends queued events in the background.
type EventPublisher struct {
	publisher Publisher
	prefix    string
	now       func() time.Time
	pending   chan pendingEvent
}

func NewEventPublisher(publisher Publisher, prefix string) *EventPublisher {
	return newEventPublisher(publisher, prefix, eventBufferSize)
}

func newEventPublisher(publisher Publisher, prefix string, size int) *EventPublisher {
	return &EventPublisher{
		publisher: publisher,
		prefix:    prefix,
		now:       time.Now,
		pending:   make(chan pendingEvent, size),
	}
}

// Topic returns the topic an event type is published on.
func (p *EventPublisher) Topic(eventType string) string {
	return p.prefix + "." + eventType
}

// Publish queues the event and returns without waiting for the queue.
// Events that do not fit the buffer are dropped with a warning, the change
// they describe is already committed. A nil EventPublisher does nothing.
func (p *EventPublisher) Publish(ctx context.Context, eventType string, book EventBook) {
	if p == nil {
		return
	}

	payload, err := json.Marshal(BookEvent{
		Type:       eventType,
		Book:       book,
		OccurredAt: p.now().UTC(),
	})
	if err != nil {
		slog.WarnContext(ctx, "Failed to encode book event", "type", eventType, "bookId", book.ID, "error", err)
		return
	}

	select {
	case p.pending <- pendingEvent{eventType: eventType, bookID: book.ID, payload: payload}:
	default:
		slog.WarnContext(ctx, "Dropping book event, buffer is full", "type", eventType, "bookId", book.ID)
	}
}

// Run sends queued events until ctx is done. Events still queued at that
// point are sent before it returns.
func (p *EventPublisher) Run(ctx context.Context) {
	for {
		select {
		case e := <-p.pending:
			p.send(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-p.pending:
					p.send(e)
				default:
					return
				}
			}
		}
	}
}

func (p *EventPublisher) send(e pendingEvent) {
	if err := p.publisher.Publish(p.Topic(e.eventType), e.payload); err != nil {
		slog.Warn("Failed to publish book event", "type", e.eventType, "bookId", e.bookID, "error", err)
	}
}

func eventBookOf(view BookView) EventBook {
	return EventBook(view)
}

// LogEvents is a queue callback writing every book event to the log.
// Undecodable events are logged and acknowledged so they are not redelivered forever.
func LogEvents(ctx context.Context, events []queue.Event) []int {
	handled := make([]int, 0, len(events))

	for _, event := range events {
		var e BookEvent
		if err := json.Unmarshal(event.Payload, &e); err != nil {
			slog.ErrorContext(ctx, "Discarding malformed book event", "payload", string(event.Payload), "error", err)
		} else {
			slog.InfoContext(ctx, "Book event",
				"type", e.Type,
				"bookId", e.Book.ID,
				"title", e.Book.Title,
				"author", e.Book.Author,
				"occurredAt", e.OccurredAt,
			)
		}
		handled = append(handled, event.Index)
	}

	return handled
}
