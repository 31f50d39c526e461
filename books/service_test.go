package books

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, events *EventPublisher) (Service, *fakeDatabase, *memoryRepository) {
	t.Helper()
	db := &fakeDatabase{}
	repo := newMemoryRepository()
	return NewService(db, repo, events), db, repo
}

func TestServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := newTestService(t, nil)

	books, err := svc.ListBooks(ctx)
	require.NoError(t, err)
	assert.NotNil(t, books)
	assert.Empty(t, books)

	created, err := svc.CreateBook(ctx, BookInput{Title: "Dune", Author: "Frank Herbert"})
	require.NoError(t, err)
	assert.Equal(t, BookView{ID: 1, Title: "Dune", Author: "Frank Herbert"}, created)

	got, err := svc.GetBook(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	updated, err := svc.UpdateBook(ctx, created.ID, BookInput{Title: "Dune Messiah", Author: "Frank Herbert"})
	require.NoError(t, err)
	assert.Equal(t, BookView{ID: 1, Title: "Dune Messiah", Author: "Frank Herbert"}, updated)

	require.NoError(t, svc.DeleteBook(ctx, created.ID))

	_, err = svc.GetBook(ctx, created.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)

	assert.Equal(t, 3, db.readTXs, "list and two gets run read-only")
	assert.Equal(t, 3, db.writeTXs, "create, update and delete run read-write")
}

func TestServiceListOrder(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, nil)

	for _, title := range []string{"A", "B", "C"} {
		_, err := svc.CreateBook(ctx, BookInput{Title: title, Author: "X"})
		require.NoError(t, err)
	}

	books, err := svc.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 3)
	for i, b := range books {
		assert.Equal(t, int64(i+1), b.ID)
	}
}

func TestServiceNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _, repo := newTestService(t, nil)

	_, err := svc.GetBook(ctx, 9999)
	assert.ErrorIs(t, err, ErrBookNotFound)

	_, err = svc.UpdateBook(ctx, 9999, BookInput{Title: "t", Author: "a"})
	assert.ErrorIs(t, err, ErrBookNotFound)
	assert.Empty(t, repo.books, "update never creates a book")

	assert.ErrorIs(t, svc.DeleteBook(ctx, 9999), ErrBookNotFound)
}

func TestServiceStoreFailure(t *testing.T) {
	ctx := context.Background()
	svc, _, repo := newTestService(t, nil)
	repo.err = errors.New("connection reset")

	_, err := svc.ListBooks(ctx)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrBookNotFound)

	_, err = svc.CreateBook(ctx, BookInput{Title: "t", Author: "a"})
	assert.Error(t, err)

	assert.Error(t, svc.DeleteBook(ctx, 1))
}

func TestServicePublishesEvents(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	events := NewEventPublisher(pub, "bookshelf")
	occurredAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	events.now = func() time.Time { return occurredAt }
	stop := runEvents(t, events)

	svc, _, _ := newTestService(t, events)

	created, err := svc.CreateBook(ctx, BookInput{Title: "Dune", Author: "Frank Herbert"})
	require.NoError(t, err)
	_, err = svc.UpdateBook(ctx, created.ID, BookInput{Title: "Dune", Author: "F. Herbert"})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteBook(ctx, created.ID))

	_, err = svc.UpdateBook(ctx, 42, BookInput{Title: "t", Author: "a"})
	require.ErrorIs(t, err, ErrBookNotFound)

	stop()
	require.Len(t, pub.messages, 3, "failed operations publish nothing")

	wantTopics := []string{"bookshelf.books.created", "bookshelf.books.updated", "bookshelf.books.deleted"}
	for i, msg := range pub.messages {
		assert.Equal(t, wantTopics[i], msg.topic)
	}

	var deleted BookEvent
	require.NoError(t, json.Unmarshal(pub.messages[2].message, &deleted))
	assert.Equal(t, BookEvent{
		Type:       EventDeleted,
		Book:       EventBook{ID: created.ID},
		OccurredAt: occurredAt,
	}, deleted)
	assert.JSONEq(t,
		`{"type":"books.deleted","book":{"id":1},"occurredAt":"2024-03-01T12:00:00Z"}`,
		string(pub.messages[2].message))
}

func TestServicePublishFailureDoesNotFailRequest(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{err: errors.New("nats: timeout")}
	events := NewEventPublisher(pub, "bookshelf")
	stop := runEvents(t, events)
	svc, _, repo := newTestService(t, events)

	created, err := svc.CreateBook(ctx, BookInput{Title: "Dune", Author: "Frank Herbert"})

	require.NoError(t, err)
	assert.Contains(t, repo.books, created.ID)

	stop()
	assert.Empty(t, pub.messages)
}

func TestServiceDoesNotWaitForSlowQueue(t *testing.T) {
	ctx := context.Background()
	pub := &blockingPublisher{release: make(chan struct{})}
	defer close(pub.release)

	events := NewEventPublisher(pub, "bookshelf")
	runEvents(t, events)
	svc, _, _ := newTestService(t, events)

	start := time.Now()
	created, err := svc.CreateBook(ctx, BookInput{Title: "Dune", Author: "Frank Herbert"})
	require.NoError(t, err)
	_, err = svc.UpdateBook(ctx, created.ID, BookInput{Title: "Dune Messiah", Author: "Frank Herbert"})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteBook(ctx, created.ID))

	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Eventually(t, func() bool { return pub.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
}
