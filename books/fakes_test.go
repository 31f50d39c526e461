package books

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SeaRoll/bookshelf/database"
)

// fakeDatabase runs transaction functions without a connection.
type fakeDatabase struct {
	mu       sync.Mutex
	pingErr  error
	readTXs  int
	writeTXs int
}

func (d *fakeDatabase) Ping(context.Context) error { return d.pingErr }

func (d *fakeDatabase) Disconnect(...bool) {}

func (d *fakeDatabase) WithReadTX(_ context.Context, fn func(tx database.DBTX) error, existingQ ...database.DBTX) error {
	d.mu.Lock()
	d.readTXs++
	d.mu.Unlock()
	return fn(first(existingQ))
}

func (d *fakeDatabase) WithTX(_ context.Context, fn func(tx database.DBTX) error, existingQ ...database.DBTX) error {
	d.mu.Lock()
	d.writeTXs++
	d.mu.Unlock()
	return fn(first(existingQ))
}

func first(q []database.DBTX) database.DBTX {
	if len(q) > 0 {
		return q[0]
	}
	return nil
}

// memoryRepository keeps books in a map and assigns increasing ids.
type memoryRepository struct {
	mu     sync.Mutex
	books  map[int64]Book
	nextID int64
	err    error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{books: make(map[int64]Book), nextID: 1}
}

func (r *memoryRepository) FindBooks(context.Context, database.DBTX) ([]Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}

	books := make([]Book, 0, len(r.books))
	for _, b := range r.books {
		books = append(books, b)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	return books, nil
}

func (r *memoryRepository) FindOptionalBookByID(_ context.Context, _ database.DBTX, id int64) (*Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}

	b, ok := r.books[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *memoryRepository) InsertBook(_ context.Context, _ database.DBTX, input BookInput) (Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return Book{}, r.err
	}

	b := Book{ID: r.nextID, Title: input.Title, Author: input.Author}
	r.books[b.ID] = b
	r.nextID++
	return b, nil
}

func (r *memoryRepository) UpdateBookByID(_ context.Context, _ database.DBTX, id int64, input BookInput) (*Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}

	if _, ok := r.books[id]; !ok {
		return nil, nil
	}
	b := Book{ID: id, Title: input.Title, Author: input.Author}
	r.books[id] = b
	return &b, nil
}

func (r *memoryRepository) DeleteBookByID(_ context.Context, _ database.DBTX, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}

	if _, ok := r.books[id]; !ok {
		return false, nil
	}
	delete(r.books, id)
	return true, nil
}

type published struct {
	topic   string
	message []byte
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []published
	err      error
}

func (p *recordingPublisher) Publish(topic string, message []byte, _ ...time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, published{topic: topic, message: message})
	return nil
}

// runEvents runs p in the background. The returned stop waits until the
// queued events are sent and is also called on cleanup.
func runEvents(t *testing.T, p *EventPublisher) (stop func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	stop = func() {
		cancel()
		<-done
	}
	t.Cleanup(stop)

	return stop
}

// blockingPublisher holds every Publish until release is closed.
type blockingPublisher struct {
	release chan struct{}
	calls   atomic.Int32
}

func (p *blockingPublisher) Publish(string, []byte, ...time.Duration) error {
	p.calls.Add(1)
	<-p.release
	return nil
}
