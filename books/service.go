package books

import (
	"context"
	"errors"

	"github.com/SeaRoll/bookshelf/database"
)

var ErrBookNotFound = errors.New("book not found")

type Service interface {
	ListBooks(ctx context.Context, tx ...database.DBTX) ([]BookView, error)
	GetBook(ctx context.Context, id int64, tx ...database.DBTX) (BookView, error)
	CreateBook(ctx context.Context, input BookInput, tx ...database.DBTX) (BookView, error)
	UpdateBook(ctx context.Context, id int64, input BookInput, tx ...database.DBTX) (BookView, error)
	DeleteBook(ctx context.Context, id int64, tx ...database.DBTX) error
}

type service struct {
	db         database.Database
	repository Repository
	events     *EventPublisher
}

// NewService creates the book service. events may be nil, no change events are published then.
func NewService(db database.Database, repository Repository, events *EventPublisher) Service {
	return &service{
		db:         db,
		repository: repository,
		events:     events,
	}
}

// ListBooks implements Service.
func (s *service) ListBooks(ctx context.Context, tx ...database.DBTX) ([]BookView, error) {
	var books []Book

	err := s.db.WithReadTX(ctx, func(tx database.DBTX) error {
		var err error
		books, err = s.repository.FindBooks(ctx, tx)
		return err
	}, tx...)
	if err != nil {
		return nil, err
	}

	views := make([]BookView, len(books))
	for i, book := range books {
		views[i] = toView(book)
	}

	return views, nil
}

// GetBook implements Service.
func (s *service) GetBook(ctx context.Context, id int64, tx ...database.DBTX) (BookView, error) {
	var book *Book

	err := s.db.WithReadTX(ctx, func(tx database.DBTX) error {
		var err error
		book, err = s.repository.FindOptionalBookByID(ctx, tx, id)
		return err
	}, tx...)
	if err != nil {
		return BookView{}, err
	}

	if book == nil {
		return BookView{}, ErrBookNotFound
	}

	return toView(*book), nil
}

// CreateBook implements Service.
func (s *service) CreateBook(ctx context.Context, input BookInput, tx ...database.DBTX) (BookView, error) {
	var book Book

	err := s.db.WithTX(ctx, func(tx database.DBTX) error {
		var err error
		book, err = s.repository.InsertBook(ctx, tx, input)
		return err
	}, tx...)
	if err != nil {
		return BookView{}, err
	}

	view := toView(book)
	s.events.Publish(ctx, EventCreated, eventBookOf(view))

	return view, nil
}

// UpdateBook implements Service.
func (s *service) UpdateBook(ctx context.Context, id int64, input BookInput, tx ...database.DBTX) (BookView, error) {
	var book *Book

	err := s.db.WithTX(ctx, func(tx database.DBTX) error {
		var err error
		book, err = s.repository.UpdateBookByID(ctx, tx, id, input)
		return err
	}, tx...)
	if err != nil {
		return BookView{}, err
	}

	if book == nil {
		return BookView{}, ErrBookNotFound
	}

	view := toView(*book)
	s.events.Publish(ctx, EventUpdated, eventBookOf(view))

	return view, nil
}

// DeleteBook implements Service.
func (s *service) DeleteBook(ctx context.Context, id int64, tx ...database.DBTX) error {
	var deleted bool

	err := s.db.WithTX(ctx, func(tx database.DBTX) error {
		var err error
		deleted, err = s.repository.DeleteBookByID(ctx, tx, id)
		return err
	}, tx...)
	if err != nil {
		return err
	}

	if !deleted {
		return ErrBookNotFound
	}

	s.events.Publish(ctx, EventDeleted, EventBook{ID: id})

	return nil
}
