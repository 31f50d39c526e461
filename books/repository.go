package books

import (
	"context"
	"errors"
	"fmt"

	"github.com/SeaRoll/bookshelf/database"
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
)

const booksTable = "books"

var (
	dialect     = goqu.Dialect("postgres")
	bookColumns = []any{"id", "title", "author"}
)

type Repository interface {
	FindBooks(ctx context.Context, tx database.DBTX) ([]Book, error)
	FindOptionalBookByID(ctx context.Context, tx database.DBTX, id int64) (*Book, error)
	InsertBook(ctx context.Context, tx database.DBTX, input BookInput) (Book, error)
	UpdateBookByID(ctx context.Context, tx database.DBTX, id int64, input BookInput) (*Book, error)
	DeleteBookByID(ctx context.Context, tx database.DBTX, id int64) (bool, error)
}

type repository struct{}

func NewRepository() Repository {
	return &repository{}
}

func findBooksQuery() (string, []any, error) {
	return dialect.From(booksTable).
		Select(bookColumns...).
		Order(goqu.C("id").Asc()).
		Prepared(true).
		ToSQL()
}

func findBookByIDQuery(id int64) (string, []any, error) {
	return dialect.From(booksTable).
		Select(bookColumns...).
		Where(goqu.C("id").Eq(id)).
		Prepared(true).
		ToSQL()
}

func insertBookQuery(input BookInput) (string, []any, error) {
	return dialect.Insert(booksTable).
		Rows(goqu.Record{"title": input.Title, "author": input.Author}).
		Returning(bookColumns...).
		Prepared(true).
		ToSQL()
}

func updateBookQuery(id int64, input BookInput) (string, []any, error) {
	return dialect.Update(booksTable).
		Set(goqu.Record{"title": input.Title, "author": input.Author}).
		Where(goqu.C("id").Eq(id)).
		Returning(bookColumns...).
		Prepared(true).
		ToSQL()
}

func deleteBookQuery(id int64) (string, []any, error) {
	return dialect.Delete(booksTable).
		Where(goqu.C("id").Eq(id)).
		Prepared(true).
		ToSQL()
}

// FindBooks implements Repository.
func (r *repository) FindBooks(ctx context.Context, tx database.DBTX) ([]Book, error) {
	query, args, err := findBooksQuery()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	books, err := database.SelectRows[Book](ctx, tx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve all books: %w", err)
	}
	return books, nil
}

// FindOptionalBookByID implements Repository.
func (r *repository) FindOptionalBookByID(ctx context.Context, tx database.DBTX, id int64) (*Book, error) {
	query, args, err := findBookByIDQuery(id)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	book, err := database.SelectRow[Book](ctx, tx, query, args...)
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to retrieve book %d: %w", id, err)
	}
	return &book, nil
}

// InsertBook implements Repository.
func (r *repository) InsertBook(ctx context.Context, tx database.DBTX, input BookInput) (Book, error) {
	query, args, err := insertBookQuery(input)
	if err != nil {
		return Book{}, fmt.Errorf("failed to build query: %w", err)
	}

	book, err := database.SelectRow[Book](ctx, tx, query, args...)
	if err != nil {
		return Book{}, fmt.Errorf("failed to insert book: %w", err)
	}
	return book, nil
}

// UpdateBookByID implements Repository.
func (r *repository) UpdateBookByID(ctx context.Context, tx database.DBTX, id int64, input BookInput) (*Book, error) {
	query, args, err := updateBookQuery(id, input)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	book, err := database.SelectRow[Book](ctx, tx, query, args...)
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update book %d: %w", id, err)
	}
	return &book, nil
}

// DeleteBookByID implements Repository.
func (r *repository) DeleteBookByID(ctx context.Context, tx database.DBTX, id int64) (bool, error) {
	query, args, err := deleteBookQuery(id)
	if err != nil {
		return false, fmt.Errorf("failed to build query: %w", err)
	}

	deleted, err := database.ExecQuery(ctx, tx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to delete book %d: %w", id, err)
	}
	return deleted > 0, nil
}
