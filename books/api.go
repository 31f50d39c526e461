package books

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SeaRoll/bookshelf/server"
)

type API interface {
	InitAPI()
}

type api struct {
	service Service
}

func NewAPI(service Service) API {
	return &api{
		service: service,
	}
}

// writeInternalError logs err and answers with a bare 500, the cause is not exposed to clients.
func writeInternalError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	slog.ErrorContext(ctx, "Book operation failed",
		"operation", op,
		"error", err,
		"requestId", server.RequestIDFromContext(ctx),
	)
	server.WriteError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

func (a *api) InitAPI() {
	// List books
	//
	// Returns every stored book ordered by id. An empty store yields an empty array.
	//
	// gen:tag=Books
	server.AddHandler("GET /books", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Ctx context.Context `ctx:"context"`
		}

		if err := server.ParseRequest(r, &req); err != nil {
			server.WriteError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		books, err := a.service.ListBooks(req.Ctx)
		if err != nil {
			writeInternalError(req.Ctx, w, "list", err)
			return
		}

		server.WriteJSON(w, http.StatusOK, books)
	})

	// Get a book
	//
	// gen:tag=Books
	server.AddHandler("GET /books/{id}", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Ctx context.Context `ctx:"context"`
			ID  int64           `path:"id"`
		}

		if err := server.ParseRequest(r, &req); err != nil {
			server.WriteError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		book, err := a.service.GetBook(req.Ctx, req.ID)
		if err != nil {
			if errors.Is(err, ErrBookNotFound) {
				server.WriteError(w, http.StatusNotFound, "Book not found")
				return
			}
			writeInternalError(req.Ctx, w, "get", err)
			return
		}

		server.WriteJSON(w, http.StatusOK, book)
	})

	// Create a book
	//
	// Responds with the stored book including its assigned id.
	//
	// gen:tag=Books
	server.AddHandler("POST /books", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Ctx  context.Context `ctx:"context"`
			Book BookInput       `body:"json"`
		}

		if err := server.ParseRequest(r, &req); err != nil {
			server.WriteError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		book, err := a.service.CreateBook(req.Ctx, req.Book)
		if err != nil {
			writeInternalError(req.Ctx, w, "create", err)
			return
		}

		server.WriteJSON(w, http.StatusOK, book)
	})

	// Update a book
	//
	// Replaces title and author of an existing book.
	//
	// gen:tag=Books
	server.AddHandler("PUT /books/{id}", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Ctx  context.Context `ctx:"context"`
			ID   int64           `path:"id"`
			Book BookInput       `body:"json"`
		}

		if err := server.ParseRequest(r, &req); err != nil {
			server.WriteError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		book, err := a.service.UpdateBook(req.Ctx, req.ID, req.Book)
		if err != nil {
			if errors.Is(err, ErrBookNotFound) {
				server.WriteError(w, http.StatusNotFound, "Book not found")
				return
			}
			writeInternalError(req.Ctx, w, "update", err)
			return
		}

		server.WriteJSON(w, http.StatusOK, book)
	})

	// Delete a book
	//
	// gen:tag=Books
	server.AddHandler("DELETE /books/{id}", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Ctx context.Context `ctx:"context"`
			ID  int64           `path:"id"`
		}

		if err := server.ParseRequest(r, &req); err != nil {
			server.WriteError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		if err := a.service.DeleteBook(req.Ctx, req.ID); err != nil {
			if errors.Is(err, ErrBookNotFound) {
				server.WriteError(w, http.StatusNotFound, "Book not found")
				return
			}
			writeInternalError(req.Ctx, w, "delete", err)
			return
		}

		server.WriteJSON(w, http.StatusOK, DeletedResponse{
			Message: fmt.Sprintf("Book(id=%d) deleted succesfully", req.ID),
		})
	})
}
