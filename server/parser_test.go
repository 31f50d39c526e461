package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bookID int64

type parseBody struct {
	Title  string `json:"title" validate:"required"`
	Author string `json:"author" validate:"required"`
}

// parseWith routes the request through a mux so path values are populated.
func parseWith(t *testing.T, pattern, method, target, body string, req any) error {
	t.Helper()

	var parseErr error
	called := false

	mux := http.NewServeMux()
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		called = true
		parseErr = ParseRequest(r, req)
	})

	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	mux.ServeHTTP(httptest.NewRecorder(), r)

	require.True(t, called, "handler was not routed")
	return parseErr
}

func TestParseRequestPathAndBody(t *testing.T) {
	var req struct {
		Ctx  context.Context `ctx:"context"`
		ID   int64           `path:"id"`
		Book parseBody       `body:"json"`
	}

	err := parseWith(t, "PUT /books/{id}", http.MethodPut, "/books/42",
		`{"title":"Dune","author":"Frank Herbert","isbn":"ignored"}`, &req)

	require.NoError(t, err)
	assert.NotNil(t, req.Ctx)
	assert.Equal(t, int64(42), req.ID)
	assert.Equal(t, parseBody{Title: "Dune", Author: "Frank Herbert"}, req.Book)
}

func TestParseRequestNamedPathType(t *testing.T) {
	var req struct {
		ID bookID `path:"id"`
	}

	err := parseWith(t, "GET /books/{id}", http.MethodGet, "/books/7", "", &req)

	require.NoError(t, err)
	assert.Equal(t, bookID(7), req.ID)
}

func TestParseRequestInvalidPath(t *testing.T) {
	var req struct {
		ID int64 `path:"id"`
	}

	err := parseWith(t, "GET /books/{id}", http.MethodGet, "/books/abc", "", &req)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "error parsing path field id")
}

func TestParseRequestBodyErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		contains string
	}{
		{name: "empty body", body: "", contains: ErrEmptyBody.Error()},
		{name: "missing field", body: `{"title":"Dune"}`, contains: "field author is required"},
		{name: "wrong type", body: `{"title":1,"author":"x"}`, contains: "error parsing body field json"},
		{name: "malformed", body: `{"title":`, contains: "error parsing body field json"},
		{name: "two values", body: `{"title":"a","author":"b"}{}`, contains: "single JSON value"},
		{name: "field names differ in case", body: `{"Title":"Dune","AUTHOR":"x"}`, contains: "field title is required"},
		{name: "not json", body: `title=Dune`, contains: "not valid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req struct {
				Book parseBody `body:"json"`
			}

			err := parseWith(t, "POST /books", http.MethodPost, "/books", tt.body, &req)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestParseRequestBodyTrailingWhitespace(t *testing.T) {
	var req struct {
		Book parseBody `body:"json"`
	}

	err := parseWith(t, "POST /books", http.MethodPost, "/books", "{\"title\":\"Dune\",\"author\":\"Frank Herbert\"}\n", &req)

	require.NoError(t, err)
	assert.Equal(t, parseBody{Title: "Dune", Author: "Frank Herbert"}, req.Book)
}

func TestParseRequestHeaderAndQuery(t *testing.T) {
	id := uuid.New()
	since := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var req struct {
		RequestID uuid.UUID  `header:"X-Request-ID"`
		Tags      []string   `query:"tag"`
		Limit     int        `query:"limit" default:"20"`
		Since     *time.Time `query:"since"`
		Missing   *string    `query:"missing"`
		Filter    struct {
			Active bool `query:"active"`
		}
	}

	mux := http.NewServeMux()
	var err error
	mux.HandleFunc("GET /books", func(w http.ResponseWriter, r *http.Request) {
		err = ParseRequest(r, &req)
	})

	r := httptest.NewRequest(http.MethodGet, "/books?tag=a&tag=b&since="+since.Format(time.RFC3339)+"&active=true", nil)
	r.Header.Set("X-Request-ID", id.String())
	mux.ServeHTTP(httptest.NewRecorder(), r)

	require.NoError(t, err)
	assert.Equal(t, id, req.RequestID)
	assert.Equal(t, []string{"a", "b"}, req.Tags)
	assert.Equal(t, 0, req.Limit, "defaults apply to present but empty values only")
	require.NotNil(t, req.Since)
	assert.True(t, since.Equal(*req.Since))
	assert.Nil(t, req.Missing)
	assert.True(t, req.Filter.Active)
}

func TestParseFieldDefault(t *testing.T) {
	var req struct {
		Limit int `header:"X-Limit" default:"20"`
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, ParseRequest(r, &req))

	assert.Equal(t, 20, req.Limit)
}

func TestValidateStruct(t *testing.T) {
	type input struct {
		Title string `json:"title" validate:"required,max=5"`
	}

	assert.NoError(t, ValidateStruct(input{Title: "Dune"}))
	assert.EqualError(t, ValidateStruct(input{}), "field title is required")
	assert.EqualError(t, ValidateStruct(input{Title: "Neuromancer"}), "field title requires max 5")
}
