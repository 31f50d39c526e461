package docs

import (
	_ "embed"
	"log/slog"
	"net/http"

	"github.com/SeaRoll/bookshelf/server"
)

var (
	//go:embed openapi.yaml
	embedOpenAPI []byte
	//go:embed index.html
	embedIndexHTML []byte
)

func AddDocRoutes() {
	// gen:ignore
	server.AddHandler("GET /docs", func(w http.ResponseWriter, r *http.Request) {
		write(w, "text/html; charset=utf-8", embedIndexHTML)
	})

	// gen:ignore
	server.AddHandler("GET /openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		write(w, "application/yaml", embedOpenAPI)
	})
}

func write(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(body); err != nil {
		slog.Debug("Failed to write docs response", "error", err)
	}
}
