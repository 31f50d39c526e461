package books

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/SeaRoll/bookshelf/server"
)

const healthTimeout = 2 * time.Second

// Pinger is the part of database.Database the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthResponse struct {
	Status string `json:"status"`
}

func AddHealthRoutes(db Pinger) {
	// Health check
	//
	// Reports whether the database answers.
	//
	// gen:tag=Health
	server.AddHandler("GET /health", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Ctx context.Context `ctx:"context"`
		}

		if err := server.ParseRequest(r, &req); err != nil {
			server.WriteError(w, http.StatusBadRequest, "failed to parse request")
			return
		}

		ctx, cancel := context.WithTimeout(req.Ctx, healthTimeout)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "Health check failed", "error", err)
			server.WriteError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}

		server.WriteJSON(w, http.StatusOK, HealthResponse{Status: "OK"})
	})
}
