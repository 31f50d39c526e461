package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SeaRoll/bookshelf/books"
	"github.com/SeaRoll/bookshelf/cache"
	"github.com/SeaRoll/bookshelf/config"
	"github.com/SeaRoll/bookshelf/docs"
	"github.com/SeaRoll/bookshelf/queue"
	"github.com/SeaRoll/bookshelf/server"
	_ "github.com/joho/godotenv/autoload"
)

const (
	auditConsumer      = "bookshelf-audit"
	eventsShutdownWait = 10 * time.Second
)

var configPath = flag.String("config", "", "Path to a YAML config file, the embedded config.yaml is used when empty")

func main() {
	flag.Parse()

	if err := run(); err != nil {
		slog.Error("Bookshelf stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database initialization
	db, err := books.NewDatabase(ctx, cfg.Database.ConnectionURL())
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Disconnect()

	// Change events
	var events *books.EventPublisher
	if cfg.Queue.Enabled {
		q, err := queue.NewQueue(cfg.Queue)
		if err != nil {
			return fmt.Errorf("failed to create queue: %w", err)
		}
		defer q.Close()

		events = books.NewEventPublisher(q, cfg.Queue.TopicPrefix)
		eventsSent := make(chan struct{})
		go func() {
			defer close(eventsSent)
			events.Run(ctx)
		}()
		defer waitForEvents(eventsSent)

		go func() {
			err := q.Consume(ctx, queue.ConsumerConfig{
				ConsumerName: auditConsumer,
				Topic:        events.Topic("books.>"),
				FetchLimit:   10,
				Callback:     books.LogEvents,
			})
			if err != nil {
				slog.Error("Audit consumer stopped", "error", err)
			}
		}()
	}

	// Middlewares, the first added runs first
	server.AddMiddleware(server.Recover)
	server.AddMiddleware(server.RequestID)
	server.AddMiddleware(server.RequestLogger)

	if cfg.Server.RateLimit.Enabled {
		limiter, closeLimiter, err := newLimiter(cfg)
		if err != nil {
			return err
		}
		defer closeLimiter()
		server.AddMiddleware(server.RateLimit(limiter))
	}

	// Repository, service and API initialization
	repository := books.NewRepository()
	service := books.NewService(db, repository, events)
	books.NewAPI(service).InitAPI()
	books.AddHealthRoutes(db)
	docs.AddDocRoutes()

	return server.StartServer(ctx, cfg.Server.Addr())
}

// waitForEvents gives queued book events a bounded time to reach the queue on shutdown.
func waitForEvents(sent <-chan struct{}) {
	select {
	case <-sent:
	case <-time.After(eventsShutdownWait):
		slog.Warn("Stopped waiting for book events to be published")
	}
}

// newLimiter shares the limit through valkey when the cache is enabled and
// keeps it in process otherwise.
func newLimiter(cfg config.BaseConfig) (server.Limiter, func(), error) {
	rl := cfg.Server.RateLimit

	if !cfg.Cache.Enabled {
		return server.NewLocalLimiter(rl.RequestsPerSecond, rl.Burst), func() {}, nil
	}

	c, err := cache.NewCache(cfg.Cache)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create cache: %w", err)
	}

	return cache.NewRateLimiter(c, requestsPerWindow(rl), time.Second), func() { c.Disconnect() }, nil
}

// requestsPerWindow converts the token bucket settings into a one second window.
func requestsPerWindow(rl config.RateLimitConfig) int64 {
	return int64(math.Ceil(rl.RequestsPerSecond)) + int64(rl.Burst)
}
