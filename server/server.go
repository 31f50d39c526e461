package server

import (
	"context"
	"net/http"
	"sync"
)

var (
	globalMu     sync.RWMutex
	globalServer Server = NewServer()
)

func defaultServer() Server {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalServer
}

func AddMiddleware(middleware MiddlewareFunc) {
	defaultServer().AddMiddleware(middleware)
}

func AddHandler(path string, handler http.HandlerFunc) {
	defaultServer().AddHandler(path, handler)
}

// GetHandler returns the http.Handler of the default server with all middlewares applied.
func GetHandler() http.Handler {
	return defaultServer().Handler()
}

func StartServer(ctx context.Context, addr string) error {
	return defaultServer().Start(ctx, addr)
}

// ClearServer replaces the default server with an empty one.
// Registered handlers and middlewares are dropped.
func ClearServer() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalServer = NewServer()
}
