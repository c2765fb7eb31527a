// Package http exposes the dashboard as a JSON API for the browser client.
package http

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"findash/internal/auth"
	"findash/internal/cache"
	"findash/internal/dashboard"
	appweb "findash/web"
)

type Server struct {
	http.Server

	vm           *dashboard.ViewModel
	store        dashboard.Store
	authProvider auth.Provider
	rateLimiter  *rateLimiter

	dashCache *cache.LRU[dashboardResponse]

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, vm *dashboard.ViewModel, store dashboard.Store, provider auth.Provider, cacheTTL time.Duration) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr: addr,
		},
		vm:               vm,
		store:            store,
		authProvider:     provider,
		rateLimiter:      newRateLimiter(60),
		dashCache:        cache.NewLRU[dashboardResponse](100, cacheTTL),
		stopCacheCleanup: make(chan struct{}),
	}

	mux.HandleFunc("POST /api/login", s.handleLogin)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/datasets", s.handleListDatasets)
	api.HandleFunc("POST /api/datasets", s.handleCreateDataset)
	api.HandleFunc("GET /api/datasets/{id}/files", s.handleListFiles)
	api.HandleFunc("POST /api/datasets/{id}/imports", s.handleUpload)
	api.HandleFunc("DELETE /api/datasets/{id}/imports/{fileID}", s.handleDeleteImport)
	api.HandleFunc("GET /api/datasets/{id}/dashboard", s.handleDashboard)
	mux.Handle("/api/", s.authenticate(api))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Embedded browser shell.
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		mux.Handle("/", http.FileServer(http.FS(sub)))
	}

	s.Handler = s.trace(s.limit(securityHeaders(mux)))

	go s.startCacheCleanup()

	return s
}

func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if cleaned := s.dashCache.CleanExpired(); cleaned > 0 {
				slog.Debug("Cache cleanup completed", "entries_removed", cleaned)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// Shutdown stops the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		close(s.stopCacheCleanup)
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
