// Package server mounts the HTTP surface of the core and runs it until
// the context is cancelled.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	agenthandler "github.com/lavishq/lavis/internal/handler/agent"
	schedhandler "github.com/lavishq/lavis/internal/handler/scheduler"
	skillhandler "github.com/lavishq/lavis/internal/handler/skills"
	"github.com/lavishq/lavis/internal/httputil"
	"github.com/lavishq/lavis/internal/logging"
	"github.com/lavishq/lavis/internal/svc"
	"github.com/lavishq/lavis/internal/types"
)

// Run starts the HTTP server on cfg.Port and blocks until ctx is
// cancelled, then shuts down gracefully.
func Run(ctx context.Context, svcCtx *svc.ServiceContext) error {
	port := svcCtx.Config.Port
	if err := checkPortAvailable(port); err != nil {
		return fmt.Errorf("port %d is already in use, is another instance running?", port)
	}

	router := NewRouter(svcCtx)

	// ReadTimeout/WriteTimeout are omitted on purpose: they set
	// deadlines on the underlying conn and break the hijacked
	// websocket event stream, which has its own ping/pong keepalive.
	httpServer := &http.Server{
		Addr:        fmt.Sprintf("127.0.0.1:%d", port),
		Handler:     router,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Infof("listening on http://localhost:%d", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// NewRouter builds the chi router with every route mounted. Split out
// from Run so handler tests can drive it with httptest.
func NewRouter(svcCtx *svc.ServiceContext) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(corsMiddleware())

	r.Get("/api/health", func(w http.ResponseWriter, req *http.Request) {
		httputil.OkJSON(w, types.HealthResponse{Status: "ok", Version: svcCtx.Version})
	})

	r.Route("/api/agent", func(r chi.Router) {
		r.Post("/chat", agenthandler.ChatHandler(svcCtx))
		r.Post("/task", agenthandler.TaskHandler(svcCtx))
		r.Post("/stop", agenthandler.StopHandler(svcCtx))
		r.Post("/reset", agenthandler.ResetHandler(svcCtx))
		r.Get("/status", agenthandler.StatusHandler(svcCtx))
		r.Get("/screenshot", agenthandler.ScreenshotHandler(svcCtx))
		r.Get("/history", agenthandler.HistoryHandler(svcCtx))
		r.Delete("/history", agenthandler.DeleteHistoryHandler(svcCtx))
		r.Get("/events", agenthandler.EventsHandler(svcCtx))
	})

	r.Route("/api/scheduler", func(r chi.Router) {
		r.Get("/state", schedhandler.StateHandler(svcCtx))
		r.Post("/start", schedhandler.StartHandler(svcCtx))
		r.Post("/stop", schedhandler.StopHandler(svcCtx))
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", schedhandler.ListTasksHandler(svcCtx))
			r.Post("/", schedhandler.CreateTaskHandler(svcCtx))
			r.Get("/{id}", schedhandler.GetTaskHandler(svcCtx))
			r.Put("/{id}", schedhandler.UpdateTaskHandler(svcCtx))
			r.Delete("/{id}", schedhandler.DeleteTaskHandler(svcCtx))
			r.Post("/{id}/pause", schedhandler.PauseTaskHandler(svcCtx))
			r.Post("/{id}/resume", schedhandler.ResumeTaskHandler(svcCtx))
			r.Post("/{id}/run", schedhandler.RunTaskHandler(svcCtx))
			r.Get("/{id}/history", schedhandler.TaskHistoryHandler(svcCtx))
		})
	})

	r.Route("/api/skills", func(r chi.Router) {
		r.Get("/", skillhandler.ListHandler(svcCtx))
		r.Post("/", skillhandler.CreateHandler(svcCtx))
		r.Post("/reload", skillhandler.ReloadHandler(svcCtx))
		r.Get("/categories", skillhandler.CategoriesHandler(svcCtx))
		r.Get("/{id}", skillhandler.GetHandler(svcCtx))
		r.Put("/{id}", skillhandler.UpdateHandler(svcCtx))
		r.Delete("/{id}", skillhandler.DeleteHandler(svcCtx))
		r.Post("/{id}/execute", skillhandler.ExecuteHandler(svcCtx))
	})

	return r
}

// corsMiddleware allows localhost origins only. Lavis is a local
// service; non-localhost origins get no CORS headers and the browser
// blocks them.
func corsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || isLocalhostOrigin(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1" ||
		strings.HasSuffix(host, ".localhost")
}

func checkPortAvailable(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}
