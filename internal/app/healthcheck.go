package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/vk/trainlaunch/internal/launcher"
)

// runStatus tracks job progress for the health check endpoint.
type runStatus struct {
	launcher.BaseCallback

	mu        sync.Mutex
	total     int
	current   int
	completed int
	failed    int
}

func (s *runStatus) OnRunStart(_ context.Context, run *launcher.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total, s.current, s.completed, s.failed = len(run.Jobs), -1, 0, 0
	return nil
}

func (s *runStatus) OnJobStart(_ context.Context, job *launcher.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = job.Num
	return nil
}

func (s *runStatus) OnJobEnd(_ context.Context, res *launcher.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = -1
	if res.Status() == launcher.StatusCompleted {
		s.completed++
	} else {
		s.failed++
	}
	return nil
}

func (s *runStatus) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	running := "none"
	if s.current >= 0 {
		running = fmt.Sprint(s.current)
	}
	return fmt.Sprintf("jobs=%d completed=%d failed=%d running=%s", s.total, s.completed, s.failed, running)
}

// healthHandler reports liveness and job progress.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
	fmt.Fprintln(w, a.status.String())
}

// startHealthcheckServer serves /health while jobs run. The returned
// function shuts the server down.
func (a *App) startHealthcheckServer(ctx context.Context, port int) func() {
	a.logger.Debug("Configuring health check server.")
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		a.logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Health check server failed", "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Health check server shutdown failed", "error", err)
		}
	}
}
