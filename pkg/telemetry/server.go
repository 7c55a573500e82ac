// Package telemetry serves diagnostics over HTTP: Prometheus metrics, the
// latest frame stats, scan results and connectivity state.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itohio/doorbell/pkg/detector"
	"github.com/itohio/doorbell/pkg/latest"
	"github.com/itohio/doorbell/pkg/wifi"
)

// Sources are the read-only cells the server reports from.
type Sources struct {
	Stats *latest.Cell[detector.Stats]
	Scans *latest.Cell[[]wifi.AccessPoint]
	Wifi  *latest.Cell[wifi.State]
	// Debug toggles per-frame stats logging. Optional.
	Debug func(on bool)
}

// Server is the diagnostics HTTP server.
type Server struct {
	src     Sources
	router  *mux.Router
	srv     *http.Server
	logger  *slog.Logger
	started time.Time
}

// New builds the server. A nil gatherer serves the default registry.
func New(listen string, src Sources, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		src:     src,
		router:  mux.NewRouter(),
		logger:  logger.With("component", "telemetry"),
		started: time.Now(),
	}

	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.health).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.stats).Methods(http.MethodGet)
	api.HandleFunc("/scan", s.scan).Methods(http.MethodGet)
	api.HandleFunc("/wifi", s.wifi).Methods(http.MethodGet)
	api.HandleFunc("/debug/{state:on|off}", s.debug).Methods(http.MethodPost)
	s.router.Use(s.logging)

	s.srv = &http.Server{
		Addr:              listen,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}, http.StatusOK)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	cellJSON(w, s.src.Stats, "no frame processed yet")
}

func (s *Server) scan(w http.ResponseWriter, r *http.Request) {
	cellJSON(w, s.src.Scans, "no scan yet")
}

func (s *Server) wifi(w http.ResponseWriter, r *http.Request) {
	cellJSON(w, s.src.Wifi, "no connectivity state yet")
}

func (s *Server) debug(w http.ResponseWriter, r *http.Request) {
	if s.src.Debug == nil {
		respondError(w, "debug toggle not available", http.StatusNotImplemented)
		return
	}
	on := mux.Vars(r)["state"] == "on"
	s.src.Debug(on)
	s.logger.Info("stats debug", "on", on)
	respondJSON(w, map[string]bool{"debug": on}, http.StatusOK)
}

func cellJSON[T any](w http.ResponseWriter, cell *latest.Cell[T], missing string) {
	if cell == nil {
		respondError(w, missing, http.StatusNotFound)
		return
	}
	v, ok := cell.Get()
	if !ok {
		respondError(w, missing, http.StatusNotFound)
		return
	}
	respondJSON(w, v, http.StatusOK)
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}
