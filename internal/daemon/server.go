package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"docforge/internal/config"
	"docforge/internal/gateway"
	"docforge/internal/health"
	"docforge/internal/logging"
	"docforge/internal/queue"
	"docforge/internal/services"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api"),
		daemon: d,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(correlated)

	r.Get("/api/health", srv.handleHealth)
	r.Method(http.MethodGet, "/metrics", d.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(cfg.Paths.APIToken))
		r.Post("/api/jobs", srv.handleSubmit)
		r.Post("/api/batches", srv.handleSubmitBatch)
		r.Get("/api/jobs/{id}", srv.handleJobStatus)
		r.Delete("/api/jobs/{id}", srv.handleCancel)
		r.Post("/api/jobs/{id}/retry", srv.handleRetry)
		r.Post("/api/queue/clear", srv.handleQueueClear)
		r.Get("/api/jobs/{id}/events", srv.handleJobEvents)
		r.Get("/api/batches/{id}", srv.handleBatchStatus)
		r.Get("/api/queue", srv.handleQueue)
	})

	srv.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil || s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status()
	code := http.StatusOK
	if status.Health.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, status)
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req gateway.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, services.Classified{
			Code: services.CodeValidation, Message: "request body is not valid JSON",
		})
		return
	}
	resp, err := s.daemon.gateway.Submit(r.Context(), req)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, resp)
}

func (s *apiServer) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req gateway.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, services.Classified{
			Code: services.CodeValidation, Message: "request body is not valid JSON",
		})
		return
	}
	resp, err := s.daemon.gateway.SubmitBatch(r.Context(), req)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, resp)
}

func (s *apiServer) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.daemon.gateway.GetStatus(r.Context(), requestUser(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	resp, err := s.daemon.gateway.Cancel(r.Context(), requestUser(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.daemon.gateway.GetBatchStatus(r.Context(), requestUser(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	resp, err := s.daemon.gateway.Retry(r.Context(), requestUser(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleQueueClear(w http.ResponseWriter, r *http.Request) {
	resp, err := s.daemon.gateway.ClearTerminal(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			statuses = append(statuses, queue.Status(trimmed))
		}
	}
	var jobs []*queue.Job
	var err error
	if user := strings.TrimSpace(r.URL.Query().Get("user")); user != "" {
		jobs, err = s.daemon.store.JobsForUser(r.Context(), user)
	} else {
		jobs, err = s.daemon.store.List(r.Context(), statuses...)
	}
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	counts, err := s.daemon.store.CountsByStatus(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"jobs":   jobs,
		"counts": counts,
	})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

// writeFailure maps a classified error onto an HTTP status. Submission
// throttles get a Retry-After so clients back off instead of spinning.
func (s *apiServer) writeFailure(w http.ResponseWriter, err error) {
	classified := services.Classify(err)
	status := http.StatusInternalServerError
	switch classified.Code {
	case services.CodeValidation:
		status = http.StatusBadRequest
	case services.CodeQuotaExceeded:
		status = http.StatusTooManyRequests
	case services.CodeNotFound:
		status = http.StatusNotFound
	case services.CodePermission:
		status = http.StatusForbidden
	case services.CodeTimeout:
		status = http.StatusGatewayTimeout
	case services.CodeProvider:
		status = http.StatusBadGateway
	}
	if errors.Is(err, gateway.ErrUnhealthy) || errors.Is(err, gateway.ErrBackpressure) {
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "30")
	}
	if errors.Is(err, gateway.ErrBatchTooLarge) {
		classified.Code = "BATCH_SIZE_EXCEEDED"
	}
	s.writeError(w, status, classified)
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, classified services.Classified) {
	s.writeJSON(w, status, map[string]services.Classified{"error": classified})
}

// correlated copies the chi request id into the correlation context so
// downstream log records carry it.
func correlated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rid := chimiddleware.GetReqID(r.Context()); rid != "" {
			r = r.WithContext(services.WithCorrelationID(r.Context(), rid))
		}
		next.ServeHTTP(w, r)
	})
}

// requestUser identifies the caller for ownership checks. The token
// already authenticated the request; the header only scopes it.
func requestUser(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-DocForge-User"))
}

// instanceOrigin identifies this process in mirrored progress events so
// the subscriber loop can discard its own echoes.
func instanceOrigin() string {
	host, err := os.Hostname()
	if err != nil {
		host = "docforge"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
