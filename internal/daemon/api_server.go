package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kiln/internal/api"
	"kiln/internal/config"
	"kiln/internal/logging"
	"kiln/internal/services"
	"kiln/internal/workflow"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(strings.TrimSpace(cfg.Paths.APIToken)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes(token string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, s.requestContext)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(token))
		r.Get("/status", s.handleStatus)
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/", s.handleSubmit)
			r.Get("/{id}", s.handleJob)
			r.Post("/{id}/cancel", s.handleCancel)
		})
		r.Get("/providers", s.handleProviders)
		r.Post("/providers/reload", s.handleReload)
	})
	if s.daemon.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.daemon.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// requestContext carries the chi request id into the services context so
// downstream logs can be correlated.
func (s *apiServer) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = services.WithRequestID(ctx, id)
		}
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		logging.WithContext(ctx, s.logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("elapsed", time.Since(started)),
		)
	})
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
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status()
	s.writeJSON(w, http.StatusOK, ToAPIStatus(status))
}

func (s *apiServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var statuses []string
	for _, value := range r.URL.Query()["status"] {
		statuses = append(statuses, strings.Split(value, ",")...)
	}
	jobs, err := s.daemon.ListJobs(statuses)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.FromJobs(jobs)})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req workflow.SubmitRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, services.Wrap(services.ErrValidation, "api", "submit", "invalid request body", err))
		return
	}
	jobs, err := s.daemon.Submit(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.JobListResponse{Jobs: api.FromJobs(jobs)})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.Job(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.CancelJob(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleProviders(w http.ResponseWriter, r *http.Request) {
	providers := api.FromRegistry(s.daemon.Registry(), s.daemon.DefaultProvider())
	s.writeJSON(w, http.StatusOK, api.ProviderListResponse{Providers: providers})
}

func (s *apiServer) handleReload(w http.ResponseWriter, r *http.Request) {
	report, err := s.daemon.ReloadProviders(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromReloadReport(report))
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

func (s *apiServer) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, httpStatus(err), api.FromError(err))
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrUnsupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ToAPIStatus converts a daemon status for transport.
func ToAPIStatus(status Status) api.DaemonStatus {
	return api.DaemonStatus{
		Running:         status.Running,
		PID:             status.PID,
		ProviderID:      status.ProviderID,
		SnapshotBackend: status.SnapshotBackend,
		LockFilePath:    status.LockFilePath,
		PluginDir:       status.PluginDir,
		Workflow:        api.FromStatusSummary(status.Workflow),
		Dependencies:    api.FromDependencies(status.Dependencies),
		Checks:          api.FromChecks(status.Checks),
	}
}
