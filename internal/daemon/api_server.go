package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"courier/internal/api"
	"courier/internal/config"
	"courier/internal/logging"
	"courier/internal/queue"
	"courier/internal/services"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon
	router http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.router = srv.routes()
	return srv
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(s.token))
		r.Get("/status", s.handleStatus)
		r.Get("/items", s.handleListItems)
		r.Post("/items", s.handleEnqueue)
		r.Get("/items/{id}", s.handleGetItem)
		r.Post("/items/{id}/retry", s.handleRetryItem)
		r.Post("/maintenance/requeue-stale", s.handleRequeueStale)
		r.Post("/maintenance/purge", s.handlePurge)
	})
	return r
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop(ctx context.Context) {
	if s == nil {
		return
	}
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := "stopped"
	if s.daemon.Running() {
		state = "running"
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "daemon": state})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleListItems(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var filter queue.ListFilter
	for _, value := range query["status"] {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := queue.ParseStatus(part)
			if !ok {
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", part))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if value := strings.TrimSpace(query.Get("task_type")); value != "" {
		taskType, ok := queue.ParseTaskType(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown task type %q", value))
			return
		}
		filter.TaskType = taskType
	}
	if value := strings.TrimSpace(query.Get("limit")); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	items, err := s.daemon.ListQueue(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []api.QueueItem{}
	}
	s.writeJSON(w, http.StatusOK, api.QueueListResponse{Items: items})
}

func (s *apiServer) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req api.EnqueueRequest
	if !s.decodeBody(w, r, &req, false) {
		return
	}
	id, err := s.daemon.Enqueue(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/items/"+id)
	s.writeJSON(w, http.StatusCreated, api.EnqueueResponse{ID: id})
}

func (s *apiServer) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, err := s.daemon.DescribeItem(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if item == nil {
		s.writeError(w, http.StatusNotFound, "queue item not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueItemResponse{Item: *item})
}

func (s *apiServer) handleRetryItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := s.daemon.RetryDead(r.Context(), []string{id})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	switch result.Items[0].Outcome {
	case api.RetryItemNotFound:
		s.writeError(w, http.StatusNotFound, "queue item not found")
	case api.RetryItemNotDead:
		s.writeError(w, http.StatusConflict, fmt.Sprintf("item is %s, only dead items can be retried", result.Items[0].PriorStatus))
	default:
		s.writeJSON(w, http.StatusOK, result)
	}
}

type requeueStaleRequest struct {
	TimeoutSeconds *int `json:"timeoutSeconds"`
}

func (s *apiServer) handleRequeueStale(w http.ResponseWriter, r *http.Request) {
	var req requeueStaleRequest
	if !s.decodeBody(w, r, &req, true) {
		return
	}
	var timeout *time.Duration
	if req.TimeoutSeconds != nil {
		if *req.TimeoutSeconds < 0 {
			s.writeError(w, http.StatusBadRequest, "timeoutSeconds must be >= 0")
			return
		}
		d := time.Duration(*req.TimeoutSeconds) * time.Second
		timeout = &d
	}
	n, err := s.daemon.RequeueStale(r.Context(), timeout)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.MaintenanceResult{Requeued: n})
}

type purgeRequest struct {
	CompletedOlderThanHours *int `json:"completedOlderThanHours"`
	DeadOlderThanDays       *int `json:"deadOlderThanDays"`
}

func (s *apiServer) handlePurge(w http.ResponseWriter, r *http.Request) {
	var req purgeRequest
	if !s.decodeBody(w, r, &req, true) {
		return
	}
	var completed, dead *time.Duration
	if req.CompletedOlderThanHours != nil {
		d := time.Duration(*req.CompletedOlderThanHours) * time.Hour
		completed = &d
	}
	if req.DeadOlderThanDays != nil {
		d := time.Duration(*req.DeadOlderThanDays) * 24 * time.Hour
		dead = &d
	}
	if (completed != nil && *completed < 0) || (dead != nil && *dead < 0) {
		s.writeError(w, http.StatusBadRequest, "retention windows must be >= 0")
		return
	}
	result, err := s.daemon.Purge(r.Context(), completed, dead)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// decodeBody reads a JSON body into dst. An empty body is accepted only when
// optional is set.
func (s *apiServer) decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, queue.ErrInvalidItem):
		return http.StatusBadRequest
	case errors.Is(err, queue.ErrNotFound), errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, services.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		requestID, _ := services.RequestIDFromContext(r.Context())
		s.logger.Error("api request failed",
			logging.String("path", r.URL.Path),
			logging.String("request_id", requestID),
			logging.Error(err),
		)
	}
	s.writeError(w, status, err.Error())
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

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
