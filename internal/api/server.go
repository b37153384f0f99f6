// Package api exposes the engine over HTTP/JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"bookcore/internal/lifecycle"
	"bookcore/internal/lock"
	"bookcore/internal/model"
	"bookcore/internal/validation"
)

// BusinessHeader carries the tenant every request is scoped to.
const BusinessHeader = "X-Business-ID"

// ResourceStore lists resources for read endpoints.
type ResourceStore interface {
	GetResource(ctx context.Context, business model.BusinessID, id int64) (*model.Resource, error)
	ListResources(ctx context.Context, business model.BusinessID) ([]*model.Resource, error)
}

// Exporter renders reservations as a workbook.
type Exporter interface {
	ExportReservations(ctx context.Context, business model.BusinessID, from, to time.Time, w io.Writer) (int, error)
}

// Config holds HTTP server settings.
type Config struct {
	Port               int
	APIKey             string
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// HTTPServer serves the engine API.
type HTTPServer struct {
	svc       *lifecycle.Service
	resources ResourceStore
	exporter  Exporter
	apiKey    string
	limiter   *limiterStore
	logger    zerolog.Logger
	mux       *http.ServeMux
	server    *http.Server
}

// NewHTTPServer wires routes and middleware.
func NewHTTPServer(cfg Config, svc *lifecycle.Service, resources ResourceStore, exporter Exporter, logger zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		svc:       svc,
		resources: resources,
		exporter:  exporter,
		apiKey:    cfg.APIKey,
		limiter:   newLimiterStore(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		logger:    logger.With().Str("component", "api").Logger(),
		mux:       http.NewServeMux(),
	}
	s.routes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes() {
	s.handle("GET /api/v1/resources", s.handleListResources)
	s.handle("GET /api/v1/resources/{id}", s.handleGetResource)
	s.handle("GET /api/v1/resources/{id}/available-at", s.handleAvailableAt)
	s.handle("GET /api/v1/resources/{id}/schedule-allows", s.handleScheduleAllows)
	s.handle("GET /api/v1/resources/{id}/capacity", s.handleCapacity)
	s.handle("GET /api/v1/resources/{id}/slots", s.handleSlots)
	s.handle("PUT /api/v1/resources/{id}/calendar", s.handleUpdateCalendar)

	s.handle("GET /api/v1/policy", s.handleGetPolicy)
	s.handle("PUT /api/v1/policy", s.handleUpdatePolicy)

	s.handle("POST /api/v1/appointments", s.handleCreateAppointment)
	s.handle("POST /api/v1/rentals", s.handleCreateRental)
	s.handle("GET /api/v1/reservations/export", s.handleExport)
	s.handle("GET /api/v1/reservations/{id}", s.handleGetReservation)
	s.handle("PATCH /api/v1/reservations/{id}", s.handleReschedule)
	s.handle("POST /api/v1/reservations/{id}/transitions", s.handleTransition)
}

// Handler returns the root handler with middleware applied.
func (s *HTTPServer) Handler() http.Handler {
	return s.requestID(s.rateLimit(s.auth(s.mux)))
}

// Start serves until Shutdown.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
}

type validationResponse struct {
	Errors *validation.Errors `json:"errors"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps engine errors to HTTP statuses.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if verr, ok := validation.As(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Errors: verr})
		return
	}

	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, lifecycle.ErrIllegalTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "reservation was modified concurrently; reload and retry")
	case errors.Is(err, lifecycle.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, lock.ErrNotAcquired), errors.Is(err, model.ErrStoreBusy), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "resource is busy; retry later")
	default:
		s.logger.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// business reads the tenant header; it writes a 400 and returns false when
// the header is missing or malformed.
func business(w http.ResponseWriter, r *http.Request) (model.BusinessID, bool) {
	raw := r.Header.Get(BusinessHeader)
	id, err := strconv.ParseInt(raw, 10, 64)
	if raw == "" || err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, BusinessHeader+" header must be a positive integer")
		return 0, false
	}
	return model.BusinessID(id), true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func queryTime(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		writeError(w, http.StatusBadRequest, name+" is required")
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name+" format; expected RFC3339")
		return time.Time{}, false
	}
	return t, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
