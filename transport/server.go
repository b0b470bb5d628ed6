package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bowerbird-app/captain-hook-sub005/core"
	"github.com/bowerbird-app/captain-hook-sub005/intake"
)

// IntakeService is the admission flow the HTTP layer fronts.
type IntakeService interface {
	Accept(ctx context.Context, req intake.AcceptRequest) (intake.AcceptResult, error)
}

// Server exposes the delivery endpoint: POST /{provider}/{token} with the
// raw signed payload as the body. Response bodies and statuses are part of
// the public contract and never change shape.
type Server struct {
	router   *chi.Mux
	intake   IntakeService
	observer core.Observer
}

func NewServer(svc IntakeService, observer core.Observer) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		intake:   svc,
		observer: observer,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Post("/{provider}/{token}", s.handleDelivery)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(ctx, w, core.NewInvalidJSONError(chi.URLParam(r, "provider"), err))
		return
	}

	result, err := s.intake.Accept(ctx, intake.AcceptRequest{
		Provider:  chi.URLParam(r, "provider"),
		Token:     chi.URLParam(r, "token"),
		Body:      body,
		Headers:   flattenHeaders(r.Header),
		RequestID: middleware.GetReqID(ctx),
	})
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}

	if result.Duplicate {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":     result.Event.ID,
			"status": "duplicate",
		})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     result.Event.ID,
		"status": "received",
	})
}

func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	mapped := core.HookErrorMapper(err)
	status := http.StatusInternalServerError
	message := "An unexpected error occurred"
	if mapped != nil {
		if mapped.Code != 0 {
			status = mapped.Code
		}
		if strings.TrimSpace(mapped.Message) != "" {
			message = mapped.Message
		}
	}
	if status >= http.StatusInternalServerError {
		s.observer.LogError(ctx, "delivery rejected with server error", map[string]any{
			"status": status,
			"error":  err.Error(),
		})
	}
	writeJSON(w, status, map[string]any{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// flattenHeaders keeps the first value per header, which is what the
// signature schemes read.
func flattenHeaders(header http.Header) map[string]string {
	flattened := make(map[string]string, len(header))
	for name, values := range header {
		if len(values) == 0 {
			continue
		}
		flattened[name] = values[0]
	}
	return flattened
}
