package web

// errors.go translates core errors into HTTP responses. The mapping
// follows the core error taxonomy: not-found ids become 404, state
// conflicts and validation failures become 400 with a descriptive
// body, and anything else is a 500 whose detail stays server-side.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/ledgerline/assumptions/internal/core"
)

// ErrorResponse is the JSON body of every error response. Validation
// failures additionally carry the per-cell error list.
type ErrorResponse struct {
	Error     string           `json:"error"`
	Details   []core.CellError `json:"details,omitempty"`
	Truncated bool             `json:"truncated,omitempty"`
	RequestID string           `json:"request_id,omitempty"`
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetReqID(r.Context())

	resp := ErrorResponse{RequestID: requestID}
	var status int

	var verr *core.ValidationError
	switch {
	case core.IsNotFound(err):
		status = http.StatusNotFound
		resp.Error = "not found"
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		resp.Error = verr.Error()
		resp.Details = verr.Errors
		resp.Truncated = verr.Truncated
	case core.IsStateError(err):
		status = http.StatusBadRequest
		resp.Error = err.Error()
	default:
		status = http.StatusInternalServerError
		resp.Error = "internal error"
	}

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"request_id", requestID,
	)

	respondJSON(w, status, resp)
}

func (s *Server) forbidden(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusForbidden, ErrorResponse{
		Error:     "insufficient role for this operation",
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	respondJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:     msg,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encode response", "error", err)
	}
}
