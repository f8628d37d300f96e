package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"plan-engine/internal/coordinator"
	"plan-engine/internal/plan"
	"plan-engine/internal/shared"
)

type errorResponse struct {
	Error   string     `json:"error"`
	Code    string     `json:"code"`
	Reason  string     `json:"reason,omitempty"`
	Field   string     `json:"field,omitempty"`
	Plan    *plan.Plan `json:"plan,omitempty"`
	Version int64      `json:"version,omitempty"`

	Outcome *coordinator.Outcome `json:"outcome,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: failed to encode response", "error", err)
	}
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// statusFor maps the shared error taxonomy onto HTTP.
func statusFor(err error) (int, errorResponse) {
	resp := errorResponse{Error: err.Error()}
	var verr *shared.ValidationError
	switch {
	case errors.Is(err, shared.ErrNotFound):
		resp.Code = "not_found"
		return http.StatusNotFound, resp
	case errors.As(err, &verr):
		resp.Code = "validation_failed"
		if verr.Reason == shared.ReasonMalformedAIOutput {
			resp.Code = "malformed_ai_output"
		}
		resp.Reason, resp.Field = verr.Reason, verr.Field
		return http.StatusBadRequest, resp
	case errors.Is(err, shared.ErrAIUnavailable):
		resp.Code = "ai_unavailable"
		return http.StatusServiceUnavailable, resp
	case errors.Is(err, shared.ErrSuperseded):
		resp.Code = "superseded"
		return http.StatusConflict, resp
	case coordinator.IsConflict(err):
		resp.Code = "conflict"
		return http.StatusConflict, resp
	}
	resp.Code = "internal_error"
	return http.StatusInternalServerError, resp
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "api: request failed", "path", r.URL.Path, "error", err)
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func newRequestID() string {
	return uuid.NewString()
}
