package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/hlog"
)

func WriteJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("write response")
	}
}

// ErrorResponse is the body of every non-2xx answer. RequestID matches the
// X-Request-ID response header.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	WriteJSON(w, r, status, ErrorResponse{Error: msg, RequestID: RequestIDFrom(r.Context())})
}
