package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

type ctxKey int

const requestIDKey ctxKey = iota

// RequestID echoes the caller's X-Request-ID or assigns a uuid, and keeps it
// on the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Logger attaches a request logger carrying the request id and, while one is
// running, the live session id. Each request is logged at debug once served.
func Logger(log zerolog.Logger, live LiveSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		accessLog := hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			hlog.FromRequest(r).Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("size", size).
				Dur("duration_ms", dur).
				Msg("request")
		})
		fields := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := RequestIDFrom(r.Context())
			var sessionID string
			if live != nil {
				if s := live.Current(); s != nil {
					sessionID = s.ID()
				}
			}
			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				if reqID != "" {
					c = c.Str("request_id", reqID)
				}
				if sessionID != "" {
					c = c.Str("session", sessionID)
				}
				return c
			})
			accessLog(next).ServeHTTP(w, r)
		})
		return hlog.NewHandler(log)(fields)
	}
}

// Recoverer turns a handler panic into a 500 JSON error.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rv := recover(); rv != nil {
				hlog.FromRequest(r).Error().Interface("panic", rv).Str("path", r.URL.Path).Msg("handler panicked")
				WriteError(w, r, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
