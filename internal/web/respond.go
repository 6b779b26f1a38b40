package web

// respond.go centralizes response writing. Errors are logged with the
// request id server-side and returned to clients as JSON.

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/roadregistry/importer/internal/logging"
)

// ErrorResponse is the JSON shape of API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
	)
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// requestLogger logs one line per request through the request-scoped logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.WithFields(r.Context(),
			"method", r.Method,
			"path", r.URL.Path,
		).Info("request",
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).Round(time.Microsecond),
		)
	})
}
