package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// OrgHeader carries the caller's organization on every API request. In
// production a gateway fills it in after authentication; the server itself
// performs no credential checks.
const OrgHeader = "X-Org-ID"

type orgIDKey struct{}

// orgID returns the organization scope of the request.
func orgID(ctx context.Context) string {
	id, _ := ctx.Value(orgIDKey{}).(string)
	return id
}

// requireOrg rejects requests without a valid organization header and stores
// the org ID in the request context for handlers.
func requireOrg(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(OrgHeader)
		if id == "" {
			respondError(w, http.StatusUnauthorized, "organizacao nao especificada")
			return
		}
		if _, err := uuid.Parse(id); err != nil {
			respondError(w, http.StatusBadRequest, "organizacao invalida")
			return
		}
		ctx := context.WithValue(r.Context(), orgIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusWriter captures the response status for request logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// logRequests logs method, path, status and latency for every request.
func logRequests(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start))
		})
	}
}
