package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/quillcms/citation-importer/internal/observability"
)

// requestContextMiddleware seeds the request context with the request ID
// and the caller's privilege so downstream code can filter error detail.
func (s *Server) requestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if requestID := middleware.GetReqID(ctx); requestID != "" {
			ctx = observability.WithRequestID(ctx, requestID)
			w.Header().Set("X-Request-ID", requestID)
		}

		admin := r.Header.Get(s.adminHeader) == s.adminRole
		ctx = observability.WithAdmin(ctx, admin)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
