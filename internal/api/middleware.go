package api

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// MaxBodySize caps request bodies at limit bytes; 0 leaves them unbounded.
// Reads past the limit fail with *http.MaxBytesError, which handlers report as a 400.
func MaxBodySize(limit int64) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RequestSize(limit)
}
