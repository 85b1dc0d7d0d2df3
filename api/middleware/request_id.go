package middleware

import (
	"context"
	"net/http"
	"regexp"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Inbound ids end up in logs, error bodies and support tickets, so anything
// outside this shape is replaced.
var clientRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{8,64}$`)

// RequestID stores the request id under chi's key so responses and handlers
// read it with chimw.GetReqID.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(chimw.RequestIDHeader)
			if !clientRequestID.MatchString(id) {
				id = uuid.NewString()
			}
			w.Header().Set(chimw.RequestIDHeader, id)

			ctx := context.WithValue(r.Context(), chimw.RequestIDKey, id)
			if logg != nil {
				ctx = logg.WithRequestID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
