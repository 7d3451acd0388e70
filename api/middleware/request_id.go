package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/promptability/Website-sub002/api/validators"
	"github.com/promptability/Website-sub002/pkg/logger"
)

const (
	requestIDHeader     = "X-Request-Id"
	correlationIDHeader = "X-Correlation-Id"
)

// RequestID propagates the caller's request id (or correlation id) and
// echoes it on the response. Missing or unsafe values are replaced with a
// fresh uuid so ids can be logged verbatim.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if reqID == "" {
				reqID = r.Header.Get(correlationIDHeader)
			}
			if !safeRequestID(reqID) {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)
			next.ServeHTTP(w, r.WithContext(logg.WithRequestID(r.Context(), reqID)))
		})
	}
}

func safeRequestID(id string) bool {
	if id == "" || len(id) > validators.MaxIDLength {
		return false
	}
	return !strings.ContainsFunc(id, func(r rune) bool {
		return r <= ' ' || r > '~'
	})
}
