package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request id on requests and responses.
	RequestIDHeader = "X-Request-ID"
)

// RequestIDMiddleware assigns every request a UUIDv7 id, reusing the
// one the client sent when present.
func RequestIDMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				requestID = "unknown"
			} else {
				requestID = id.String()
			}
		}

		w.Header().Set(RequestIDHeader, requestID)
		r = r.WithContext(requestIDToContext(r.Context(), requestID))

		next(w, r)
	}
}
