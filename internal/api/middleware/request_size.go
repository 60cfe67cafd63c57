package middleware

import (
	"net/http"
)

// DefaultMaxBodySize is the JSON body limit for every API endpoint.
const DefaultMaxBodySize int64 = 1 << 20 // 1MB

// RequestSize limits request bodies to maxBytes by wrapping them in
// http.MaxBytesReader. The overflow surfaces when a handler reads the body,
// so handlers that refuse a request before reading it (an authorization
// failure, say) answer with their own status, not 413.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

			next.ServeHTTP(w, r)
		})
	}
}
