package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"tenant-gate/internal/domain"
)

// RequestIDHeader carries the correlation id in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen bounds client-supplied ids before they reach logs and audit
// metadata.
const maxRequestIDLen = 128

// RequestID tags every request with a correlation id. A well-formed inbound
// X-Request-ID is kept so callers can trace an impersonation across services;
// anything else is replaced by a fresh UUID. Services read the id through
// domain.RequestIDFromContext and attach it to audit entries.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(domain.WithRequestID(r.Context(), id)))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	return strings.IndexFunc(id, func(c rune) bool { return !requestIDRune(c) }) < 0
}

func requestIDRune(c rune) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '-' || c == '_' || c == '.'
}
