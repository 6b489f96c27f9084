package domain

import "context"

type sessionKey struct{}

// WithSession stores a SessionContext in the context.
func WithSession(ctx context.Context, s SessionContext) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext extracts the SessionContext from the context.
func SessionFromContext(ctx context.Context) (SessionContext, bool) {
	s, ok := ctx.Value(sessionKey{}).(SessionContext)
	return s, ok
}

type requestIDKey struct{}

// WithRequestID stores the request correlation id in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request correlation id or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
