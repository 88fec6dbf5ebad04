package correlation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Header names checked for an inbound correlation ID, in order.
const (
	HTTPHeader          = "X-Correlation-ID"
	HTTPRequestIDHeader = "X-Request-ID"
	HTTPTraceIDHeader   = "X-Trace-ID"
)

// contextKey is the type for context keys to avoid collisions
type contextKey int

const (
	correlationIDKey contextKey = iota
	requestStartTimeKey
	clientIPKey
)

// ID represents a correlation ID
type ID string

// String returns the string representation of the correlation ID
func (id ID) String() string {
	return string(id)
}

// IsEmpty returns true if the correlation ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// New generates a new unique correlation ID
func New() ID {
	return ID(uuid.NewString())
}

// FromString creates a correlation ID from an existing string
// Returns the provided ID or generates a new one if empty
func FromString(s string) ID {
	if s == "" {
		return New()
	}
	return ID(s)
}

// WithCorrelationID returns a new context with the correlation ID attached
func WithCorrelationID(ctx context.Context, id ID) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// FromContext extracts the correlation ID from a context
// Returns an empty ID if not present
func FromContext(ctx context.Context) ID {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(correlationIDKey).(ID); ok {
		return id
	}
	return ""
}

// FromContextOrNew extracts the correlation ID from context or generates a new one
func FromContextOrNew(ctx context.Context) ID {
	id := FromContext(ctx)
	if id.IsEmpty() {
		return New()
	}
	return id
}

// WithRequestStartTime returns a new context with the request start time attached
func WithRequestStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestStartTimeKey, t)
}

// RequestStartTimeFromContext extracts the request start time from a context
func RequestStartTimeFromContext(ctx context.Context) (time.Time, bool) {
	if ctx == nil {
		return time.Time{}, false
	}
	if t, ok := ctx.Value(requestStartTimeKey).(time.Time); ok {
		return t, true
	}
	return time.Time{}, false
}

// WithClientIP returns a new context with the client IP attached
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFromContext extracts the client IP from a context
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if ip, ok := ctx.Value(clientIPKey).(string); ok {
		return ip
	}
	return ""
}

// RequestInfo contains all correlation-related information for a request
type RequestInfo struct {
	CorrelationID ID
	StartTime     time.Time
	ClientIP      string
	Method        string
	Path          string
}

// ToContext attaches all request info to a context
func (r *RequestInfo) ToContext(ctx context.Context) context.Context {
	ctx = WithCorrelationID(ctx, r.CorrelationID)
	ctx = WithRequestStartTime(ctx, r.StartTime)
	ctx = WithClientIP(ctx, r.ClientIP)
	return ctx
}

// Duration returns the time elapsed since the request started
func (r *RequestInfo) Duration() time.Duration {
	return time.Since(r.StartTime)
}
