package api

import (
	"context"
)

// contextKey is a private type to prevent context key collisions across packages.
type contextKey string

// ContextKeyRequestInfo stores the RequestInfo for the current request
const ContextKeyRequestInfo contextKey = "request_info"

// RequestInfo is the per-request context attached to every log line.
type RequestInfo struct {
	RequestID string
	TraceID   string
	Path      string
	Method    string
}

// Fields returns the info as zap key-value pairs, skipping empty values.
func (ri RequestInfo) Fields() []any {
	fields := make([]any, 0, 8)
	for _, kv := range [][2]string{
		{"request_id", ri.RequestID},
		{"trace_id", ri.TraceID},
		{"path", ri.Path},
		{"method", ri.Method},
	} {
		if kv[1] != "" {
			fields = append(fields, kv[0], kv[1])
		}
	}
	return fields
}

// WithRequestInfo returns a context carrying info.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, ContextKeyRequestInfo, info)
}

// GetRequestInfo extracts the request info from the context.
func GetRequestInfo(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(ContextKeyRequestInfo).(RequestInfo)
	return info, ok
}
