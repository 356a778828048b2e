package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"
	TraceIDHeader   = "X-Trace-ID"
)

// requestContextMiddleware attaches request and trace IDs to the context
// and echoes them back to the client.
//
// Behavior:
//   - If X-Request-ID / X-Trace-ID are present, use the sanitized values
//   - If absent or empty after sanitizing, generate a new UUID v4
//   - Store request_id, trace_id, path and method for downstream logging
func (s *Server) requestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := RequestInfo{
			RequestID: requestIDFrom(r.Header.Get(RequestIDHeader)),
			TraceID:   requestIDFrom(r.Header.Get(TraceIDHeader)),
			Path:      r.URL.Path,
			Method:    r.Method,
		}

		w.Header().Set(RequestIDHeader, info.RequestID)
		w.Header().Set(TraceIDHeader, info.TraceID)

		ctx := WithRequestInfo(r.Context(), info)
		LoggerFromContext(ctx, s.logger).Debug("Handling request")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(header string) string {
	if id := sanitizeRequestID(header); id != "" {
		return id
	}
	return uuid.New().String()
}

// responseWriterWrapper wraps http.ResponseWriter to capture the status code.
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
	written    bool
	start      time.Time
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriterWrapper {
	if ww, ok := w.(*responseWriterWrapper); ok {
		return ww
	}
	return &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK, start: time.Now()}
}

// WriteHeader keeps the first status code written.
func (w *responseWriterWrapper) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Write records an implicit 200 on first write.
func (w *responseWriterWrapper) Write(b []byte) (int, error) {
	if !w.written {
		w.statusCode = http.StatusOK
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriterWrapper) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// maxRequestIDLen bounds client-supplied IDs before they reach the logs.
const maxRequestIDLen = 64

// sanitizeRequestID keeps only ASCII letters, digits, dashes and
// underscores from the first maxRequestIDLen bytes of id.
func sanitizeRequestID(id string) string {
	if len(id) > maxRequestIDLen {
		id = id[:maxRequestIDLen]
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, id)
}
