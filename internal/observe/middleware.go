package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Middleware wraps an [http.Handler] so every request is timed into
// [Metrics.HTTPRequestDuration] and logged with its status code.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capture := &responseCapture{ResponseWriter: w, status: http.StatusOK}
			began := time.Now()
			next.ServeHTTP(capture, r)
			elapsed := time.Since(began)

			m.HTTPRequestDuration.Record(r.Context(), elapsed.Seconds(),
				metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("path", r.URL.Path),
				),
			)
			slog.LogAttrs(r.Context(), slog.LevelInfo, "request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", capture.status),
				slog.Duration("duration", elapsed),
			)
		})
	}
}

// responseCapture remembers the status code the downstream handler wrote.
type responseCapture struct {
	http.ResponseWriter
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}
