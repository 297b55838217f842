package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// wrappedWriter captures the status code written by the wrapped handler so
// the access log can report it. It embeds the original ResponseWriter and
// intercepts WriteHeader only.
type wrappedWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *wrappedWriter) WriteHeader(statusCode int) {
	w.ResponseWriter.WriteHeader(statusCode)
	w.statusCode = statusCode
}

// Logging writes one structured access log line per handled request with
// the method, path, status and duration.
func Logging(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Handlers that never call WriteHeader implicitly answer 200.
			wrapped := &wrappedWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			logger.Info(
				"Request handled",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("host", r.Host),
				slog.Int64("duration_ns", time.Since(start).Nanoseconds()),
				slog.Int("status", wrapped.statusCode),
				slog.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
