package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	ctxutil "3tcapital/otrs_connector/internal/infrastructure/context"
)

// responseWriter wraps http.ResponseWriter to capture status code and bytes written.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// RequestLogger logs one line per request and stores the correlation ID in
// the request context so outbound OTRS calls carry it.
// Correlation ID precedence: X-Correlation-ID header, chi request ID, new UUID.
// 5xx logs at Error, 4xx at Warn, everything else at Info.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chimw.GetReqID(r.Context())
			correlationID := r.Header.Get("X-Correlation-ID")
			if correlationID == "" {
				correlationID = requestID
			}
			if correlationID == "" {
				correlationID = uuid.NewString()
			}
			ctx := ctxutil.WithCorrelationID(r.Context(), correlationID)
			w.Header().Set("X-Correlation-ID", correlationID)

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r.WithContext(ctx))

			durationMs := float64(time.Since(start).Nanoseconds()) / 1e6

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"status", rw.statusCode,
				"duration_ms", durationMs,
				"bytes", rw.bytesWritten,
				"correlation_id", correlationID,
			}
			if requestID != "" {
				attrs = append(attrs, "request_id", requestID)
			}
			if sub := Subject(ctx); sub != "" {
				attrs = append(attrs, "subject", sub)
			}
			if userAgent := r.Header.Get("User-Agent"); userAgent != "" {
				attrs = append(attrs, "user_agent", userAgent)
			}

			switch {
			case rw.statusCode >= 500:
				log.Error("HTTP request", attrs...)
			case rw.statusCode >= 400:
				log.Warn("HTTP request", attrs...)
			default:
				log.Info("HTTP request", attrs...)
			}
		})
	}
}
