package logger

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/openmusicplayer/bilimusic/internal/errors"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	bytes       int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		status:         http.StatusOK,
	}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// unloggedPaths are served without request logging. The websocket endpoint
// needs the raw ResponseWriter to hijack the connection; probes and scrapes
// would drown everything else.
var unloggedPaths = map[string]bool{
	"/health":       true,
	"/health/live":  true,
	"/health/ready": true,
	"/metrics":      true,
	"/ws":           true,
}

// LoggingMiddleware logs one line per request. Successful GETs are logged at
// debug since clients poll job and library listings.
func LoggingMiddleware(next http.Handler) http.Handler {
	log := Default().WithComponent("http")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if unloggedPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		// The mux fills in the pattern and path values on the way through
		ctx := r.Context()
		if id := r.PathValue("id"); id != "" && strings.HasPrefix(r.URL.Path, "/api/v1/downloads/") {
			ctx = WithJobID(ctx, id)
		}
		route := r.Pattern
		if route == "" {
			route = r.Method + " " + r.URL.Path
		}

		fields := map[string]interface{}{
			"route":       route,
			"path":        r.URL.Path,
			"status":      rw.status,
			"bytes":       rw.bytes,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote_ip":   clientIP(r),
		}
		if q := sanitizeQuery(r.URL.RawQuery); q != "" {
			fields["query"] = q
		}

		switch {
		case rw.status >= 500:
			log.Error(ctx, "request failed", nil, fields)
		case rw.status >= 400:
			log.Warn(ctx, "request rejected", fields)
		case r.Method == http.MethodGet:
			log.Debug(ctx, "request completed", fields)
		default:
			log.Info(ctx, "request completed", fields)
		}
	})
}

var sensitiveParams = []string{"token", "password", "secret", "key", "auth"}

// sanitizeQuery redacts credentials, e.g. the websocket ?token=
func sanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return "[unparsable]"
	}
	for name := range values {
		lower := strings.ToLower(name)
		for _, s := range sensitiveParams {
			if strings.Contains(lower, s) {
				values[name] = []string{"[REDACTED]"}
				break
			}
		}
	}
	return values.Encode()
}

// clientIP prefers the first proxy hop, then the socket peer without port
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RecoveryMiddleware recovers from panics and logs them
func RecoveryMiddleware(next http.Handler) http.Handler {
	log := Default().WithComponent("recovery")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error(r.Context(), "panic recovered", fmt.Errorf("panic: %v", rec), map[string]interface{}{
					"path":   r.URL.Path,
					"method": r.Method,
				})
				apperrors.WriteError(w, apperrors.GetRequestID(r.Context()), apperrors.InternalError("an unexpected error occurred"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
