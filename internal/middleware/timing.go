package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/openmusicplayer/bilimusic/internal/logger"
)

// SlowRequestThreshold is the duration above which Timing logs a warning
const SlowRequestThreshold = 500 * time.Millisecond

// Timing adds a Server-Timing header and logs slow requests
func Timing(next http.Handler) http.Handler {
	log := logger.Default().WithComponent("timing")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if passthrough(r) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		tw := &timingResponseWriter{ResponseWriter: w, start: start, statusCode: http.StatusOK}

		next.ServeHTTP(tw, r)

		duration := time.Since(start)
		if duration > SlowRequestThreshold {
			log.Warn(r.Context(), "slow request", map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      tw.statusCode,
				"duration_ms": duration.Milliseconds(),
			})
		}
	})
}

// timingResponseWriter sets the Server-Timing header just before the
// headers go out, since they cannot change afterwards.
type timingResponseWriter struct {
	http.ResponseWriter
	start       time.Time
	statusCode  int
	wroteHeader bool
}

func (w *timingResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.statusCode = code
		w.Header().Set("Server-Timing", formatServerTiming(time.Since(w.start)))
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *timingResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func formatServerTiming(d time.Duration) string {
	ms := float64(d.Nanoseconds()) / 1e6
	return "total;dur=" + strconv.FormatFloat(ms, 'f', 2, 64)
}
