package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const namespace = "bilimusic"

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Request metrics
	requestCount    map[string]*uint64    // endpoint:method -> count
	requestDuration map[string]*Histogram // endpoint:method -> duration histogram
	requestErrors   map[string]*uint64    // endpoint:method:status_class -> count

	// Job metrics
	jobsStarted   uint64
	jobsFinished  map[string]*uint64 // terminal state -> count
	jobDuration   *Histogram
	activeJobs    int64
	retryAttempts uint64

	activeWSConnections int64

	// Custom counters
	counters map[string]*uint64

	startTime time.Time
}

// Histogram tracks value distributions
type Histogram struct {
	mu         sync.Mutex
	count      uint64
	sum        float64
	buckets    []float64
	bucketVals []uint64
}

// NewHistogram creates a new histogram with request latency buckets
// (5ms up to 10s)
func NewHistogram() *Histogram {
	return NewHistogramWithBuckets([]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10})
}

// NewHistogramWithBuckets creates a histogram with the given ascending upper bounds
func NewHistogramWithBuckets(buckets []float64) *Histogram {
	return &Histogram{
		buckets:    buckets,
		bucketVals: make([]uint64, len(buckets)),
	}
}

// Observe records a value
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, b := range h.buckets {
		if v <= b {
			h.bucketVals[i]++
		}
	}
}

func (h *Histogram) write(sb *strings.Builder, name, labels string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sep := ""
	if labels != "" {
		sep = ","
	}
	for i, bucket := range h.buckets {
		fmt.Fprintf(sb, "%s_bucket{%s%sle=\"%g\"} %d\n", name, labels, sep, bucket, h.bucketVals[i])
	}
	fmt.Fprintf(sb, "%s_bucket{%s%sle=\"+Inf\"} %d\n", name, labels, sep, h.count)
	if labels != "" {
		fmt.Fprintf(sb, "%s_sum{%s} %f\n", name, labels, h.sum)
		fmt.Fprintf(sb, "%s_count{%s} %d\n", name, labels, h.count)
	} else {
		fmt.Fprintf(sb, "%s_sum %f\n", name, h.sum)
		fmt.Fprintf(sb, "%s_count %d\n", name, h.count)
	}
}

// New creates a new Metrics instance
func New() *Metrics {
	return &Metrics{
		requestCount:    make(map[string]*uint64),
		requestDuration: make(map[string]*Histogram),
		requestErrors:   make(map[string]*uint64),
		jobsFinished:    make(map[string]*uint64),
		// Jobs take seconds to minutes: 1s up to 30m
		jobDuration: NewHistogramWithBuckets([]float64{1, 5, 15, 30, 60, 120, 300, 600, 1800}),
		counters:    make(map[string]*uint64),
		startTime:   time.Now(),
	}
}

// global metrics instance
var defaultMetrics = New()

// Default returns the default metrics instance
func Default() *Metrics {
	return defaultMetrics
}

// counter returns the counter stored under key, creating it if needed
func (m *Metrics) counter(set map[string]*uint64, key string) *uint64 {
	m.mu.RLock()
	c := set[key]
	m.mu.RUnlock()
	if c != nil {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if set[key] == nil {
		var zero uint64
		set[key] = &zero
	}
	return set[key]
}

// RecordRequest records a request
func (m *Metrics) RecordRequest(method, path string, statusCode int, duration time.Duration) {
	key := fmt.Sprintf("%s:%s", normalizeEndpoint(path), method)

	atomic.AddUint64(m.counter(m.requestCount, key), 1)

	m.mu.Lock()
	h := m.requestDuration[key]
	if h == nil {
		h = NewHistogram()
		m.requestDuration[key] = h
	}
	m.mu.Unlock()
	h.Observe(duration.Seconds())

	// Track errors by status class
	if statusCode >= 400 {
		errorKey := fmt.Sprintf("%s:%d", key, statusCode/100*100)
		atomic.AddUint64(m.counter(m.requestErrors, errorKey), 1)
	}
}

// normalizeEndpoint normalizes an endpoint path for metrics (removes IDs)
func normalizeEndpoint(path string) string {
	// Replace UUIDs and numeric IDs with placeholders
	parts := strings.Split(path, "/")
	for i, part := range parts {
		// UUID pattern (simplified)
		if len(part) == 36 && strings.Count(part, "-") == 4 {
			parts[i] = "{id}"
		} else if len(part) > 0 && isNumeric(part) {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// RecordJobStarted counts a job leaving the pending state
func (m *Metrics) RecordJobStarted() {
	atomic.AddUint64(&m.jobsStarted, 1)
}

// RecordJobFinished counts a job reaching a terminal state
func (m *Metrics) RecordJobFinished(state string, duration time.Duration) {
	atomic.AddUint64(m.counter(m.jobsFinished, state), 1)
	if duration > 0 {
		m.jobDuration.Observe(duration.Seconds())
	}
}

// RecordRetry counts one extra extraction attempt
func (m *Metrics) RecordRetry() {
	atomic.AddUint64(&m.retryAttempts, 1)
}

// SetActiveJobs sets the number of non-terminal jobs
func (m *Metrics) SetActiveJobs(n int64) {
	atomic.StoreInt64(&m.activeJobs, n)
}

// JobsFinished returns the count for one terminal state
func (m *Metrics) JobsFinished(state string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c := m.jobsFinished[state]; c != nil {
		return atomic.LoadUint64(c)
	}
	return 0
}

// SetWSConnections sets the active WebSocket connections count
func (m *Metrics) SetWSConnections(count int64) {
	atomic.StoreInt64(&m.activeWSConnections, count)
}

// IncCounter increments a counter
func (m *Metrics) IncCounter(name string) {
	atomic.AddUint64(m.counter(m.counters, name), 1)
}

func sortedKeys[V any](set map[string]V) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func header(sb *strings.Builder, name, kind, help string) {
	fmt.Fprintf(sb, "# HELP %s %s\n", name, help)
	fmt.Fprintf(sb, "# TYPE %s %s\n", name, kind)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder

		// Uptime
		header(&sb, namespace+"_uptime_seconds", "gauge", "Time since the server started")
		fmt.Fprintf(&sb, "%s_uptime_seconds %f\n\n", namespace, time.Since(m.startTime).Seconds())

		header(&sb, namespace+"_websocket_connections_active", "gauge", "Active WebSocket connections")
		fmt.Fprintf(&sb, "%s_websocket_connections_active %d\n\n", namespace, atomic.LoadInt64(&m.activeWSConnections))

		// Jobs
		header(&sb, namespace+"_jobs_active", "gauge", "Jobs not yet in a terminal state")
		fmt.Fprintf(&sb, "%s_jobs_active %d\n\n", namespace, atomic.LoadInt64(&m.activeJobs))

		header(&sb, namespace+"_jobs_started_total", "counter", "Jobs that began validation")
		fmt.Fprintf(&sb, "%s_jobs_started_total %d\n\n", namespace, atomic.LoadUint64(&m.jobsStarted))

		header(&sb, namespace+"_job_retries_total", "counter", "Extraction attempts beyond the first")
		fmt.Fprintf(&sb, "%s_job_retries_total %d\n\n", namespace, atomic.LoadUint64(&m.retryAttempts))

		header(&sb, namespace+"_job_duration_seconds", "histogram", "Time from submission to terminal state")
		m.jobDuration.write(&sb, namespace+"_job_duration_seconds", "")
		sb.WriteString("\n")

		m.mu.RLock()
		if len(m.jobsFinished) > 0 {
			header(&sb, namespace+"_jobs_finished_total", "counter", "Jobs by terminal state")
			for _, state := range sortedKeys(m.jobsFinished) {
				fmt.Fprintf(&sb, "%s_jobs_finished_total{state=\"%s\"} %d\n", namespace, state, atomic.LoadUint64(m.jobsFinished[state]))
			}
			sb.WriteString("\n")
		}

		// Request counts
		if len(m.requestCount) > 0 {
			header(&sb, namespace+"_http_requests_total", "counter", "Total HTTP requests")
			for _, key := range sortedKeys(m.requestCount) {
				parts := strings.SplitN(key, ":", 2)
				if len(parts) == 2 {
					count := atomic.LoadUint64(m.requestCount[key])
					fmt.Fprintf(&sb, "%s_http_requests_total{endpoint=\"%s\",method=\"%s\"} %d\n", namespace, parts[0], parts[1], count)
				}
			}
			sb.WriteString("\n")
		}

		// Request duration histograms
		if len(m.requestDuration) > 0 {
			header(&sb, namespace+"_http_request_duration_seconds", "histogram", "HTTP request latency")
			for _, key := range sortedKeys(m.requestDuration) {
				parts := strings.SplitN(key, ":", 2)
				if len(parts) == 2 {
					labels := fmt.Sprintf("endpoint=\"%s\",method=\"%s\"", parts[0], parts[1])
					m.requestDuration[key].write(&sb, namespace+"_http_request_duration_seconds", labels)
				}
			}
			sb.WriteString("\n")
		}

		// Error counts
		if len(m.requestErrors) > 0 {
			header(&sb, namespace+"_http_errors_total", "counter", "Total HTTP errors by status class")
			for _, key := range sortedKeys(m.requestErrors) {
				// key format: endpoint:method:statusClass
				parts := strings.Split(key, ":")
				if len(parts) >= 3 {
					count := atomic.LoadUint64(m.requestErrors[key])
					fmt.Fprintf(&sb, "%s_http_errors_total{endpoint=\"%s\",method=\"%s\",status_class=\"%sxx\"} %d\n", namespace, parts[0], parts[1], parts[2][:1], count)
				}
			}
			sb.WriteString("\n")
		}

		// Custom counters
		if len(m.counters) > 0 {
			header(&sb, namespace+"_counter", "counter", "Custom counter metrics")
			for _, name := range sortedKeys(m.counters) {
				fmt.Fprintf(&sb, "%s_counter{name=\"%s\"} %d\n", namespace, name, atomic.LoadUint64(m.counters[name]))
			}
		}
		m.mu.RUnlock()

		w.Write([]byte(sb.String()))
	}
}

// MetricsMiddleware creates middleware that records request metrics
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The websocket upgrade needs the hijackable writer
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()

			// Wrap response writer to capture status
			wrapped := &statusResponseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			m.RecordRequest(r.Method, r.URL.Path, wrapped.statusCode, time.Since(start))
		})
	}
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
