package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
	// StatusDisabled marks optional components that are not configured.
	// It does not affect the overall status.
	StatusDisabled Status = "disabled"
)

// DefaultProbeURL is fetched by the network check
const DefaultProbeURL = "https://www.bilibili.com"

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// HealthResponse represents the full health check response
type HealthResponse struct {
	Status     Status                     `json:"status"`
	Timestamp  string                     `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// Checker performs health checks on various components
type Checker struct {
	db           *sql.DB
	redis        *redis.Client
	storageCheck func(ctx context.Context) error
	probeURL     string
	httpClient   *http.Client
	binaries     map[string]string
	version      string
	checkTimeout time.Duration
}

// CheckerConfig holds configuration for the health checker. Nil or empty
// fields disable the matching check.
type CheckerConfig struct {
	DB           *sql.DB
	Redis        *redis.Client
	StorageCheck func(ctx context.Context) error
	// ProbeURL is resolved and fetched to verify the video site is reachable
	ProbeURL   string
	HTTPClient *http.Client
	// Binaries maps a tool name to the command that must be runnable
	Binaries map[string]string
	Version  string
	Timeout  time.Duration
}

// NewChecker creates a new health checker
func NewChecker(cfg *CheckerConfig) *Checker {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Checker{
		db:           cfg.DB,
		redis:        cfg.Redis,
		storageCheck: cfg.StorageCheck,
		probeURL:     cfg.ProbeURL,
		httpClient:   client,
		binaries:     cfg.Binaries,
		version:      cfg.Version,
		checkTimeout: timeout,
	}
}

func timed(start time.Time, status Status, message string) ComponentHealth {
	return ComponentHealth{
		Status:   status,
		Message:  message,
		Duration: time.Since(start).String(),
	}
}

// CheckDB checks database connectivity
func (c *Checker) CheckDB(ctx context.Context) ComponentHealth {
	start := time.Now()

	if c.db == nil {
		return ComponentHealth{Status: StatusDisabled, Message: "history database not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return timed(start, StatusUnhealthy, "database ping failed")
	}

	// Additional check: verify we can query
	var result int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return timed(start, StatusDegraded, "database query failed")
	}

	return timed(start, StatusHealthy, "")
}

// CheckRedis checks Redis connectivity
func (c *Checker) CheckRedis(ctx context.Context) ComponentHealth {
	start := time.Now()

	if c.redis == nil {
		return ComponentHealth{Status: StatusDisabled, Message: "redis not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	if err := c.redis.Ping(ctx).Err(); err != nil {
		return timed(start, StatusUnhealthy, "redis ping failed")
	}

	return timed(start, StatusHealthy, "")
}

// CheckStorage checks S3/MinIO connectivity
func (c *Checker) CheckStorage(ctx context.Context) ComponentHealth {
	start := time.Now()

	if c.storageCheck == nil {
		return ComponentHealth{Status: StatusDisabled, Message: "archive storage not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	if err := c.storageCheck(ctx); err != nil {
		return timed(start, StatusUnhealthy, "storage check failed")
	}

	return timed(start, StatusHealthy, "")
}

// CheckNetwork resolves the probe host and fetches the probe URL
func (c *Checker) CheckNetwork(ctx context.Context) ComponentHealth {
	start := time.Now()

	if c.probeURL == "" {
		return ComponentHealth{Status: StatusDisabled, Message: "network probe not configured"}
	}

	u, err := url.Parse(c.probeURL)
	if err != nil || u.Hostname() == "" {
		return ComponentHealth{Status: StatusUnhealthy, Message: "invalid probe url"}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*c.checkTimeout)
	defer cancel()

	if _, err := net.DefaultResolver.LookupHost(ctx, u.Hostname()); err != nil {
		return timed(start, StatusUnhealthy, "dns resolution failed for "+u.Hostname())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.probeURL, nil)
	if err != nil {
		return timed(start, StatusUnhealthy, err.Error())
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; bilimusic health check)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return timed(start, StatusUnhealthy, "connection timed out")
		}
		return timed(start, StatusUnhealthy, "connection failed")
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return timed(start, StatusDegraded, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	return timed(start, StatusHealthy, "")
}

// CheckDependencies verifies every external tool can be executed
func (c *Checker) CheckDependencies(ctx context.Context) ComponentHealth {
	start := time.Now()

	if len(c.binaries) == 0 {
		return ComponentHealth{Status: StatusDisabled, Message: "no external tools configured"}
	}

	names := make([]string, 0, len(c.binaries))
	for name := range c.binaries {
		names = append(names, name)
	}
	sort.Strings(names)

	var missing []string
	for _, name := range names {
		if _, err := exec.LookPath(c.binaries[name]); err != nil {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return timed(start, StatusUnhealthy, "missing: "+strings.Join(missing, ", "))
	}

	return timed(start, StatusHealthy, "")
}

// Check performs a basic health check (liveness)
func (c *Checker) Check(ctx context.Context) *HealthResponse {
	return &HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   c.version,
	}
}

// DeepCheck performs a comprehensive health check (readiness)
func (c *Checker) DeepCheck(ctx context.Context) *HealthResponse {
	response := &HealthResponse{
		Status:     StatusHealthy,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Version:    c.version,
		Components: make(map[string]ComponentHealth),
	}

	// Run checks in parallel
	var wg sync.WaitGroup
	var mu sync.Mutex

	checks := map[string]func(context.Context) ComponentHealth{
		"database":     c.CheckDB,
		"redis":        c.CheckRedis,
		"storage":      c.CheckStorage,
		"network":      c.CheckNetwork,
		"dependencies": c.CheckDependencies,
	}

	for name, check := range checks {
		wg.Add(1)
		go func(n string, ch func(context.Context) ComponentHealth) {
			defer wg.Done()
			result := ch(ctx)
			mu.Lock()
			response.Components[n] = result
			mu.Unlock()
		}(name, check)
	}

	wg.Wait()

	// Determine overall status
	for _, comp := range response.Components {
		if comp.Status == StatusUnhealthy {
			response.Status = StatusUnhealthy
			break
		} else if comp.Status == StatusDegraded && response.Status == StatusHealthy {
			response.Status = StatusDegraded
		}
	}

	return response
}

// Handler provides HTTP handlers for health endpoints
type Handler struct {
	checker *Checker
}

// NewHandler creates a new health handler
func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

// LivenessHandler handles liveness probe requests
func (h *Handler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	response := h.checker.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if response.Status != StatusHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

// ReadinessHandler reports every component. Degraded still answers 200.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	response := h.checker.DeepCheck(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if response.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

// HealthHandler serves /health; ?deep=true runs the readiness checks
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("deep") == "true" {
		h.ReadinessHandler(w, r)
		return
	}
	h.LivenessHandler(w, r)
}
