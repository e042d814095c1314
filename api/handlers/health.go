package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shreya-uprety/medforce-gateway/api"
)

// gatewayHealth is the subset of gateway.Gateway's Health() the handler
// needs, kept as an interface so tests can stub it without constructing
// a full Gateway.
type gatewayHealth interface {
	Health() map[string]any
}

// HealthHandler serves liveness/readiness/version endpoints, plus
// pluggable dependency checks for /ready.
type HealthHandler struct {
	logger *zap.Logger
	gw     gatewayHealth
	checks []HealthCheck
	mu     sync.RWMutex
}

// HealthCheck is a pluggable dependency check (database, cache, ...).
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthStatus is the /ready response shape, reporting each dependency
// check's outcome alongside overall status.
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is one dependency check's outcome.
type CheckResult struct {
	Status  string `json:"status"` // "pass", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// NewHealthHandler builds a HealthHandler. gw may be nil, in which case
// /health reports a static "ok" without queue/DLQ depth.
func NewHealthHandler(gw gatewayHealth, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		logger: logger,
		gw:     gw,
		checks: make([]HealthCheck, 0),
	}
}

// RegisterCheck adds a dependency check consulted by HandleReady.
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// HandleHealth serves GET /health: the Gateway's own
// liveness signal plus queue/DLQ depth.
// @Summary Gateway health
// @Description Liveness plus active patient queues and DLQ depth
// @Tags health
// @Produce json
// @Success 200 {object} api.HealthResponse
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := api.HealthResponse{Status: "ok"}
	if h.gw != nil {
		snapshot := h.gw.Health()
		if v, ok := snapshot["active_patients"].(int); ok {
			resp.ActivePatients = v
		}
		if v, ok := snapshot["dlq_size"].(int); ok {
			resp.DLQSize = v
		}
	}
	WriteSuccess(w, resp)
}

// HandleHealthz serves /healthz, a Kubernetes-style liveness probe that
// only confirms the process is running.
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} HealthStatus
// @Router /healthz [get]
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
	}

	WriteJSON(w, http.StatusOK, status)
}

// HandleReady serves /ready: runs every registered HealthCheck and
// reports 503 if any fail.
// @Summary Readiness probe
// @Tags health
// @Produce json
// @Success 200 {object} HealthStatus
// @Failure 503 {object} HealthStatus
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult),
	}

	allHealthy := true
	for _, check := range checks {
		start := time.Now()
		err := check.Check(ctx)
		latency := time.Since(start)

		result := CheckResult{
			Status:  "pass",
			Latency: latency.String(),
		}

		if err != nil {
			result.Status = "fail"
			result.Message = err.Error()
			allHealthy = false

			h.logger.Warn("health check failed",
				zap.String("check", check.Name()),
				zap.Error(err),
				zap.Duration("latency", latency),
			)
		}

		status.Checks[check.Name()] = result
	}

	if !allHealthy {
		status.Status = "unhealthy"
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// HandleVersion serves /version.
// @Summary Version info
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		}

		WriteSuccess(w, info)
	}
}

// MongoHealthCheck pings the diary store's Mongo connection.
type MongoHealthCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewMongoHealthCheck builds a MongoHealthCheck around ping.
func NewMongoHealthCheck(name string, ping func(ctx context.Context) error) *MongoHealthCheck {
	return &MongoHealthCheck{name: name, ping: ping}
}

func (c *MongoHealthCheck) Name() string { return c.name }

func (c *MongoHealthCheck) Check(ctx context.Context) error { return c.ping(ctx) }

// RedisHealthCheck pings the cache layer's Redis connection.
type RedisHealthCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewRedisHealthCheck builds a RedisHealthCheck around ping.
func NewRedisHealthCheck(name string, ping func(ctx context.Context) error) *RedisHealthCheck {
	return &RedisHealthCheck{name: name, ping: ping}
}

func (c *RedisHealthCheck) Name() string { return c.name }

func (c *RedisHealthCheck) Check(ctx context.Context) error { return c.ping(ctx) }

// PingHealthCheck wraps an arbitrary ping function, for dependencies that
// don't warrant their own named type (e.g. a SQL connection pool).
type PingHealthCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingHealthCheck builds a PingHealthCheck around ping.
func NewPingHealthCheck(name string, ping func(ctx context.Context) error) *PingHealthCheck {
	return &PingHealthCheck{name: name, ping: ping}
}

func (c *PingHealthCheck) Name() string { return c.name }

func (c *PingHealthCheck) Check(ctx context.Context) error { return c.ping(ctx) }
