package monitoring

import (
	"context"
	"sync"
	"time"

	"economy-api/internal/storage"
)

type HealthChecker interface {
	CheckHealth(ctx context.Context) *HealthStatus
	RegisterCheck(name string, checker ComponentChecker)
}

type ComponentChecker interface {
	Check(ctx context.Context) error
	Timeout() time.Duration
}

type HealthStatus struct {
	Status     string                      `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp  time.Time                   `json:"timestamp"`
	Uptime     time.Duration               `json:"uptime"`
	Version    string                      `json:"version"`
	Components map[string]*ComponentHealth `json:"components"`
}

type ComponentHealth struct {
	Status      string        `json:"status"` // "healthy", "unhealthy"
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

type healthChecker struct {
	checkers  map[string]ComponentChecker
	startTime time.Time
	version   string
	mutex     sync.RWMutex
}

func NewHealthChecker(version string) HealthChecker {
	return &healthChecker{
		checkers:  make(map[string]ComponentChecker),
		startTime: time.Now(),
		version:   version,
	}
}

func (h *healthChecker) RegisterCheck(name string, checker ComponentChecker) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.checkers[name] = checker
}

func (h *healthChecker) CheckHealth(ctx context.Context) *HealthStatus {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	components := make(map[string]*ComponentHealth, len(h.checkers))
	unhealthy := 0

	for name, checker := range h.checkers {
		health := h.checkComponent(ctx, checker)
		components[name] = health
		if health.Status != "healthy" {
			unhealthy++
		}
	}

	overall := "healthy"
	switch {
	case unhealthy == 0:
	case unhealthy < len(h.checkers):
		overall = "degraded"
	default:
		overall = "unhealthy"
	}

	return &HealthStatus{
		Status:     overall,
		Timestamp:  time.Now(),
		Uptime:     time.Since(h.startTime),
		Version:    h.version,
		Components: components,
	}
}

func (h *healthChecker) checkComponent(ctx context.Context, checker ComponentChecker) *ComponentHealth {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, checker.Timeout())
	defer cancel()

	err := checker.Check(checkCtx)
	health := &ComponentHealth{
		Status:      "healthy",
		LastChecked: time.Now(),
		Duration:    time.Since(start),
	}
	if err != nil {
		health.Status = "unhealthy"
		health.Error = err.Error()
	}
	return health
}

// StorageChecker verifies the backing store answers pings.
type StorageChecker struct {
	Store storage.Store
}

func (c *StorageChecker) Check(ctx context.Context) error {
	return c.Store.Ping(ctx)
}

func (c *StorageChecker) Timeout() time.Duration {
	return 2 * time.Second
}
