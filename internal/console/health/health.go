package health

import (
	"context"
	"sync"
	"time"

	"github.com/tair/product-console/pkg/logger"
)

// Health statuses
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

// DependencyHealth is the result of one probe
type DependencyHealth struct {
	Name      string        `json:"name"`
	Status    string        `json:"status"`
	Latency   time.Duration `json:"latency_ms"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// ConsoleHealth is the readiness report of the console
type ConsoleHealth struct {
	Service      string                      `json:"service"`
	Status       string                      `json:"status"`
	Dependencies map[string]DependencyHealth `json:"dependencies"`
	Details      map[string]interface{}      `json:"details,omitempty"`
	Uptime       float64                     `json:"uptime_seconds"`
}

// Checker probes the console's dependencies
type Checker struct {
	service   string
	timeout   time.Duration
	startTime time.Time

	mu      sync.RWMutex
	checks  map[string]CheckFunc
	details map[string]func() interface{}
}

// NewChecker creates a checker; each probe gets at most timeout
func NewChecker(service string, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		service:   service,
		timeout:   timeout,
		startTime: time.Now(),
		checks:    make(map[string]CheckFunc),
		details:   make(map[string]func() interface{}),
	}
}

// Register adds a dependency probe
func (h *Checker) Register(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Detail adds an informational value computed at report time
func (h *Checker) Detail(name string, value func() interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.details[name] = value
}

// CheckDependency runs one probe
func (h *Checker) CheckDependency(ctx context.Context, name string, check CheckFunc) DependencyHealth {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	result := DependencyHealth{
		Name:      name,
		Status:    StatusHealthy,
		Timestamp: start,
	}
	if err := check(ctx); err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
	}
	result.Latency = time.Since(start)
	return result
}

// CheckAll probes every dependency concurrently
func (h *Checker) CheckAll(ctx context.Context) ConsoleHealth {
	h.mu.RLock()
	checks := make(map[string]CheckFunc, len(h.checks))
	for name, check := range h.checks {
		checks[name] = check
	}
	details := make(map[string]interface{}, len(h.details))
	for name, value := range h.details {
		details[name] = value()
	}
	h.mu.RUnlock()

	deps := make(map[string]DependencyHealth, len(checks))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, check := range checks {
		wg.Add(1)
		go func(n string, c CheckFunc) {
			defer wg.Done()
			result := h.CheckDependency(ctx, n, c)

			mu.Lock()
			deps[n] = result
			mu.Unlock()

			if result.Status == StatusHealthy {
				logger.Debug(ctx).
					Str("dependency", n).
					Dur("latency", result.Latency).
					Msg("Dependency health check")
			} else {
				logger.Warn(ctx).
					Str("dependency", n).
					Str("error", result.Error).
					Msg("Dependency health check failed")
			}
		}(name, check)
	}
	wg.Wait()

	return ConsoleHealth{
		Service:      h.service,
		Status:       overallStatus(deps),
		Dependencies: deps,
		Details:      details,
		Uptime:       time.Since(h.startTime).Seconds(),
	}
}

// overallStatus is healthy when every probe passed, unhealthy when none did
func overallStatus(deps map[string]DependencyHealth) string {
	if len(deps) == 0 {
		return StatusHealthy
	}

	healthy := 0
	for _, dep := range deps {
		if dep.Status == StatusHealthy {
			healthy++
		}
	}

	switch {
	case healthy == len(deps):
		return StatusHealthy
	case healthy > 0:
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}

// QuickCheck reports liveness only
func (h *Checker) QuickCheck() map[string]interface{} {
	return map[string]interface{}{
		"status":    StatusHealthy,
		"service":   h.service,
		"uptime":    time.Since(h.startTime).Seconds(),
		"timestamp": time.Now(),
	}
}
