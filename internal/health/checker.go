// Package health tracks the readiness of the console's dependencies: the
// persistence store and the notification endpoint.
package health

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	CheckTimeout  time.Duration
	FailThreshold int
}

// CheckFunc reports whether a dependency is reachable.
type CheckFunc func(ctx context.Context) error

// Pinger is satisfied by stores and dispatchers that can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status values reported per dependency.
const (
	StatusUnknown  = "unknown"
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// DependencyStatus is the last known state of one dependency.
type DependencyStatus struct {
	Status      string    `json:"status"`
	Required    bool      `json:"required"`
	FailCount   int       `json:"fail_count"`
	LastError   string    `json:"last_error,omitempty"`
	LastChecked time.Time `json:"last_checked,omitempty"`
}

// Report is a readiness snapshot.
type Report struct {
	Ready        bool                        `json:"ready"`
	Dependencies map[string]DependencyStatus `json:"dependencies"`
}

// DegradedFunc is an optional callback fired when a dependency crosses the
// failure threshold.
type DegradedFunc func(name string, err error)

// MetricsRecordFunc is an optional callback for recording check results.
type MetricsRecordFunc func(name string, success bool)

type dependency struct {
	check    CheckFunc
	required bool
	state    DependencyStatus
}

// Checker runs periodic dependency checks.
type Checker struct {
	mu         sync.Mutex
	deps       map[string]*dependency
	cfg        Config
	onDegraded DegradedFunc
	onMetrics  MetricsRecordFunc
	logger     *zap.Logger
}

// New creates a new Checker.
func New(cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.CheckTimeout == 0 {
		cfg.CheckTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	return &Checker{
		deps:   make(map[string]*dependency),
		cfg:    cfg,
		logger: logger,
	}
}

// Add registers a dependency. Only required dependencies affect readiness.
func (h *Checker) Add(name string, check CheckFunc, required bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deps[name] = &dependency{
		check:    check,
		required: required,
		state:    DependencyStatus{Status: StatusUnknown, Required: required},
	}
}

// AddPinger registers p.Ping as a dependency check.
func (h *Checker) AddPinger(name string, p Pinger, required bool) {
	h.Add(name, p.Ping, required)
}

// SetDegradedHook configures the degraded callback.
func (h *Checker) SetDegradedHook(fn DegradedFunc) {
	h.onDegraded = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start runs the check loop until quit is signalled.
func (h *Checker) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	h.CheckAll(context.Background())
	for {
		select {
		case <-ticker.C:
			h.CheckAll(context.Background())
		case <-quit:
			return
		}
	}
}

// CheckAll checks every dependency concurrently.
func (h *Checker) CheckAll(ctx context.Context) {
	h.mu.Lock()
	names := make([]string, 0, len(h.deps))
	checks := make([]CheckFunc, 0, len(h.deps))
	for name, d := range h.deps {
		names = append(names, name)
		checks = append(checks, d.check)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for i := range names {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, h.cfg.CheckTimeout)
			err := check(pctx)
			cancel()
			h.observe(name, err)
		}(names[i], checks[i])
	}
	wg.Wait()
}

func (h *Checker) observe(name string, err error) {
	if h.onMetrics != nil {
		h.onMetrics(name, err == nil)
	}

	h.mu.Lock()
	d, ok := h.deps[name]
	if !ok {
		h.mu.Unlock()
		return
	}
	prev := d.state.Status
	d.state.LastChecked = time.Now().UTC()
	if err == nil {
		d.state.FailCount = 0
		d.state.LastError = ""
		d.state.Status = StatusHealthy
	} else {
		d.state.FailCount++
		d.state.LastError = err.Error()
		if d.state.FailCount >= h.cfg.FailThreshold {
			d.state.Status = StatusDegraded
		}
	}
	now := d.state.Status
	count := d.state.FailCount
	h.mu.Unlock()

	switch {
	case prev == StatusDegraded && now == StatusHealthy:
		h.logger.Info("health: recovered", zap.String("dependency", name))
	case err != nil && count == h.cfg.FailThreshold:
		h.logger.Warn("health: degraded",
			zap.String("dependency", name),
			zap.Int("fail_count", count),
			zap.Error(err),
		)
		if h.onDegraded != nil {
			h.onDegraded(name, err)
		}
	case err != nil:
		h.logger.Debug("health: check failed", zap.String("dependency", name), zap.Error(err))
	}
}

// Report returns the current readiness snapshot. The console is ready when
// every required dependency has been checked successfully and is not degraded.
func (h *Checker) Report() Report {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := Report{Ready: true, Dependencies: make(map[string]DependencyStatus, len(h.deps))}
	for name, d := range h.deps {
		r.Dependencies[name] = d.state
		if d.required && d.state.Status != StatusHealthy {
			r.Ready = false
		}
	}
	return r
}
