package llm

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dreamlog/backend/internal/llm/contract"
)

const (
	defaultHealthInterval = 5 * time.Minute
	slowHealthThreshold   = 3 * time.Second
	unhealthyAfter        = 3
)

// HealthMonitor periodically probes the backends that support it. Results
// are informational; the chain order never changes at runtime.
type HealthMonitor struct {
	Backends []Backend
	Store    *Store
	Logger   *zap.Logger
	Interval time.Duration
	Timeout  time.Duration

	mu     sync.RWMutex
	latest map[string]HealthCheckResult
}

func (h *HealthMonitor) Run(ctx context.Context) {
	interval := h.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.RunOnce(ctx)
		}
	}
}

func (h *HealthMonitor) RunOnce(ctx context.Context) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultBackendTimeout
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, backend := range h.Backends {
		checker, ok := backend.(contract.HealthChecker)
		if !ok {
			continue
		}
		name := backend.Name()
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			result, err := checker.HealthCheck(checkCtx)
			h.record(gctx, name, result, err)
			return nil
		})
	}
	_ = g.Wait()
}

func (h *HealthMonitor) record(ctx context.Context, name string, result *HealthCheckResult, err error) {
	status := "ok"
	if err != nil || result == nil {
		status = "error"
	} else if result.Latency > slowHealthThreshold {
		status = "slow"
	}

	entry := HealthCheckResult{Backend: name, Status: status, Timestamp: time.Now().UTC()}
	if result != nil {
		entry.Latency = result.Latency
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}

	h.mu.Lock()
	if h.latest == nil {
		h.latest = map[string]HealthCheckResult{}
	}
	h.latest[name] = entry
	h.mu.Unlock()
	recordHealth(name, status != "error")

	logger := h.logger()
	if h.Store == nil {
		if status == "error" {
			logger.Warn("backend health check failed", zap.String("backend", name), zap.Error(err))
		}
		return
	}
	if err := h.Store.InsertHealth(ctx, entry); err != nil {
		logger.Error("failed to store health check", zap.String("backend", name), zap.Error(err))
	}
	if status != "error" {
		return
	}
	failures, ferr := h.Store.RecentHealthFailures(ctx, name)
	if ferr == nil && failures >= unhealthyAfter {
		logger.Warn("backend unhealthy", zap.String("backend", name), zap.Int("consecutive_failures", failures), zap.Error(err))
	}
}

// Snapshot returns the latest result per backend in chain order. Backends
// that were never checked are omitted.
func (h *HealthMonitor) Snapshot() []HealthCheckResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]HealthCheckResult, 0, len(h.latest))
	for _, backend := range h.Backends {
		if result, ok := h.latest[backend.Name()]; ok {
			out = append(out, result)
		}
	}
	return out
}

func (h *HealthMonitor) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
