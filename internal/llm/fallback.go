package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"dreamlog/backend/internal/llm/contract"
	"dreamlog/backend/internal/llm/providers"
)

const DefaultBackendTimeout = 8 * time.Second

// Outcome is the result of walking the backend chain. It always carries a
// usable distribution.
type Outcome struct {
	Classification Classification
	Backend        string
	Attempts       []Attempt
	// Blank is set when the input was blank and no backend was called.
	Blank bool
}

// Degraded reports whether every real backend failed and the terminal null
// backend produced the answer.
func (o Outcome) Degraded() bool {
	return !o.Blank && o.Backend == providers.NewNullBackend().Name()
}

// Orchestrator tries backends in order until one succeeds. It holds no state
// that changes after construction and is safe for concurrent use.
type Orchestrator struct {
	backends []Backend
	timeout  time.Duration
	logger   *zap.Logger
}

func NewOrchestrator(backends []Backend, timeout time.Duration, logger *zap.Logger) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultBackendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	chain := make([]Backend, 0, len(backends)+1)
	hasTerminal := false
	for _, backend := range backends {
		if backend == nil {
			continue
		}
		chain = append(chain, backend)
		if isTerminal(backend) {
			hasTerminal = true
		}
	}
	if !hasTerminal {
		chain = append(chain, providers.NewNullBackend())
	}
	return &Orchestrator{backends: chain, timeout: timeout, logger: logger}
}

// Chain returns the backend names in the order they are tried.
func (o *Orchestrator) Chain() []string {
	names := make([]string, 0, len(o.backends))
	for _, backend := range o.backends {
		names = append(names, backend.Name())
	}
	return names
}

func (o *Orchestrator) Backends() []Backend {
	return append([]Backend(nil), o.backends...)
}

func (o *Orchestrator) Classify(ctx context.Context, text string) Outcome {
	if strings.TrimSpace(text) == "" {
		shortCircuitTotal.Inc()
		return Outcome{
			Classification: Classification{Distribution: contract.NeutralDistribution()},
			Blank:          true,
		}
	}

	attempts := make([]Attempt, 0, len(o.backends))
	for _, backend := range o.backends {
		name := backend.Name()
		terminal := isTerminal(backend)
		// Once the caller has gone away only the terminal backend is worth calling.
		if ctx.Err() != nil && !terminal {
			continue
		}

		start := time.Now()
		var (
			result *Classification
			err    error
		)
		if terminal {
			result, err = backend.Classify(ctx, text)
		} else {
			result, err = o.call(ctx, backend, text)
		}
		if err == nil && result == nil {
			err = fmt.Errorf("%w: backend returned no classification", contract.ErrMalformedResponse)
		}
		latency := time.Since(start)
		recordAttempt(name, latency, err)

		if err != nil {
			kind := classifyError(err)
			attempts = append(attempts, Attempt{
				Backend: name,
				Kind:    kind,
				Error:   err.Error(),
				Latency: latency,
			})
			o.logger.Warn("sentiment backend failed",
				zap.String("backend", name),
				zap.String("error_kind", kind),
				zap.Duration("latency", latency),
				zap.Error(err))
			continue
		}

		attempts = append(attempts, Attempt{
			Backend: name,
			Success: true,
			Latency: latency,
			Usage:   result.Usage,
		})
		classification := *result
		classification.Distribution = classification.Distribution.Clamped()
		return Outcome{Classification: classification, Backend: name, Attempts: attempts}
	}

	// Only reachable when a terminal backend was configured mid-chain and
	// then removed by a custom Backend wrapper; keep the guarantee anyway.
	return Outcome{
		Classification: Classification{Distribution: contract.NeutralDistribution()},
		Backend:        providers.NewNullBackend().Name(),
		Attempts:       attempts,
	}
}

type classifyResult struct {
	classification *Classification
	err            error
}

// call bounds a single backend call by the per-backend timeout. A backend
// that ignores its context is abandoned when the deadline passes.
func (o *Orchestrator) call(ctx context.Context, backend Backend, text string) (*Classification, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	done := make(chan classifyResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- classifyResult{err: fmt.Errorf("%w: backend panic: %v", contract.ErrBackendUnavailable, r)}
			}
		}()
		classification, err := backend.Classify(callCtx, text)
		done <- classifyResult{classification: classification, err: err}
	}()

	select {
	case <-callCtx.Done():
		return nil, fmt.Errorf("%w: %w", contract.ErrBackendUnavailable, callCtx.Err())
	case result := <-done:
		return result.classification, result.err
	}
}

func isTerminal(backend Backend) bool {
	switch backend.(type) {
	case providers.NullBackend, *providers.NullBackend:
		return true
	}
	return false
}
