package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	openai "github.com/openai/openai-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/genai"

	"dreamlog/backend/internal/llm/contract"
)

var (
	backendCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dreamlog",
			Subsystem: "backend",
			Name:      "call_duration_seconds",
			Help:      "Duration of sentiment backend calls in seconds.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"backend", "status"},
	)

	backendCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dreamlog",
			Subsystem: "backend",
			Name:      "calls_total",
			Help:      "Total sentiment backend calls by outcome.",
		},
		[]string{"backend", "status"},
	)

	backendErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dreamlog",
			Subsystem: "backend",
			Name:      "errors_total",
			Help:      "Sentiment backend failures by error kind.",
		},
		[]string{"backend", "error_kind"},
	)

	shortCircuitTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dreamlog",
			Subsystem: "engine",
			Name:      "blank_input_total",
			Help:      "Classifications resolved without any backend call because the input was blank.",
		},
	)

	backendHealthUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "dreamlog",
			Subsystem: "backend",
			Name:      "health_up",
			Help:      "1 when the last health check of the backend succeeded.",
		},
		[]string{"backend"},
	)
)

// classifyError maps a backend error to a label-safe kind. Typed SDK errors
// carry the HTTP status; message matching is the last resort.
func classifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, contract.ErrMalformedResponse) {
		return "malformed"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if status, ok := statusCode(err); ok {
		return kindForStatus(status)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "context canceled"):
		return "canceled"
	case strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "authentication"):
		return "auth"
	case strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "rate limit"):
		return "rate_limit"
	case strings.Contains(msg, "internal server error") ||
		strings.Contains(msg, "bad gateway") ||
		strings.Contains(msg, "service unavailable") ||
		strings.Contains(msg, "gateway timeout") ||
		strings.Contains(msg, "server error"):
		return "server"
	default:
		return "unavailable"
	}
}

func statusCode(err error) (int, bool) {
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return openaiErr.StatusCode, true
	}
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode, true
	}
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return genaiErr.Code, true
	}
	return 0, false
}

func kindForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "auth"
	case status == http.StatusTooManyRequests:
		return "rate_limit"
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return "timeout"
	case status >= 500:
		return "server"
	case status >= 400:
		return "client"
	default:
		return "unavailable"
	}
}

func recordAttempt(backend string, latency time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		backendErrorsTotal.WithLabelValues(backend, classifyError(err)).Inc()
	}
	backendCallDuration.WithLabelValues(backend, status).Observe(latency.Seconds())
	backendCallsTotal.WithLabelValues(backend, status).Inc()
}

func recordHealth(backend string, up bool) {
	value := 0.0
	if up {
		value = 1
	}
	backendHealthUp.WithLabelValues(backend).Set(value)
}
