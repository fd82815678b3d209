package llm

import "dreamlog/backend/internal/llm/contract"

type Backend = contract.Backend

type BackendConfig = contract.BackendConfig

type Classification = contract.Classification

type SentimentDistribution = contract.SentimentDistribution

type HealthCheckResult = contract.HealthCheckResult

type Attempt = contract.Attempt

type Usage = contract.Usage
