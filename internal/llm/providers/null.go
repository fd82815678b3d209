package providers

import (
	"context"

	"dreamlog/backend/internal/llm/contract"
)

// NullBackend is the terminal link of every chain. It never fails.
type NullBackend struct{}

func NewNullBackend() *NullBackend { return &NullBackend{} }

func (NullBackend) Name() string { return "null" }

func (NullBackend) Classify(ctx context.Context, text string) (*contract.Classification, error) {
	return &contract.Classification{Distribution: contract.NeutralDistribution()}, nil
}
