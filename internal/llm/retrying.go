package llm

import (
	"context"

	"github.com/zombor/bill-amounts/internal/retry"
)

// Retrying wraps a Model so that every Generate call runs through a bounded
// retry executor.
type Retrying struct {
	model       Model
	executor    *retry.Executor
	maxAttempts int
}

// NewRetrying creates a retrying decorator around model
func NewRetrying(model Model, executor *retry.Executor, maxAttempts int) *Retrying {
	if executor == nil {
		executor = retry.NewExecutor(nil)
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retrying{
		model:       model,
		executor:    executor,
		maxAttempts: maxAttempts,
	}
}

// Generate calls the wrapped model, retrying failed attempts
func (r *Retrying) Generate(ctx context.Context, prompt string) (string, error) {
	return retry.Do(ctx, r.executor, r.maxAttempts, func(ctx context.Context) (string, error) {
		return r.model.Generate(ctx, prompt)
	})
}

// Close closes the wrapped model
func (r *Retrying) Close() error {
	return r.model.Close()
}
