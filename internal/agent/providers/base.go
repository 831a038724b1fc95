package providers

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// BaseProvider holds shared retry configuration for LLM providers.
type BaseProvider struct {
	name       string
	maxRetries int
	retryDelay time.Duration
}

// NewBaseProvider creates a base provider with sane defaults.
func NewBaseProvider(name string, maxRetries int, retryDelay time.Duration) BaseProvider {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return BaseProvider{
		name:       name,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// Name returns the provider name.
func (b *BaseProvider) Name() string {
	return b.name
}

// Retry executes op with exponential backoff while isRetryable reports true.
// At most maxRetries attempts are made.
func (b *BaseProvider) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	if op == nil {
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.retryDelay
	policy.MaxInterval = 20 * b.retryDelay

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := op(); err != nil {
			if isRetryable == nil || !isRetryable(err) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(b.maxRetries)),
		backoff.WithMaxElapsedTime(0),
	)
	return err
}
