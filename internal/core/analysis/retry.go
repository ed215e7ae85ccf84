package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/ewilliams-labs/widdle/internal/core/domain"
	"go.uber.org/zap"
)

const defaultBackoff = 500 * time.Millisecond

// infer calls the inference client up to policy.Attempts times with
// exponential backoff between attempts. The caller's deadline bounds the
// whole loop, backoff sleeps included.
func (a *Analyzer[T]) infer(ctx context.Context, userPrompt string) (string, error) {
	attempts := a.policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	baseBackoff := a.policy.Backoff
	if baseBackoff <= 0 {
		baseBackoff = defaultBackoff
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: stage canceled: %w", domain.ErrInferenceUnavailable, err)
		}

		text, err := a.client.Infer(ctx, a.systemPrompt, userPrompt)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if attempt == attempts-1 {
			break
		}

		a.log.Warn("analysis: retrying inference",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)

		if err := sleepWithContext(ctx, baseBackoff*time.Duration(1<<attempt)); err != nil {
			return "", err
		}
	}

	if attempts == 1 {
		return "", lastErr
	}
	return "", fmt.Errorf("analysis: inference failed after %d attempts: %w", attempts, lastErr)
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: stage canceled: %w", domain.ErrInferenceUnavailable, ctx.Err())
	case <-timer.C:
		return nil
	}
}
