package ai

import (
	"context"
	"time"

	"github.com/lavishq/lavis/internal/logging"
)

// GenerateWithRetry calls the model and retries failures within one
// attempt budget. Quota errors back off with a doubling delay; other
// failures retry at the flat base delay. attempts is the total try
// count, so attempts=3 with baseDelay=2s waits 2s then 4s across two
// quota retries before giving up.
func GenerateWithRetry(ctx context.Context, m ChatModel, req *GenerateRequest, attempts int, baseDelay time.Duration) (*GenerateResponse, error) {
	if attempts < 1 {
		attempts = 1
	}
	quotaDelay := baseDelay
	var lastErr error
	for i := 0; i < attempts; i++ {
		resp, err := m.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}

		delay := baseDelay
		if IsQuotaExhausted(err) {
			delay = quotaDelay
			quotaDelay *= 2
			logging.Warnf("model quota exhausted, retrying in %s (attempt %d/%d): %v", delay, i+1, attempts, err)
		} else {
			logging.Warnf("model call failed, retrying in %s (attempt %d/%d): %v", delay, i+1, attempts, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}
