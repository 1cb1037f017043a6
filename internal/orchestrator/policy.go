package orchestrator

import (
	"context"
	"math"
	"time"

	"github.com/ioustamora/datamesh/internal/config"
)

// adaptiveQuorum implements spec.md §4.5's adaptive quorum formula: Q=1 when
// the network is small enough that the DHT's own fixed closest-peer set
// would make any larger quorum unsatisfiable, and a fraction of P otherwise,
// always clamped to [1, P].
func adaptiveQuorum(cfg config.QuorumConfig, connected int) int {
	if connected <= 0 {
		return 0
	}
	if connected <= cfg.SmallNetworkThreshold {
		return 1
	}
	q := int(math.Ceil(cfg.LargeNetworkFraction * float64(connected)))
	if q < 1 {
		q = 1
	}
	if q > connected {
		q = connected
	}
	return q
}

// retryBackoff runs fn up to cfg.MaxAttempts times with exponential backoff
// starting at cfg.InitialBackoff, returning the last error if every attempt
// fails. It mirrors the teacher's fail-fast budget, generalized to apply
// per-shard rather than per-upload.
func retryBackoff(ctx context.Context, cfg config.RetryConfig, fn func() error) error {
	backoff := cfg.InitialBackoff
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
	}
	return lastErr
}
