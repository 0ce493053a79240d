package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relaystack/relayctl/internal/logger"
	relayerrors "github.com/relaystack/relayctl/pkg/errors"
)

// ProbePolicy bounds the liveness probe's retry loop.
type ProbePolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	PingTimeout  time.Duration
}

// DefaultProbePolicy gives a freshly started Redis a few seconds to
// accept connections.
var DefaultProbePolicy = ProbePolicy{
	MaxAttempts:  5,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     4 * time.Second,
	PingTimeout:  2 * time.Second,
}

// Probe pings the cache with bounded exponential backoff. It reports a
// TimeoutError once the attempt cap is reached; each failed attempt is
// logged with its cause.
func Probe(ctx context.Context, addr, password string, policy ProbePolicy, log *logger.Logger) error {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	defer client.Close()

	delay := policy.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, policy.PingTimeout)
		lastErr = client.Ping(pingCtx).Err()
		cancel()

		if lastErr == nil {
			if attempt > 1 {
				log.WithFields(map[string]any{"addr": addr, "attempts": attempt}).Warn("cache reachable after retry")
			} else {
				log.WithFields(map[string]any{"addr": addr}).Debug("cache reachable")
			}
			return nil
		}

		log.WithFields(map[string]any{"addr": addr, "attempt": attempt}).Error(lastErr, "cache ping failed")

		if attempt == policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return relayerrors.NewTimeoutError("cache "+addr, attempt, ctx.Err())
		case <-time.After(delay):
		}

		delay *= 2
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}

	return relayerrors.NewTimeoutError("cache "+addr, policy.MaxAttempts, lastErr)
}
