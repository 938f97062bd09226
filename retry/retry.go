// Package retry wraps operations that touch a network or subprocess
// dependency with exponential-backoff retries. Only transient failures are
// retried; anything else propagates immediately.
package retry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	retry "github.com/sethvargo/go-retry"

	"github.com/datar-psa/divbench/api"
)

// networkErrorPatterns classify subprocess failures whose only signal is the
// captured stderr text. This legacy text classification applies at the
// subprocess boundary only; network-bound backends report structured
// BackendError kinds instead.
var networkErrorPatterns = []string{
	"ConnectionError",
	"Timeout",
	"ServiceUnavailable",
	"InternalServerError",
}

// Policy configures retry behavior. The zero value is usable: 5 attempts
// with a one second backoff unit. The delay before retry i (zero-indexed)
// is 2^i units, with no jitter and no cap.
type Policy struct {
	// MaxAttempts is the total number of invocations, including the first.
	MaxAttempts int
	// Unit is the backoff time unit.
	Unit time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	if p.Unit <= 0 {
		p.Unit = time.Second
	}
	return p
}

// Transient reports whether err may be recovered by retrying.
func Transient(err error) bool {
	var berr *api.BackendError
	if errors.As(err, &berr) {
		return true
	}
	var serr *api.SubprocessError
	if errors.As(err, &serr) {
		for _, pattern := range networkErrorPatterns {
			if strings.Contains(serr.Stderr, pattern) {
				return true
			}
		}
	}
	return false
}

// Do invokes op until it succeeds, fails fatally, or the attempt budget is
// exhausted. On exhaustion the last transient error is returned unchanged.
// A fatal error is returned immediately without consuming a retry attempt.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var out T
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(p.MaxAttempts-1), retry.NewExponential(p.Unit))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		v, err := op(ctx)
		if err == nil {
			out = v
			return nil
		}
		attempt++
		if !Transient(err) {
			return err
		}
		var serr *api.SubprocessError
		if errors.As(err, &serr) {
			log.Warn().Str("stderr", serr.Stderr).Msg("subprocess failed with a network error")
		}
		if attempt < p.MaxAttempts {
			log.Warn().Err(err).Int("attempt", attempt).Msg("transient backend failure, retrying")
		}
		return retry.RetryableError(err)
	})
	return out, err
}
