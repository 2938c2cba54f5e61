package gateway

import (
	"context"
	"time"

	platformerrors "github.com/linkforge/insights/internal/platform/errors"
	"github.com/linkforge/insights/internal/platform/timeouts"
	"golang.org/x/time/rate"
)

// ErrRateLimited reports that a call gave up waiting for a limiter token.
var ErrRateLimited = platformerrors.New(platformerrors.CodeProviderRateLimited,
	"provider rate limit wait exceeded")

// Limiter is a token bucket shared by every caller of one provider. It
// smooths bursts by blocking up to a bounded wait instead of rejecting
// immediately; requests that still cannot get a token fail with
// ErrRateLimited.
type Limiter struct {
	bucket  *rate.Limiter
	maxWait time.Duration
}

// NewLimiter builds a limiter allowing perMinute requests per minute with a
// burst of the full per-minute quota. A maxWait of zero selects the default
// bounded wait.
func NewLimiter(perMinute int, maxWait time.Duration) *Limiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	if maxWait <= 0 {
		maxWait = timeouts.RateLimiterWait
	}
	return &Limiter{
		bucket:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		maxWait: maxWait,
	}
}

// Acquire blocks until a token is available, the bounded wait elapses, or
// ctx is cancelled. A nil limiter admits every call.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l == nil {
		return nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()
	if err := l.bucket.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrRateLimited
	}
	return nil
}

// Allow reports whether a token is immediately available, consuming it when
// so. Used by callers that must not block, e.g. key verification probes.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.bucket.Allow()
}
