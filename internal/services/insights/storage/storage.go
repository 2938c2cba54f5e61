// Package storage defines persistence contracts for cached provider results.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/linkforge/insights/internal/services/insights/domain"
	"github.com/linkforge/insights/internal/services/insights/kpi"
)

// ErrNotProvisioned indicates the results table does not exist yet, e.g. a
// deployment that has not run migrations. Callers treat it as "cache
// disabled" and fall through to a live provider call; it is distinct from a
// plain cache miss.
var ErrNotProvisioned = errors.New("result storage is not provisioned")

// TTLPolicy controls result freshness per feature. Failures are cached
// briefly so a storm of requests for a broken target collapses to one
// provider call per window; successes and no-data results are served from
// cache for the full fresh window.
type TTLPolicy struct {
	Failure time.Duration
	Fresh   time.Duration
}

// Default TTLs. Fresh covers both success and no_data: a target with no
// measurable signal will not grow one within the window either.
const (
	DefaultFailureTTL = 10 * time.Minute
	DefaultFreshTTL   = 24 * time.Hour
)

// DefaultTTLPolicies returns the per-feature freshness table. Features with
// different provider freshness semantics override their entry here.
func DefaultTTLPolicies() map[domain.Feature]TTLPolicy {
	return map[domain.Feature]TTLPolicy{
		domain.FeatureCrUX:      {Failure: DefaultFailureTTL, Fresh: DefaultFreshTTL},
		domain.FeaturePageSpeed: {Failure: DefaultFailureTTL, Fresh: DefaultFreshTTL},
	}
}

// TTLFor picks the expiry window for a status under this policy.
func (p TTLPolicy) TTLFor(status domain.Status) time.Duration {
	if status == domain.StatusFailed {
		if p.Failure > 0 {
			return p.Failure
		}
		return DefaultFailureTTL
	}
	if p.Fresh > 0 {
		return p.Fresh
	}
	return DefaultFreshTTL
}

// CachedResult is one persisted provider outcome for an identity tuple.
type CachedResult struct {
	Identity     domain.Identity
	Status       domain.Status
	ErrorMessage string
	RawPayload   []byte
	KPIs         *kpi.Record
	FetchedAt    time.Time
	ExpiresAt    time.Time
}

// UpsertInput carries everything needed to overwrite the row for an identity
// tuple. Timestamps are computed by the store so TTL policy lives in one
// place.
type UpsertInput struct {
	Identity     domain.Identity
	Status       domain.Status
	ErrorMessage string
	RawPayload   []byte
	KPIs         *kpi.Record
}

// Store persists cached provider results. Lookup returns the freshest
// non-expired row for the identity tuple; Upsert atomically replaces the row
// regardless of outcome, failures included.
type Store interface {
	Lookup(ctx context.Context, id domain.Identity) (CachedResult, bool, error)
	Upsert(ctx context.Context, input UpsertInput) (CachedResult, error)
	Close() error
}
