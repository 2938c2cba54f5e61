// Package credential resolves which API key and cache partition a query
// uses: the platform's shared key or a tenant-owned ("bring your own key")
// credential.
package credential

import (
	"strings"
	"time"

	platformerrors "github.com/linkforge/insights/internal/platform/errors"
	"github.com/linkforge/insights/internal/services/insights/domain"
)

// Source tags where a resolved credential came from.
type Source string

const (
	// SourceSharedKey is the platform-wide key from static configuration.
	SourceSharedKey Source = "shared_key"
	// SourceBYOK is a tenant-owned key.
	SourceBYOK Source = "byok"
)

// FeaturePolicy captures how one feature resolves credentials. The
// verification requirement is PageSpeed-specific: its keys must pass a
// provider-side validation check before first use, while CrUX keys do not.
type FeaturePolicy struct {
	Feature              domain.Feature
	SharedKey            string
	RequiresVerification bool
}

// TenantGrant is the tenant state relevant to one feature, as read from the
// tenant directory. The encrypted-at-rest handling of APIKey lives with that
// collaborator; this package only ever sees plaintext in memory.
type TenantGrant struct {
	TenantID      string
	BYOKEnabled   bool
	APIKey        string
	KeyVerifiedAt *time.Time
}

// Info is a resolved credential. Partition is the cache namespace the query
/// must use: the tenant ID whenever BYOK is enabled (even when the key itself
// is missing or unverified, so tenant misconfiguration never collides with
// the shared cache), empty otherwise. A non-nil Err means no usable
// credential; Key is empty in that case.
type Info struct {
	Key       string
	Source    Source
	Partition string
	Err       error
}

// Resolver holds per-feature credential policies.
type Resolver struct {
	policies map[domain.Feature]FeaturePolicy
}

// NewResolver builds a resolver from feature policies.
func NewResolver(policies ...FeaturePolicy) *Resolver {
	r := &Resolver{policies: make(map[domain.Feature]FeaturePolicy, len(policies))}
	for _, policy := range policies {
		r.policies[policy.Feature] = policy
	}
	return r
}

// DefaultPolicies returns the standard per-feature policy set with the given
// shared keys. PageSpeed requires key verification; CrUX does not.
func DefaultPolicies(cruxSharedKey, pagespeedSharedKey string) []FeaturePolicy {
	return []FeaturePolicy{
		{Feature: domain.FeatureCrUX, SharedKey: cruxSharedKey},
		{Feature: domain.FeaturePageSpeed, SharedKey: pagespeedSharedKey, RequiresVerification: true},
	}
}

// Resolve determines the credential and cache partition for a query. A nil
// grant, or a grant without BYOK enabled, resolves to the shared key and the
// shared partition. Resolve never fails outright; credential problems are
// reported through Info.Err so the caller can still use the partition.
func (r *Resolver) Resolve(grant *TenantGrant, f domain.Feature) Info {
	policy := r.policies[f]

	if grant == nil || !grant.BYOKEnabled {
		sharedKey := strings.TrimSpace(policy.SharedKey)
		if sharedKey == "" {
			return Info{
				Source: SourceSharedKey,
				Err: platformerrors.New(platformerrors.CodeCredentialSharedKeyMissing,
					"shared api key is not configured for feature "+string(f)),
			}
		}
		return Info{Key: sharedKey, Source: SourceSharedKey}
	}

	info := Info{Source: SourceBYOK, Partition: strings.TrimSpace(grant.TenantID)}

	key := strings.TrimSpace(grant.APIKey)
	if key == "" {
		info.Err = platformerrors.New(platformerrors.CodeCredentialTenantKeyMissing,
			"tenant api key is missing for feature "+string(f))
		return info
	}
	if policy.RequiresVerification && grant.KeyVerifiedAt == nil {
		info.Err = platformerrors.New(platformerrors.CodeCredentialTenantKeyUnverified,
			"tenant api key is not verified for feature "+string(f))
		return info
	}

	info.Key = key
	return info
}
