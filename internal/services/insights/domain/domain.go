// Package domain defines the shared vocabulary of the insights engine:
// features, targets, variants, result statuses, and the cache identity tuple.
package domain

import (
	"fmt"
	"strings"

	platformerrors "github.com/linkforge/insights/internal/platform/errors"
)

// Feature identifies a third-party data provider integration.
type Feature string

const (
	// FeatureCrUX queries the Chrome UX Report field-data API.
	FeatureCrUX Feature = "crux"
	// FeaturePageSpeed queries the PageSpeed Insights lab API.
	FeaturePageSpeed Feature = "pagespeed"
)

// TargetType distinguishes how a target value addresses a site.
type TargetType string

const (
	// TargetOrigin addresses every page under a scheme+host pair.
	TargetOrigin TargetType = "origin"
	// TargetURL addresses a single page.
	TargetURL TargetType = "url"
)

// Status is the domain outcome of a provider query.
type Status string

const (
	// StatusSuccess means the provider returned usable metrics.
	StatusSuccess Status = "success"
	// StatusNoData means the target exists but the provider has no
	// measurable signal for it. Long-cacheable; not an error.
	StatusNoData Status = "no_data"
	// StatusFailed covers configuration, transport, and provider errors.
	StatusFailed Status = "failed"
)

// CrUX form factors and PageSpeed strategies accepted as variants.
const (
	VariantAll     = "ALL"
	VariantPhone   = "PHONE"
	VariantDesktop = "DESKTOP"
	VariantTablet  = "TABLET"

	StrategyMobile  = "mobile"
	StrategyDesktop = "desktop"
)

var cruxVariants = map[string]bool{
	VariantAll:     true,
	VariantPhone:   true,
	VariantDesktop: true,
	VariantTablet:  true,
}

var pagespeedStrategies = map[string]bool{
	StrategyMobile:  true,
	StrategyDesktop: true,
}

// Identity is the composite key addressing one cached result. An empty
// Partition denotes the platform-shared cache namespace; BYOK tenants get
// their tenant ID as partition.
type Identity struct {
	Partition   string
	Feature     Feature
	TargetType  TargetType
	TargetValue string
	Variant     string
}

// CacheKey renders the identity tuple deterministically for logs and spans.
func (id Identity) CacheKey() string {
	partition := id.Partition
	if partition == "" {
		partition = "shared"
	}
	return fmt.Sprintf("%s/%s/%s/%s/%s", partition, id.Feature, id.TargetType, id.TargetValue, id.Variant)
}

// ParseFeature validates and normalizes a feature name.
func ParseFeature(value string) (Feature, error) {
	switch Feature(strings.ToLower(strings.TrimSpace(value))) {
	case FeatureCrUX:
		return FeatureCrUX, nil
	case FeaturePageSpeed:
		return FeaturePageSpeed, nil
	}
	return "", platformerrors.New(platformerrors.CodeQueryInvalidFeature,
		fmt.Sprintf("unknown feature %q", value))
}

// ParseTargetType validates and normalizes a target type.
func ParseTargetType(value string) (TargetType, error) {
	switch TargetType(strings.ToLower(strings.TrimSpace(value))) {
	case TargetOrigin:
		return TargetOrigin, nil
	case TargetURL:
		return TargetURL, nil
	}
	return "", platformerrors.New(platformerrors.CodeQueryInvalidTargetType,
		fmt.Sprintf("unknown target type %q", value))
}

// NormalizeVariant validates a variant against the feature it belongs to.
// CrUX variants are upper-cased form factors; PageSpeed strategies are
// lower-cased. An empty variant selects the feature default.
func NormalizeVariant(f Feature, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch f {
	case FeatureCrUX:
		if value == "" {
			return VariantAll, nil
		}
		upper := strings.ToUpper(value)
		if cruxVariants[upper] {
			return upper, nil
		}
	case FeaturePageSpeed:
		if value == "" {
			return StrategyMobile, nil
		}
		lower := strings.ToLower(value)
		if pagespeedStrategies[lower] {
			return lower, nil
		}
	}
	return "", platformerrors.New(platformerrors.CodeQueryInvalidVariant,
		fmt.Sprintf("unknown variant %q for feature %q", value, f))
}
