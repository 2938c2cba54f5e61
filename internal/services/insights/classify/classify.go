// Package classify maps raw HTTP outcomes onto domain statuses. The
// three-way split exists because "this target has no measurable data" is a
// legitimate, long-cacheable answer that must not be retried on every
// request, unlike a transient or configuration failure.
package classify

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/linkforge/insights/internal/services/insights/domain"
	"github.com/linkforge/insights/internal/services/insights/gateway"
)

// Classify reduces a provider call outcome to a domain status and a
// human-readable message. callErr is the gateway's transport-level error, if
// any; it wins over the response.
func Classify(f domain.Feature, res gateway.Response, callErr error) (domain.Status, string) {
	if callErr != nil {
		return domain.StatusFailed, callErr.Error()
	}

	if res.StatusCode == http.StatusNotFound {
		return domain.StatusNoData, "target not found by provider"
	}

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		if res.Body == nil {
			return domain.StatusFailed, "provider returned an unreadable response"
		}
		if hasMetrics(f, res.Body) {
			return domain.StatusSuccess, ""
		}
		return domain.StatusNoData, "provider has no measurable data for this target"
	}

	message := providerErrorMessage(res.Body)
	if message == "" {
		message = fmt.Sprintf("provider returned HTTP %d", res.StatusCode)
	}
	lower := strings.ToLower(message)
	if strings.Contains(lower, "no data") || strings.Contains(lower, "not found") {
		return domain.StatusNoData, message
	}
	return domain.StatusFailed, message
}

// hasMetrics checks the provider's expected non-empty metrics container.
func hasMetrics(f domain.Feature, body map[string]any) bool {
	switch f {
	case domain.FeatureCrUX:
		record, ok := body["record"].(map[string]any)
		if !ok {
			return false
		}
		metrics, ok := record["metrics"].(map[string]any)
		return ok && len(metrics) > 0
	case domain.FeaturePageSpeed:
		lighthouse, ok := body["lighthouseResult"].(map[string]any)
		return ok && len(lighthouse) > 0
	}
	return false
}

// providerErrorMessage digs the canonical Google API error message out of an
// error body. Missing or oddly shaped bodies yield an empty string.
func providerErrorMessage(body map[string]any) string {
	if body == nil {
		return ""
	}
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		return ""
	}
	message, ok := errObj["message"].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(message)
}
