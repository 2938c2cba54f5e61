package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/linkforge/insights/internal/platform/timeouts"
	"github.com/linkforge/insights/internal/services/insights/domain"
)

// Provider endpoints. Overridable for tests.
const (
	defaultCrUXEndpoint      = "https://chromeuxreport.googleapis.com/v1/records:queryRecord"
	defaultPageSpeedEndpoint = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"
)

// pagespeedCategories are the Lighthouse categories requested on every run.
var pagespeedCategories = []string{"performance", "seo", "accessibility", "best-practices"}

// CrUXConfig configures the Chrome UX Report provider adapter.
type CrUXConfig struct {
	Endpoint   string
	HTTPClient *http.Client
}

// CrUXProvider fetches field data from the Chrome UX Report API.
type CrUXProvider struct {
	client   *Client
	endpoint string
}

// NewCrUXProvider builds a CrUX adapter.
func NewCrUXProvider(cfg CrUXConfig) *CrUXProvider {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultCrUXEndpoint
	}
	return &CrUXProvider{
		client:   NewClient(cfg.HTTPClient),
		endpoint: endpoint,
	}
}

// Fetch queries one record. The variant is a CrUX form factor; ALL is
// expressed by omitting formFactor from the request body.
func (p *CrUXProvider) Fetch(ctx context.Context, apiKey string, targetType domain.TargetType, target, variant string) (Response, error) {
	body := map[string]any{}
	switch targetType {
	case domain.TargetURL:
		body["url"] = target
	default:
		body["origin"] = target
	}
	if variant != "" && variant != domain.VariantAll {
		body["formFactor"] = variant
	}

	return p.client.Call(ctx, CallConfig{
		Timeout: timeouts.CrUXRequest,
	}, Request{
		Method:   http.MethodPost,
		URL:      p.endpoint,
		Query:    url.Values{"key": []string{apiKey}},
		JSONBody: body,
	})
}

// PageSpeedConfig configures the PageSpeed Insights provider adapter.
type PageSpeedConfig struct {
	Endpoint   string
	HTTPClient *http.Client
	// Limiter is the shared token bucket gating every PageSpeed call across
	// tenants. PageSpeed enforces a strict project-wide quota, unlike CrUX.
	Limiter *Limiter
}

// PageSpeedProvider runs Lighthouse audits through the PageSpeed Insights API.
type PageSpeedProvider struct {
	client   *Client
	endpoint string
	limiter  *Limiter
}

// NewPageSpeedProvider builds a PageSpeed adapter.
func NewPageSpeedProvider(cfg PageSpeedConfig) *PageSpeedProvider {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultPageSpeedEndpoint
	}
	return &PageSpeedProvider{
		client:   NewClient(cfg.HTTPClient),
		endpoint: endpoint,
		limiter:  cfg.Limiter,
	}
}

// Fetch runs one audit. The variant is a PageSpeed strategy. PageSpeed
// audits a single page, so origin targets are passed through as the page URL.
func (p *PageSpeedProvider) Fetch(ctx context.Context, apiKey string, _ domain.TargetType, target, variant string) (Response, error) {
	query := url.Values{
		"url":      []string{target},
		"category": pagespeedCategories,
		"key":      []string{apiKey},
	}
	if variant != "" {
		query.Set("strategy", variant)
	}

	return p.client.Call(ctx, CallConfig{
		Timeout: timeouts.PageSpeedRequest,
		Limiter: p.limiter,
	}, Request{
		Method: http.MethodGet,
		URL:    p.endpoint,
		Query:  query,
	})
}
