// Package insightsd parses insights command flags and runs one query against
// the cached provider pipeline.
package insightsd

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	entrypoint "github.com/linkforge/insights/internal/platform/cmd"
	"github.com/linkforge/insights/internal/services/insights/app"
	"github.com/linkforge/insights/internal/services/insights/credential"
	"github.com/linkforge/insights/internal/services/insights/domain"
	"github.com/linkforge/insights/internal/services/insights/gateway"
	"github.com/linkforge/insights/internal/services/insights/storage/sqlite"
)

// Config holds insights command configuration.
type Config struct {
	DBPath             string `env:"LINKFORGE_INSIGHTS_DB" envDefault:"insights.db"`
	CrUXAPIKey         string `env:"LINKFORGE_CRUX_API_KEY"`
	PageSpeedAPIKey    string `env:"LINKFORGE_PAGESPEED_API_KEY"`
	PageSpeedPerMinute int    `env:"LINKFORGE_PAGESPEED_RATE_PER_MINUTE" envDefault:"10"`
	CrUXEndpoint       string `env:"LINKFORGE_CRUX_ENDPOINT"`
	PageSpeedEndpoint  string `env:"LINKFORGE_PAGESPEED_ENDPOINT"`

	Feature    string
	TargetType string
	Target     string
	Variant    string
	TenantID   string
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the result cache database")
	fs.StringVar(&cfg.Feature, "feature", string(domain.FeatureCrUX), "feature to query (crux, pagespeed)")
	fs.StringVar(&cfg.TargetType, "target-type", string(domain.TargetOrigin), "target type (origin, url)")
	fs.StringVar(&cfg.Target, "target", "", "origin or page URL to query")
	fs.StringVar(&cfg.Variant, "variant", "", "form factor or strategy (defaults per feature)")
	fs.StringVar(&cfg.TenantID, "tenant", "", "tenant whose credentials to use (empty for shared key)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Envelope is the JSON shape the command prints for one query.
type Envelope struct {
	Status           string          `json:"status"`
	CacheHit         bool            `json:"cacheHit"`
	CacheUnavailable bool            `json:"cacheUnavailable,omitempty"`
	Error            string          `json:"error,omitempty"`
	KPIs             json.RawMessage `json:"kpis,omitempty"`
	FetchedAt        time.Time       `json:"fetchedAt,omitzero"`
	ExpiresAt        time.Time       `json:"expiresAt,omitzero"`
}

// Run executes one query and writes the result envelope as JSON to out.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if cfg.Target == "" {
		return errors.New("-target is required")
	}
	feature, err := domain.ParseFeature(cfg.Feature)
	if err != nil {
		return err
	}
	targetType, err := domain.ParseTargetType(cfg.TargetType)
	if err != nil {
		return err
	}

	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceInsights, func(ctx context.Context) error {
		svc, closeFn, err := buildService(cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		input := app.QueryInput{
			TargetType:  targetType,
			TargetValue: cfg.Target,
			Variant:     cfg.Variant,
			TenantID:    cfg.TenantID,
		}
		var result app.Result
		switch feature {
		case domain.FeaturePageSpeed:
			result, err = svc.QueryPageSpeed(ctx, input)
		default:
			result, err = svc.QueryCrUX(ctx, input)
		}
		if err != nil {
			return err
		}
		return writeEnvelope(out, result)
	})
}

// buildService wires the store, credential resolver, and provider adapters.
// A store that cannot open leaves the cache disabled rather than blocking
// the query.
func buildService(cfg Config) (*app.Service, func(), error) {
	var store *sqlite.Store
	closeFn := func() {}
	if cfg.DBPath != "" {
		opened, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			log.Printf("open result cache %s: %v (continuing without cache)", cfg.DBPath, err)
		} else {
			store = opened
			closeFn = func() {
				if err := store.Close(); err != nil {
					log.Printf("close result cache: %v", err)
				}
			}
		}
	}

	limiter := gateway.NewLimiter(cfg.PageSpeedPerMinute, 0)
	appCfg := app.Config{
		Resolver:  credential.NewResolver(credential.DefaultPolicies(cfg.CrUXAPIKey, cfg.PageSpeedAPIKey)...),
		CrUX:      gateway.NewCrUXProvider(gateway.CrUXConfig{Endpoint: cfg.CrUXEndpoint}),
		PageSpeed: gateway.NewPageSpeedProvider(gateway.PageSpeedConfig{Endpoint: cfg.PageSpeedEndpoint, Limiter: limiter}),
	}
	if store != nil {
		appCfg.Store = store
	}
	svc, err := app.New(appCfg)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return svc, closeFn, nil
}

func writeEnvelope(out io.Writer, result app.Result) error {
	envelope := Envelope{
		Status:           string(result.Status),
		CacheHit:         result.CacheHit,
		CacheUnavailable: result.CacheUnavailable,
		Error:            result.Error,
		FetchedAt:        result.FetchedAt,
		ExpiresAt:        result.ExpiresAt,
	}
	if result.KPIs != nil {
		kpis, err := json.Marshal(result.KPIs)
		if err != nil {
			return fmt.Errorf("encode kpis: %w", err)
		}
		envelope.KPIs = kpis
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(envelope)
}
