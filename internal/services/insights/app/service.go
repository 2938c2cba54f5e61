// Package app composes the insights query pipeline: credential resolution,
// cache-aside lookup, provider fetch, classification, normalization, and
// persistence behind one uniform result envelope.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	platformerrors "github.com/linkforge/insights/internal/platform/errors"
	"github.com/linkforge/insights/internal/services/insights/classify"
	"github.com/linkforge/insights/internal/services/insights/credential"
	"github.com/linkforge/insights/internal/services/insights/domain"
	"github.com/linkforge/insights/internal/services/insights/gateway"
	"github.com/linkforge/insights/internal/services/insights/kpi"
	"github.com/linkforge/insights/internal/services/insights/storage"
)

const tracerName = "github.com/linkforge/insights/internal/services/insights/app"

// Provider fetches one raw result from a third-party API.
type Provider interface {
	Fetch(ctx context.Context, apiKey string, targetType domain.TargetType, target, variant string) (gateway.Response, error)
}

// TenantDirectory reads per-tenant credential state. It is a black-box
// collaborator; key encryption and verification flows live with it.
type TenantDirectory interface {
	Grant(ctx context.Context, tenantID string, f domain.Feature) (credential.TenantGrant, bool, error)
}

// QueryInput identifies one target to query.
type QueryInput struct {
	TargetType  domain.TargetType
	TargetValue string
	Variant     string
	// TenantID is empty for platform-level queries.
	TenantID string
}

// Result is the uniform envelope every query path returns; callers never
// branch on which internal path produced it.
type Result struct {
	Status   domain.Status
	CacheHit bool
	// CacheUnavailable distinguishes "the result store is not usable" from a
	// plain miss, so operators can tell an unmigrated deployment apart from
	// an empty cache. The query still completes with a live provider call.
	CacheUnavailable bool
	KPIs             *kpi.Record
	RawPayload       json.RawMessage
	Error            string
	FetchedAt        time.Time
	ExpiresAt        time.Time
}

// Config wires a Service.
type Config struct {
	Store    storage.Store
	Resolver *credential.Resolver
	// Tenants may be nil when no tenant-owned keys exist.
	Tenants   TenantDirectory
	CrUX      Provider
	PageSpeed Provider
}

// Service is the public query surface of the insights engine.
type Service struct {
	store     storage.Store
	resolver  *credential.Resolver
	tenants   TenantDirectory
	providers map[domain.Feature]Provider
	tracer    trace.Tracer
}

// New builds a Service. The store may be nil; every query then runs live
// with CacheUnavailable set.
func New(cfg Config) (*Service, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("credential resolver is required")
	}
	providers := make(map[domain.Feature]Provider, 2)
	if cfg.CrUX != nil {
		providers[domain.FeatureCrUX] = cfg.CrUX
	}
	if cfg.PageSpeed != nil {
		providers[domain.FeaturePageSpeed] = cfg.PageSpeed
	}
	return &Service{
		store:     cfg.Store,
		resolver:  cfg.Resolver,
		tenants:   cfg.Tenants,
		providers: providers,
		tracer:    otel.Tracer(tracerName),
	}, nil
}

// QueryCrUX returns field data for a target from the Chrome UX Report.
func (s *Service) QueryCrUX(ctx context.Context, input QueryInput) (Result, error) {
	return s.query(ctx, domain.FeatureCrUX, input)
}

// QueryPageSpeed returns lab data for a target from PageSpeed Insights.
func (s *Service) QueryPageSpeed(ctx context.Context, input QueryInput) (Result, error) {
	return s.query(ctx, domain.FeaturePageSpeed, input)
}

// query runs the cache-aside protocol. The returned error only reports
// invalid input; every operational failure is folded into the envelope.
func (s *Service) query(ctx context.Context, f domain.Feature, input QueryInput) (Result, error) {
	if input.TargetValue == "" {
		return Result{}, platformerrors.New(platformerrors.CodeQueryEmptyTarget, "target value is required")
	}
	variant, err := domain.NormalizeVariant(f, input.Variant)
	if err != nil {
		return Result{}, err
	}

	ctx, span := s.tracer.Start(ctx, "insights.query",
		trace.WithAttributes(
			attribute.String("insights.feature", string(f)),
			attribute.String("insights.target_type", string(input.TargetType)),
			attribute.String("insights.target", input.TargetValue),
			attribute.Bool("insights.tenant", input.TenantID != ""),
		))
	defer span.End()

	result := s.execute(ctx, f, input, variant)
	span.SetAttributes(
		attribute.String("insights.status", string(result.Status)),
		attribute.Bool("insights.cache_hit", result.CacheHit),
		attribute.Bool("insights.cache_unavailable", result.CacheUnavailable),
	)
	return result, nil
}

func (s *Service) execute(ctx context.Context, f domain.Feature, input QueryInput, variant string) Result {
	grant, failure := s.tenantGrant(ctx, f, input.TenantID)
	if failure != "" {
		return Result{Status: domain.StatusFailed, Error: failure}
	}
	info := s.resolver.Resolve(grant, f)

	identity := domain.Identity{
		Partition:   info.Partition,
		Feature:     f,
		TargetType:  input.TargetType,
		TargetValue: input.TargetValue,
		Variant:     variant,
	}

	// Cache check comes first: a previously cached success keeps serving
	// even when the credential has since broken.
	var result Result
	if s.store == nil {
		result.CacheUnavailable = true
	} else {
		cached, found, err := s.store.Lookup(ctx, identity)
		if err != nil {
			result.CacheUnavailable = true
		} else if found {
			return Result{
				Status:     cached.Status,
				CacheHit:   true,
				KPIs:       cached.KPIs,
				RawPayload: cached.RawPayload,
				Error:      cached.ErrorMessage,
				FetchedAt:  cached.FetchedAt,
				ExpiresAt:  cached.ExpiresAt,
			}
		}
	}

	if info.Err != nil {
		result.Status = domain.StatusFailed
		result.Error = info.Err.Error()
		s.persist(ctx, identity, &result, nil)
		return result
	}

	provider, ok := s.providers[f]
	if !ok {
		result.Status = domain.StatusFailed
		result.Error = "no provider configured for feature " + string(f)
		s.persist(ctx, identity, &result, nil)
		return result
	}

	// The fetch-and-persist leg is detached from the caller's context:
	// an abandoned request must still populate the cache for the next one.
	detached := context.WithoutCancel(ctx)
	res, callErr := provider.Fetch(detached, info.Key, input.TargetType, input.TargetValue, variant)

	status, message := classify.Classify(f, res, callErr)
	result.Status = status
	result.Error = message
	result.RawPayload = res.RawBody

	var record *kpi.Record
	if status == domain.StatusSuccess {
		record = normalize(f, res.Body)
		result.KPIs = record
	}

	s.persist(detached, identity, &result, record)
	return result
}

// tenantGrant loads tenant credential state. A non-empty failure message
// means the directory itself could not answer; an unknown tenant simply
// resolves without a grant, i.e. to the shared key.
func (s *Service) tenantGrant(ctx context.Context, f domain.Feature, tenantID string) (*credential.TenantGrant, string) {
	if tenantID == "" || s.tenants == nil {
		return nil, ""
	}
	grant, found, err := s.tenants.Grant(ctx, tenantID, f)
	if err != nil {
		return nil, fmt.Sprintf("read tenant credential state: %v", err)
	}
	if !found {
		return nil, ""
	}
	return &grant, ""
}

// persist records the fetch attempt, failures included, and stamps the
// envelope with the stored timestamps. Storage trouble downgrades to
// cache-unavailable instead of failing the query.
func (s *Service) persist(ctx context.Context, identity domain.Identity, result *Result, record *kpi.Record) {
	if s.store == nil || result.CacheUnavailable {
		result.CacheUnavailable = true
		result.FetchedAt = time.Now().UTC()
		return
	}
	written, err := s.store.Upsert(ctx, storage.UpsertInput{
		Identity:     identity,
		Status:       result.Status,
		ErrorMessage: result.Error,
		RawPayload:   result.RawPayload,
		KPIs:         record,
	})
	if err != nil {
		result.CacheUnavailable = true
		result.FetchedAt = time.Now().UTC()
		return
	}
	result.FetchedAt = written.FetchedAt
	result.ExpiresAt = written.ExpiresAt
}

func normalize(f domain.Feature, body map[string]any) *kpi.Record {
	var record kpi.Record
	switch f {
	case domain.FeatureCrUX:
		record = kpi.NormalizeCrUX(body)
	case domain.FeaturePageSpeed:
		record = kpi.NormalizePageSpeed(body)
	}
	return &record
}
