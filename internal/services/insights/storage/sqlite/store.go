// Package sqlite provides the SQLite-backed result cache adapter.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/linkforge/insights/internal/platform/storage/sqlitemigrate"
	"github.com/linkforge/insights/internal/services/insights/domain"
	"github.com/linkforge/insights/internal/services/insights/kpi"
	"github.com/linkforge/insights/internal/services/insights/storage"
	"github.com/linkforge/insights/internal/services/insights/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists cached provider results in SQLite.
type Store struct {
	sqlDB    *sql.DB
	clock    func() time.Time
	policies map[domain.Feature]storage.TTLPolicy
}

// Option customizes a Store.
type Option func(*Store)

// WithClock injects the time source. Tests use this to pin TTL arithmetic.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithTTLPolicy overrides the freshness policy for one feature.
func WithTTLPolicy(f domain.Feature, policy storage.TTLPolicy) Option {
	return func(s *Store) {
		s.policies[f] = policy
	}
}

// Open opens a SQLite result store and applies embedded migrations.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return New(sqlDB, opts...), nil
}

// New wraps an existing SQLite handle without migrating. Deployments that
// have not provisioned the schema degrade to cache-disabled at call time
// instead of failing here.
func New(sqlDB *sql.DB, opts ...Option) *Store {
	store := &Store{
		sqlDB:    sqlDB,
		clock:    time.Now,
		policies: storage.DefaultTTLPolicies(),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Lookup returns the freshest non-expired row for the identity tuple.
func (s *Store) Lookup(ctx context.Context, id domain.Identity) (storage.CachedResult, bool, error) {
	if s == nil || s.sqlDB == nil {
		return storage.CachedResult{}, false, storage.ErrNotProvisioned
	}
	if err := ctx.Err(); err != nil {
		return storage.CachedResult{}, false, err
	}

	now := s.clock().UTC()
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT partition_id, feature, target_type, target_value, variant,
		        status, error_message, raw_payload, kpis_json, fetched_at, expires_at
		 FROM provider_results
		 WHERE partition_id = ? AND feature = ? AND target_type = ? AND target_value = ? AND variant = ?
		   AND expires_at > ?
		 ORDER BY fetched_at DESC
		 LIMIT 1`,
		id.Partition,
		string(id.Feature),
		string(id.TargetType),
		id.TargetValue,
		id.Variant,
		toMillis(now),
	)

	result, err := scanResult(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return storage.CachedResult{}, false, nil
		}
		if isNoSuchTable(err) {
			return storage.CachedResult{}, false, storage.ErrNotProvisioned
		}
		return storage.CachedResult{}, false, fmt.Errorf("lookup provider result: %w", err)
	}
	return result, true, nil
}

// Upsert atomically replaces the row for the identity tuple. Every fetch
// attempt is recorded, failures included; expiry is computed from the status
// under the feature's TTL policy.
func (s *Store) Upsert(ctx context.Context, input storage.UpsertInput) (storage.CachedResult, error) {
	if s == nil || s.sqlDB == nil {
		return storage.CachedResult{}, storage.ErrNotProvisioned
	}
	if err := ctx.Err(); err != nil {
		return storage.CachedResult{}, err
	}
	if input.Identity.TargetValue == "" {
		return storage.CachedResult{}, fmt.Errorf("target value is required")
	}

	fetchedAt := s.clock().UTC()
	expiresAt := fetchedAt.Add(s.policies[input.Identity.Feature].TTLFor(input.Status))

	var kpisJSON []byte
	if input.KPIs != nil {
		encoded, err := json.Marshal(input.KPIs)
		if err != nil {
			return storage.CachedResult{}, fmt.Errorf("marshal kpis: %w", err)
		}
		kpisJSON = encoded
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO provider_results (
		    partition_id, feature, target_type, target_value, variant,
		    status, error_message, raw_payload, kpis_json, fetched_at, expires_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(partition_id, feature, target_type, target_value, variant) DO UPDATE SET
		    status = excluded.status,
		    error_message = excluded.error_message,
		    raw_payload = excluded.raw_payload,
		    kpis_json = excluded.kpis_json,
		    fetched_at = excluded.fetched_at,
		    expires_at = excluded.expires_at`,
		input.Identity.Partition,
		string(input.Identity.Feature),
		string(input.Identity.TargetType),
		input.Identity.TargetValue,
		input.Identity.Variant,
		string(input.Status),
		input.ErrorMessage,
		input.RawPayload,
		kpisJSON,
		toMillis(fetchedAt),
		toMillis(expiresAt),
	)
	if err != nil {
		if isNoSuchTable(err) {
			return storage.CachedResult{}, storage.ErrNotProvisioned
		}
		return storage.CachedResult{}, fmt.Errorf("upsert provider result: %w", err)
	}

	return storage.CachedResult{
		Identity:     input.Identity,
		Status:       input.Status,
		ErrorMessage: input.ErrorMessage,
		RawPayload:   input.RawPayload,
		KPIs:         input.KPIs,
		FetchedAt:    fetchedAt,
		ExpiresAt:    expiresAt,
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (storage.CachedResult, error) {
	var result storage.CachedResult
	var feature, targetType, status string
	var kpisJSON []byte
	var fetchedAt, expiresAt int64
	if err := row.Scan(
		&result.Identity.Partition,
		&feature,
		&targetType,
		&result.Identity.TargetValue,
		&result.Identity.Variant,
		&status,
		&result.ErrorMessage,
		&result.RawPayload,
		&kpisJSON,
		&fetchedAt,
		&expiresAt,
	); err != nil {
		return storage.CachedResult{}, err
	}

	result.Identity.Feature = domain.Feature(feature)
	result.Identity.TargetType = domain.TargetType(targetType)
	result.Status = domain.Status(status)
	result.FetchedAt = fromMillis(fetchedAt)
	result.ExpiresAt = fromMillis(expiresAt)

	if len(kpisJSON) > 0 {
		var record kpi.Record
		if err := json.Unmarshal(kpisJSON, &record); err != nil {
			return storage.CachedResult{}, fmt.Errorf("unmarshal kpis: %w", err)
		}
		result.KPIs = &record
	}
	return result, nil
}

func isNoSuchTable(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such table")
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}
