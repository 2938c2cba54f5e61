package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/linkforge/insights/internal/services/insights/domain"
	"github.com/linkforge/insights/internal/services/insights/kpi"
	"github.com/linkforge/insights/internal/services/insights/storage"
	_ "modernc.org/sqlite"
)

func testIdentity() domain.Identity {
	return domain.Identity{
		Feature:     domain.FeatureCrUX,
		TargetType:  domain.TargetOrigin,
		TargetValue: "https://example.com",
		Variant:     domain.VariantAll,
	}
}

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "insights.db")
	store, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenRunsMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "insights.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	})

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() {
		_ = sqlDB.Close()
	}()

	var found int
	err = sqlDB.QueryRow(
		"SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'provider_results'",
	).Scan(&found)
	if err != nil {
		t.Fatalf("expected provider_results table: %v", err)
	}
}

func TestUpsertLookupRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	lcp := 2100.0
	status := kpi.StatusGood
	record := &kpi.Record{LCPMillis: &lcp, LCPStatus: &status}

	written, err := store.Upsert(ctx, storage.UpsertInput{
		Identity:   testIdentity(),
		Status:     domain.StatusSuccess,
		RawPayload: []byte(`{"record":{"metrics":{}}}`),
		KPIs:       record,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if written.ExpiresAt.Sub(written.FetchedAt) != storage.DefaultFreshTTL {
		t.Fatalf("success ttl = %s", written.ExpiresAt.Sub(written.FetchedAt))
	}

	loaded, found, err := store.Lookup(ctx, testIdentity())
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !found {
		t.Fatal("expected cached row")
	}
	if loaded.Status != domain.StatusSuccess {
		t.Fatalf("status = %q", loaded.Status)
	}
	if string(loaded.RawPayload) != `{"record":{"metrics":{}}}` {
		t.Fatalf("raw payload = %s", loaded.RawPayload)
	}
	if loaded.KPIs == nil || loaded.KPIs.LCPMillis == nil || *loaded.KPIs.LCPMillis != 2100 {
		t.Fatalf("kpis = %+v", loaded.KPIs)
	}
	if loaded.KPIs.LCPStatus == nil || *loaded.KPIs.LCPStatus != kpi.StatusGood {
		t.Fatalf("lcp status = %v", loaded.KPIs.LCPStatus)
	}
}

func TestLookupMissWithoutRows(t *testing.T) {
	store := openTestStore(t)
	_, found, err := store.Lookup(context.Background(), testIdentity())
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found {
		t.Fatal("expected miss")
	}
}

func TestLookupNeverReturnsExpiredRows(t *testing.T) {
	now := time.Now().UTC()
	clock := func() time.Time { return now }
	store := openTestStore(t, WithClock(func() time.Time { return clock() }))
	ctx := context.Background()

	if _, err := store.Upsert(ctx, storage.UpsertInput{
		Identity:     testIdentity(),
		Status:       domain.StatusFailed,
		ErrorMessage: "provider timeout",
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// One minute later the failed row is still fresh.
	clock = func() time.Time { return now.Add(time.Minute) }
	_, found, err := store.Lookup(ctx, testIdentity())
	if err != nil {
		t.Fatalf("lookup before expiry: %v", err)
	}
	if !found {
		t.Fatal("expected hit before failure ttl elapses")
	}

	// Past the failure TTL the row must not be returned.
	clock = func() time.Time { return now.Add(storage.DefaultFailureTTL + time.Second) }
	_, found, err = store.Lookup(ctx, testIdentity())
	if err != nil {
		t.Fatalf("lookup after expiry: %v", err)
	}
	if found {
		t.Fatal("expected miss after failure ttl elapses")
	}
}

func TestFailedTTLShorterThanSuccessTTL(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	failed, err := store.Upsert(ctx, storage.UpsertInput{
		Identity:     testIdentity(),
		Status:       domain.StatusFailed,
		ErrorMessage: "boom",
	})
	if err != nil {
		t.Fatalf("upsert failed row: %v", err)
	}

	succeeded, err := store.Upsert(ctx, storage.UpsertInput{
		Identity: testIdentity(),
		Status:   domain.StatusSuccess,
	})
	if err != nil {
		t.Fatalf("upsert success row: %v", err)
	}

	failedTTL := failed.ExpiresAt.Sub(failed.FetchedAt)
	successTTL := succeeded.ExpiresAt.Sub(succeeded.FetchedAt)
	if failedTTL >= successTTL {
		t.Fatalf("failed ttl %s must be shorter than success ttl %s", failedTTL, successTTL)
	}
}

func TestNoDataGetsFreshTTL(t *testing.T) {
	store := openTestStore(t)
	written, err := store.Upsert(context.Background(), storage.UpsertInput{
		Identity:     testIdentity(),
		Status:       domain.StatusNoData,
		ErrorMessage: "no data available",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if written.ExpiresAt.Sub(written.FetchedAt) != storage.DefaultFreshTTL {
		t.Fatalf("no_data ttl = %s, want fresh ttl", written.ExpiresAt.Sub(written.FetchedAt))
	}
}

func TestTTLPolicyOverridePerFeature(t *testing.T) {
	store := openTestStore(t, WithTTLPolicy(domain.FeatureCrUX, storage.TTLPolicy{
		Failure: time.Minute,
		Fresh:   time.Hour,
	}))
	written, err := store.Upsert(context.Background(), storage.UpsertInput{
		Identity: testIdentity(),
		Status:   domain.StatusSuccess,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if got := written.ExpiresAt.Sub(written.FetchedAt); got != time.Hour {
		t.Fatalf("override ttl = %s, want 1h", got)
	}
}

func TestUpsertOverwritesInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "insights.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	ctx := context.Background()

	if _, err := store.Upsert(ctx, storage.UpsertInput{
		Identity:     testIdentity(),
		Status:       domain.StatusFailed,
		ErrorMessage: "first attempt",
	}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if _, err := store.Upsert(ctx, storage.UpsertInput{
		Identity: testIdentity(),
		Status:   domain.StatusSuccess,
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() {
		_ = sqlDB.Close()
	}()
	var count int
	if err := sqlDB.QueryRow("SELECT COUNT(*) FROM provider_results").Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("rows = %d, want single overwritten row", count)
	}

	loaded, found, err := store.Lookup(ctx, testIdentity())
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !found || loaded.Status != domain.StatusSuccess {
		t.Fatalf("loaded = %+v, found = %v", loaded, found)
	}
	if loaded.ErrorMessage != "" {
		t.Fatalf("error message = %q, want cleared", loaded.ErrorMessage)
	}
}

func TestPartitionIsolation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	shared := testIdentity()
	tenantA := testIdentity()
	tenantA.Partition = "tenant-a"
	tenantB := testIdentity()
	tenantB.Partition = "tenant-b"

	if _, err := store.Upsert(ctx, storage.UpsertInput{Identity: shared, Status: domain.StatusSuccess}); err != nil {
		t.Fatalf("upsert shared: %v", err)
	}
	if _, err := store.Upsert(ctx, storage.UpsertInput{
		Identity:     tenantA,
		Status:       domain.StatusFailed,
		ErrorMessage: "tenant key revoked",
	}); err != nil {
		t.Fatalf("upsert tenant-a: %v", err)
	}

	loaded, found, err := store.Lookup(ctx, shared)
	if err != nil || !found {
		t.Fatalf("shared lookup: found=%v err=%v", found, err)
	}
	if loaded.Status != domain.StatusSuccess {
		t.Fatalf("shared status = %q, tenant write leaked", loaded.Status)
	}

	loaded, found, err = store.Lookup(ctx, tenantA)
	if err != nil || !found {
		t.Fatalf("tenant-a lookup: found=%v err=%v", found, err)
	}
	if loaded.Status != domain.StatusFailed {
		t.Fatalf("tenant-a status = %q", loaded.Status)
	}

	if _, found, err = store.Lookup(ctx, tenantB); err != nil {
		t.Fatalf("tenant-b lookup: %v", err)
	}
	if found {
		t.Fatal("tenant-b must not observe tenant-a rows")
	}
}

func TestVariantsAreDistinctRows(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	phone := testIdentity()
	phone.Variant = domain.VariantPhone
	desktop := testIdentity()
	desktop.Variant = domain.VariantDesktop

	if _, err := store.Upsert(ctx, storage.UpsertInput{Identity: phone, Status: domain.StatusSuccess}); err != nil {
		t.Fatalf("upsert phone: %v", err)
	}
	if _, found, err := store.Lookup(ctx, desktop); err != nil || found {
		t.Fatalf("desktop lookup: found=%v err=%v, want miss", found, err)
	}
}

func TestNotProvisionedDegradesGracefully(t *testing.T) {
	sqlDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "empty.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store := New(sqlDB)
	t.Cleanup(func() {
		_ = store.Close()
	})
	ctx := context.Background()

	_, _, err = store.Lookup(ctx, testIdentity())
	if !errors.Is(err, storage.ErrNotProvisioned) {
		t.Fatalf("lookup err = %v, want ErrNotProvisioned", err)
	}

	_, err = store.Upsert(ctx, storage.UpsertInput{Identity: testIdentity(), Status: domain.StatusFailed})
	if !errors.Is(err, storage.ErrNotProvisioned) {
		t.Fatalf("upsert err = %v, want ErrNotProvisioned", err)
	}
}

func TestUpsertRequiresTarget(t *testing.T) {
	store := openTestStore(t)
	id := testIdentity()
	id.TargetValue = ""
	if _, err := store.Upsert(context.Background(), storage.UpsertInput{Identity: id, Status: domain.StatusFailed}); err == nil {
		t.Fatal("expected error for empty target value")
	}
}
