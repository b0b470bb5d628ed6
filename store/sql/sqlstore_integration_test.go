package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/bowerbird-app/captain-hook-sub005/core"
	hookmigrations "github.com/bowerbird-app/captain-hook-sub005/migrations"
	sqlstore "github.com/bowerbird-app/captain-hook-sub005/store/sql"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "captainhook-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:captainhook-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = hookmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != hookmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, hookmigrations.WithValidationTargets(hookmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func newFactory(t *testing.T) (*sqlstore.RepositoryFactory, func()) {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromClient(client)
	if err != nil {
		cleanup()
		t.Fatalf("new repository factory: %v", err)
	}
	return factory, cleanup
}

func TestEventStore_AdmitIsIdempotent(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()
	events := factory.EventStore()

	input := core.AdmitEventInput{
		Provider:   "Stripe",
		ExternalID: "evt_sql_1",
		EventType:  "charge.succeeded",
		Payload:    map[string]any{"id": "evt_sql_1", "amount": float64(1200)},
		Headers:    map[string]string{"Stripe-Signature": "t=1,v1=abc"},
	}
	first, created, err := events.Admit(ctx, input)
	if err != nil {
		t.Fatalf("first admit: %v", err)
	}
	if !created {
		t.Fatalf("expected first admit to create")
	}
	if first.Provider != "stripe" {
		t.Fatalf("expected normalized provider, got %q", first.Provider)
	}
	if first.DedupState != core.DedupStateUnique {
		t.Fatalf("expected unique dedup state, got %q", first.DedupState)
	}

	second, created, err := events.Admit(ctx, input)
	if err != nil {
		t.Fatalf("second admit: %v", err)
	}
	if created {
		t.Fatalf("expected redelivery to return existing row")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same row, got %q and %q", first.ID, second.ID)
	}
	if second.DedupState != core.DedupStateDuplicate {
		t.Fatalf("expected duplicate dedup state, got %q", second.DedupState)
	}
	if second.LockVersion <= first.LockVersion {
		t.Fatalf("expected lock version bump, got %d -> %d", first.LockVersion, second.LockVersion)
	}

	found, err := events.Find(ctx, "stripe", "evt_sql_1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.ID != first.ID {
		t.Fatalf("expected find to return admitted row")
	}
	if found.Payload["id"] != "evt_sql_1" {
		t.Fatalf("expected payload to round-trip, got %+v", found.Payload)
	}
}

func TestEventStore_ConcurrentAdmitCreatesExactlyOneRow(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()
	events := factory.EventStore()

	const workers = 8
	var wg sync.WaitGroup
	createdCount := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := events.Admit(ctx, core.AdmitEventInput{
				Provider:   "stripe",
				ExternalID: "evt_sql_race",
				EventType:  "charge.succeeded",
			})
			if err != nil {
				t.Errorf("admit: %v", err)
				return
			}
			createdCount <- created
		}()
	}
	wg.Wait()
	close(createdCount)

	fresh := 0
	for created := range createdCount {
		if created {
			fresh++
		}
	}
	if fresh != 1 {
		t.Fatalf("expected exactly one creation, got %d", fresh)
	}
}

func TestActionStore_AcquireIsSingleWinner(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()

	event, _, err := factory.EventStore().Admit(ctx, core.AdmitEventInput{
		Provider:   "stripe",
		ExternalID: "evt_sql_cas",
		EventType:  "charge.succeeded",
	})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	actions, err := factory.ActionStore().CreateForEvent(ctx, event.ID, []core.ActionConfig{
		{Provider: "stripe", EventType: "charge.succeeded", ActionClass: "billing.Settle"},
	})
	if err != nil || len(actions) != 1 {
		t.Fatalf("create actions: %v (%d rows)", err, len(actions))
	}
	action := actions[0]

	first, err := factory.ActionStore().Acquire(ctx, action.ID, "worker-a", action.LockVersion)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if !first.Acquired {
		t.Fatalf("expected first acquire to win")
	}
	if first.Action.Status != core.ActionStatusProcessing {
		t.Fatalf("expected processing status, got %q", first.Action.Status)
	}
	if first.Action.LockedBy != "worker-a" {
		t.Fatalf("expected worker-a to hold the lock, got %q", first.Action.LockedBy)
	}

	second, err := factory.ActionStore().Acquire(ctx, action.ID, "worker-b", action.LockVersion)
	if err != nil {
		t.Fatalf("stale acquire: %v", err)
	}
	if second.Acquired {
		t.Fatalf("expected stale lock version to lose")
	}
}

func TestActionStore_RetryLifecycle(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()

	event, _, err := factory.EventStore().Admit(ctx, core.AdmitEventInput{
		Provider:   "stripe",
		ExternalID: "evt_sql_retry",
		EventType:  "charge.succeeded",
	})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	created, err := factory.ActionStore().CreateForEvent(ctx, event.ID, []core.ActionConfig{
		{Provider: "stripe", EventType: "charge.succeeded", ActionClass: "billing.Settle"},
	})
	if err != nil {
		t.Fatalf("create actions: %v", err)
	}
	action := created[0]

	acquired, err := factory.ActionStore().Acquire(ctx, action.ID, "worker-a", action.LockVersion)
	if err != nil || !acquired.Acquired {
		t.Fatalf("acquire: %v acquired=%v", err, acquired.Acquired)
	}
	bumped, err := factory.ActionStore().IncrementAttempt(ctx, action.ID)
	if err != nil {
		t.Fatalf("increment attempt: %v", err)
	}
	if bumped.AttemptCount != 1 || bumped.LastAttemptAt == nil {
		t.Fatalf("expected attempt bookkeeping, got %+v", bumped)
	}

	longMessage := strings.Repeat("x", core.ErrorMessageLimit+100)
	if err := factory.ActionStore().MarkFailed(ctx, action.ID, longMessage); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	failed, err := factory.ActionStore().Get(ctx, action.ID)
	if err != nil {
		t.Fatalf("get failed row: %v", err)
	}
	if failed.Status != core.ActionStatusFailed {
		t.Fatalf("expected failed status, got %q", failed.Status)
	}
	if len(failed.ErrorMessage) != core.ErrorMessageLimit {
		t.Fatalf("expected truncated error message, got %d chars", len(failed.ErrorMessage))
	}
	if failed.LockedAt != nil {
		t.Fatalf("expected lock released after failure")
	}

	nextAttempt := time.Now().UTC().Add(-time.Second)
	if err := factory.ActionStore().ResetForRetry(ctx, action.ID, nextAttempt); err != nil {
		t.Fatalf("reset for retry: %v", err)
	}
	due, err := factory.ActionStore().ListDue(ctx, 10, time.Now().UTC())
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 || due[0].ID != action.ID {
		t.Fatalf("expected retry row due, got %+v", due)
	}
	if due[0].Status != core.ActionStatusPending {
		t.Fatalf("expected pending after reset, got %q", due[0].Status)
	}

	if err := factory.ActionStore().MarkProcessed(ctx, action.ID); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	status, err := factory.EventStore().RecalculateStatus(ctx, event.ID)
	if err != nil {
		t.Fatalf("recalculate status: %v", err)
	}
	if status != core.EventStatusCompleted {
		t.Fatalf("expected completed event, got %q", status)
	}
}

func TestActionStore_ListDueSweepsFreshPendingRows(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()

	event, _, err := factory.EventStore().Admit(ctx, core.AdmitEventInput{
		Provider:   "stripe",
		ExternalID: "evt_sql_fresh",
		EventType:  "charge.succeeded",
	})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	created, err := factory.ActionStore().CreateForEvent(ctx, event.ID, []core.ActionConfig{
		{Provider: "stripe", EventType: "charge.succeeded", ActionClass: "billing.Settle"},
	})
	if err != nil || len(created) != 1 {
		t.Fatalf("create actions: %v (%d rows)", err, len(created))
	}

	// A fresh pending row has no next_attempt_at yet. The sweep must still
	// pick it up, or a lost enqueue strands it in pending.
	due, err := factory.ActionStore().ListDue(ctx, 10, time.Now().UTC())
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 || due[0].ID != created[0].ID {
		t.Fatalf("expected fresh pending row to be due, got %+v", due)
	}

	acquired, err := factory.ActionStore().Acquire(ctx, created[0].ID, "worker-a", created[0].LockVersion)
	if err != nil || !acquired.Acquired {
		t.Fatalf("acquire: %v acquired=%v", err, acquired.Acquired)
	}
	due, err = factory.ActionStore().ListDue(ctx, 10, time.Now().UTC())
	if err != nil {
		t.Fatalf("list due after acquire: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected no due rows while processing, got %+v", due)
	}
}

func TestActionStore_CreateForEventOrdersByPriority(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()

	event, _, err := factory.EventStore().Admit(ctx, core.AdmitEventInput{
		Provider:   "stripe",
		ExternalID: "evt_sql_order",
		EventType:  "charge.succeeded",
	})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if _, err := factory.ActionStore().CreateForEvent(ctx, event.ID, []core.ActionConfig{
		{Provider: "stripe", EventType: "charge.succeeded", ActionClass: "ledger.Record", Priority: 9},
		{Provider: "stripe", EventType: "charge.succeeded", ActionClass: "billing.Settle", Priority: 1},
		{Provider: "stripe", EventType: "charge.succeeded", ActionClass: "alerts.Notify", Priority: 5},
		{Provider: "stripe", EventType: "charge.succeeded", ActionClass: "alerts.Audit", Priority: 5},
	}); err != nil {
		t.Fatalf("create actions: %v", err)
	}

	rows, err := factory.ActionStore().ListByEvent(ctx, event.ID)
	if err != nil {
		t.Fatalf("list by event: %v", err)
	}
	got := make([]string, 0, len(rows))
	for _, row := range rows {
		got = append(got, row.ActionClass)
	}
	// Equal priorities tie-break on action class.
	want := []string{"billing.Settle", "alerts.Audit", "alerts.Notify", "ledger.Record"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestProviderStore_UpsertRoundTrip(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()
	providers := factory.ProviderStore()

	config := core.ProviderConfig{
		Name:            "Stripe",
		Token:           "tok_live",
		Verifier:        "stripe",
		Secret:          "whsec_test",
		Active:          true,
		Tolerance:       5 * time.Minute,
		RateLimit:       100,
		RatePeriod:      time.Minute,
		MaxPayloadBytes: 1 << 20,
	}
	if err := providers.Upsert(ctx, config); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	stored, err := providers.Get(ctx, "STRIPE")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Name != "stripe" || stored.Tolerance != 5*time.Minute || stored.RatePeriod != time.Minute {
		t.Fatalf("unexpected provider round-trip: %+v", stored)
	}

	config.Active = false
	config.RateLimit = 10
	if err := providers.Upsert(ctx, config); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	updated, err := providers.Get(ctx, "stripe")
	if err != nil {
		t.Fatalf("get updated: %v", err)
	}
	if updated.Active || updated.RateLimit != 10 {
		t.Fatalf("expected upsert to replace fields, got %+v", updated)
	}

	listed, err := providers.List(ctx)
	if err != nil || len(listed) != 1 {
		t.Fatalf("expected single provider, got %v (%v)", listed, err)
	}
}

func TestCachedProviderStore_ServesFromCacheUntilUpsert(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = time.Minute
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromClient(client, sqlstore.WithProviderCache(cacheService))
	if err != nil {
		t.Fatalf("new factory with cache: %v", err)
	}
	ctx := context.Background()
	providers := factory.ProviderStore()

	if err := providers.Upsert(ctx, core.ProviderConfig{
		Name:   "square",
		Token:  "tok_sq",
		Active: true,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	first, err := providers.Get(ctx, "square")
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if !first.Active {
		t.Fatalf("expected active provider")
	}

	if err := providers.Upsert(ctx, core.ProviderConfig{
		Name:   "square",
		Token:  "tok_sq",
		Active: false,
	}); err != nil {
		t.Fatalf("deactivating upsert: %v", err)
	}
	second, err := providers.Get(ctx, "square")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if second.Active {
		t.Fatalf("expected upsert to invalidate cached row")
	}
}

func TestActionConfigStore_SoftDeleteAndRevive(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()
	configs := factory.ActionConfigStore()

	binding := core.ActionConfig{
		Provider:    "stripe",
		EventType:   "charge.succeeded",
		ActionClass: "billing.Settle",
		Async:       true,
		MaxAttempts: 5,
		Priority:    2,
		RetryDelays: []time.Duration{time.Minute, 5 * time.Minute},
	}
	if err := configs.Upsert(ctx, binding); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	stored, err := configs.ListByProvider(ctx, "stripe")
	if err != nil || len(stored) != 1 {
		t.Fatalf("expected one binding, got %v (%v)", stored, err)
	}
	if stored[0].MaxAttempts != 5 || len(stored[0].RetryDelays) != 2 || stored[0].RetryDelays[1] != 5*time.Minute {
		t.Fatalf("unexpected binding round-trip: %+v", stored[0])
	}

	if err := configs.SoftDelete(ctx, "stripe", "charge.succeeded", "billing.Settle"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	removed, err := configs.ListByProvider(ctx, "stripe")
	if err != nil || len(removed) != 1 {
		t.Fatalf("expected soft-deleted row retained, got %v (%v)", removed, err)
	}
	if removed[0].DeletedAt == nil {
		t.Fatalf("expected deleted_at set, got %+v", removed[0])
	}

	if err := configs.Upsert(ctx, binding); err != nil {
		t.Fatalf("revive upsert: %v", err)
	}
	revived, err := configs.ListByProvider(ctx, "stripe")
	if err != nil || len(revived) != 1 {
		t.Fatalf("expected revived row, got %v (%v)", revived, err)
	}
	if revived[0].DeletedAt != nil {
		t.Fatalf("expected revival to clear deleted_at, got %+v", revived[0])
	}
}

func TestRateCounterStore_IncrementIsAtomicPerWindow(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	ctx := context.Background()
	counters := factory.RateCounterStore()

	window := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		count, err := counters.Increment(ctx, "stripe", window)
		if err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
		if count != i {
			t.Fatalf("expected count %d, got %d", i, count)
		}
	}

	next, err := counters.Increment(ctx, "stripe", window.Add(time.Minute))
	if err != nil {
		t.Fatalf("next window increment: %v", err)
	}
	if next != 1 {
		t.Fatalf("expected fresh window to start at 1, got %d", next)
	}

	other, err := counters.Increment(ctx, "square", window)
	if err != nil {
		t.Fatalf("other provider increment: %v", err)
	}
	if other != 1 {
		t.Fatalf("expected provider isolation, got %d", other)
	}
}
