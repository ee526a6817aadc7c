package shellsync

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"backend/internal/metrics"
)

// errorKeyCache wraps fakeCache and forces GetString to fail for exactly one
// configured key, leaving every other key's behavior delegated to the
// embedded fakeCache. It lets a test simulate a cache outage scoped to a
// single tenant's release/reload id without disturbing the heartbeat read
// that drives the rest of the loop.
type errorKeyCache struct {
	*fakeCache
	mu      sync.Mutex
	failKey string
}

func newErrorKeyCache() *errorKeyCache {
	return &errorKeyCache{fakeCache: newFakeCache()}
}

func (c *errorKeyCache) setFailKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failKey = key
}

func (c *errorKeyCache) GetString(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	fk := c.failKey
	c.mu.Unlock()
	if fk != "" && key == fk {
		return "", false, errors.New("errorKeyCache: forced failure for " + key)
	}
	return c.fakeCache.GetString(ctx, key)
}

// pollErrorCount reads the current value of the tenantsync_shellsync_poll_errors_total
// counter for a given step label, used to detect how many times the poller
// has observed a given failure without relying on brittle sleep-based
// iteration counting.
func pollErrorCount(t *testing.T, step string) float64 {
	t.Helper()
	return testutil.ToFloat64(metrics.ShellSyncPollErrorsTotal.WithLabelValues(step))
}

// countErrorLogs returns how many Error-level entries in the observed log
// contain substr.
func countErrorLogs(logs *observer.ObservedLogs, substr string) int {
	n := 0
	for _, entry := range logs.All() {
		if entry.Level == zapcore.ErrorLevel && strings.Contains(entry.Message, substr) {
			n++
		}
	}
	return n
}

// TestPollerBackoffCapsAndLogsOnce exercises step 5's adaptive backoff: a
// heartbeat read that keeps failing must double the idle interval up to
// retryMax, log the "backed off to cap" error exactly once (not on every
// failed tick thereafter), and keep counting each failure in the
// tenantsync_shellsync_poll_errors_total{step="heartbeat"} counter.
func TestPollerBackoffCapsAndLogsOnce(t *testing.T) {
	cache := newErrorKeyCache()
	cache.setFailKey(keyShellChangedID)

	host := newFakeHost()
	host.setTenant(DefaultTenantName, TenantStateRunning, &fakeShell{cache: cache})
	factory := &fakeFactory{cache: cache}

	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(core)

	before := pollErrorCount(t, "heartbeat")

	svc := NewService(host, newFakeStore(), factory, logger,
		WithIdle(5*time.Millisecond), WithBusyMax(20*time.Millisecond), WithRetryMax(40*time.Millisecond))
	svc.Start(context.Background())
	t.Cleanup(svc.Stop)

	// 5ms -> 10ms -> 20ms -> 40ms(cap) takes a few ticks; give it generous
	// real wall-clock time well past the cap and well past a single log.
	waitUntil(t, 2*time.Second, func() bool {
		return pollErrorCount(t, "heartbeat")-before >= 6
	})

	if got := countErrorLogs(logs, "backed off to cap"); got != 1 {
		t.Fatalf("expected exactly one backoff-cap log line, got %d", got)
	}

	// Keep letting it fail a while longer; the log count must stay at 1
	// even though the error counter keeps climbing.
	afterFirstCheck := pollErrorCount(t, "heartbeat")
	time.Sleep(150 * time.Millisecond)
	if pollErrorCount(t, "heartbeat") <= afterFirstCheck {
		t.Fatalf("expected heartbeat failures to keep being recorded after reaching the backoff cap")
	}
	if got := countErrorLogs(logs, "backed off to cap"); got != 1 {
		t.Fatalf("expected backoff-cap log to still be logged exactly once, got %d", got)
	}
}

// TestPollerAbortsCreationRescanOnStoreError exercises step 7: when
// rescanning tenant names after SHELL_CREATED_ID advances turns up a tenant
// whose settings can't be loaded, checkCreated must abort the rest of that
// iteration instead of partially fanning out the tenants it already
// resolved.
func TestPollerAbortsCreationRescanOnStoreError(t *testing.T) {
	cache := newFakeCache()
	host := newFakeHost()
	host.setTenant(DefaultTenantName, TenantStateRunning, &fakeShell{cache: cache})

	store := newFakeStore()
	// "Tgood" resolves cleanly; "Tbad" is known to the store's name list but
	// its settings were never populated, so LoadSettings fails for it. Tbad
	// is listed first, so an implementation that skipped the failing tenant
	// and carried on would resolve Tgood and, since the cache holds a reload
	// id for Tgood, reload it.
	store.names = append(store.names, "Tbad", "Tgood")
	store.settings["Tgood"] = TenantSettings{Name: "Tgood", State: TenantStateRunning}

	factory := &fakeFactory{cache: cache}

	before := pollErrorCount(t, "settings_rescan")

	svc := startTestService(t, host, store, factory)
	_ = svc

	cache.set(reloadKey("Tgood"), "l1")
	cache.set(keyShellChangedID, "x1")
	cache.set(keyShellCreatedID, "c1")

	waitUntil(t, time.Second, func() bool {
		return pollErrorCount(t, "settings_rescan")-before >= 1
	})

	// Give the loop several more ticks; Tgood must never be reconciled since
	// the rescan that would have discovered it aborted.
	time.Sleep(10 * testIdle)
	if host.reloadCount() != 0 || host.releaseCount() != 0 {
		t.Fatalf("expected no reconciliation after an aborted creation rescan, got releases=%d reloads=%d",
			host.releaseCount(), host.reloadCount())
	}
}

// TestPollerBreaksFanOutOnTenantCacheErrorAndRetriesNextTick exercises step
// 8: a cache error while reconciling one tenant must stop that tick's
// fan-out (no partial progress past the failing tenant) without killing the
// poller, and the same tenant must be retried successfully once the cache
// recovers and a fresh divergence is observed.
func TestPollerBreaksFanOutOnTenantCacheErrorAndRetriesNextTick(t *testing.T) {
	cache := newErrorKeyCache()
	host := newFakeHost()
	host.setTenant(DefaultTenantName, TenantStateRunning, &fakeShell{cache: cache})
	host.setTenant("T1", TenantStateRunning, nil)
	factory := &fakeFactory{cache: cache}

	before := pollErrorCount(t, "reconcile")

	svc := startTestService(t, host, nil, factory)
	_ = svc

	cache.setFailKey(releaseKey("T1"))
	cache.set(releaseKey("T1"), "r1")
	cache.set(keyShellChangedID, "x1")

	waitUntil(t, time.Second, func() bool {
		return pollErrorCount(t, "reconcile")-before >= 1
	})

	// The failing read must have prevented any reconciliation for T1, and
	// the service must still be running (fanOut returning false only on
	// context cancellation, never on a per-tenant cache error).
	time.Sleep(5 * testIdle)
	if host.releaseCount() != 0 {
		t.Fatalf("expected no release to be recorded while the cache read keeps failing")
	}
	if svc.Snapshot().Terminated {
		t.Fatalf("a per-tenant cache error must not terminate the poller")
	}

	// Recover the cache and signal a fresh divergence; T1 must now be
	// reconciled exactly once.
	cache.setFailKey("")
	cache.set(keyShellChangedID, "x2")

	waitUntil(t, time.Second, func() bool { return host.releaseCount() == 1 })

	time.Sleep(5 * testIdle)
	if got := host.releaseCount(); got != 1 {
		t.Fatalf("expected exactly one release once the cache recovered, got %d", got)
	}
}
