package shellsync

import (
	"context"
	"testing"
)

func TestOnReleasingPublishesReleaseAndHeartbeat(t *testing.T) {
	cache := newFakeCache()
	host := newFakeHost()
	host.setTenant(DefaultTenantName, TenantStateRunning, nil)
	factory := &fakeFactory{cache: cache}
	svc := testService(host, newFakeStore(), factory)

	svc.OnReleasing(context.Background(), "T1")

	releaseID, ok := cache.get(releaseKey("T1"))
	if !ok || releaseID == "" {
		t.Fatalf("expected T1_RELEASE_ID to be published")
	}
	changedID, ok := cache.get(keyShellChangedID)
	if !ok || changedID != releaseID {
		t.Fatalf("expected SHELL_CHANGED_ID to equal the release id, got %q vs %q", changedID, releaseID)
	}

	rec := svc.ids.get("T1")
	if rec.ReleaseID != releaseID {
		t.Fatalf("expected local record to be updated to %q, got %q", releaseID, rec.ReleaseID)
	}
}

func TestOnReloadingNewTenantWritesCreatedID(t *testing.T) {
	cache := newFakeCache()
	host := newFakeHost()
	host.setTenant(DefaultTenantName, TenantStateRunning, nil)
	// T2 is not registered on the host: it is "new" from this peer's view.
	factory := &fakeFactory{cache: cache}
	svc := testService(host, newFakeStore(), factory)

	svc.OnReloading(context.Background(), "T2")

	reloadID, ok := cache.get(reloadKey("T2"))
	if !ok {
		t.Fatalf("expected T2_RELOAD_ID to be published")
	}
	createdID, ok := cache.get(keyShellCreatedID)
	if !ok || createdID != reloadID {
		t.Fatalf("expected SHELL_CREATED_ID to equal the reload id for a new tenant")
	}
}

func TestOnReloadingExistingTenantDoesNotWriteCreatedID(t *testing.T) {
	cache := newFakeCache()
	host := newFakeHost()
	host.setTenant(DefaultTenantName, TenantStateRunning, nil)
	host.setTenant("T1", TenantStateRunning, nil) // already known locally
	factory := &fakeFactory{cache: cache}
	svc := testService(host, newFakeStore(), factory)

	svc.OnReloading(context.Background(), "T1")

	if _, ok := cache.get(keyShellCreatedID); ok {
		t.Fatalf("did not expect SHELL_CREATED_ID to be written for an already-known tenant")
	}
}

func TestOnReloadingDefaultTenantNeverWritesCreatedID(t *testing.T) {
	cache := newFakeCache()
	host := newFakeHost()
	// The hook's preamble requires Default to be present and running, so it
	// is registered here; the test checks that reloading Default itself never
	// writes SHELL_CREATED_ID.
	host.setTenant(DefaultTenantName, TenantStateRunning, nil)
	factory := &fakeFactory{cache: cache}
	svc := testService(host, newFakeStore(), factory)

	svc.OnReloading(context.Background(), DefaultTenantName)

	if _, ok := cache.get(keyShellCreatedID); ok {
		t.Fatalf("must never write SHELL_CREATED_ID for the default tenant")
	}
}

func TestHooksAreNoOpsWhenTerminated(t *testing.T) {
	cache := newFakeCache()
	host := newFakeHost()
	host.setTenant(DefaultTenantName, TenantStateRunning, nil)
	factory := &fakeFactory{cache: cache}
	svc := testService(host, newFakeStore(), factory)
	svc.terminated.Store(true)

	svc.OnReleasing(context.Background(), "T1")
	svc.OnReloading(context.Background(), "T1")
	svc.OnLoading(context.Background())

	if len(cache.data) != 0 {
		t.Fatalf("expected no cache writes once terminated, got %v", cache.data)
	}
}

func TestHooksAreNoOpsWhenDefaultTenantNotRunning(t *testing.T) {
	cache := newFakeCache()
	host := newFakeHost()
	host.setTenant(DefaultTenantName, TenantStateUnknown, nil)
	factory := &fakeFactory{cache: cache}
	svc := testService(host, newFakeStore(), factory)

	svc.OnReleasing(context.Background(), "T1")

	if len(cache.data) != 0 {
		t.Fatalf("expected no cache I/O when default tenant is absent/not running")
	}
}

func TestHooksAreNoOpsWhenDistributedCacheDisabled(t *testing.T) {
	host := newFakeHost()
	host.setTenant(DefaultTenantName, TenantStateRunning, nil)
	factory := &fakeFactory{cache: nil} // feature disabled: shells carry no cache
	svc := testService(host, newFakeStore(), factory)

	svc.OnReleasing(context.Background(), "T1")

	rec := svc.ids.get("T1")
	if rec.ReleaseID != "" {
		t.Fatalf("expected no publish when distributed cache is disabled")
	}
}

func TestOnLoadingSeedsBaselineAndPerTenantIdentifiers(t *testing.T) {
	cache := newFakeCache()
	cache.data[keyShellChangedID] = "baseline-changed"
	cache.data[keyShellCreatedID] = "baseline-created"
	cache.data[releaseKey("T1")] = "r0"
	cache.data[reloadKey("T1")] = "l0"

	host := newFakeHost()
	host.setTenant(DefaultTenantName, TenantStateRunning, nil)
	store := newFakeStore()
	store.add(TenantSettings{Name: "T1", State: TenantStateRunning})
	factory := &fakeFactory{cache: cache}
	svc := testService(host, store, factory)

	svc.OnLoading(context.Background())

	snap := svc.Snapshot()
	if snap.ShellChangedID != "baseline-changed" || snap.ShellCreatedID != "baseline-created" {
		t.Fatalf("expected baseline ids to be recorded, got %+v", snap)
	}
	if snap.Identifiers["T1"].ReleaseID != "r0" || snap.Identifiers["T1"].ReloadID != "l0" {
		t.Fatalf("expected per-tenant identifiers seeded from cache, got %+v", snap.Identifiers["T1"])
	}
}
