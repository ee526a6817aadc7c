package tenant

import (
	"context"
	"sync"
	"testing"

	"backend/internal/shellsync"

	"go.uber.org/zap"
)

type fakeDistributedCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeDistributedCache() *fakeDistributedCache {
	return &fakeDistributedCache{data: make(map[string]string)}
}

func (c *fakeDistributedCache) GetString(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *fakeDistributedCache) SetString(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

type fakeTenantConfigRepository struct {
	mu    sync.Mutex
	items map[string]*TenantConfig
}

func newFakeTenantConfigRepository() *fakeTenantConfigRepository {
	return &fakeTenantConfigRepository{items: make(map[string]*TenantConfig)}
}

func (r *fakeTenantConfigRepository) GetByTenantID(ctx context.Context) (*TenantConfig, error) {
	tc, ok := FromContext(ctx)
	if !ok {
		return nil, ErrForbidden
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.items[tc.TenantID]
	if !ok {
		return nil, ErrNotFound
	}
	return cfg, nil
}

func (r *fakeTenantConfigRepository) Upsert(ctx context.Context, cfg *TenantConfig) error {
	tc, ok := FromContext(ctx)
	if !ok {
		return ErrForbidden
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[tc.TenantID] = cfg
	return nil
}

func TestShellHostAdapterBootstrapBuildsDefaultTenant(t *testing.T) {
	tenants := newFakeTenantRepository()
	configs := newFakeTenantConfigRepository()
	cache := newFakeDistributedCache()
	adapter := NewShellHostAdapter(tenants, configs, cache, zap.NewNop())

	if err := adapter.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	shell, ok := adapter.TryGetShellContext(shellsync.DefaultTenantName)
	if !ok {
		t.Fatalf("expected Default tenant shell context to exist after bootstrap")
	}
	if shell.Cache() != cache {
		t.Fatalf("expected Default tenant shell to wrap the shared cache")
	}

	settings, ok := adapter.TryGetSettings(shellsync.DefaultTenantName)
	if !ok || settings.State != shellsync.TenantStateRunning {
		t.Fatalf("expected Default tenant to be running, got %+v", settings)
	}
}

func TestShellHostAdapterBootstrapSeedsKnownTenants(t *testing.T) {
	tenants := newFakeTenantRepository()
	tenants.items["t1"] = &Tenant{ID: "t1", Name: "Acme", Slug: "acme", Status: "active"}
	tenants.items["t2"] = &Tenant{ID: "t2", Name: "Suspended", Slug: "susp", Status: "suspended"}
	configs := newFakeTenantConfigRepository()
	cache := newFakeDistributedCache()
	adapter := NewShellHostAdapter(tenants, configs, cache, zap.NewNop())

	if err := adapter.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	settings, ok := adapter.TryGetSettings("t1")
	if !ok || settings.State != shellsync.TenantStateRunning {
		t.Fatalf("expected active tenant t1 to be known and running, got %+v (ok=%v)", settings, ok)
	}
	if _, ok := adapter.TryGetSettings("t2"); !ok {
		t.Fatalf("expected suspended tenant t2 to still be known to the host")
	}
	if settings2, _ := adapter.TryGetSettings("t2"); settings2.State != shellsync.TenantStateUnknown {
		t.Fatalf("expected suspended tenant to carry a non-running state, got %+v", settings2)
	}
}

func TestShellHostAdapterCreateShellContextGatesCacheOnFeatureFlag(t *testing.T) {
	tenants := newFakeTenantRepository()
	configs := newFakeTenantConfigRepository()
	cache := newFakeDistributedCache()
	adapter := NewShellHostAdapter(tenants, configs, cache, zap.NewNop())

	settings := shellsync.TenantSettings{Name: "t1", State: shellsync.TenantStateRunning}

	shell, err := adapter.CreateShellContext(context.Background(), settings)
	if err != nil {
		t.Fatalf("CreateShellContext failed: %v", err)
	}
	if shell.Cache() != nil {
		t.Fatalf("expected no cache without a persisted config")
	}

	configs.items["t1"] = &TenantConfig{TenantID: "t1", FeatureFlags: map[string]bool{"distributed_cache": true}}
	shell, err = adapter.CreateShellContext(context.Background(), settings)
	if err != nil {
		t.Fatalf("CreateShellContext failed: %v", err)
	}
	if shell.Cache() != cache {
		t.Fatalf("expected the shared cache once distributed_cache flag is enabled")
	}
}

func TestShellHostAdapterReloadTenantPublishesThroughService(t *testing.T) {
	tenants := newFakeTenantRepository()
	tenants.items["t1"] = &Tenant{ID: "t1", Name: "Acme", Slug: "acme", Status: "active"}
	configs := newFakeTenantConfigRepository()
	configs.items["t1"] = &TenantConfig{TenantID: "t1", FeatureFlags: map[string]bool{"distributed_cache": true}}
	cache := newFakeDistributedCache()
	adapter := NewShellHostAdapter(tenants, configs, cache, zap.NewNop())

	svc := shellsync.NewService(adapter, adapter, adapter, zap.NewNop())
	adapter.SetService(svc)

	ctx := context.Background()
	if err := adapter.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	adapter.ReloadTenant(ctx, "t1")

	if _, ok := cache.data["t1_RELOAD_ID"]; !ok {
		t.Fatalf("expected ReloadTenant to publish t1_RELOAD_ID through the service hook, got %v", cache.data)
	}
	if _, ok := cache.data["SHELL_CHANGED_ID"]; !ok {
		t.Fatalf("expected ReloadTenant to publish a heartbeat id, got %v", cache.data)
	}

	shell, ok := adapter.TryGetShellContext("t1")
	if !ok || shell.Cache() != cache {
		t.Fatalf("expected t1's shell context to be rebuilt with the shared cache")
	}
}

func TestShellHostAdapterReleaseWithoutEventSourceSkipsPublish(t *testing.T) {
	tenants := newFakeTenantRepository()
	tenants.items["t1"] = &Tenant{ID: "t1", Name: "Acme", Slug: "acme", Status: "active"}
	configs := newFakeTenantConfigRepository()
	cache := newFakeDistributedCache()
	adapter := NewShellHostAdapter(tenants, configs, cache, zap.NewNop())

	svc := shellsync.NewService(adapter, adapter, adapter, zap.NewNop())
	adapter.SetService(svc)

	ctx := context.Background()
	if err := adapter.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	adapter.ReleaseShellContext(ctx, shellsync.TenantSettings{Name: "t1", State: shellsync.TenantStateRunning}, false)

	if len(cache.data) != 0 {
		t.Fatalf("expected no cache writes when eventSource is false, got %v", cache.data)
	}
}

func TestShellHostAdapterLoadSettingsNamesPaginates(t *testing.T) {
	tenants := newFakeTenantRepository()
	for i := 0; i < tenantListPageSize+5; i++ {
		id := "t" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		tenants.items[id] = &Tenant{ID: id, Status: "active"}
	}
	configs := newFakeTenantConfigRepository()
	adapter := NewShellHostAdapter(tenants, configs, newFakeDistributedCache(), zap.NewNop())

	names, err := adapter.LoadSettingsNames(context.Background())
	if err != nil {
		t.Fatalf("LoadSettingsNames failed: %v", err)
	}
	if len(names) != tenantListPageSize+5 {
		t.Fatalf("expected all %d tenants to be listed, got %d", tenantListPageSize+5, len(names))
	}
}
