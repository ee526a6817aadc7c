package tenant

import (
	"context"
	"errors"
	"sync"

	"backend/internal/shellsync"

	"go.uber.org/zap"
)

const tenantListPageSize = 200

type shellRuntime struct {
	settings shellsync.TenantSettings
	ctx      shellsync.ShellContext
}

type tenantShellContext struct {
	cache shellsync.DistributedCache
}

func (t *tenantShellContext) Cache() shellsync.DistributedCache { return t.cache }
func (t *tenantShellContext) Close() error                      { return nil }

// ShellHostAdapter implements shellsync.Host, shellsync.SettingsStore and
// shellsync.ShellContextFactory over TenantRepository and
// TenantConfigRepository, so that tenant release/reload performed by this
// process (e.g. from an admin action) converges across every other process
// sharing the same Redis-backed cache.
//
// The synthetic "Default" tenant carries no database row: it always exists,
// is always running, and its ShellContext always wraps the shared distributed
// cache. Ordinary tenants gate their cache on TenantConfig.FeatureFlags
// ["distributed_cache"]: a tenant without that flag has a ShellContext whose
// Cache() returns nil, which shellsync treats as the distributed-cache
// feature being disabled for that tenant.
type ShellHostAdapter struct {
	tenants TenantRepository
	configs TenantConfigRepository
	shared  shellsync.DistributedCache
	logger  *zap.Logger

	mu   sync.RWMutex
	live map[string]*shellRuntime

	svcMu sync.RWMutex
	svc   *shellsync.Service
}

// NewShellHostAdapter constructs a ShellHostAdapter. sharedCache is the
// distributed cache client every tenant's ShellContext shares when its
// distributed-cache feature flag is enabled (and the one the Default
// tenant's ShellContext always wraps).
func NewShellHostAdapter(tenants TenantRepository, configs TenantConfigRepository, sharedCache shellsync.DistributedCache, logger *zap.Logger) *ShellHostAdapter {
	return &ShellHostAdapter{
		tenants: tenants,
		configs: configs,
		shared:  sharedCache,
		logger:  logger,
		live:    make(map[string]*shellRuntime),
	}
}

// SetService attaches the shellsync.Service this adapter fires hooks on. It
// must be called once, after the service has been constructed with this
// adapter as its Host/SettingsStore/ShellContextFactory, and before Bootstrap.
func (a *ShellHostAdapter) SetService(svc *shellsync.Service) {
	a.svcMu.Lock()
	a.svc = svc
	a.svcMu.Unlock()
}

// Bootstrap builds the Default tenant's shell context, seeds the live-tenant
// table from the settings store, and runs the service's OnLoading hook. It
// must run once at process startup, before the service's poller is started.
func (a *ShellHostAdapter) Bootstrap(ctx context.Context) error {
	defaultSettings := shellsync.TenantSettings{Name: shellsync.DefaultTenantName, State: shellsync.TenantStateRunning}
	defaultShell, err := a.CreateShellContext(ctx, defaultSettings)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.live[shellsync.DefaultTenantName] = &shellRuntime{settings: defaultSettings, ctx: defaultShell}
	a.mu.Unlock()

	names, err := a.LoadSettingsNames(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		settings, err := a.LoadSettings(ctx, name)
		if err != nil {
			a.logger.Warn("shellhost: loading tenant settings during bootstrap failed",
				zap.String("tenant", name), zap.Error(err))
			continue
		}
		a.mu.Lock()
		a.live[name] = &shellRuntime{settings: settings}
		a.mu.Unlock()
	}

	a.svcMu.RLock()
	svc := a.svc
	a.svcMu.RUnlock()
	if svc != nil {
		svc.OnLoading(ctx)
	}
	return nil
}

// ReleaseTenant releases tenantID's shell context as a locally originated
// event: the shared cache is notified so other processes converge too.
func (a *ShellHostAdapter) ReleaseTenant(ctx context.Context, tenantID string) {
	a.ReleaseShellContext(ctx, shellsync.TenantSettings{Name: tenantID, State: shellsync.TenantStateRunning}, true)
}

// ReloadTenant rebuilds tenantID's shell context as a locally originated
// event: the shared cache is notified so other processes converge too.
func (a *ShellHostAdapter) ReloadTenant(ctx context.Context, tenantID string) {
	a.ReloadShellContext(ctx, shellsync.TenantSettings{Name: tenantID, State: shellsync.TenantStateRunning}, true)
}

// TryGetShellContext implements shellsync.Host.
func (a *ShellHostAdapter) TryGetShellContext(name string) (shellsync.ShellContext, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rt, ok := a.live[name]
	if !ok || rt.ctx == nil {
		return nil, false
	}
	return rt.ctx, true
}

// TryGetSettings implements shellsync.Host.
func (a *ShellHostAdapter) TryGetSettings(name string) (shellsync.TenantSettings, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rt, ok := a.live[name]
	if !ok {
		return shellsync.TenantSettings{}, false
	}
	return rt.settings, true
}

// GetAllSettings implements shellsync.Host.
func (a *ShellHostAdapter) GetAllSettings() []shellsync.TenantSettings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]shellsync.TenantSettings, 0, len(a.live))
	for _, rt := range a.live {
		out = append(out, rt.settings)
	}
	return out
}

// ReleaseShellContext implements shellsync.Host. When eventSource is true
// this call originated locally and the service's OnReleasing hook publishes
// it to the shared cache before the shell is torn down; when false, a peer
// already published the release and only the local teardown is needed.
func (a *ShellHostAdapter) ReleaseShellContext(ctx context.Context, settings shellsync.TenantSettings, eventSource bool) {
	if eventSource {
		a.svcMu.RLock()
		svc := a.svc
		a.svcMu.RUnlock()
		if svc != nil {
			svc.OnReleasing(ctx, settings.Name)
		}
	}

	a.mu.Lock()
	rt, ok := a.live[settings.Name]
	if ok && rt.ctx != nil {
		_ = rt.ctx.Close()
		rt.ctx = nil
	}
	a.mu.Unlock()
}

// ReloadShellContext implements shellsync.Host. See ReleaseShellContext for
// the eventSource contract.
func (a *ShellHostAdapter) ReloadShellContext(ctx context.Context, settings shellsync.TenantSettings, eventSource bool) {
	if eventSource {
		a.svcMu.RLock()
		svc := a.svc
		a.svcMu.RUnlock()
		if svc != nil {
			svc.OnReloading(ctx, settings.Name)
		}
	}

	shell, err := a.CreateShellContext(ctx, settings)
	if err != nil {
		a.logger.Warn("shellhost: rebuilding shell context failed", zap.String("tenant", settings.Name), zap.Error(err))
		return
	}

	a.mu.Lock()
	old, existed := a.live[settings.Name]
	a.live[settings.Name] = &shellRuntime{settings: settings, ctx: shell}
	a.mu.Unlock()

	if existed && old.ctx != nil {
		_ = old.ctx.Close()
	}
}

// LoadSettingsNames implements shellsync.SettingsStore, paging through every
// known tenant regardless of status; LoadSettings reports each one's actual
// state so the host can tell a suspended tenant from one it has never heard
// of.
func (a *ShellHostAdapter) LoadSettingsNames(ctx context.Context) ([]string, error) {
	var names []string
	offset := 0
	for {
		page, total, err := a.tenants.List(ctx, tenantListPageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, t := range page {
			names = append(names, t.ID)
		}
		offset += len(page)
		if len(page) == 0 || int64(offset) >= total {
			break
		}
	}
	return names, nil
}

// LoadSettings implements shellsync.SettingsStore.
func (a *ShellHostAdapter) LoadSettings(ctx context.Context, name string) (shellsync.TenantSettings, error) {
	t, err := a.tenants.GetByID(ctx, name)
	if err != nil {
		return shellsync.TenantSettings{}, err
	}
	state := shellsync.TenantStateUnknown
	if t.Status == "active" {
		state = shellsync.TenantStateRunning
	}
	return shellsync.TenantSettings{Name: t.ID, State: state}, nil
}

// CreateShellContext implements shellsync.ShellContextFactory.
func (a *ShellHostAdapter) CreateShellContext(ctx context.Context, settings shellsync.TenantSettings) (shellsync.ShellContext, error) {
	if settings.Name == shellsync.DefaultTenantName {
		return &tenantShellContext{cache: a.shared}, nil
	}

	tenantCtx := WithTenantContext(ctx, TenantContext{TenantID: settings.Name})
	cfg, err := a.configs.GetByTenantID(tenantCtx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if cfg == nil || !cfg.FeatureFlags["distributed_cache"] {
		return &tenantShellContext{cache: nil}, nil
	}
	return &tenantShellContext{cache: a.shared}, nil
}
