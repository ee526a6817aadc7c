package shellsync

import "context"

// DefaultTenantName is the reserved name of the default tenant: the one
// whose settings carry the distributed-cache configuration used to build
// the shared distributed context.
const DefaultTenantName = "Default"

// TenantState mirrors the subset of host-observable tenant state this
// package cares about. Every state other than Running is ignored.
type TenantState int

const (
	TenantStateUnknown TenantState = iota
	TenantStateRunning
)

// TenantSettings is the persisted configuration for a tenant, as loaded
// from the settings store or reported live by the host.
type TenantSettings struct {
	Name  string
	State TenantState
}

// ShellContext is the host's runtime container for a tenant. It is rebuilt
// on reload and disposed on release.
type ShellContext interface {
	// Cache returns the distributed cache client for this shell, or nil if
	// the tenant's settings do not enable the distributed-cache feature.
	Cache() DistributedCache
	// Close releases resources owned by this shell context.
	Close() error
}

// ShellContextFactory builds the runtime container for a tenant from its
// settings. It is the only way a ShellContext comes into existence.
type ShellContextFactory interface {
	CreateShellContext(ctx context.Context, settings TenantSettings) (ShellContext, error)
}

// DistributedCache is a minimal key-value string API. No TTL is ever set;
// values persist until overwritten by some peer.
type DistributedCache interface {
	// GetString returns the current value of key, or ok=false if unset.
	GetString(ctx context.Context, key string) (value string, ok bool, err error)
	SetString(ctx context.Context, key, value string) error
}

// Host is the multi-tenant process this package synchronizes. It is
// implemented by the application embedding shellsync (see
// internal/tenant/shellhost_adapter.go for this backend's adapter).
type Host interface {
	// TryGetShellContext returns the live shell context for name, if any.
	TryGetShellContext(name string) (ShellContext, bool)
	// TryGetSettings returns the locally known settings for name, if any.
	// A tenant with no local settings is, by definition, not yet known to
	// this process.
	TryGetSettings(name string) (TenantSettings, bool)
	// GetAllSettings returns the settings of every tenant currently known
	// to this process.
	GetAllSettings() []TenantSettings
	// ReleaseShellContext disposes the live shell context for settings.Name.
	// When eventSource is false, the host must not fire its outbound
	// "releasing" hook as a consequence, to avoid feedback loops.
	ReleaseShellContext(ctx context.Context, settings TenantSettings, eventSource bool)
	// ReloadShellContext rebuilds the shell context for settings.Name. When
	// eventSource is false, the host must not fire its outbound "reloading"
	// hook as a consequence.
	ReloadShellContext(ctx context.Context, settings TenantSettings, eventSource bool)
}

// SettingsStore is the persisted catalog of tenant settings, independent of
// which tenants currently have a live shell context.
type SettingsStore interface {
	LoadSettingsNames(ctx context.Context) ([]string, error)
	LoadSettings(ctx context.Context, name string) (TenantSettings, error)
}
