package shellsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// waitUntil polls check every 5ms until it returns true or timeout elapses,
// failing the test on timeout. It exists so poller tests don't need brittle
// fixed sleeps around a background goroutine.
func waitUntil(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !check() {
		t.Fatalf("condition not met within %s", timeout)
	}
}

// fakeCache is an in-memory DistributedCache used across the test suite. It
// can be configured to fail GetString/SetString to exercise error paths.
type fakeCache struct {
	mu   sync.Mutex
	data map[string]string

	failGet bool
	failSet bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]string)}
}

func (c *fakeCache) GetString(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return "", false, errors.New("fake cache: get unavailable")
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *fakeCache) SetString(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSet {
		return errors.New("fake cache: set unavailable")
	}
	c.data[key] = value
	return nil
}

func (c *fakeCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *fakeCache) set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

func (c *fakeCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// fakeShell is a ShellContext backed by a fakeCache (or nil, to simulate the
// distributed-cache feature being disabled).
type fakeShell struct {
	cache  DistributedCache
	closed bool
}

func (f *fakeShell) Cache() DistributedCache { return f.cache }
func (f *fakeShell) Close() error {
	f.closed = true
	return nil
}

// fakeFactory builds fakeShell instances wired to a single shared cache,
// counting how many times it was invoked.
type fakeFactory struct {
	mu    sync.Mutex
	cache DistributedCache
	built int
}

func (f *fakeFactory) CreateShellContext(_ context.Context, _ TenantSettings) (ShellContext, error) {
	f.mu.Lock()
	f.built++
	f.mu.Unlock()
	return &fakeShell{cache: f.cache}, nil
}

func (f *fakeFactory) builtCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.built
}

// fakeHost is an in-memory Host implementation.
type fakeHost struct {
	mu       sync.Mutex
	settings map[string]TenantSettings
	shells   map[string]ShellContext

	releases []reconcileCall
	reloads  []reconcileCall
	calls    []string
}

type reconcileCall struct {
	Settings    TenantSettings
	EventSource bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		settings: make(map[string]TenantSettings),
		shells:   make(map[string]ShellContext),
	}
}

func (h *fakeHost) setTenant(name string, state TenantState, shell ShellContext) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settings[name] = TenantSettings{Name: name, State: state}
	if shell != nil {
		h.shells[name] = shell
	}
}

func (h *fakeHost) TryGetShellContext(name string) (ShellContext, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.shells[name]
	return s, ok
}

func (h *fakeHost) TryGetSettings(name string) (TenantSettings, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.settings[name]
	return s, ok
}

func (h *fakeHost) GetAllSettings() []TenantSettings {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]TenantSettings, 0, len(h.settings))
	for _, s := range h.settings {
		out = append(out, s)
	}
	return out
}

func (h *fakeHost) ReleaseShellContext(_ context.Context, settings TenantSettings, eventSource bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.releases = append(h.releases, reconcileCall{settings, eventSource})
	h.calls = append(h.calls, "release:"+settings.Name)
}

func (h *fakeHost) ReloadShellContext(_ context.Context, settings TenantSettings, eventSource bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reloads = append(h.reloads, reconcileCall{settings, eventSource})
	h.calls = append(h.calls, "reload:"+settings.Name)
}

func (h *fakeHost) releaseCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.releases)
}

func (h *fakeHost) reloadCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.reloads)
}

func (h *fakeHost) snapshotCalls() (releases, reloads []reconcileCall) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]reconcileCall(nil), h.releases...), append([]reconcileCall(nil), h.reloads...)
}

// fakeStore is an in-memory SettingsStore.
type fakeStore struct {
	mu       sync.Mutex
	names    []string
	settings map[string]TenantSettings
}

func newFakeStore() *fakeStore {
	return &fakeStore{settings: make(map[string]TenantSettings)}
}

func (s *fakeStore) add(settings TenantSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, settings.Name)
	s.settings[settings.Name] = settings
}

func (s *fakeStore) LoadSettingsNames(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out, nil
}

func (s *fakeStore) LoadSettings(_ context.Context, name string) (TenantSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settings[name]
	if !ok {
		return TenantSettings{}, errors.New("fake store: settings not found")
	}
	return st, nil
}

func testService(host Host, store SettingsStore, factory ShellContextFactory, opts ...Option) *Service {
	return NewService(host, store, factory, zap.NewNop(), opts...)
}
