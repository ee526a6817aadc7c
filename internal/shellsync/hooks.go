package shellsync

import (
	"context"

	"go.uber.org/zap"
)

// obtainContext returns a usable distributed context for a single hook
// invocation, plus a cleanup func that must always be called. It prefers
// the shared context the poller maintains; if none is live yet, it builds a
// one-shot context scoped to this call alone.
func (s *Service) obtainContext(ctx context.Context, defaultSettings TenantSettings) (*DistributedContext, func()) {
	s.ctxMu.Lock()
	shared := s.sharedCtx
	s.ctxMu.Unlock()

	if shared != nil {
		if acquired := shared.Acquire(); acquired != nil {
			return acquired, acquired.Release
		}
	}

	shell, err := s.factory.CreateShellContext(ctx, defaultSettings)
	if err != nil {
		s.logger.Warn("shellsync: building one-shot distributed context failed", zap.Error(err))
		return nil, func() {}
	}
	dctx := newDistributedContext(shell)
	return dctx, dctx.Release
}

// hookPreamble runs the common prologue shared by all three hooks: bail out
// if terminated, locate the default tenant's settings, and obtain a usable
// distributed context. It returns (nil, no-op, false) if any step fails, in
// which case the caller must simply return.
func (s *Service) hookPreamble(ctx context.Context) (*DistributedContext, func(), bool) {
	if s.terminated.Load() {
		return nil, func() {}, false
	}

	defaultSettings, ok := s.host.TryGetSettings(DefaultTenantName)
	if !ok || defaultSettings.State != TenantStateRunning {
		return nil, func() {}, false
	}

	dctx, cleanup := s.obtainContext(ctx, defaultSettings)
	if dctx == nil {
		return nil, cleanup, false
	}
	if dctx.DistributedCache() == nil {
		return nil, cleanup, false
	}
	return dctx, cleanup, true
}

// OnLoading is invoked once when the host is about to enumerate tenants. It
// establishes the baseline heartbeat/creation ids and per-tenant identifiers
// so that the poller's first tick does not mistake pre-existing state for a
// change to converge on.
func (s *Service) OnLoading(ctx context.Context) {
	dctx, cleanup, ok := s.hookPreamble(ctx)
	defer cleanup()
	if !ok {
		return
	}
	cache := dctx.DistributedCache()

	s.stateMu.Lock()
	if v, found, err := cache.GetString(ctx, keyShellChangedID); err != nil {
		s.logger.Warn("shellsync: onLoading read of heartbeat key failed", zap.Error(err))
	} else if found {
		s.shellChangedID = v
	}
	if v, found, err := cache.GetString(ctx, keyShellCreatedID); err != nil {
		s.logger.Warn("shellsync: onLoading read of creation key failed", zap.Error(err))
	} else if found {
		s.shellCreatedID = v
	}
	s.stateMu.Unlock()

	names, err := s.store.LoadSettingsNames(ctx)
	if err != nil {
		s.logger.Warn("shellsync: onLoading could not enumerate tenant names", zap.Error(err))
		return
	}

	for _, name := range names {
		if v, found, err := cache.GetString(ctx, releaseKey(name)); err != nil {
			s.logger.Warn("shellsync: onLoading read of release id failed", zap.String("tenant", name), zap.Error(err))
		} else if found {
			s.ids.setReleaseID(name, v)
		}
		if v, found, err := cache.GetString(ctx, reloadKey(name)); err != nil {
			s.logger.Warn("shellsync: onLoading read of reload id failed", zap.String("tenant", name), zap.Error(err))
		} else if found {
			s.ids.setReloadID(name, v)
		}
	}
}

// OnReleasing is invoked before the host releases a tenant mutated locally.
// It publishes a fresh release id and chains the heartbeat write.
func (s *Service) OnReleasing(ctx context.Context, name string) {
	dctx, cleanup, ok := s.hookPreamble(ctx)
	defer cleanup()
	if !ok {
		return
	}
	cache := dctx.DistributedCache()

	lock := s.locks.getOrCreate(name)
	lock.Lock()
	defer lock.Unlock()

	id := NewIdentifier()
	s.ids.setReleaseID(name, id)

	if err := cache.SetString(ctx, releaseKey(name), id); err != nil {
		s.logger.Warn("shellsync: publishing release id failed", zap.String("tenant", name), zap.Error(err))
	}
	if err := cache.SetString(ctx, keyShellChangedID, id); err != nil {
		s.logger.Warn("shellsync: publishing heartbeat id failed", zap.String("tenant", name), zap.Error(err))
	}
	recordReconciliation("release", "publish")
}

// OnReloading is invoked before the host reloads a tenant. It publishes a
// fresh reload id, flags tenant creation when applicable, and chains the
// heartbeat write.
func (s *Service) OnReloading(ctx context.Context, name string) {
	dctx, cleanup, ok := s.hookPreamble(ctx)
	defer cleanup()
	if !ok {
		return
	}
	cache := dctx.DistributedCache()

	lock := s.locks.getOrCreate(name)
	lock.Lock()
	defer lock.Unlock()

	id := NewIdentifier()
	s.ids.setReloadID(name, id)

	if err := cache.SetString(ctx, reloadKey(name), id); err != nil {
		s.logger.Warn("shellsync: publishing reload id failed", zap.String("tenant", name), zap.Error(err))
	}

	if name != DefaultTenantName {
		if _, known := s.host.TryGetSettings(name); !known {
			if err := cache.SetString(ctx, keyShellCreatedID, id); err != nil {
				s.logger.Warn("shellsync: publishing creation id failed", zap.String("tenant", name), zap.Error(err))
			}
		}
	}

	if err := cache.SetString(ctx, keyShellChangedID, id); err != nil {
		s.logger.Warn("shellsync: publishing heartbeat id failed", zap.String("tenant", name), zap.Error(err))
	}
	recordReconciliation("reload", "publish")
}
