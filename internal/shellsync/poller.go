package shellsync

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// loop is the poller's background task. It runs from Start until ctx is
// cancelled, at which point it tears down the shared distributed context
// and returns.
func (s *Service) loop(ctx context.Context) {
	defer close(s.done)

	idle := s.idleDefault
	retryLogged := false

	for {
		// Step 1: idle wait, cancellable.
		if !s.tryWait(ctx, idle) {
			s.terminate()
			return
		}

		// Step 2: default-tenant check.
		defaultSettings, ok := s.host.TryGetSettings(DefaultTenantName)
		if !ok || defaultSettings.State != TenantStateRunning {
			continue
		}

		// Step 3: context refresh.
		s.refreshContext(ctx, defaultSettings)

		s.ctxMu.Lock()
		dctx := s.sharedCtx
		s.ctxMu.Unlock()

		// Step 4: cache availability.
		if dctx == nil || dctx.DistributedCache() == nil {
			continue
		}
		cache := dctx.DistributedCache()

		// Step 5: heartbeat read, with adaptive backoff on failure.
		changed, found, err := cache.GetString(ctx, keyShellChangedID)
		if err != nil {
			idle *= 2
			if idle >= s.retryMax {
				idle = s.retryMax
				if !retryLogged {
					s.logger.Error("shellsync: heartbeat read failing, backed off to cap",
						zap.Duration("idle", idle), zap.Error(err))
					retryLogged = true
				}
			}
			s.noteIdle(idle)
			recordPollError("heartbeat")
			continue
		}
		idle = s.idleDefault
		retryLogged = false
		s.noteIdle(idle)

		// Step 6: divergence check.
		s.stateMu.Lock()
		unchanged := !found || changed == s.shellChangedID
		if !unchanged {
			s.shellChangedID = changed
		}
		s.stateMu.Unlock()
		if unchanged {
			continue
		}

		// Step 7: creation check.
		extra, ok := s.checkCreated(ctx, cache)
		if !ok {
			continue
		}

		// Step 8: tenant fan-out.
		if !s.fanOut(ctx, cache, extra) {
			s.terminate()
			return
		}
	}
}

// refreshContext rebuilds the shared distributed context when the host's
// default-tenant shell context has been swapped out from under the poller
// (e.g. the default tenant itself was reloaded).
func (s *Service) refreshContext(ctx context.Context, defaultSettings TenantSettings) {
	currentShell, ok := s.host.TryGetShellContext(DefaultTenantName)
	if !ok {
		return
	}

	s.ctxMu.Lock()
	unchanged := s.lastDefaultShell == currentShell
	s.ctxMu.Unlock()
	if unchanged {
		return
	}

	shell, err := s.factory.CreateShellContext(ctx, defaultSettings)
	if err != nil {
		s.logger.Warn("shellsync: rebuilding distributed context failed", zap.Error(err))
		return
	}
	fresh := newDistributedContext(shell)

	s.ctxMu.Lock()
	old := s.sharedCtx
	s.sharedCtx = fresh
	s.lastDefaultShell = currentShell
	s.ctxMu.Unlock()

	if old != nil {
		old.Release()
	}
}

// checkCreated reads SHELL_CREATED_ID and, if it has advanced, reloads the
// tenant-name list and loads settings for any tenant not yet known locally.
// The bool result is false when an error aborts the rest of this iteration.
func (s *Service) checkCreated(ctx context.Context, cache DistributedCache) ([]TenantSettings, bool) {
	created, found, err := cache.GetString(ctx, keyShellCreatedID)
	if err != nil {
		s.logger.Warn("shellsync: reading creation id failed", zap.Error(err))
		recordPollError("creation")
		return nil, false
	}

	s.stateMu.Lock()
	isNew := found && created != s.shellCreatedID
	if isNew {
		s.shellCreatedID = created
	}
	s.stateMu.Unlock()
	if !isNew {
		return nil, true
	}

	names, err := s.store.LoadSettingsNames(ctx)
	if err != nil {
		s.logger.Warn("shellsync: rescanning tenant names failed", zap.Error(err))
		recordPollError("settings_rescan")
		return nil, false
	}

	var extra []TenantSettings
	for _, name := range names {
		if _, known := s.host.TryGetSettings(name); known {
			continue
		}
		settings, err := s.store.LoadSettings(ctx, name)
		if err != nil {
			s.logger.Warn("shellsync: loading settings for new tenant failed",
				zap.String("tenant", name), zap.Error(err))
			recordPollError("settings_rescan")
			return nil, false
		}
		extra = append(extra, settings)
	}
	return extra, true
}

// fanOut reconciles every currently-known tenant (live ones plus any just
// discovered via checkCreated), yielding periodically so a single tick never
// monopolizes the goroutine for longer than busyMax. It returns false if the
// surrounding context was cancelled during a yield.
func (s *Service) fanOut(ctx context.Context, cache DistributedCache, extra []TenantSettings) bool {
	all := append(append([]TenantSettings(nil), s.host.GetAllSettings()...), extra...)

	start := time.Now()
	for _, settings := range all {
		if time.Since(start) > s.busyMax {
			if !s.tryWait(ctx, s.idleDefault) {
				return false
			}
			start = time.Now()
		}

		if !s.reconcileTenant(ctx, cache, settings) {
			break // cache error: stop this tick's fan-out, retry next tick
		}
	}
	return true
}

// reconcileTenant compares the cache's per-tenant identifiers against the
// locally recorded ones and issues release/reload calls as needed, release
// always preceding reload. It holds the tenant's lock for the duration and
// never holds more than one tenant's lock at a time. It returns false on a
// cache error, signalling the caller to abandon the rest of this tick.
func (s *Service) reconcileTenant(ctx context.Context, cache DistributedCache, settings TenantSettings) bool {
	lock := s.locks.getOrCreate(settings.Name)
	lock.Lock()
	defer lock.Unlock()

	rec := s.ids.get(settings.Name)

	releaseID, found, err := cache.GetString(ctx, releaseKey(settings.Name))
	if err != nil {
		s.logger.Warn("shellsync: reading release id failed", zap.String("tenant", settings.Name), zap.Error(err))
		recordPollError("reconcile")
		return false
	}
	if found && releaseID != rec.ReleaseID {
		s.ids.setReleaseID(settings.Name, releaseID)
		s.host.ReleaseShellContext(ctx, settings, false)
		recordReconciliation("release", "poll")
	}

	reloadID, found, err := cache.GetString(ctx, reloadKey(settings.Name))
	if err != nil {
		s.logger.Warn("shellsync: reading reload id failed", zap.String("tenant", settings.Name), zap.Error(err))
		recordPollError("reconcile")
		return false
	}
	if found && reloadID != rec.ReloadID {
		s.ids.setReloadID(settings.Name, reloadID)
		s.host.ReloadShellContext(ctx, settings, false)
		recordReconciliation("reload", "poll")
	}

	return true
}

// noteIdle records the poller's current idle interval for introspection and
// publishes it to the idle-seconds gauge.
func (s *Service) noteIdle(d time.Duration) {
	s.stateMu.Lock()
	s.curIdle = d
	s.stateMu.Unlock()
	recordIdleSeconds(d)
}

// tryWait sleeps for d, cancellable by ctx. It returns false if ctx was
// cancelled before d elapsed.
func (s *Service) tryWait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// terminate transitions the service to Terminated: marks it so hook
// handlers short-circuit, releases the shared distributed context, and
// clears references.
func (s *Service) terminate() {
	s.terminated.Store(true)

	s.ctxMu.Lock()
	dctx := s.sharedCtx
	s.sharedCtx = nil
	s.lastDefaultShell = nil
	s.ctxMu.Unlock()

	if dctx != nil {
		dctx.Release()
	}
}
