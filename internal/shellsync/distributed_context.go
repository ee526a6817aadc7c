package shellsync

import "sync"

// DistributedContext is a reference-counted handle binding a cache client to
// the default tenant's configuration snapshot. It is created lazily, shared
// across concurrent hook invocations via Acquire/Release, and replaced
// whenever the default tenant's underlying shell context is rebuilt.
//
// The refcount exists because the default tenant can be reloaded between
// poller iterations: a hook handler may have acquired the previous context
// and still be using it while the poller installs a new one. Refcounting
// lets the old context outlive the swap until every acquirer releases it.
type DistributedContext struct {
	mu       sync.Mutex
	refcount int
	released bool
	shell    ShellContext
	cache    DistributedCache
}

// newDistributedContext wraps shell in a DistributedContext with an initial
// refcount of 1, owned by the caller.
func newDistributedContext(shell ShellContext) *DistributedContext {
	return &DistributedContext{
		refcount: 1,
		shell:    shell,
		cache:    shell.Cache(),
	}
}

// DistributedCache returns the cache client for this context, or nil if the
// underlying tenant has the distributed-cache feature disabled.
func (d *DistributedContext) DistributedCache() DistributedCache {
	return d.cache
}

// Acquire increments the refcount and returns d, or returns nil if d has
// already been fully released. Every successful Acquire must be matched by
// exactly one Release.
func (d *DistributedContext) Acquire() *DistributedContext {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.released {
		return nil
	}
	d.refcount++
	return d
}

// Release decrements the refcount. When it reaches zero, the underlying
// shell context is closed and further Acquire calls return nil.
func (d *DistributedContext) Release() {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return
	}
	d.refcount--
	if d.refcount > 0 {
		d.mu.Unlock()
		return
	}
	d.released = true
	d.mu.Unlock()

	_ = d.shell.Close()
}
