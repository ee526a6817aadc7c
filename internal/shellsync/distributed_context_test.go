package shellsync

import "testing"

type fakeShellContext struct {
	cache  DistributedCache
	closed bool
}

func (f *fakeShellContext) Cache() DistributedCache { return f.cache }
func (f *fakeShellContext) Close() error {
	f.closed = true
	return nil
}

func TestDistributedContextRefcounting(t *testing.T) {
	shell := &fakeShellContext{}
	dc := newDistributedContext(shell)

	second := dc.Acquire()
	if second == nil {
		t.Fatalf("expected Acquire to succeed before any Release")
	}

	dc.Release() // original owner's reference
	if shell.closed {
		t.Fatalf("shell closed too early: one reference still outstanding")
	}

	second.Release() // the acquired reference
	if !shell.closed {
		t.Fatalf("expected shell to be closed once refcount reached zero")
	}

	if dc.Acquire() != nil {
		t.Fatalf("expected Acquire to return nil after full release")
	}
}

func TestDistributedContextCacheNilWhenFeatureDisabled(t *testing.T) {
	dc := newDistributedContext(&fakeShellContext{cache: nil})
	if dc.DistributedCache() != nil {
		t.Fatalf("expected nil cache to propagate")
	}
}

func TestDistributedContextReleaseIsIdempotentPastZero(t *testing.T) {
	shell := &fakeShellContext{}
	dc := newDistributedContext(shell)
	dc.Release()
	dc.Release() // must not panic or double-close semantics matter
	if !shell.closed {
		t.Fatalf("expected shell closed")
	}
}
