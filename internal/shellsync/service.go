package shellsync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Default timing constants for the poller loop.
const (
	DefaultIdle     = time.Second
	DefaultBusyMax  = 2 * time.Second
	DefaultRetryMax = 60 * time.Second
)

// Service wires together the identifier generator, keyspace, lock table,
// shell identifier records, distributed context and poller loop into a
// single unit the host constructs once at startup.
type Service struct {
	host    Host
	store   SettingsStore
	factory ShellContextFactory
	logger  *zap.Logger

	locks *lockTable
	ids   *identifierTable

	idleDefault time.Duration
	busyMax     time.Duration
	retryMax    time.Duration

	// ctxMu guards sharedCtx and lastDefaultShell, which the poller writes
	// and hook handlers read.
	ctxMu            sync.Mutex
	sharedCtx        *DistributedContext
	lastDefaultShell ShellContext

	// stateMu guards shellChangedID/shellCreatedID. onLoading (an arbitrary
	// caller goroutine) writes these once at startup before the poller
	// begins; the poller writes them on every subsequent tick.
	stateMu        sync.Mutex
	shellChangedID string
	shellCreatedID string
	curIdle        time.Duration

	// terminated is written only by the poller (on shutdown), with release
	// semantics; hook handlers read it with acquire semantics to short
	// circuit once the service has stopped.
	terminated atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Option customizes Service construction.
type Option func(*Service)

// WithIdle overrides the poller's idle polling cadence.
func WithIdle(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.idleDefault = d
		}
	}
}

// WithBusyMax overrides the maximum uninterrupted per-tenant fan-out window.
func WithBusyMax(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.busyMax = d
		}
	}
}

// WithRetryMax overrides the adaptive backoff cap.
func WithRetryMax(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retryMax = d
		}
	}
}

// NewService constructs a Service. The poller does not run until Start is
// called.
func NewService(host Host, store SettingsStore, factory ShellContextFactory, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		host:        host,
		store:       store,
		factory:     factory,
		logger:      logger,
		locks:       newLockTable(),
		ids:         newIdentifierTable(),
		idleDefault: DefaultIdle,
		busyMax:     DefaultBusyMax,
		retryMax:    DefaultRetryMax,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.curIdle = s.idleDefault
	return s
}

// Start launches the background poller loop. It returns immediately; the
// loop runs until ctx is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx)
}

// Stop signals the poller to terminate and blocks until it has drained.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// Snapshot returns a point-in-time view of the poller's convergence state,
// for read-only introspection (e.g. an admin status endpoint).
type Snapshot struct {
	Idle           time.Duration
	ShellChangedID string
	ShellCreatedID string
	Identifiers    map[string]ShellIdentifier
	Terminated     bool
}

func (s *Service) Snapshot() Snapshot {
	s.stateMu.Lock()
	changed, created, idle := s.shellChangedID, s.shellCreatedID, s.curIdle
	s.stateMu.Unlock()

	return Snapshot{
		Idle:           idle,
		ShellChangedID: changed,
		ShellCreatedID: created,
		Identifiers:    s.ids.snapshot(),
		Terminated:     s.terminated.Load(),
	}
}
