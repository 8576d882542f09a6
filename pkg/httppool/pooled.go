package httppool

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/objpool/pkg/config"
	"github.com/ajitpratap0/objpool/pkg/logger"
	"github.com/ajitpratap0/objpool/pkg/objpool"
	"github.com/ajitpratap0/objpool/pkg/poolerrors"
)

type handleState int

const (
	stateUnacquired handleState = iota
	stateAcquiring // reserved while Acquire runs without the handle mutex
	stateAcquired
	stateReleased // terminal: only reached with DisableAfterRelease
)

// PooledConn represents one checked-out connection to an endpoint. It
// resolves the right pool through a registry on Acquire and guarantees the
// capacity slot is reclaimed on Release, discarding the connection when it
// is dirty or broken.
//
// The handle moves UNACQUIRED -> ACQUIRED -> RELEASED. With
// DisableAfterRelease the released state is terminal and any further use is
// a detectable violation; otherwise a released handle returns to the
// unacquired state and may acquire again. Repeat releases are either a
// silent no-op or a double-release error, per configuration.
type PooledConn struct {
	netloc string
	scheme string
	cfg    *config.Config
	reg    *Registry
	logger *zap.Logger

	mu           sync.Mutex
	state        handleState
	everReleased bool
	pool         *objpool.Pool[*Conn]
	conn         *Conn
}

// PooledOption configures a PooledConn.
type PooledOption func(*PooledConn)

// WithConfig replaces the whole configuration. Later options still override
// individual fields. The configuration is copied, so one Config may seed any
// number of handles without cross-handle mutation.
func WithConfig(cfg *config.Config) PooledOption {
	return func(pc *PooledConn) {
		c := *cfg
		pc.cfg = &c
	}
}

// WithSize sets the capacity used if this handle creates the pool.
func WithSize(size int) PooledOption {
	return func(pc *PooledConn) { pc.cfg.Pool.Size = size }
}

// WithPoolKey namespaces the pool so unrelated callers against the same
// endpoint do not share connections.
func WithPoolKey(key string) PooledOption {
	return func(pc *PooledConn) { pc.cfg.Pool.PoolKey = key }
}

// WithRegistry uses the given registry instead of DefaultRegistry.
func WithRegistry(r *Registry) PooledOption {
	return func(pc *PooledConn) { pc.reg = r }
}

// WithDisableAfterRelease controls whether the handle locks itself into the
// released state after Release.
func WithDisableAfterRelease(disable bool) PooledOption {
	return func(pc *PooledConn) { pc.cfg.Pool.DisableAfterRelease = disable }
}

// WithIgnoreDoubleRelease controls whether a repeat Release is a silent
// no-op or a double-release error.
func WithIgnoreDoubleRelease(ignore bool) PooledOption {
	return func(pc *PooledConn) { pc.cfg.Pool.IgnoreDoubleRelease = ignore }
}

// WithHandleLogger sets the handle's logger.
func WithHandleLogger(logger *zap.Logger) PooledOption {
	return func(pc *PooledConn) { pc.logger = logger }
}

// NewPooledConn creates an unacquired handle for the given endpoint.
// Defaults come from config.Default(), the DefaultRegistry, and the process
// logger.
func NewPooledConn(netloc, scheme string, opts ...PooledOption) *PooledConn {
	pc := &PooledConn{
		netloc: netloc,
		scheme: scheme,
		cfg:    config.Default(),
		reg:    DefaultRegistry,
		logger: logger.Get(),
	}
	for _, opt := range opts {
		opt(pc)
	}
	pc.logger = pc.logger.With(
		zap.String("component", "httppool"),
		zap.String("netloc", netloc),
		zap.String("scheme", scheme))
	return pc
}

// Key returns the registry key this handle resolves to.
func (pc *PooledConn) Key() Key {
	return Key{Namespace: pc.cfg.Pool.PoolKey, Scheme: pc.scheme, Netloc: pc.netloc}
}

// Pool returns the pool currently holding this handle's slot, or nil when
// the handle is not acquired.
func (pc *PooledConn) Pool() *objpool.Pool[*Conn] {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.pool
}

// Acquire resolves the endpoint's pool through the registry, creating it
// with the configured size on first use, and checks a connection out of it.
// Pool errors propagate unchanged.
func (pc *PooledConn) Acquire(ctx context.Context) (*Conn, error) {
	pc.mu.Lock()
	switch pc.state {
	case stateAcquiring, stateAcquired:
		pc.mu.Unlock()
		return nil, poolerrors.New(poolerrors.ErrorTypeInternal,
			"handle already holds a connection")
	case stateReleased:
		pc.mu.Unlock()
		return nil, poolerrors.New(poolerrors.ErrorTypeInternal,
			"handle is locked after release")
	}
	// Reserve the handle so a concurrent Acquire cannot pass the check
	// above and overwrite the connection.
	pc.state = stateAcquiring
	pc.mu.Unlock()

	pool, err := pc.reg.GetOrCreate(pc.Key(), pc.cfg.Pool.Size, pc.cfg.HTTP)
	if err != nil {
		pc.reset()
		return nil, err
	}

	// Get may block; the handle mutex is not held across it.
	conn, err := pool.Get(ctx)
	if err != nil {
		pc.reset()
		return nil, err
	}

	pc.mu.Lock()
	pc.state = stateAcquired
	pc.pool = pool
	pc.conn = conn
	pc.mu.Unlock()

	pc.logger.Debug("acquired pooled connection")
	return conn, nil
}

// reset returns a handle that failed mid-acquisition to the unacquired
// state so the caller may retry.
func (pc *PooledConn) reset() {
	pc.mu.Lock()
	pc.state = stateUnacquired
	pc.mu.Unlock()
}

// Release returns the connection to its pool exactly once. A dirty
// connection (unread pending response data) is closed so the pool discards
// it and its free set does not grow; a clean connection goes back for reuse.
// The capacity slot is reclaimed on both paths.
//
// Releasing an already-released handle is a silent no-op when
// IgnoreDoubleRelease is set, and a double-release error otherwise.
func (pc *PooledConn) Release() error {
	pc.mu.Lock()
	if pc.state != stateAcquired {
		ignore := pc.cfg.Pool.IgnoreDoubleRelease
		wasReleased := pc.everReleased
		pc.mu.Unlock()
		if !wasReleased {
			return poolerrors.New(poolerrors.ErrorTypeInternal,
				"release before acquire")
		}
		if ignore {
			return nil
		}
		return poolerrors.New(poolerrors.ErrorTypeDoubleRelease,
			"pooled connection released twice").
			WithDetail("netloc", pc.netloc)
	}

	pool, conn := pc.pool, pc.conn
	pc.conn = nil
	pc.everReleased = true
	if pc.cfg.Pool.DisableAfterRelease {
		pc.state = stateReleased
	} else {
		pc.state = stateUnacquired
		pc.pool = nil
	}
	pc.mu.Unlock()

	if conn.Dirty() {
		// A prior exchange was never fully consumed; the next caller would
		// read a stale response. Close so the pool discards it.
		conn.Close()
		pc.logger.Debug("discarding dirty connection")
	}

	return pool.Put(conn)
}

// Do runs fn with a pooled connection under scoped acquisition: the
// connection is acquired before fn runs and released on every exit path,
// including panics and errors thrown inside fn. An error from fn is never
// masked by the release.
func Do(ctx context.Context, netloc, scheme string, fn func(*Conn) error, opts ...PooledOption) error {
	return DoWithHandle(ctx, netloc, scheme, func(_ *PooledConn, conn *Conn) error {
		return fn(conn)
	}, opts...)
}

// DoWithHandle is Do with the handle itself attached to the scope, for
// callers that need the pool or release policy mid-scope.
func DoWithHandle(ctx context.Context, netloc, scheme string, fn func(*PooledConn, *Conn) error, opts ...PooledOption) (err error) {
	pc := NewPooledConn(netloc, scheme, opts...)

	ctx = context.WithValue(ctx, logger.PoolKey, pc.Key().String())
	ctx = context.WithValue(ctx, logger.NetlocKey, netloc)

	conn, err := pc.Acquire(ctx)
	if err != nil {
		logger.WithContext(ctx).Debug("scoped acquisition failed", zap.Error(err))
		return err
	}
	defer func() {
		if rerr := pc.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()

	return fn(pc, conn)
}
