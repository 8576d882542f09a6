// Package objpool provides a generic, thread-safe bounded object pool.
// It manages the lifecycle of expensive reusable resources (connections,
// handles, buffers) under a hard capacity bound, handing them to concurrent
// callers and reclaiming broken ones without leaking capacity.
//
// The package provides:
//   - Generic type-safe pooling with Pool[T]
//   - Blocking, non-blocking, and reserve-only acquisition
//   - A pluggable create/verify/cleanup lifecycle contract
//   - Process-identity validation for fork safety
//   - Statistics and pluggable metrics collection
//
// Example usage:
//
//	pool, err := objpool.New(10, objpool.HookFuncs[*Conn]{
//	    CreateFunc:  func(ctx context.Context) (*Conn, error) { return dial(ctx, addr) },
//	    VerifyFunc:  func(c *Conn) bool { return !c.Closed() },
//	    CleanupFunc: func(c *Conn) bool { return c.Close() != nil },
//	})
//	if err != nil {
//	    return err
//	}
//
//	conn, err := pool.Get(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
package objpool

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ajitpratap0/objpool/pkg/poolerrors"
)

// Lifecycle defines the create/verify/cleanup contract a pool applies to the
// objects it manages. Implementations are invoked without any internal mutual
// exclusion around them: if Create is not itself safe under concurrent
// invocation, duplicate or corrupted resources can result. The pool only
// guarantees that its capacity counter and free set are mutated atomically
// with respect to each other.
type Lifecycle[T any] interface {
	// Create produces a new object when the free set has none to offer.
	// Errors are passed through to the caller unchanged.
	Create(ctx context.Context) (T, error)

	// Verify reports whether an object is still fit for use. It runs on
	// every object leaving the free set and once on every newly created
	// object.
	Verify(obj T) bool

	// Cleanup disposes of resources held by an object and reports whether
	// the object is broken. Returning true means "discard, do not reuse";
	// false returns the object to the free set on release.
	Cleanup(obj T) bool
}

// HookFuncs adapts plain functions to the Lifecycle interface. Any nil field
// falls back to a default: Create fails with an unimplemented error, Verify
// accepts everything, Cleanup keeps everything.
type HookFuncs[T any] struct {
	CreateFunc  func(ctx context.Context) (T, error)
	VerifyFunc  func(obj T) bool
	CleanupFunc func(obj T) bool
}

// Create implements Lifecycle.
func (h HookFuncs[T]) Create(ctx context.Context) (T, error) {
	if h.CreateFunc == nil {
		var zero T
		return zero, poolerrors.New(poolerrors.ErrorTypeUnimplemented,
			"pool has no create factory")
	}
	return h.CreateFunc(ctx)
}

// Verify implements Lifecycle.
func (h HookFuncs[T]) Verify(obj T) bool {
	if h.VerifyFunc == nil {
		return true
	}
	return h.VerifyFunc(obj)
}

// Cleanup implements Lifecycle.
func (h HookFuncs[T]) Cleanup(obj T) bool {
	if h.CleanupFunc == nil {
		return false
	}
	return h.CleanupFunc(obj)
}

// Collector receives pool lifecycle observations for metrics export.
// Implementations must be safe for concurrent use; pkg/metrics provides a
// Prometheus-backed one.
type Collector interface {
	ObserveCheckout(wait time.Duration, reused bool)
	ObserveCheckin(discarded bool)
	ObserveCreation()
	ObserveDiscard()
	ObserveVerificationFailure()
	ObserveUsage(inUse int64, free int)
	ObserveCapacity(capacity int)
}

// Pool is a generic bounded object pool. A Pool hands out at most Cap()
// objects concurrently (unbounded when constructed with size 0), reusing
// previously released objects that pass verification and creating new ones
// on demand. The pool is safe for concurrent use.
//
// Capacity conservation holds on every path: checked-out objects plus free
// objects plus available slots always equals capacity, and no acquisition
// that fails leaves its slot consumed.
type Pool[T any] struct {
	name     string
	size     int
	sem      *semaphore.Weighted // nil when unbounded
	hooks    Lifecycle[T]
	logger   *zap.Logger
	metrics  Collector
	ownerPID int

	mu   sync.Mutex
	free []T

	stats struct {
		checkedOut     int64
		reuses         int64
		creations      int64
		discards       int64
		verifyFailures int64
	}
}

// Option configures a Pool at construction.
type Option[T any] func(*Pool[T])

// WithLogger sets the logger used for pool lifecycle events.
// The default is a no-op logger.
func WithLogger[T any](logger *zap.Logger) Option[T] {
	return func(p *Pool[T]) { p.logger = logger }
}

// WithCollector attaches a metrics collector to the pool.
func WithCollector[T any](c Collector) Option[T] {
	return func(p *Pool[T]) { p.metrics = c }
}

// WithName sets the pool name used in log fields. The default is "pool".
func WithName[T any](name string) Option[T] {
	return func(p *Pool[T]) { p.name = name }
}

// New creates a pool with the given capacity and lifecycle hooks.
// A size of 0 means unbounded: no capacity accounting takes place and
// acquisition never blocks. A negative size fails with a config error.
// A nil hooks value behaves like an empty HookFuncs: acquisition that needs
// a new object fails with an unimplemented error.
func New[T any](size int, hooks Lifecycle[T], opts ...Option[T]) (*Pool[T], error) {
	if size < 0 {
		return nil, poolerrors.New(poolerrors.ErrorTypeConfig,
			"pool size must be non-negative").WithDetail("size", size)
	}

	p := &Pool[T]{
		name:     "pool",
		size:     size,
		hooks:    hooks,
		logger:   zap.NewNop(),
		ownerPID: os.Getpid(),
	}
	if hooks == nil {
		p.hooks = HookFuncs[T]{}
	}
	if size > 0 {
		p.sem = semaphore.NewWeighted(int64(size))
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(
		zap.String("component", "objpool"),
		zap.String("pool", p.name))

	if p.metrics != nil {
		p.metrics.ObserveCapacity(size)
	}
	return p, nil
}

// Cap returns the pool capacity; 0 means unbounded.
func (p *Pool[T]) Cap() int { return p.size }

// Free returns the number of released objects currently awaiting reuse.
func (p *Pool[T]) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// InUse returns the number of objects currently checked out.
func (p *Pool[T]) InUse() int64 {
	return atomic.LoadInt64(&p.stats.checkedOut)
}

// Get acquires an object from the pool, blocking while the pool is at
// capacity. The wait is bounded by ctx: on deadline expiry or cancellation
// the caller gets a limit error and no slot is consumed.
//
// A free object that passes verification is reused; free objects failing
// verification are disposed via Cleanup and the scan continues. When no free
// object survives, the create factory runs exactly once. A factory error
// passes through unchanged; a new object failing verification surfaces as a
// verification error. On every failure path the capacity slot is released
// before the error reaches the caller.
func (p *Pool[T]) Get(ctx context.Context) (T, error) {
	obj, _, err := p.get(ctx, true, true)
	return obj, err
}

// TryGet acquires an object without blocking. When the pool is at capacity
// it fails immediately with a limit error.
func (p *Pool[T]) TryGet(ctx context.Context) (T, error) {
	obj, _, err := p.get(ctx, false, true)
	return obj, err
}

// GetNoCreate acquires like Get but never invokes the create factory. When
// the free set yields no usable object it returns ok=false: the caller then
// owns a capacity slot with no backing object and must eventually return it
// with PutEmpty.
func (p *Pool[T]) GetNoCreate(ctx context.Context) (obj T, ok bool, err error) {
	return p.get(ctx, true, false)
}

func (p *Pool[T]) get(ctx context.Context, blocking, create bool) (obj T, ok bool, err error) {
	var zero T
	if err := p.checkProcess(); err != nil {
		return zero, false, err
	}

	start := time.Now()
	if p.sem != nil {
		if blocking {
			if aerr := p.sem.Acquire(ctx, 1); aerr != nil {
				return zero, false, poolerrors.Wrap(aerr, poolerrors.ErrorTypeLimit,
					"pool exhausted waiting for capacity").
					WithDetail("capacity", p.size)
			}
		} else if !p.sem.TryAcquire(1) {
			return zero, false, poolerrors.New(poolerrors.ErrorTypeLimit,
				"pool exhausted").WithDetail("capacity", p.size)
		}
	}
	wait := time.Since(start)

	// The slot is held from here on; every failure path below must release
	// it before returning.
	for {
		p.mu.Lock()
		n := len(p.free)
		if n == 0 {
			p.mu.Unlock()
			break
		}
		obj = p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()

		// Hooks run outside pool synchronization.
		if p.hooks.Verify(obj) {
			p.markCheckedOut(wait, true)
			p.logger.Debug("reusing pooled object",
				zap.Duration("wait", wait),
				zap.Int64("in_use", atomic.LoadInt64(&p.stats.checkedOut)))
			return obj, true, nil
		}

		// Stale free object: unconditional discard, keep scanning.
		p.hooks.Cleanup(obj)
		atomic.AddInt64(&p.stats.discards, 1)
		if p.metrics != nil {
			p.metrics.ObserveDiscard()
		}
		p.logger.Debug("discarded stale free object")
	}

	if !create {
		// The caller owns an empty slot and must PutEmpty it.
		p.markCheckedOut(wait, false)
		return zero, false, nil
	}

	obj, cerr := p.hooks.Create(ctx)
	if cerr != nil {
		p.releaseSlot()
		// Factory errors pass through unchanged.
		return zero, false, cerr
	}
	atomic.AddInt64(&p.stats.creations, 1)
	if p.metrics != nil {
		p.metrics.ObserveCreation()
	}

	if !p.hooks.Verify(obj) {
		p.hooks.Cleanup(obj)
		p.releaseSlot()
		atomic.AddInt64(&p.stats.verifyFailures, 1)
		if p.metrics != nil {
			p.metrics.ObserveVerificationFailure()
		}
		return zero, false, poolerrors.New(poolerrors.ErrorTypeVerification,
			"newly created object failed verification")
	}

	p.markCheckedOut(wait, false)
	p.logger.Debug("created new object",
		zap.Int64("in_use", atomic.LoadInt64(&p.stats.checkedOut)))
	return obj, true, nil
}

// Put returns a checked-out object to the pool. Cleanup decides its fate:
// true discards the object, false adds it back to the free set. The capacity
// slot is reclaimed on both branches.
//
// Returning more objects than were checked out is a usage violation; on a
// bounded pool it panics once the capacity invariant would break.
func (p *Pool[T]) Put(obj T) error {
	if err := p.checkProcess(); err != nil {
		return err
	}

	broken := p.hooks.Cleanup(obj)
	if !broken {
		p.mu.Lock()
		p.free = append(p.free, obj)
		p.mu.Unlock()
	} else {
		atomic.AddInt64(&p.stats.discards, 1)
		if p.metrics != nil {
			p.metrics.ObserveDiscard()
		}
	}
	p.markCheckedIn(broken)

	p.logger.Debug("returned object to pool",
		zap.Bool("discarded", broken),
		zap.Int("free", p.Free()))
	return nil
}

// PutEmpty returns a capacity slot obtained from GetNoCreate when the free
// set was empty and no object was handed out.
func (p *Pool[T]) PutEmpty() error {
	if err := p.checkProcess(); err != nil {
		return err
	}
	p.markCheckedIn(false)
	return nil
}

func (p *Pool[T]) markCheckedOut(wait time.Duration, reused bool) {
	atomic.AddInt64(&p.stats.checkedOut, 1)
	if reused {
		atomic.AddInt64(&p.stats.reuses, 1)
	}
	if p.metrics != nil {
		p.metrics.ObserveCheckout(wait, reused)
		p.metrics.ObserveUsage(atomic.LoadInt64(&p.stats.checkedOut), p.Free())
	}
}

func (p *Pool[T]) markCheckedIn(discarded bool) {
	atomic.AddInt64(&p.stats.checkedOut, -1)
	p.releaseSlot()
	if p.metrics != nil {
		p.metrics.ObserveCheckin(discarded)
		p.metrics.ObserveUsage(atomic.LoadInt64(&p.stats.checkedOut), p.Free())
	}
}

// releaseSlot reclaims one unit of capacity. The underlying semaphore
// asserts the capacity invariant: releasing beyond capacity panics.
func (p *Pool[T]) releaseSlot() {
	if p.sem != nil {
		p.sem.Release(1)
	}
}

// checkProcess validates that the calling process is the one that
// constructed the pool. OS-level synchronization state does not survive
// forking; a pool touched from a forked child fails fast rather than risk
// silent deadlock. Go itself does not fork managed code, so in practice the
// check trips only after exec-style process gymnastics, but it is cheap and
// keeps the failure mode explicit.
func (p *Pool[T]) checkProcess() error {
	if pid := os.Getpid(); pid != p.ownerPID {
		return poolerrors.New(poolerrors.ErrorTypeProcess,
			"pool used from a process other than its creator").
			WithDetail("owner_pid", p.ownerPID).
			WithDetail("caller_pid", pid)
	}
	return nil
}

// IsLimitError reports whether err is a pool-exhaustion error, from either
// a non-blocking acquisition or a timed-out blocking one.
func IsLimitError(err error) bool {
	return poolerrors.IsType(err, poolerrors.ErrorTypeLimit)
}

// IsTimeout reports whether a limit error was caused by deadline expiry
// rather than an immediate non-blocking failure.
func IsTimeout(err error) bool {
	return IsLimitError(err) && errors.Is(err, context.DeadlineExceeded)
}
