package objpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/objpool/pkg/poolerrors"
)

// numbers is a factory handing out 0, 1, 2, ... under a mutex. Objects below
// zero are treated as broken by the cleanup hook.
type numbers struct {
	mu   sync.Mutex
	next int
}

func (n *numbers) hooks() HookFuncs[int] {
	return HookFuncs[int]{
		CreateFunc: func(ctx context.Context) (int, error) {
			n.mu.Lock()
			defer n.mu.Unlock()
			v := n.next
			n.next++
			return v, nil
		},
		CleanupFunc: func(obj int) bool {
			return obj < 0
		},
	}
}

func newNumbersPool(t *testing.T, size int) *Pool[int] {
	t.Helper()
	pool, err := New(size, (&numbers{}).hooks())
	require.NoError(t, err)
	return pool
}

func TestNew(t *testing.T) {
	t.Run("negative size rejected", func(t *testing.T) {
		_, err := New[int](-1, nil)
		require.Error(t, err)
		assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))
	})

	t.Run("zero and positive sizes accepted", func(t *testing.T) {
		for _, size := range []int{0, 1, 100} {
			pool, err := New[int](size, nil)
			require.NoError(t, err)
			assert.Equal(t, size, pool.Cap())
		}
	})
}

func TestGetWithoutFactory(t *testing.T) {
	pool, err := New[int](3, nil)
	require.NoError(t, err)

	_, err = pool.Get(context.Background())
	require.Error(t, err)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeUnimplemented))

	// The failed creation must not consume capacity.
	assert.Equal(t, int64(0), pool.InUse())
}

func TestSequentialAllocation(t *testing.T) {
	pool := newNumbersPool(t, 3)
	ctx := context.Background()

	for want := 0; want < 3; want++ {
		got, err := pool.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// A fourth non-blocking acquisition beyond capacity fails.
	_, err := pool.TryGet(ctx)
	require.Error(t, err)
	assert.True(t, IsLimitError(err))
	assert.True(t, poolerrors.IsRetryable(err))
}

func TestUnboundedPool(t *testing.T) {
	pool := newNumbersPool(t, 0)
	ctx := context.Background()

	// No capacity accounting: acquisition never blocks.
	for want := 0; want < 50; want++ {
		got, err := pool.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, int64(50), pool.InUse())

	require.NoError(t, pool.Put(0))
	assert.Equal(t, 1, pool.Free())
}

func TestRoundTrip(t *testing.T) {
	pool := newNumbersPool(t, 1)
	ctx := context.Background()

	obj, err := pool.Get(ctx)
	require.NoError(t, err)
	require.NoError(t, pool.Put(obj))

	// A healthy released object is the one handed back out.
	again, err := pool.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, obj, again)

	stats := pool.Stats()
	assert.Equal(t, int64(1), stats.Creations)
	assert.Equal(t, int64(1), stats.Reuses)
}

func TestDiscardLaw(t *testing.T) {
	pool := newNumbersPool(t, 3)
	ctx := context.Background()

	for want := 0; want < 3; want++ {
		got, err := pool.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// A broken object is discarded on release: the free set stays empty but
	// the capacity slot comes back.
	require.NoError(t, pool.Put(-1))
	assert.Equal(t, 0, pool.Free())

	got, err := pool.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, got, "a fresh object must replace the discarded one")
}

func TestVerifyRejectsFreedObjects(t *testing.T) {
	n := &numbers{}
	hooks := n.hooks()
	freed := make(map[int]bool)
	var mu sync.Mutex
	hooks.VerifyFunc = func(obj int) bool {
		mu.Lock()
		defer mu.Unlock()
		return !freed[obj]
	}

	pool, err := New(3, hooks)
	require.NoError(t, err)
	ctx := context.Background()

	objs := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		obj, gerr := pool.Get(ctx)
		require.NoError(t, gerr)
		objs = append(objs, obj)
	}
	for _, obj := range objs {
		mu.Lock()
		freed[obj] = true
		mu.Unlock()
		require.NoError(t, pool.Put(obj))
	}
	assert.Equal(t, 3, pool.Free())

	// Every freed object fails verification and is discarded during the
	// scan; a fresh one is created in their place.
	got, err := pool.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, got)
	assert.Equal(t, 0, pool.Free())
}

func TestCreationVerificationLaw(t *testing.T) {
	hooks := (&numbers{}).hooks()
	hooks.VerifyFunc = func(int) bool { return false }

	pool, err := New(1, hooks)
	require.NoError(t, err)
	ctx := context.Background()

	// Creation failures are not retried with a second creation attempt.
	_, err = pool.Get(ctx)
	require.Error(t, err)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeVerification))

	// Capacity was reclaimed: the next non-blocking acquisition reaches the
	// factory again instead of failing with a limit error.
	_, err = pool.TryGet(ctx)
	require.Error(t, err)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeVerification))
	assert.Equal(t, int64(0), pool.InUse())
}

func TestCreateErrorReleasesSlot(t *testing.T) {
	sentinel := errors.New("dial refused")
	pool, err := New(1, HookFuncs[int]{
		CreateFunc: func(ctx context.Context) (int, error) { return 0, sentinel },
	})
	require.NoError(t, err)
	ctx := context.Background()

	// The factory error passes through unchanged.
	_, err = pool.Get(ctx)
	assert.ErrorIs(t, err, sentinel)

	_, err = pool.TryGet(ctx)
	assert.ErrorIs(t, err, sentinel, "slot must not leak on a failed creation")
}

func TestGetNoCreate(t *testing.T) {
	const size = 5
	pool := newNumbersPool(t, size)
	ctx := context.Background()

	for i := 0; i < size; i++ {
		obj, ok, err := pool.GetNoCreate(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Zero(t, obj)
	}

	// All slots are now owned without backing objects.
	_, err := pool.TryGet(ctx)
	require.Error(t, err)
	assert.True(t, IsLimitError(err))

	for i := 0; i < size; i++ {
		require.NoError(t, pool.PutEmpty())
	}

	got, err := pool.TryGet(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}

func TestBlockingTimeout(t *testing.T) {
	pool := newNumbersPool(t, 1)
	ctx := context.Background()

	obj, err := pool.Get(ctx)
	require.NoError(t, err)

	tctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = pool.Get(tctx)
	require.Error(t, err)
	assert.True(t, IsLimitError(err))
	assert.True(t, IsTimeout(err))

	// The expired waiter never held a slot.
	require.NoError(t, pool.Put(obj))
	got, err := pool.TryGet(ctx)
	require.NoError(t, err)
	assert.Equal(t, obj, got)
}

func TestBlockingWakesOnPut(t *testing.T) {
	pool := newNumbersPool(t, 1)
	ctx := context.Background()

	obj, err := pool.Get(ctx)
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		pool.Put(obj)
	}()

	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	got, err := pool.Get(wctx)
	require.NoError(t, err)
	assert.Equal(t, obj, got)
}

func TestParallelAllocateAll(t *testing.T) {
	const size = 100
	pool := newNumbersPool(t, size)
	ctx := context.Background()

	results := make([]int, size)
	var wg sync.WaitGroup
	for i := 0; i < size; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			obj, err := pool.Get(ctx)
			assert.NoError(t, err)
			results[i] = obj
		}(i)
	}
	wg.Wait()

	_, err := pool.TryGet(ctx)
	require.Error(t, err)
	assert.True(t, IsLimitError(err))

	// Exactly 0..size-1 was handed out, each once.
	seen := make(map[int]bool, size)
	for _, obj := range results {
		assert.False(t, seen[obj], "object %d handed to two callers", obj)
		seen[obj] = true
		assert.GreaterOrEqual(t, obj, 0)
		assert.Less(t, obj, size)
	}

	// Conservation at quiescence: everything checked out, nothing free.
	assert.Equal(t, int64(size), pool.InUse())
	assert.Equal(t, 0, pool.Free())

	for _, obj := range results {
		require.NoError(t, pool.Put(obj))
	}
	assert.Equal(t, int64(0), pool.InUse())
	assert.Equal(t, size, pool.Free())
}

func TestChurnConservesCapacity(t *testing.T) {
	const size = 4
	pool := newNumbersPool(t, size)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				obj, err := pool.Get(ctx)
				if !assert.NoError(t, err) {
					return
				}
				if i%7 == 0 {
					obj = -1 // hand back a broken object now and then
				}
				if !assert.NoError(t, pool.Put(obj)) {
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(0), pool.InUse())
	assert.LessOrEqual(t, pool.Free(), size)
}

func TestProcessIdentity(t *testing.T) {
	pool := newNumbersPool(t, 2)
	ctx := context.Background()

	obj, err := pool.Get(ctx)
	require.NoError(t, err)

	// Simulate use from a forked child by shifting the recorded owner.
	pool.ownerPID++

	_, err = pool.Get(ctx)
	require.Error(t, err)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeProcess))
	assert.False(t, poolerrors.IsRetryable(err))

	err = pool.Put(obj)
	require.Error(t, err)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeProcess))

	// The owning process remains unaffected.
	pool.ownerPID--
	require.NoError(t, pool.Put(obj))
	_, err = pool.Get(ctx)
	require.NoError(t, err)
}

// countingCollector tallies observations for assertions.
type countingCollector struct {
	mu       sync.Mutex
	discards int
}

func (c *countingCollector) ObserveCheckout(time.Duration, bool) {}
func (c *countingCollector) ObserveCheckin(bool)                 {}
func (c *countingCollector) ObserveCreation()                    {}
func (c *countingCollector) ObserveDiscard() {
	c.mu.Lock()
	c.discards++
	c.mu.Unlock()
}
func (c *countingCollector) ObserveVerificationFailure() {}
func (c *countingCollector) ObserveUsage(int64, int)     {}
func (c *countingCollector) ObserveCapacity(int)         {}

func TestCollectorSeesEveryDiscard(t *testing.T) {
	c := &countingCollector{}
	hooks := (&numbers{}).hooks()
	rejected := make(map[int]bool)
	var mu sync.Mutex
	hooks.VerifyFunc = func(obj int) bool {
		mu.Lock()
		defer mu.Unlock()
		return !rejected[obj]
	}

	pool, err := New(2, hooks, WithCollector[int](c))
	require.NoError(t, err)
	ctx := context.Background()

	// Check-in discard: a broken object disposed on Put.
	_, err = pool.Get(ctx)
	require.NoError(t, err)
	require.NoError(t, pool.Put(-1))

	// Scan discard: a freed object failing verification disposed during
	// the next Get.
	obj, err := pool.Get(ctx)
	require.NoError(t, err)
	require.NoError(t, pool.Put(obj))
	mu.Lock()
	rejected[obj] = true
	mu.Unlock()
	_, err = pool.Get(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), pool.Stats().Discards)
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, 2, c.discards, "collector and stats must agree on discards")
}

func TestOverReleasePanics(t *testing.T) {
	pool := newNumbersPool(t, 1)

	// Putting back an object that was never checked out breaks the
	// capacity invariant and must be detectable.
	require.Panics(t, func() {
		_ = pool.Put(7)
	})
}

func TestStatsJSON(t *testing.T) {
	pool := newNumbersPool(t, 2)
	ctx := context.Background()

	obj, err := pool.Get(ctx)
	require.NoError(t, err)
	require.NoError(t, pool.Put(obj))

	stats := pool.Stats()
	assert.Equal(t, 2, stats.Capacity)
	assert.Equal(t, int64(1), stats.Creations)
	assert.Equal(t, 1, stats.Free)

	data, err := stats.JSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"creations_total":1`)
}
