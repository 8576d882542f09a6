package httppool

import (
	"sync"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/objpool/pkg/config"
	"github.com/ajitpratap0/objpool/pkg/logger"
	"github.com/ajitpratap0/objpool/pkg/objpool"
)

// Key identifies one connection pool in a registry. Pools are segregated by
// caller-supplied namespace, protocol scheme, and network location; a
// connection pooled under https is never handed out for an http request to
// the same location.
type Key struct {
	Namespace string
	Scheme    string
	Netloc    string
}

// String renders the key for logs and metrics labels.
func (k Key) String() string {
	return k.Namespace + "|" + k.Scheme + "://" + k.Netloc
}

// Registry maps keys to lazily created connection pools. Concurrent
// first-time lookups for the same key observe a single shared pool; an entry
// lives until Reset. The registry is safe for concurrent use.
type Registry struct {
	logger     *zap.Logger
	collectors func(pool string) objpool.Collector

	mu    sync.Mutex
	pools map[Key]*objpool.Pool[*Conn]
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger handed to pools the registry creates.
func WithRegistryLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// WithCollectors supplies a factory for per-pool metrics collectors, keyed
// by pool name. metrics.NewPoolCollector satisfies the signature.
func WithCollectors(f func(pool string) objpool.Collector) RegistryOption {
	return func(r *Registry) { r.collectors = f }
}

// NewRegistry creates an empty registry. Pools it creates log through the
// process logger unless WithRegistryLogger overrides it.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		logger: logger.Get(),
		pools:  make(map[Key]*objpool.Pool[*Conn]),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "httppool"))
	return r
}

// DefaultRegistry is the process-wide registry used when none is supplied
// explicitly. Its entries live for the process lifetime; tests that need a
// clean slate must call Reset themselves.
var DefaultRegistry = NewRegistry()

// GetOrCreate returns the pool for key, creating it with the given size and
// transport settings on first access. Creation under concurrent first access
// is exactly once: two callers racing on the same key always observe the
// same pool.
func (r *Registry) GetOrCreate(key Key, size int, httpCfg config.HTTPConfig) (*objpool.Pool[*Conn], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pool, ok := r.pools[key]; ok {
		return pool, nil
	}

	opts := []objpool.Option[*Conn]{
		objpool.WithName[*Conn](key.String()),
		objpool.WithLogger[*Conn](r.logger),
	}
	if r.collectors != nil {
		opts = append(opts, objpool.WithCollector[*Conn](r.collectors(key.String())))
	}

	pool, err := objpool.New(size, lifecycle(key.Scheme, key.Netloc, httpCfg), opts...)
	if err != nil {
		return nil, err
	}

	r.pools[key] = pool
	r.logger.Info("created connection pool",
		zap.String("key", key.String()),
		zap.Int("size", size))
	return pool, nil
}

// Lookup returns the pool for key without creating one.
func (r *Registry) Lookup(key Key) (*objpool.Pool[*Conn], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pool, ok := r.pools[key]
	return pool, ok
}

// Len returns the number of pools currently registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pools)
}

// Reset drops every registered pool. This is an administrative operation for
// tests and controlled shutdown; it never happens implicitly. Connections
// still checked out are unaffected, but their pools are no longer reachable
// through the registry.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools = make(map[Key]*objpool.Pool[*Conn])
	r.logger.Info("registry reset")
}

// Stats returns a snapshot of every registered pool, keyed by pool name.
func (r *Registry) Stats() map[string]objpool.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make(map[string]objpool.Stats, len(r.pools))
	for key, pool := range r.pools {
		stats[key.String()] = pool.Stats()
	}
	return stats
}

// StatsJSON renders the registry snapshot for debug endpoints.
func (r *Registry) StatsJSON() ([]byte, error) {
	return json.Marshal(r.Stats())
}
