// Package objpool provides generic, thread-safe bounded object pooling for
// Go, specialized into a keyed pool of reusable HTTP connections.
//
// The module solves resource-lifecycle management under concurrency:
// bounding how many expensive resources exist simultaneously, safely handing
// them to concurrent callers, validating reuse, and reclaiming broken
// resources without leaking capacity.
//
// # Architecture
//
// Three layers, leaves first:
//
// 1. Bounded Pool Core (pkg/objpool): a generic Pool[T] owning a capacity
// semaphore, a free-object set, and a pluggable create/verify/cleanup
// lifecycle contract, with blocking, non-blocking, and reserve-only
// acquisition.
//
// 2. Pool Registry (pkg/httppool): a process-wide mapping from
// (pool key, scheme, network location) to exactly one pool, created lazily
// and exactly once under concurrent first access.
//
// 3. Scoped Connection Handle (pkg/httppool): a per-checkout wrapper with
// explicit Acquire/Release, dirty-connection detection at release time, a
// configurable double-release policy, and scoped acquisition that guarantees
// release on every exit path.
//
// # Quick Start
//
// Run a request over a pooled connection:
//
//	import (
//	    "context"
//	    "net/http"
//	    "github.com/ajitpratap0/objpool/pkg/httppool"
//	)
//
//	err := httppool.Do(ctx, "api.example.com", "https", func(conn *httppool.Conn) error {
//	    req, _ := http.NewRequest("GET", "https://api.example.com/health", nil)
//	    resp, err := conn.RoundTrip(req)
//	    if err != nil {
//	        return err
//	    }
//	    defer resp.Body.Close()
//	    _, err = io.ReadAll(resp.Body)
//	    return err
//	}, httppool.WithSize(10))
//
// Or pool any resource type directly:
//
//	pool, err := objpool.New(10, objpool.HookFuncs[*Session]{
//	    CreateFunc:  openSession,
//	    VerifyFunc:  func(s *Session) bool { return s.Alive() },
//	    CleanupFunc: func(s *Session) bool { return s.Close() != nil },
//	})
//
// # Key Packages
//
//	pkg/objpool    - Generic bounded pool engine
//	pkg/httppool   - Keyed connection pools and scoped handles
//	pkg/poolerrors - Structured error handling
//	pkg/metrics    - Prometheus metrics collection
//	pkg/config     - YAML configuration management
//
// # Guarantees
//
// Conservation: checked-out handles plus free handles plus available
// capacity always equals total capacity, and no handle is handed to two
// callers simultaneously. Every acquisition that fails has its capacity slot
// released before the error reaches the caller.
//
// Fork safety: a pool records its owning process at construction and fails
// fast with a fatal error when touched from any other process, rather than
// risking silently corrupted synchronization state.
package objpool
