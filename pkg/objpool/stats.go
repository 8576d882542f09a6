package objpool

import (
	"sync/atomic"

	json "github.com/goccy/go-json"
)

// Stats is a point-in-time snapshot of pool activity, suitable for logging
// or exposing on a debug endpoint.
type Stats struct {
	Name                 string `json:"name"`
	Capacity             int    `json:"capacity"`
	InUse                int64  `json:"in_use"`
	Free                 int    `json:"free"`
	Reuses               int64  `json:"reuses_total"`
	Creations            int64  `json:"creations_total"`
	Discards             int64  `json:"discards_total"`
	VerificationFailures int64  `json:"verification_failures_total"`
}

// Stats returns a snapshot of the pool's counters. Counters are read
// atomically but the snapshot as a whole is not a consistent cut; it is
// meant for observability, not accounting.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Name:                 p.name,
		Capacity:             p.size,
		InUse:                atomic.LoadInt64(&p.stats.checkedOut),
		Free:                 p.Free(),
		Reuses:               atomic.LoadInt64(&p.stats.reuses),
		Creations:            atomic.LoadInt64(&p.stats.creations),
		Discards:             atomic.LoadInt64(&p.stats.discards),
		VerificationFailures: atomic.LoadInt64(&p.stats.verifyFailures),
	}
}

// JSON renders the snapshot for debug endpoints and structured logs.
func (s Stats) JSON() ([]byte, error) {
	return json.Marshal(s)
}
