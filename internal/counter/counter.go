// Package counter mutates a single contended integer resource and exists to
// contrast two lost-update defenses: a store-evaluated atomic increment and
// an explicit row-locked read-modify-write. Either strategy guarantees that
// N concurrent increments by one land exactly N apart; a naive read-then-write
// without one of them is the bug both are here to avoid.
package counter

import "errors"

var (
	ErrNotFound = errors.New("resource not found")
	// ErrLostUpdate reports a write-back that matched no rows after a locked
	// read. The lock makes that impossible in a healthy store, so it is
	// surfaced loudly instead of being swallowed.
	ErrLostUpdate = errors.New("locked counter write affected no rows")
)

type Resource struct {
	ID      int64 `json:"id"`
	Counter int64 `json:"counter"`
}

// Incrementer is the narrow strategy interface. Callers pick an
// implementation; there is no strategy flag inside any single implementation.
type Incrementer interface {
	Increment(id, delta int64) (Resource, error)
}
