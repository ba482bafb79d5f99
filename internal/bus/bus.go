// Package bus carries the flush-request and compaction-trigger signals
// from the write path to the background pool (spec §4.11, DESIGN NOTES
// §9: "a dedicated message channel from worker -> API is cleaner than a
// stored callback"). The default build uses plain Go channels; the
// `nng` build tag swaps in a nanomsg/mangos-backed implementation
// without changing call sites.
package bus

// Signal is an empty trigger — the bus only needs to wake a listener,
// never to carry a payload (the listener re-reads current state itself).
type Signal struct{}

// Bus is the capability the write path and background pool share: a
// non-blocking Notify and a channel the pool range()s over.
type Bus interface {
	// Notify wakes a listener, coalescing with any pending unconsumed
	// signal rather than blocking the caller.
	Notify()
	// C returns the channel a worker ranges over to receive signals.
	C() <-chan Signal
	// Close releases the bus's resources.
	Close()
}
