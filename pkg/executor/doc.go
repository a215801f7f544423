/*
Package executor is the execution bridge between the transaction pipeline
and the container environment.

# Architecture

	┌───────────────── EXECUTION BRIDGE ─────────────────┐
	│                                                     │
	│  request channel (cap Q)                            │
	│      │                                              │
	│  distributor ── strict round-robin ──┐              │
	│      │               │               │              │
	│   worker 0        worker 1  ...   worker N-1        │
	│      │               │               │              │
	│      └── engine.Execute (container forward) ──┐     │
	│                                               ▼     │
	│                                     result channel  │
	└─────────────────────────────────────────────────────┘

Workers complete in whatever order they finish; there is no ordering across
workers and consumers correlate results by transaction ID. A full worker
sub-channel blocks the distributor, pushing backpressure up to the pool's
dispatch loop. Closing the request channel ends the distributor, the
workers drain their sub-channels and exit, and the result channel closes.

A worker failure never disappears: it is logged and converted into the
standard 500 envelope so the transaction still reaches a terminal state.
*/
package executor
