/*
Package pool implements the transaction pool: the node's record of every
submitted transaction from ingress to terminal result.

# Architecture

	┌────────────────── TRANSACTION POOL ──────────────────┐
	│                                                       │
	│  Submit(tx)                                           │
	│    │                                                  │
	│    ├─► pending queue (FIFO)                           │
	│    ├─► active map    (id → transaction)               │
	│    └─► result map    (id → pending response)          │
	│                                                       │
	│  dispatcher loop                                      │
	│    pops pending ─► handoff channel ─► status:         │
	│                                        processing     │
	│                                                       │
	│  UpdateResult(id, output, aggregate)                  │
	│    ├─► result map   (success + output)                │
	│    ├─► proof map    (id → PoC JSON)                   │
	│    └─► active map   (entry removed)                   │
	└───────────────────────────────────────────────────────┘

Each map is guarded by its own mutex and no lock is held across a channel
operation, so status queries never contend with the dispatch path.

# Status resolution

GetStatus consults the result map first: pending and processing map
directly, success maps to a confirmed status carrying the stored output and
proof, and error maps to a failed status. Transactions known only to the
active map report pending. Anything else is ErrTxNotFound.

The handoff channel returned by PendingRx can be taken once. A second take
returns a closed dummy channel so a misconfigured second consumer fails
fast instead of silently splitting the stream.
*/
package pool
