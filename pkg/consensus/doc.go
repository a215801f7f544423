/*
Package consensus provides the replicated, crash-fault-tolerant transaction
log backed by hashicorp/raft.

# Architecture

	┌──────────────── CONSENSUS ENGINE ────────────────┐
	│                                                   │
	│  SubmitTransaction(tx)                            │
	│    └─► raft.Apply(json(tx)) ── replication ──►    │
	│            │                      followers       │
	│            ▼                                      │
	│        logFSM.Apply (committed entries only)      │
	│            ├─ tx.LogIndex = raft log index        │
	│            └─► confirmed channel (in order)       │
	│                                                   │
	│  stores: BoltDB log + stable, file snapshots      │
	└───────────────────────────────────────────────────┘

Submission returns a provisional success acknowledgement immediately; the
authoritative outcome is the committed entry surfacing on the confirmed
channel with its log index assigned. Log indices are strictly monotonic and
each committed entry is published exactly once, in commit order. A full
confirmed channel drops the notification with a warning rather than stall
the apply loop; the durable log still holds the entry.

Leader election, heartbeats and log replication are the library's: the
configured election timeout maps to Raft's randomised election window and
the heartbeat interval to the leader lease. Single-node deployments
bootstrap themselves into leadership.
*/
package consensus
