/*
Package state persists the node's durable side-effects in a relational
store.

# Schema

	state_roots       (id, root_hash, transaction_hash?, created_at)
	state_entries     (key PRIMARY, value, updated_at)
	state_diffs       (id, prev_root_hash, new_root_hash, created_at)
	state_operations  (diff_id, operation_type insert|delete, key, value?)
	transactions      (id, type, payload BLOB, timestamp ISO-8601, sender?)

The initial root is the hex-encoded 32-byte zero string. Diff application
is atomic: the previous root must exist, the new root is inserted if
missing, and the operations are recorded and applied to the flat state in
one database transaction, so the key set always equals the accumulated
insert-minus-delete difference.

Committed transactions arriving from the consensus log are recorded here,
off the response latency path. The root is recomputed as a keccak digest of
the sorted key list; swapping in an ordered trie over (key, value) pairs
changes only the digest, not this interface.
*/
package state
