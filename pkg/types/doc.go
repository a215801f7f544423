/*
Package types defines the transaction model shared across the node.

A Transaction is the unified envelope for every operation: external agent
requests and container-management verbs alike. Its kind is a tagged sum
wire-serialised as a slash path ("/0x<32hex>/<subpath>" for requests,
"/cvm/<verb>" for management), and its identity is its UUID — transactions
are copied freely between the pool, the log and the executor, with the ID
as the single authority.

Agent identifiers are content-addressed: a name percent-encoded over the
non-alphanumeric escape set, hashed with SHA-1 and masked into a valid
version-4 UUID, so equal names yield equal IDs on every node.
*/
package types
