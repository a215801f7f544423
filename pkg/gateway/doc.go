/*
Package gateway serves the node's HTTP surfaces.

# Ingress

Any method, any path. The first path segment selects the transaction kind:

	/cvm/<verb>          management verb (API key required)
	/0x<32 hex>/<rest>   agent request, <rest> forwarded verbatim

The handler builds a transaction, hands it to the orchestrator together
with a one-shot completion channel and suspends until the terminal status
arrives. The response carries the agent's status code and headers (minus
content-length) and, when attestation succeeded, the proof in the X-PoC
header. There is no internal timeout on the wait; an upstream HTTP timeout
is assumed.

API keys come from "Authorization: Bearer <k>" or "X-API-Key: <k>", never
from the query string. Each authenticated management call atomically
advances the key's nonce.

# Admin

	POST   /api-keys        mint a key            → 201
	GET    /api-keys        list keys
	DELETE /api-keys/{key}  revoke                → 204
	GET    /poc-quote       attestation blob over the aggregate public key
	GET    /node-info       attestation worker info (mock fallback)
	GET    /health          liveness
	GET    /metrics         prometheus registry

# JSON-RPC

POST /rpc with methods submitApiRequest, getTransactionStatus,
get_node_info, submit_transaction and api_request. Bodies and payloads are
base64-encoded; terminal statuses return the stored agent response
verbatim. Submissions through this surface are asynchronous and polled via
getTransactionStatus.
*/
package gateway
