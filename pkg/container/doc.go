/*
Package container defines the agent lifecycle surface and the transaction
dispatch that drives it.

# Architecture

	┌───────────────── CONTAINER MANAGER ─────────────────┐
	│                                                      │
	│  Execute(tx)                                         │
	│    ├─ Request(agent, subpath)                        │
	│    │    resolve agent ─► HTTP forward ─► wrap        │
	│    │    not running ──► 500 envelope                 │
	│    ├─ create_container ─► CreateContainer            │
	│    ├─ start/stop/remove ─► lifecycle call            │
	│    ├─ list_containers  ─► registry snapshot          │
	│    └─ state_change / scheduled_task ─► passthrough   │
	│                                                      │
	│  Environment (interface)                             │
	│    ├─ docker: containerd-backed local containers     │
	│    └─ cvm:    confidential VMs via the pod service   │
	└──────────────────────────────────────────────────────┘

Both backends keep an in-memory registry keyed by the agent's
content-addressed UUID; creation is idempotent on the agent name. Every
dispatch outcome — agent output, management result or failure — is
serialised back into a transaction, so the executor handles all kinds
uniformly. Backend errors become a {"status_code":500,"error":...}
envelope rather than an error return.
*/
package container
