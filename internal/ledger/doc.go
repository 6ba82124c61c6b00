// Package ledger caches broadcast state in SQLite.
//
// The ledger is deliberately disposable: the remote platform is the source
// of record, and Reconcile rebuilds the cache from upstream at every daemon
// start. Keeping a local copy lets the scheduler, poller, and status CLI
// answer window and state queries without spending platform quota.
package ledger
