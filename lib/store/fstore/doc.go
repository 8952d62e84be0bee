// Package fstore implements a file-backed, single-node key-value store based
// on the store.IStore interface. The complete table is held in memory and
// mirrored to a single JSON file on every successful mutation, so the file
// on disk is always a full, human-readable snapshot of the store.
//
// Key Features:
//   - Durable storage in one JSON file per store
//   - TTL-based expiration with lazy eviction and a background sweeper
//   - Advisory file locking for cross-process coordination
//   - Configurable limits for key length, value size, file size and batches
//   - Prometheus-style metrics exposition
//
// Key Components:
//
//   - Store: The central structure implementing store.IStore. A single mutex
//     guards the in-memory table and all file I/O, which gives every
//     operation read-your-writes consistency: when a mutating call returns
//     without error, the file on disk already contains the change.
//
//   - internal.Table: The in-memory representation of the store file. The
//     serialized form maps each key to an object with the verbatim JSON
//     value and an absolute Unix expiry (or null). Serialization is
//     deterministic, equal tables produce byte-identical files.
//
//   - filelock.ILocker: The advisory lock guarding file access across
//     processes. The lock lives in a sidecar file next to the store file
//     because snapshots are written with an atomic rename, which would
//     detach a lock held on the store file itself.
//
// Internal Mechanisms:
//
//   - Persistence: Every mutation rewrites the full snapshot inside its
//     critical section (write to a temp file, rename over the store file).
//     There is no write-ahead log and no partial update; crash recovery is
//     simply loading the last complete snapshot.
//
//   - Expiration: Entries store an absolute expiry in float seconds since
//     the Unix epoch. An entry is expired once the current time is strictly
//     past that point. Expired entries are evicted lazily when Read or
//     Delete touches them, and eagerly by a background sweeper that scans
//     the table once per interval and persists only if it evicted anything.
//     Has never evicts, it just reports expired entries as absent.
//
//   - File Size Admission: Before a new key is admitted, the store projects
//     the file growth as the last persisted size plus the serialized size
//     of the new entry. Overwrites of live keys skip the check. Within a
//     batch the projection accumulates across admitted items, and items are
//     applied in sorted key order so per-key outcomes are deterministic.
//
//   - Failure Handling: When persisting fails, the in-memory table keeps
//     its new state and the error surfaces to the caller. The next
//     successful mutation rewrites the complete current state, so a failed
//     save never needs a rollback.
//
// Thread Safety:
//
//	All operations are thread-safe. The store relies on one non-reentrant
//	mutex, so throughput is bounded by snapshot serialization rather than
//	contention. Operation counters are striped and updated lock-free.
//
// Usage Example:
//
//	store, err := fstore.New(fstore.DefaultOptions("app.json"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	// Store a value with a 5-minute lifetime
//	err = store.Create("session:123", sessionData, 5*time.Minute)
//
//	// Retrieve the serialized value
//	value, err := store.Read("session:123")
//
// Suitable Use Cases:
//
//	The file store is ideal for:
//	- Configuration and state that must survive process restarts
//	- Small datasets read and written by short-lived CLI invocations
//	- Single-node applications that value inspectable storage over speed
//
// The whole-file write model trades throughput for simplicity and
// durability. For write-heavy workloads or datasets near the file size
// limit, an engine with incremental persistence would be a better fit.
package fstore
