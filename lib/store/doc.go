// Package store provides a high-level interface for key-value storage
// operations with per-entry expiration, batch writes and unified error
// handling. It defines the contract that concrete engines implement and
// the error and limit vocabulary shared by all of them.
//
// The package focuses on:
//   - A unified interface (IStore) for key-value operations across different
//     backends
//   - A structured error system using typed return codes
//   - Named, overridable validation ceilings (Limits)
//   - An explicit policy for duplicate creates (DuplicatePolicy)
//
// Key Components:
//
//   - IStore Interface: The core abstraction defining operations for
//     interacting with a key-value store. All implementations share this
//     common interface, allowing applications to switch between storage
//     backends without code changes. The interface methods return custom
//     Error values that carry a machine-readable return code.
//
//   - Error System: Every error produced by a store is a *Error wrapping a
//     RetCode and a message. The package additionally exports one sentinel
//     per code (ErrKeyNotFound, ErrValueTooLarge, ...) so callers can match
//     with errors.Is instead of inspecting codes by hand. I/O failures also
//     carry their underlying cause, reachable via errors.Unwrap.
//
//   - Limits: The validation ceilings (key length, serialized value size,
//     store file size, batch item count) are named constants with per-store
//     overrides. The batch ceiling is deliberately a single named constant;
//     callers must not assume a different limit per call path.
//
//   - DuplicatePolicy: Create on a key that already holds a live value
//     either overwrites it (last-writer-wins, the default) or fails with
//     RetCKeyExists. The choice is explicit per-store configuration rather
//     than implicit behavior.
//
//   - Factory: A function type that abstracts the creation of store
//     instances, providing dependency injection for the conformance test
//     suite and other consumers.
//
// Implementations:
//
//	The fstore package (github.com/lbraun/sKV/lib/store/fstore) provides the
//	file-backed implementation: an in-memory table mirrored to one JSON file
//	on every mutation, with TTL expiry and an advisory file lock for
//	cross-process coordination.
//
// The testing package (github.com/lbraun/sKV/lib/store/testing) provides a
// standardized conformance suite and benchmarks for IStore implementations.
package store
