// Package cmd implements the command-line interface for the sKV file-backed
// key-value store. It provides a hierarchical command structure with
// operations for reading and writing the store file and for coordinating
// access to it.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for key-value store operations (get, set, delete, batch, etc.)
//   - lock: Commands for working with the advisory file lock
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See skv -help for a list of all commands.
package cmd
