// Package testing provides standardised tests and benchmarks for
// key-value store implementations that satisfy the store.IStore interface.
//
// The package contains:
//   - testing: A conformance suite validating the IStore interface contract
//     (round trips, expiration, limits, batches, lifecycle, concurrency)
//   - benchmark: Performance tests for measuring throughput of common
//     store operations
//
// The factory handed to the suites must return a fresh, empty store
// configured with the default limits and the overwrite duplicate policy.
// Every store the suites create is closed before the run ends.
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() (store.IStore, error) {
//		return NewMyStore()
//	}
//
//	// Running the standard test suite
//	storetesting.RunStoreTests(t, "MyStore", factory)
//
//	// Running performance benchmarks
//	storetesting.RunStoreBenchmarks(b, "MyStore", factory)
package testing
