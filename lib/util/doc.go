// Package util provides utility components for
// store implementations that satisfy the store.IStore interface.
//
// The package contains:
//   - statistics: Scalar summary statistics (Stats) and a SizeHistogram for tracking data size distribution
//
// This package is particularly useful for:
//   - Store developers implementing the IStore interface
//   - Monitoring systems that need to track value size and distribution metrics
//
// Each component is designed to work with any implementation of the store.IStore interface,
// allowing for consistent measurement across different storage backends.
package util
