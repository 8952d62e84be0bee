package testing

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/lbraun/sKV/lib/store"
)

// RunStoreBenchmarks runs all benchmarks for an IStore implementation.
// Every mutation rewrites the store file, so the numbers are dominated by
// persistence; read-only operations show the in-memory fast path.
func RunStoreBenchmarks(b *testing.B, name string, factory store.Factory) {
	b.Run("Create", func(b *testing.B) {
		benchmarkCreate(b, mustStore(b, factory))
	})

	b.Run("CreateExisting", func(b *testing.B) {
		benchmarkCreateExisting(b, mustStore(b, factory))
	})

	b.Run("BatchCreate", func(b *testing.B) {
		benchmarkBatchCreate(b, mustStore(b, factory))
	})

	b.Run("Read", func(b *testing.B) {
		benchmarkRead(b, mustStore(b, factory))
	})

	b.Run("Has", func(b *testing.B) {
		benchmarkHas(b, mustStore(b, factory))
	})

	b.Run("Has(not)", func(b *testing.B) {
		benchmarkHasNot(b, mustStore(b, factory))
	})

	b.Run("Delete", func(b *testing.B) {
		benchmarkDelete(b, mustStore(b, factory))
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, mustStore(b, factory))
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// populate fills the store with numKeys counter-named keys using batches,
// one persisted snapshot per batch instead of one per key
func populate(b *testing.B, kv store.IStore, numKeys int) []string {
	b.Helper()

	keys := make([]string, numKeys)
	items := make(map[string]any, store.DefaultMaxBatchItems)

	for i := 0; i < numKeys; i++ {
		keys[i] = fmt.Sprintf("bench-key-%d", i)
		items[keys[i]] = fmt.Sprintf("bench-value-%d", i)

		if len(items) == store.DefaultMaxBatchItems || i == numKeys-1 {
			if _, err := kv.BatchCreate(items); err != nil {
				b.Fatalf("populate failed: %v", err)
			}
			items = make(map[string]any, store.DefaultMaxBatchItems)
		}
	}

	return keys
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for the Create operation with fresh keys
func benchmarkCreate(b *testing.B, kv store.IStore) {
	b.Cleanup(func() {
		kv.Close()
	})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("key-%d", counter)
			kv.Create(key, counter, 0)
			counter++
		}
	})
}

// Benchmark for the Create operation overwriting live keys
func benchmarkCreateExisting(b *testing.B, kv store.IStore) {
	b.Cleanup(func() {
		kv.Close()
	})

	keys := populate(b, kv, 1000)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			kv.Create(keys[counter%len(keys)], counter, 0)
			counter++
		}
	})
}

// Benchmark for full batches, one persisted snapshot per 100 items
func benchmarkBatchCreate(b *testing.B, kv store.IStore) {
	b.Cleanup(func() {
		kv.Close()
	})

	var counter int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			base := atomic.AddInt64(&counter, 1) * int64(store.DefaultMaxBatchItems)
			items := make(map[string]any, store.DefaultMaxBatchItems)
			for i := 0; i < store.DefaultMaxBatchItems; i++ {
				items[fmt.Sprintf("batch-%d", base+int64(i))] = i
			}
			kv.BatchCreate(items)
		}
	})
}

// Benchmark for the Read operation, the in-memory fast path
func benchmarkRead(b *testing.B, kv store.IStore) {
	b.Cleanup(func() {
		kv.Close()
	})

	keys := populate(b, kv, 1000)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			kv.Read(keys[counter%len(keys)])
			counter++
		}
	})
}

// Benchmark for the Has operation with existing keys
func benchmarkHas(b *testing.B, kv store.IStore) {
	b.Cleanup(func() {
		kv.Close()
	})

	keys := populate(b, kv, 1000)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			kv.Has(keys[counter%len(keys)])
			counter++
		}
	})
}

// Benchmark for the Has operation with a key miss
func benchmarkHasNot(b *testing.B, kv store.IStore) {
	b.Cleanup(func() {
		kv.Close()
	})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			kv.Has("missing-key")
		}
	})
}

// Benchmark for the Delete operation
func benchmarkDelete(b *testing.B, kv store.IStore) {
	b.Cleanup(func() {
		kv.Close()
	})

	numKeys := 1000
	if b.N < numKeys {
		numKeys = b.N
	}
	keys := populate(b, kv, numKeys)

	var counter int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			idx := int(atomic.AddInt64(&counter, 1)-1) % len(keys)
			kv.Delete(keys[idx])
		}
	})
}

// Benchmark for a mixed workload: mostly reads with some writes
func benchmarkMixedUsage(b *testing.B, kv store.IStore) {
	b.Cleanup(func() {
		kv.Close()
	})

	keys := populate(b, kv, 1000)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := keys[counter%len(keys)]

			switch counter % 10 {
			case 0:
				kv.Create(key, counter, 0)
			case 1:
				kv.Delete(key)
			case 2, 3:
				kv.Has(key)
			default:
				kv.Read(key)
			}

			counter++
		}
	})
}
