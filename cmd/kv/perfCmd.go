package kv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/lbraun/sKV/cmd/util"
	"github.com/lbraun/sKV/lib/store"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the store file",
		Long:    "",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 8
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. create,read)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 8, util.WrapString("How large the value for the create-large test should be (in KB - the serialized size must stay under the 16 KB value limit)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

// perfTests lists the benchmarks in execution order
var perfTests = []string{"create", "create-large", "read", "delete", "has", "has-not", "batch", "mixed"}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for the store file")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("File: %s\n", viper.GetString("file"))
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Keys: %d\n", perfKeySpread)
	fmt.Println()

	fmt.Println("starting tests...")

	// Each benchmark feeds a timer so the latency distribution is
	// reported alongside the plain ns/op average.
	results := make(map[string]testing.BenchmarkResult)
	timers := make(map[string]metrics.Timer)

	benchmarks := map[string]func(b *testing.B, timer metrics.Timer){
		"create":       benchCreate,
		"create-large": benchCreateLarge,
		"read":         benchRead,
		"delete":       benchDelete,
		"has":          benchHas,
		"has-not":      benchHasNot,
		"batch":        benchBatch,
		"mixed":        benchMixed,
	}

	for _, test := range perfTests {
		timer := metrics.NewTimer()
		bench := benchmarks[test]

		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(test) {
				return
			}
			b.SetParallelism(perfNumThreads)
			bench(b, timer)
		})

		results[test] = result
		timers[test] = timer
		printResult(test, result, timer)
	}

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, timers); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchCreate(b *testing.B, timer metrics.Timer) {
	getKey, iter := getKeys("create")

	// cleanup
	b.Cleanup(func() {
		iter(func(k string) {
			cleanupKey("create", k)
		})
	})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			start := time.Now()
			err := kvStore.Create(getKey(counter), "test", 0)
			timer.UpdateSince(start)
			logPerfError("create", err)
			counter++
		}
	})
}

func benchCreateLarge(b *testing.B, timer metrics.Timer) {
	// serialized as base64, so the stored size is about a third larger
	largeValue := make([]byte, perfLargeValueSizeKB*1024)

	getKey, iter := getKeys("create-large")

	// cleanup
	b.Cleanup(func() {
		iter(func(k string) {
			cleanupKey("create-large", k)
		})
	})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			start := time.Now()
			err := kvStore.Create(getKey(counter), largeValue, 0)
			timer.UpdateSince(start)
			logPerfError("create-large", err)
			counter++
		}
	})
}

func benchRead(b *testing.B, timer metrics.Timer) {
	getKey, iter := getKeys("read")

	// set keys
	iter(func(k string) {
		if err := kvStore.Create(k, "test", 0); err != nil {
			log.Printf("(read) - error creating key: %v\n", err)
		}
	})

	// cleanup
	b.Cleanup(func() {
		iter(func(k string) {
			cleanupKey("read", k)
		})
	})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			start := time.Now()
			_, err := kvStore.Read(getKey(counter))
			timer.UpdateSince(start)
			logPerfError("read", err)
			counter++
		}
	})
}

func benchDelete(b *testing.B, timer metrics.Timer) {
	getKey, iter := getKeys("delete")

	// set keys
	iter(func(k string) {
		if err := kvStore.Create(k, "test", 0); err != nil {
			log.Printf("(delete) - error creating key: %v\n", err)
		}
	})

	// cleanup
	b.Cleanup(func() {
		iter(func(k string) {
			cleanupKey("delete", k)
		})
	})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			start := time.Now()
			err := kvStore.Delete(getKey(counter))
			timer.UpdateSince(start)
			// once the spread is exhausted the misses are expected
			if err != nil && !errors.Is(err, store.ErrKeyNotFound) {
				log.Printf("(delete) - error deleting key: %v\n", err)
			}
			counter++
		}
	})
}

func benchHas(b *testing.B, timer metrics.Timer) {
	getKey, iter := getKeys("has")

	// set keys
	iter(func(k string) {
		if err := kvStore.Create(k, "test", 0); err != nil {
			log.Printf("(has) - error creating key: %v\n", err)
		}
	})

	// cleanup
	b.Cleanup(func() {
		iter(func(k string) {
			cleanupKey("has", k)
		})
	})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			start := time.Now()
			_, err := kvStore.Has(getKey(counter))
			timer.UpdateSince(start)
			logPerfError("has", err)
			counter++
		}
	})
}

func benchHasNot(b *testing.B, timer metrics.Timer) {
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("%s-absent-%d", perfKeyPrefix, counter%perfKeySpread)
			start := time.Now()
			_, err := kvStore.Has(key)
			timer.UpdateSince(start)
			logPerfError("has-not", err)
			counter++
		}
	})
}

func benchBatch(b *testing.B, timer metrics.Timer) {
	getKey, iter := getKeys("batch")

	// one full batch per operation, reusing the key spread
	batchSize := perfKeySpread
	if batchSize > store.DefaultMaxBatchItems {
		batchSize = store.DefaultMaxBatchItems
	}

	// cleanup
	b.Cleanup(func() {
		iter(func(k string) {
			cleanupKey("batch", k)
		})
	})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			items := make(map[string]any, batchSize)
			for i := 0; i < batchSize; i++ {
				items[getKey(i)] = "test"
			}

			start := time.Now()
			_, err := kvStore.BatchCreate(items)
			timer.UpdateSince(start)
			logPerfError("batch", err)
		}
	})
}

func benchMixed(b *testing.B, timer metrics.Timer) {
	getKey, iter := getKeys("mixed")

	// set keys
	iter(func(k string) {
		if err := kvStore.Create(k, "test", 0); err != nil {
			log.Printf("(mixed) - error creating key: %v\n", err)
		}
	})

	// cleanup
	b.Cleanup(func() {
		iter(func(k string) {
			cleanupKey("mixed", k)
		})
	})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := getKey(counter)

			var err error
			start := time.Now()
			switch counter % 4 {
			case 0: // create
				err = kvStore.Create(key, "test", 0)
			case 1: // read
				_, err = kvStore.Read(key)
			case 2: // delete
				err = kvStore.Delete(key)
			case 3: // has
				_, err = kvStore.Has(key)
			}
			timer.UpdateSince(start)

			// deletes race with reads on the same key, misses are expected
			if err != nil && !errors.Is(err, store.ErrKeyNotFound) {
				log.Printf("(mixed) - error performing operation (%d): %v\n", counter%4, err)
			}
			counter++
		}
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// cleanupKey removes a benchmark key, tolerating keys a delete benchmark
// already removed
func cleanupKey(test, key string) {
	if err := kvStore.Delete(key); err != nil && !errors.Is(err, store.ErrKeyNotFound) {
		log.Printf("(%s) - error deleting key: %v\n", test, err)
	}
}

// logPerfError logs unexpected benchmark errors
func logPerfError(test string, err error) {
	if err != nil {
		log.Printf("(%s) - unexpected error: %v\n", test, err)
	}
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult, timer metrics.Timer) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	ps := timer.Percentiles([]float64{0.5, 0.95, 0.99})

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p95=%s p99=%s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec,
		time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, timers map[string]metrics.Timer) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50Ns", "P95Ns", "P99Ns", "Skipped",
		"File", "DuplicatePolicy",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for _, test := range perfTests {
		result := results[test]
		timer := timers[test]

		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
			nsPerOp = 0
			opsPerSec = 0
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		ps := timer.Percentiles([]float64{0.5, 0.95, 0.99})

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			fmt.Sprintf("%.0f", ps[2]),
			skipped,
			viper.GetString("file"),
			viper.GetString("duplicate-policy"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
