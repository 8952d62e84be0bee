package testing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lbraun/sKV/lib/store"
)

// RunStoreTests runs the conformance test suite for an IStore
// implementation. The factory must return a fresh, empty store configured
// with the default limits and the overwrite duplicate policy; the suite
// closes every store it creates.
func RunStoreTests(t *testing.T, name string, factory store.Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Create&Read", func(t *testing.T) {
			testCreateRead(t, mustStore(t, factory))
		})

		t.Run("Overwrite", func(t *testing.T) {
			testOverwrite(t, mustStore(t, factory))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, mustStore(t, factory))
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, mustStore(t, factory))
		})

		t.Run("Expiry", func(t *testing.T) {
			testExpiry(t, mustStore(t, factory))
		})

		t.Run("Limits", func(t *testing.T) {
			testLimits(t, mustStore(t, factory))
		})

		t.Run("BatchCreate", func(t *testing.T) {
			testBatchCreate(t, mustStore(t, factory))
		})

		t.Run("BatchLimit", func(t *testing.T) {
			testBatchLimit(t, mustStore(t, factory))
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, mustStore(t, factory))
		})

		t.Run("Close", func(t *testing.T) {
			testClose(t, mustStore(t, factory))
		})

		t.Run("ConcurrentUsage", func(t *testing.T) {
			testConcurrentUsage(t, mustStore(t, factory))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// mustStore creates a store via the factory and fails the test on error
func mustStore(t testing.TB, factory store.Factory) store.IStore {
	t.Helper()
	kv, err := factory()
	if err != nil {
		t.Fatalf("factory returned error: %v", err)
	}
	return kv
}

// mustJSON serializes a value the same way the store does
func mustJSON(t testing.TB, value any) []byte {
	t.Helper()
	raw, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("could not serialize test value: %v", err)
	}
	return raw
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testCreateRead(t *testing.T, kv store.IStore) {
	defer kv.Close()

	values := map[string]any{
		"string-key": "hello world",
		"int-key":    42,
		"float-key":  3.25,
		"bool-key":   true,
		"null-key":   nil,
		"list-key":   []any{"a", 1, false},
		"map-key":    map[string]any{"nested": map[string]any{"deep": 1}},
	}

	for key, value := range values {
		if err := kv.Create(key, value, 0); err != nil {
			t.Errorf("Unexpected error creating key %s: %v", key, err)
		}
	}

	for key, value := range values {
		result, err := kv.Read(key)
		if err != nil {
			t.Errorf("Unexpected error reading key %s: %v", key, err)
			continue
		}
		if expected := mustJSON(t, value); !bytes.Equal(result, expected) {
			t.Errorf("Expected value %s for key %s, got %s", expected, key, result)
		}
	}

	_, err := kv.Read("nonexistent-key")
	if !errors.Is(err, store.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound for nonexistent key, got %v", err)
	}

	// Read must return a copy, not a reference to the stored value
	retrieved, _ := kv.Read("string-key")
	retrieved[0] = 'X'
	original, _ := kv.Read("string-key")
	if bytes.Equal(retrieved, original) {
		t.Errorf("Read should return a copy, not a reference to the stored value")
	}
}

func testOverwrite(t *testing.T, kv store.IStore) {
	defer kv.Close()

	testKey := "overwrite-key"

	if err := kv.Create(testKey, "first", 0); err != nil {
		t.Errorf("Unexpected error on initial create: %v", err)
	}
	if err := kv.Create(testKey, "second", 0); err != nil {
		t.Errorf("Expected overwrite of a live key to succeed, got %v", err)
	}

	result, err := kv.Read(testKey)
	if err != nil {
		t.Errorf("Unexpected error reading key after overwrite: %v", err)
	}
	if expected := []byte(`"second"`); !bytes.Equal(result, expected) {
		t.Errorf("Expected value %s after overwrite, got %s", expected, result)
	}
}

func testDelete(t *testing.T, kv store.IStore) {
	defer kv.Close()

	testKey := "delete-key"

	if err := kv.Create(testKey, "to be deleted", 0); err != nil {
		t.Errorf("Unexpected error on create: %v", err)
	}
	if err := kv.Delete(testKey); err != nil {
		t.Errorf("Unexpected error on delete: %v", err)
	}

	if _, err := kv.Read(testKey); !errors.Is(err, store.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound after delete, got %v", err)
	}

	// a second delete reports the key as missing
	if err := kv.Delete(testKey); !errors.Is(err, store.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound on repeated delete, got %v", err)
	}
	if err := kv.Delete("never-existed"); !errors.Is(err, store.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound for unknown key, got %v", err)
	}
}

func testHas(t *testing.T, kv store.IStore) {
	defer kv.Close()

	testKey := "has-key"

	exists, err := kv.Has(testKey)
	if err != nil {
		t.Errorf("Unexpected error from Has: %v", err)
	}
	if exists {
		t.Errorf("Expected Has to return false for nonexistent key")
	}

	if err := kv.Create(testKey, "present", 0); err != nil {
		t.Errorf("Unexpected error on create: %v", err)
	}

	exists, err = kv.Has(testKey)
	if err != nil {
		t.Errorf("Unexpected error from Has: %v", err)
	}
	if !exists {
		t.Errorf("Expected Has to return true after create")
	}

	if err := kv.Delete(testKey); err != nil {
		t.Errorf("Unexpected error on delete: %v", err)
	}

	exists, _ = kv.Has(testKey)
	if exists {
		t.Errorf("Expected Has to return false after delete")
	}
}

func testExpiry(t *testing.T, kv store.IStore) {
	defer kv.Close()

	shortKey := "short-lived-key"
	foreverKey := "forever-key"
	negativeKey := "negative-ttl-key"

	if err := kv.Create(shortKey, "fleeting", 200*time.Millisecond); err != nil {
		t.Errorf("Unexpected error on create with ttl: %v", err)
	}
	if err := kv.Create(foreverKey, "lasting", 0); err != nil {
		t.Errorf("Unexpected error on create without ttl: %v", err)
	}
	if err := kv.Create(negativeKey, "also lasting", -time.Second); err != nil {
		t.Errorf("Unexpected error on create with negative ttl: %v", err)
	}

	// the entry is live until its expiry passes
	if _, err := kv.Read(shortKey); err != nil {
		t.Errorf("Expected key %s to be readable before expiry, got %v", shortKey, err)
	}

	time.Sleep(300 * time.Millisecond)

	exists, err := kv.Has(shortKey)
	if err != nil {
		t.Errorf("Unexpected error from Has: %v", err)
	}
	if exists {
		t.Errorf("Expected Has to report expired key %s as absent", shortKey)
	}

	if _, err := kv.Read(shortKey); !errors.Is(err, store.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound for expired key, got %v", err)
	}

	// an expired key is free for re-creation
	if err := kv.Create(shortKey, "reborn", 0); err != nil {
		t.Errorf("Expected re-creation of expired key to succeed, got %v", err)
	}
	if _, err := kv.Read(shortKey); err != nil {
		t.Errorf("Expected re-created key to be readable, got %v", err)
	}

	// a ttl <= 0 never expires
	for _, key := range []string{foreverKey, negativeKey} {
		if _, err := kv.Read(key); err != nil {
			t.Errorf("Expected key %s without ttl to survive, got %v", key, err)
		}
	}
}

func testLimits(t *testing.T, kv store.IStore) {
	defer kv.Close()

	// key length 1..32
	maxKey := strings.Repeat("k", store.DefaultMaxKeyLength)
	if err := kv.Create(maxKey, "fits", 0); err != nil {
		t.Errorf("Expected key of maximum length to be accepted, got %v", err)
	}
	if err := kv.Create(maxKey+"k", "does not fit", 0); !errors.Is(err, store.ErrKeyTooLong) {
		t.Errorf("Expected ErrKeyTooLong for oversized key, got %v", err)
	}
	if err := kv.Create("", "empty key", 0); !errors.Is(err, store.ErrKeyTooLong) {
		t.Errorf("Expected ErrKeyTooLong for empty key, got %v", err)
	}

	// the key limit counts characters, not encoded bytes
	wideKey := strings.Repeat("é", store.DefaultMaxKeyLength)
	if err := kv.Create(wideKey, "fits", 0); err != nil {
		t.Errorf("Expected multibyte key of maximum length to be accepted, got %v", err)
	}
	if err := kv.Create(wideKey+"é", "does not fit", 0); !errors.Is(err, store.ErrKeyTooLong) {
		t.Errorf("Expected ErrKeyTooLong for oversized multibyte key, got %v", err)
	}

	// keys must be valid UTF-8 so they survive serialization unchanged
	if err := kv.Create("broken-\xff-key", "mangled", 0); !errors.Is(err, store.ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey for invalid UTF-8 key, got %v", err)
	}

	// serialized value size: a string of n ASCII chars serializes to n+2 bytes
	maxValue := strings.Repeat("v", store.DefaultMaxValueSize-2)
	if err := kv.Create("max-value-key", maxValue, 0); err != nil {
		t.Errorf("Expected value at the size limit to be accepted, got %v", err)
	}
	if err := kv.Create("big-value-key", maxValue+"v", 0); !errors.Is(err, store.ErrValueTooLarge) {
		t.Errorf("Expected ErrValueTooLarge for oversized value, got %v", err)
	}

	// values the codec cannot serialize are rejected
	if err := kv.Create("chan-key", make(chan int), 0); !errors.Is(err, store.ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue for unserializable value, got %v", err)
	}

	// rejected keys leave no trace
	for _, key := range []string{maxKey + "k", wideKey + "é", "broken-\xff-key", "big-value-key", "chan-key"} {
		if exists, _ := kv.Has(key); exists {
			t.Errorf("Expected rejected key %s to be absent", key)
		}
	}
}

func testBatchCreate(t *testing.T, kv store.IStore) {
	defer kv.Close()

	longKey := strings.Repeat("x", store.DefaultMaxKeyLength+1)
	items := map[string]any{
		"batch-a": "alpha",
		"batch-b": 2,
		longKey:   "unreachable",
		"batch-c": make(chan int),
	}

	outcomes, err := kv.BatchCreate(items)
	if err != nil {
		t.Fatalf("Unexpected error from BatchCreate: %v", err)
	}
	if len(outcomes) != len(items) {
		t.Errorf("Expected %d outcomes, got %d", len(items), len(outcomes))
	}

	if outcomes["batch-a"] != nil {
		t.Errorf("Expected key batch-a to be applied, got %v", outcomes["batch-a"])
	}
	if outcomes["batch-b"] != nil {
		t.Errorf("Expected key batch-b to be applied, got %v", outcomes["batch-b"])
	}
	if !errors.Is(outcomes[longKey], store.ErrKeyTooLong) {
		t.Errorf("Expected ErrKeyTooLong outcome for oversized key, got %v", outcomes[longKey])
	}
	if !errors.Is(outcomes["batch-c"], store.ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue outcome for unserializable value, got %v", outcomes["batch-c"])
	}

	// applied items are readable, rejected ones left no trace
	result, err := kv.Read("batch-a")
	if err != nil {
		t.Errorf("Unexpected error reading applied batch key: %v", err)
	}
	if expected := []byte(`"alpha"`); !bytes.Equal(result, expected) {
		t.Errorf("Expected value %s for key batch-a, got %s", expected, result)
	}
	if exists, _ := kv.Has(longKey); exists {
		t.Errorf("Expected rejected batch key to be absent")
	}

	// an empty batch is a no-op
	outcomes, err = kv.BatchCreate(map[string]any{})
	if err != nil {
		t.Errorf("Unexpected error from empty BatchCreate: %v", err)
	}
	if len(outcomes) != 0 {
		t.Errorf("Expected no outcomes for empty batch, got %d", len(outcomes))
	}
}

func testBatchLimit(t *testing.T, kv store.IStore) {
	defer kv.Close()

	atLimit := make(map[string]any, store.DefaultMaxBatchItems)
	for i := 0; i < store.DefaultMaxBatchItems; i++ {
		atLimit[fmt.Sprintf("batch-key-%d", i)] = i
	}

	outcomes, err := kv.BatchCreate(atLimit)
	if err != nil {
		t.Fatalf("Expected batch at the item limit to succeed, got %v", err)
	}
	for key, outcome := range outcomes {
		if outcome != nil {
			t.Errorf("Unexpected outcome for key %s: %v", key, outcome)
		}
	}

	overLimit := make(map[string]any, store.DefaultMaxBatchItems+1)
	for i := 0; i <= store.DefaultMaxBatchItems; i++ {
		overLimit[fmt.Sprintf("over-key-%d", i)] = i
	}

	outcomes, err = kv.BatchCreate(overLimit)
	if !errors.Is(err, store.ErrBatchSizeLimit) {
		t.Errorf("Expected ErrBatchSizeLimit for oversized batch, got %v", err)
	}
	if outcomes != nil {
		t.Errorf("Expected no outcomes for rejected batch, got %d", len(outcomes))
	}

	// the rejected batch must not have been applied partially
	if exists, _ := kv.Has("over-key-0"); exists {
		t.Errorf("Expected rejected batch to leave no trace")
	}
}

func testInfo(t *testing.T, kv store.IStore) {
	defer kv.Close()

	for i := 0; i < 3; i++ {
		if err := kv.Create(fmt.Sprintf("info-key-%d", i), i, 0); err != nil {
			t.Fatalf("Unexpected error on create: %v", err)
		}
	}
	if _, err := kv.Read("info-key-0"); err != nil {
		t.Errorf("Unexpected error on read: %v", err)
	}
	if _, err := kv.Read("info-key-1"); err != nil {
		t.Errorf("Unexpected error on read: %v", err)
	}
	if err := kv.Delete("info-key-2"); err != nil {
		t.Errorf("Unexpected error on delete: %v", err)
	}
	if _, err := kv.BatchCreate(map[string]any{"info-batch-a": 1, "info-batch-b": 2}); err != nil {
		t.Errorf("Unexpected error on batch: %v", err)
	}

	info, err := kv.Info()
	if err != nil {
		t.Fatalf("Unexpected error from Info: %v", err)
	}

	if info.Keys != 4 {
		t.Errorf("Expected 4 keys, got %d", info.Keys)
	}
	if info.Creates != 3 {
		t.Errorf("Expected 3 creates, got %d", info.Creates)
	}
	if info.Reads != 2 {
		t.Errorf("Expected 2 reads, got %d", info.Reads)
	}
	if info.Deletes != 1 {
		t.Errorf("Expected 1 delete, got %d", info.Deletes)
	}
	if info.Batches != 1 {
		t.Errorf("Expected 1 batch, got %d", info.Batches)
	}
	if info.ValueSizes.Max <= 0 {
		t.Errorf("Expected positive max value size, got %f", info.ValueSizes.Max)
	}
}

func testClose(t *testing.T, kv store.IStore) {
	if err := kv.Create("close-key", "value", 0); err != nil {
		t.Errorf("Unexpected error on create: %v", err)
	}

	if err := kv.Close(); err != nil {
		t.Errorf("Unexpected error on close: %v", err)
	}
	if err := kv.Close(); err != nil {
		t.Errorf("Expected repeated close to be a no-op, got %v", err)
	}

	if err := kv.Create("late-key", "too late", 0); !errors.Is(err, store.ErrStoreClosed) {
		t.Errorf("Expected ErrStoreClosed for create after close, got %v", err)
	}
	if _, err := kv.Read("close-key"); !errors.Is(err, store.ErrStoreClosed) {
		t.Errorf("Expected ErrStoreClosed for read after close, got %v", err)
	}
	if err := kv.Delete("close-key"); !errors.Is(err, store.ErrStoreClosed) {
		t.Errorf("Expected ErrStoreClosed for delete after close, got %v", err)
	}
	if _, err := kv.Has("close-key"); !errors.Is(err, store.ErrStoreClosed) {
		t.Errorf("Expected ErrStoreClosed for has after close, got %v", err)
	}
	if _, err := kv.Info(); !errors.Is(err, store.ErrStoreClosed) {
		t.Errorf("Expected ErrStoreClosed for info after close, got %v", err)
	}
	if _, err := kv.BatchCreate(map[string]any{"k": 1}); !errors.Is(err, store.ErrStoreClosed) {
		t.Errorf("Expected ErrStoreClosed for batch after close, got %v", err)
	}
}

func testConcurrentUsage(t *testing.T, kv store.IStore) {
	defer kv.Close()

	numWorkers := 8
	opsPerWorker := 25

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	errCh := make(chan error, numWorkers*opsPerWorker)

	// each worker owns a disjoint key range, so every operation has a
	// deterministic expected outcome
	for w := 0; w < numWorkers; w++ {
		go func(workerID int) {
			defer wg.Done()

			for i := 0; i < opsPerWorker; i++ {
				key := fmt.Sprintf("worker-%d-key-%d", workerID, i)
				value := fmt.Sprintf("value-%d-%d", workerID, i)

				if err := kv.Create(key, value, 0); err != nil {
					errCh <- fmt.Errorf("create %s: %w", key, err)
					continue
				}

				result, err := kv.Read(key)
				if err != nil {
					errCh <- fmt.Errorf("read %s: %w", key, err)
					continue
				}
				if expected := []byte(`"` + value + `"`); !bytes.Equal(result, expected) {
					errCh <- fmt.Errorf("read %s: expected %s, got %s", key, expected, result)
				}

				// delete every third key again
				if i%3 == 0 {
					if err := kv.Delete(key); err != nil {
						errCh <- fmt.Errorf("delete %s: %w", key, err)
					}
				}
			}
		}(w)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("Concurrent operation failed: %v", err)
	}

	// verify the surviving key set
	for w := 0; w < numWorkers; w++ {
		for i := 0; i < opsPerWorker; i++ {
			key := fmt.Sprintf("worker-%d-key-%d", w, i)
			exists, err := kv.Has(key)
			if err != nil {
				t.Errorf("Unexpected error from Has: %v", err)
				continue
			}
			if deleted := i%3 == 0; exists == deleted {
				t.Errorf("Key %s: expected exists=%v, got %v", key, !deleted, exists)
			}
		}
	}
}
