package fstore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lbraun/sKV/lib/filelock"
	"github.com/lbraun/sKV/lib/store"
	"github.com/lbraun/sKV/lib/store/fstore/internal"
)

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// newTestStore creates a store in a fresh temp dir and returns it with its
// file path. opts.Path is filled in by the helper.
func newTestStore(t *testing.T, opts *Options) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "store.json")
	if opts == nil {
		opts = DefaultOptions(path)
	} else {
		opts.Path = path
	}

	s, err := New(opts)
	if err != nil {
		t.Fatalf("could not create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s, path
}

// decodeFile reads and decodes the store file from disk
func decodeFile(t *testing.T, path string) internal.Table {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("could not read store file: %v", err)
	}
	table, err := internal.DecodeTable(data)
	if err != nil {
		t.Fatalf("could not decode store file: %v", err)
	}
	return table
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Errorf("Expected error for nil options")
	}
	if _, err := New(&Options{}); err == nil {
		t.Errorf("Expected error for missing path")
	}
}

func TestPersistenceAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	s1, err := New(DefaultOptions(path))
	if err != nil {
		t.Fatalf("could not create store: %v", err)
	}
	if err := s1.Create("number", 42, 0); err != nil {
		t.Fatalf("Unexpected error on create: %v", err)
	}
	if err := s1.Create("text", "persisted", 0); err != nil {
		t.Fatalf("Unexpected error on create: %v", err)
	}
	if err := s1.Create("long-lived", "still here", time.Hour); err != nil {
		t.Fatalf("Unexpected error on create: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Unexpected error on close: %v", err)
	}

	s2, err := New(DefaultOptions(path))
	if err != nil {
		t.Fatalf("could not reopen store: %v", err)
	}
	defer s2.Close()

	result, err := s2.Read("number")
	if err != nil {
		t.Errorf("Unexpected error reading after reopen: %v", err)
	}
	if !bytes.Equal(result, []byte("42")) {
		t.Errorf("Expected value 42 after reopen, got %s", result)
	}

	result, err = s2.Read("text")
	if err != nil {
		t.Errorf("Unexpected error reading after reopen: %v", err)
	}
	if !bytes.Equal(result, []byte(`"persisted"`)) {
		t.Errorf("Expected value \"persisted\" after reopen, got %s", result)
	}

	// the ttl was stored as an absolute expiry, the entry is still live
	if exists, _ := s2.Has("long-lived"); !exists {
		t.Errorf("Expected key with remaining ttl to survive reopen")
	}

	info, err := s2.Info()
	if err != nil {
		t.Fatalf("Unexpected error from Info: %v", err)
	}
	if info.Keys != 3 {
		t.Errorf("Expected 3 keys after reopen, got %d", info.Keys)
	}
	if info.FileSizeBytes <= 0 {
		t.Errorf("Expected positive file size after reopen, got %d", info.FileSizeBytes)
	}
}

func TestExpiryIsAbsoluteAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	s1, err := New(DefaultOptions(path))
	if err != nil {
		t.Fatalf("could not create store: %v", err)
	}
	if err := s1.Create("ephemeral", "gone soon", 50*time.Millisecond); err != nil {
		t.Fatalf("Unexpected error on create: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Unexpected error on close: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	s2, err := New(DefaultOptions(path))
	if err != nil {
		t.Fatalf("could not reopen store: %v", err)
	}
	defer s2.Close()

	if exists, _ := s2.Has("ephemeral"); exists {
		t.Errorf("Expected key to be expired after restart")
	}
	if _, err := s2.Read("ephemeral"); !errors.Is(err, store.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound for key expired across restart, got %v", err)
	}
}

func TestMultibyteKeysSurviveRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	key := strings.Repeat("é", store.DefaultMaxKeyLength) // 32 characters, 64 bytes

	s1, err := New(DefaultOptions(path))
	if err != nil {
		t.Fatalf("could not create store: %v", err)
	}
	if err := s1.Create(key, "accented", 0); err != nil {
		t.Fatalf("Expected multibyte key at the length limit to be accepted, got %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Unexpected error on close: %v", err)
	}

	s2, err := New(DefaultOptions(path))
	if err != nil {
		t.Fatalf("could not reopen store: %v", err)
	}
	defer s2.Close()

	// the key round-trips byte-identically through the snapshot
	result, err := s2.Read(key)
	if err != nil {
		t.Fatalf("Expected multibyte key to survive restart, got %v", err)
	}
	if !bytes.Equal(result, []byte(`"accented"`)) {
		t.Errorf("Expected value to survive restart, got %s", result)
	}
}

func TestEmptyFileLoadsEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("could not prepare empty file: %v", err)
	}

	s, err := New(DefaultOptions(path))
	if err != nil {
		t.Fatalf("Expected empty file to load as empty store, got %v", err)
	}
	defer s.Close()

	info, err := s.Info()
	if err != nil {
		t.Fatalf("Unexpected error from Info: %v", err)
	}
	if info.Keys != 0 {
		t.Errorf("Expected empty store, got %d keys", info.Keys)
	}
}

func TestCorruptFileFailsToLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte(`{"broken":`), 0o644); err != nil {
		t.Fatalf("could not prepare corrupt file: %v", err)
	}

	_, err := New(DefaultOptions(path))
	if !errors.Is(err, store.ErrIOFailure) {
		t.Errorf("Expected ErrIOFailure for corrupt store file, got %v", err)
	}
}

func TestFileFormat(t *testing.T) {
	s, path := newTestStore(t, nil)

	if err := s.Create("a", 1, 0); err != nil {
		t.Fatalf("Unexpected error on create: %v", err)
	}
	if err := s.Create("b", "x", 0); err != nil {
		t.Fatalf("Unexpected error on create: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("could not read store file: %v", err)
	}

	// keys are sorted and entries serialized compactly, so the file
	// content is fully deterministic
	expected := `{"a":{"value":1,"expiry":null},"b":{"value":"x","expiry":null}}`
	if string(data) != expected {
		t.Errorf("Unexpected file content:\nexpected %s\ngot      %s", expected, data)
	}

	// an entry with a ttl stores its absolute expiry
	if err := s.Create("c", true, time.Hour); err != nil {
		t.Fatalf("Unexpected error on create: %v", err)
	}
	table := decodeFile(t, path)
	entry, ok := table["c"]
	if !ok {
		t.Fatalf("Expected key c in store file")
	}
	if entry.ExpireAt <= nowUnix() {
		t.Errorf("Expected absolute expiry in the future, got %f", entry.ExpireAt)
	}
}

func TestDuplicateRejectPolicy(t *testing.T) {
	s, _ := newTestStore(t, &Options{OnDuplicate: store.DuplicateReject})

	if err := s.Create("unique", "first", 0); err != nil {
		t.Fatalf("Unexpected error on create: %v", err)
	}
	if err := s.Create("unique", "second", 0); !errors.Is(err, store.ErrKeyExists) {
		t.Errorf("Expected ErrKeyExists for duplicate create, got %v", err)
	}

	// the original value stays untouched
	result, err := s.Read("unique")
	if err != nil {
		t.Fatalf("Unexpected error on read: %v", err)
	}
	if !bytes.Equal(result, []byte(`"first"`)) {
		t.Errorf("Expected original value to survive rejected create, got %s", result)
	}

	// an expired entry counts as absent, the key is free again
	if err := s.Create("revolving", "old", 40*time.Millisecond); err != nil {
		t.Fatalf("Unexpected error on create: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if err := s.Create("revolving", "new", 0); err != nil {
		t.Errorf("Expected create over expired entry to succeed, got %v", err)
	}

	// batch outcomes carry the rejection per key
	outcomes, err := s.BatchCreate(map[string]any{"unique": "again", "fresh": "ok"})
	if err != nil {
		t.Fatalf("Unexpected error from BatchCreate: %v", err)
	}
	if !errors.Is(outcomes["unique"], store.ErrKeyExists) {
		t.Errorf("Expected ErrKeyExists outcome for live key, got %v", outcomes["unique"])
	}
	if outcomes["fresh"] != nil {
		t.Errorf("Expected key fresh to be applied, got %v", outcomes["fresh"])
	}
}

func TestOverwriteReplacesExpiry(t *testing.T) {
	s, _ := newTestStore(t, nil)

	if err := s.Create("key", "short-lived", 50*time.Millisecond); err != nil {
		t.Fatalf("Unexpected error on create: %v", err)
	}
	// the overwrite replaces value and expiry, the entry no longer expires
	if err := s.Create("key", "immortal", 0); err != nil {
		t.Fatalf("Unexpected error on overwrite: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	result, err := s.Read("key")
	if err != nil {
		t.Errorf("Expected overwritten entry to outlive the old ttl, got %v", err)
	}
	if !bytes.Equal(result, []byte(`"immortal"`)) {
		t.Errorf("Expected overwritten value, got %s", result)
	}
}

func TestFileSizeLimit(t *testing.T) {
	s, _ := newTestStore(t, &Options{Limits: store.Limits{MaxFileSize: 150}})

	value := strings.Repeat("v", 20)

	// two entries of 56 encoded bytes fit under the 150 byte cap
	if err := s.Create("key-0", value, 0); err != nil {
		t.Fatalf("Unexpected error on first create: %v", err)
	}
	if err := s.Create("key-1", value, 0); err != nil {
		t.Fatalf("Unexpected error on second create: %v", err)
	}

	// the third entry would push the projection past the cap
	err := s.Create("key-2", value, 0)
	if !errors.Is(err, store.ErrFileSizeLimit) {
		t.Errorf("Expected ErrFileSizeLimit, got %v", err)
	}
	if exists, _ := s.Has("key-2"); exists {
		t.Errorf("Expected rejected key to be absent")
	}

	// overwriting a live key skips the projection entirely
	if err := s.Create("key-1", strings.Repeat("w", 20), 0); err != nil {
		t.Errorf("Expected overwrite at the cap to succeed, got %v", err)
	}

	// deleting shrinks the file, making room again
	if err := s.Delete("key-0"); err != nil {
		t.Fatalf("Unexpected error on delete: %v", err)
	}
	if err := s.Create("key-2", value, 0); err != nil {
		t.Errorf("Expected create to succeed after delete, got %v", err)
	}
}

func TestFileSizeLimitInBatch(t *testing.T) {
	s, _ := newTestStore(t, &Options{Limits: store.Limits{MaxFileSize: 150}})

	// the projection accumulates across the batch in sorted key order:
	// key-a and key-b fit, key-c no longer does
	value := strings.Repeat("v", 20)
	outcomes, err := s.BatchCreate(map[string]any{
		"key-a": value,
		"key-b": value,
		"key-c": value,
	})
	if err != nil {
		t.Fatalf("Unexpected error from BatchCreate: %v", err)
	}

	if outcomes["key-a"] != nil {
		t.Errorf("Expected key-a to be applied, got %v", outcomes["key-a"])
	}
	if outcomes["key-b"] != nil {
		t.Errorf("Expected key-b to be applied, got %v", outcomes["key-b"])
	}
	if !errors.Is(outcomes["key-c"], store.ErrFileSizeLimit) {
		t.Errorf("Expected ErrFileSizeLimit outcome for key-c, got %v", outcomes["key-c"])
	}
}

func TestLockTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	// hold the sidecar lock externally, simulating another process
	external := filelock.New(path + lockSuffix)
	if err := external.Acquire(time.Second); err != nil {
		t.Fatalf("could not acquire external lock: %v", err)
	}

	s, err := New(&Options{Path: path, LockTimeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("could not create store: %v", err)
	}
	defer s.Close()

	err = s.Create("blocked", "value", 0)
	if !errors.Is(err, store.ErrIOFailure) {
		t.Errorf("Expected ErrIOFailure while lock is held, got %v", err)
	}
	if !errors.Is(err, filelock.ErrLockTimeout) {
		t.Errorf("Expected the lock timeout as cause, got %v", err)
	}

	// the table keeps the entry even though persisting failed; the next
	// successful save writes the current state
	result, err := s.Read("blocked")
	if err != nil {
		t.Errorf("Expected entry to stay in memory after failed save, got %v", err)
	}
	if !bytes.Equal(result, []byte(`"value"`)) {
		t.Errorf("Expected in-memory value to survive, got %s", result)
	}

	if err := external.Release(); err != nil {
		t.Fatalf("could not release external lock: %v", err)
	}

	if err := s.Create("unblocked", "value", 0); err != nil {
		t.Errorf("Expected create to succeed after lock release, got %v", err)
	}

	// both entries made it to disk with the successful save
	table := decodeFile(t, path)
	if _, ok := table["blocked"]; !ok {
		t.Errorf("Expected earlier entry to be persisted by the later save")
	}
	if _, ok := table["unblocked"]; !ok {
		t.Errorf("Expected new entry to be persisted")
	}
}

func TestSweeperEvictsAndPersists(t *testing.T) {
	s, path := newTestStore(t, &Options{SweepInterval: 50 * time.Millisecond})

	if err := s.Create("mortal", "gone soon", 25*time.Millisecond); err != nil {
		t.Fatalf("Unexpected error on create: %v", err)
	}
	if err := s.Create("immortal", "stays", 0); err != nil {
		t.Fatalf("Unexpected error on create: %v", err)
	}

	// wait for the sweeper without touching the store
	time.Sleep(300 * time.Millisecond)

	table := decodeFile(t, path)
	if _, ok := table["mortal"]; ok {
		t.Errorf("Expected sweeper to evict expired key from the store file")
	}
	if _, ok := table["immortal"]; !ok {
		t.Errorf("Expected live key to survive the sweep")
	}

	info, err := s.Info()
	if err != nil {
		t.Fatalf("Unexpected error from Info: %v", err)
	}
	if info.Expired != 1 {
		t.Errorf("Expected 1 expired entry, got %d", info.Expired)
	}
	if info.Keys != 1 {
		t.Errorf("Expected 1 remaining key, got %d", info.Keys)
	}
}

func TestLazyEvictionPersists(t *testing.T) {
	// sweeper effectively disabled, eviction happens on access only
	s, path := newTestStore(t, &Options{SweepInterval: 10 * time.Minute})

	if err := s.Create("gone", "expired", 30*time.Millisecond); err != nil {
		t.Fatalf("Unexpected error on create: %v", err)
	}
	if err := s.Create("stays", "alive", 0); err != nil {
		t.Fatalf("Unexpected error on create: %v", err)
	}

	time.Sleep(80 * time.Millisecond)

	// before any access the expired entry is still on disk
	table := decodeFile(t, path)
	if _, ok := table["gone"]; !ok {
		t.Fatalf("Expected expired entry to linger on disk until accessed")
	}

	if _, err := s.Read("gone"); !errors.Is(err, store.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound for expired key, got %v", err)
	}

	// the miss evicted the entry and rewrote the file
	table = decodeFile(t, path)
	if _, ok := table["gone"]; ok {
		t.Errorf("Expected read to evict expired entry from the store file")
	}
	if _, ok := table["stays"]; !ok {
		t.Errorf("Expected live key to survive eviction")
	}

	// Delete reports an expired entry the same way and evicts it too
	if err := s.Create("gone2", "expired", 30*time.Millisecond); err != nil {
		t.Fatalf("Unexpected error on create: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if err := s.Delete("gone2"); !errors.Is(err, store.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound deleting expired key, got %v", err)
	}

	info, err := s.Info()
	if err != nil {
		t.Fatalf("Unexpected error from Info: %v", err)
	}
	if info.Expired != 2 {
		t.Errorf("Expected 2 expired entries, got %d", info.Expired)
	}
	if info.Deletes != 0 {
		t.Errorf("Expected no counted deletes for expired keys, got %d", info.Deletes)
	}
}

func TestCloseFlushesAndStopsSweeper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	s, err := New(&Options{Path: path, SweepInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("could not create store: %v", err)
	}

	if err := s.Create("flushed", "on close", 0); err != nil {
		t.Fatalf("Unexpected error on create: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Unexpected error on close: %v", err)
	}

	// the sweeper has exited, the file must not change anymore
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("could not read store file: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("could not read store file: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Errorf("Expected store file to be stable after close")
	}

	table, err := internal.DecodeTable(after)
	if err != nil {
		t.Fatalf("could not decode store file: %v", err)
	}
	if _, ok := table["flushed"]; !ok {
		t.Errorf("Expected final flush to contain the entry")
	}
}

func TestNoStrayTempFiles(t *testing.T) {
	s, path := newTestStore(t, nil)

	for i := 0; i < 5; i++ {
		if err := s.Create("key", i, 0); err != nil {
			t.Fatalf("Unexpected error on create: %v", err)
		}
	}
	if err := s.Delete("key"); err != nil {
		t.Fatalf("Unexpected error on delete: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Unexpected error on close: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("could not list store dir: %v", err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp-") {
			t.Errorf("Found stray temp file %s", entry.Name())
		}
	}
}

func TestWriteMetrics(t *testing.T) {
	s, _ := newTestStore(t, nil)

	if err := s.Create("metric-a", 1, 0); err != nil {
		t.Fatalf("Unexpected error on create: %v", err)
	}
	if err := s.Create("metric-b", 2, 0); err != nil {
		t.Fatalf("Unexpected error on create: %v", err)
	}
	if _, err := s.Read("metric-a"); err != nil {
		t.Fatalf("Unexpected error on read: %v", err)
	}

	var buf bytes.Buffer
	s.WriteMetrics(&buf)
	out := buf.String()

	for _, expected := range []string{
		"skv_keys 2",
		"skv_creates_total 2",
		"skv_reads_total 1",
		"skv_file_size_bytes ",
		"skv_value_size_p50_bytes ",
	} {
		if !strings.Contains(out, expected) {
			t.Errorf("Expected metrics output to contain %q, got:\n%s", expected, out)
		}
	}
}
