package fstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-hclog"
	"github.com/lbraun/sKV/lib/filelock"
	"github.com/lbraun/sKV/lib/store"
	"github.com/lbraun/sKV/lib/store/fstore/internal"
	"github.com/lbraun/sKV/lib/util"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for store behavior and structure
const (
	defaultSweepInterval = time.Second      // Default pause between expiry sweeps
	defaultLockTimeout   = 10 * time.Second // Default advisory lock acquisition bound
	lockSuffix           = ".lock"          // Sidecar lock file next to the store file
)

// --------------------------------------------------------------------------
// Core store structure
// --------------------------------------------------------------------------

// Store implements store.IStore backed by a single JSON file. The whole
// table lives in memory and is rewritten to disk inside the critical
// section of every mutation.
type Store struct {
	mu       sync.Mutex     // Guards table, fileSize and all file I/O
	table    internal.Table // Authoritative in-memory state
	fileSize int64          // Serialized size of the last persisted snapshot

	path        string
	limits      store.Limits
	onDuplicate store.DuplicatePolicy
	lockTimeout time.Duration
	locker      filelock.ILocker
	logger      hclog.Logger

	// expiry sweeper
	sweepInterval time.Duration
	sweeperOn     atomic.Bool
	sweeperDone   chan struct{}
	sweeperExited chan struct{}

	closed atomic.Bool

	// lock-free observability state (see metrics.go)
	stats opStats
	sizes *util.SizeHistogram
}

var _ store.IStore = (*Store)(nil)

// Options configures the Store behavior during initialization.
type Options struct {
	Path          string                // Store file path (required). The lock sidecar lives at Path + ".lock".
	Limits        store.Limits          // Validation ceilings (zero fields = defaults)
	OnDuplicate   store.DuplicatePolicy // Create behavior for keys holding a live entry
	SweepInterval time.Duration         // Pause between expiry sweeps (0 = use default: 1 sec)
	LockTimeout   time.Duration         // Advisory lock acquisition bound (0 = use default: 10 sec)
	Logger        hclog.Logger          // Operational log sink (nil = discard)
}

// DefaultOptions returns the default Store options for the given file path.
func DefaultOptions(path string) *Options {
	return &Options{
		Path:          path,
		Limits:        store.DefaultLimits(),
		OnDuplicate:   store.DuplicateOverwrite,
		SweepInterval: defaultSweepInterval,
		LockTimeout:   defaultLockTimeout,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// New creates a Store backed by the file at opts.Path. A previous snapshot
// is loaded if one exists, then the expiry sweeper is started.
//
// Thread-safety: the returned Store is safe for concurrent use. New itself
// should only be called once per path within a process.
func New(opts *Options) (*Store, error) {
	if opts == nil || opts.Path == "" {
		return nil, store.NewError(store.RetCIOFailure, "store file path is required")
	}

	s := &Store{
		path:          opts.Path,
		limits:        opts.Limits.Normalize(),
		onDuplicate:   opts.OnDuplicate,
		lockTimeout:   opts.LockTimeout,
		sweepInterval: opts.SweepInterval,
		locker:        filelock.New(opts.Path + lockSuffix),
		logger:        opts.Logger,
		stats:         newOpStats(),
		sizes:         util.NewSizeHistogram(),
	}
	if s.lockTimeout <= 0 {
		s.lockTimeout = defaultLockTimeout
	}
	if s.sweepInterval <= 0 {
		s.sweepInterval = defaultSweepInterval
	}
	if s.logger == nil {
		s.logger = hclog.NewNullLogger()
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	s.startSweeper()

	return s, nil
}

// --------------------------------------------------------------------------
// Time Helpers
// --------------------------------------------------------------------------

// nowUnix returns the current wall-clock time in seconds since the Unix
// epoch. Sub-second precision is kept so short TTLs behave correctly.
func nowUnix() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// expiryFor computes the absolute expiry for a ttl relative to now.
// A ttl <= 0 means the entry never expires.
func expiryFor(now float64, ttl time.Duration) float64 {
	if ttl <= 0 {
		return 0
	}
	return now + ttl.Seconds()
}

// --------------------------------------------------------------------------
// Interface Methods - Write Operations (docu see store/interface.go)
// --------------------------------------------------------------------------

// Create validates key and value, applies the entry under the duplicate
// policy and persists the full table before returning.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) Create(key string, value any, ttl time.Duration) error {
	raw, verr := s.validate(key, value)
	if verr != nil {
		return verr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return store.NewError(store.RetCStoreClosed, "store is closed")
	}

	now := nowUnix()
	projected := s.fileSize
	entry := internal.Entry{Value: raw, ExpireAt: expiryFor(now, ttl)}
	if err := s.insertLocked(key, entry, now, &projected); err != nil {
		return err
	}
	if err := s.saveLocked(); err != nil {
		return err
	}

	s.stats.creates.Inc()
	return nil
}

// BatchCreate applies every item in one self-contained critical section.
// It never calls Create: the store mutex is not reentrant, so nesting the
// public single-item operation inside the batch would deadlock.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) BatchCreate(items map[string]any) (map[string]error, error) {
	if len(items) > s.limits.MaxBatchItems {
		return nil, store.NewError(store.RetCBatchSizeLimit,
			fmt.Sprintf("batch of %d items exceeds the limit of %d", len(items), s.limits.MaxBatchItems))
	}

	// The file growth projection accumulates across the batch, so items
	// are applied in sorted key order to keep per-key outcomes
	// deterministic regardless of map iteration order.
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil, store.NewError(store.RetCStoreClosed, "store is closed")
	}

	now := nowUnix()
	projected := s.fileSize
	outcomes := make(map[string]error, len(items))
	applied := 0

	for _, key := range keys {
		raw, verr := s.validate(key, items[key])
		if verr != nil {
			outcomes[key] = verr
			continue
		}
		// batch entries never expire
		if err := s.insertLocked(key, internal.Entry{Value: raw}, now, &projected); err != nil {
			outcomes[key] = err
			continue
		}
		outcomes[key] = nil
		applied++
	}

	// persist once for the whole batch, but only if something changed
	if applied > 0 {
		if err := s.saveLocked(); err != nil {
			return nil, err
		}
	}

	s.stats.batches.Inc()
	return outcomes, nil
}

// Delete removes the entry for a key. An expired entry is treated as
// already gone, but discovering the expiry still evicts it and persists.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return store.NewError(store.RetCStoreClosed, "store is closed")
	}

	entry, exists := s.table[key]
	if !exists {
		return store.NewError(store.RetCKeyNotFound, fmt.Sprintf("key %q not found", key))
	}
	if entry.Expired(nowUnix()) {
		if err := s.evictLocked(key); err != nil {
			return err
		}
		return store.NewError(store.RetCKeyNotFound, fmt.Sprintf("key %q has expired", key))
	}

	delete(s.table, key)
	if err := s.saveLocked(); err != nil {
		return err
	}

	s.stats.deletes.Inc()
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods - Read Operations (docu see store/interface.go)
// --------------------------------------------------------------------------

// Read returns a copy of the serialized value for a key. Touching an
// expired entry evicts it and persists the table before the miss is
// reported (lazy eviction).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) Read(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil, store.NewError(store.RetCStoreClosed, "store is closed")
	}

	entry, exists := s.table[key]
	if !exists {
		return nil, store.NewError(store.RetCKeyNotFound, fmt.Sprintf("key %q not found", key))
	}
	if entry.Expired(nowUnix()) {
		if err := s.evictLocked(key); err != nil {
			return nil, err
		}
		return nil, store.NewError(store.RetCKeyNotFound, fmt.Sprintf("key %q has expired", key))
	}

	s.stats.reads.Inc()

	// return an independent copy so callers cannot corrupt the table
	value := make([]byte, len(entry.Value))
	copy(value, entry.Value)
	return value, nil
}

// Has reports whether a key holds a live value. Unlike Read it never
// evicts: an expired entry merely reads as absent until a sweep or a
// Read/Delete removes it.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) Has(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false, store.NewError(store.RetCStoreClosed, "store is closed")
	}

	entry, exists := s.table[key]
	return exists && !entry.Expired(nowUnix()), nil
}

// Info returns a consistent snapshot of store metadata.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) Info() (store.StoreInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return store.StoreInfo{}, store.NewError(store.RetCStoreClosed, "store is closed")
	}

	valueSizes := make([]float64, 0, len(s.table))
	for _, entry := range s.table {
		valueSizes = append(valueSizes, float64(len(entry.Value)))
	}

	return store.StoreInfo{
		Keys:          len(s.table),
		Path:          s.path,
		FileSizeBytes: s.fileSize,
		ValueSizes:    util.NewStats(valueSizes),
		Creates:       uint64(s.stats.creates.Value()),
		Reads:         uint64(s.stats.reads.Value()),
		Deletes:       uint64(s.stats.deletes.Value()),
		Batches:       uint64(s.stats.batches.Value()),
		Expired:       uint64(s.stats.expired.Value()),
		Persists:      uint64(s.stats.persists.Value()),
	}, nil
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Close stops the expiry sweeper and flushes the table one final time.
// It is idempotent; operations on a closed store fail with RetCStoreClosed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.stopSweeper()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveLocked(); err != nil {
		return err
	}

	s.logger.Debug("store closed", "path", s.path, "keys", len(s.table))
	return nil
}

// --------------------------------------------------------------------------
// Validation and Table Mutation Helpers
// --------------------------------------------------------------------------

// validate checks key and value against the limits and returns the
// serialized value. Runs without the store mutex, serialization is pure.
// Validation order: key first, then value size.
func (s *Store) validate(key string, value any) (json.RawMessage, *store.Error) {
	// a key with invalid UTF-8 would be rewritten to U+FFFD by the JSON
	// encoder and come back changed after a restart
	if !utf8.ValidString(key) {
		return nil, store.NewError(store.RetCInvalidKey,
			fmt.Sprintf("key %q is not valid UTF-8", key))
	}
	// the key limit counts characters, not bytes
	if n := utf8.RuneCountInString(key); n == 0 || n > s.limits.MaxKeyLength {
		return nil, store.NewError(store.RetCKeyTooLong,
			fmt.Sprintf("key length %d outside 1..%d", n, s.limits.MaxKeyLength))
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, store.WrapError(store.RetCInvalidValue,
			fmt.Sprintf("value for key %q is not JSON-serializable", key), err)
	}
	if len(raw) > s.limits.MaxValueSize {
		return nil, store.NewError(store.RetCValueTooLarge,
			fmt.Sprintf("serialized value for key %q is %d bytes (limit %d)", key, len(raw), s.limits.MaxValueSize))
	}

	return raw, nil
}

// insertLocked applies one validated entry to the table, enforcing the
// duplicate policy and the file size ceiling for new keys. projected
// tracks the snapshot growth across a batch; the single create passes
// the current file size. Callers must hold s.mu.
func (s *Store) insertLocked(key string, entry internal.Entry, now float64, projected *int64) *store.Error {
	old, exists := s.table[key]
	live := exists && !old.Expired(now)

	if live {
		if s.onDuplicate == store.DuplicateReject {
			return store.NewError(store.RetCKeyExists, fmt.Sprintf("key %q already exists", key))
		}
	} else {
		// new key (or one replacing an expired entry): project the file
		// growth before touching the table
		add, err := internal.EncodedEntrySize(key, entry)
		if err != nil {
			return store.WrapError(store.RetCInvalidValue, fmt.Sprintf("project size of key %q", key), err)
		}
		if *projected+int64(add) > s.limits.MaxFileSize {
			return store.NewError(store.RetCFileSizeLimit,
				fmt.Sprintf("adding key %q would grow the store file beyond %d bytes", key, s.limits.MaxFileSize))
		}
		*projected += int64(add)
	}

	s.table[key] = entry
	s.sizes.AddSample(len(entry.Value))
	return nil
}

// evictLocked removes an expired entry and persists the shrunken table.
// Callers must hold s.mu.
func (s *Store) evictLocked(key string) error {
	delete(s.table, key)
	if err := s.saveLocked(); err != nil {
		return err
	}
	s.stats.expired.Inc()
	return nil
}

// --------------------------------------------------------------------------
// Expiry Sweeper
// --------------------------------------------------------------------------

// startSweeper starts the background expiry sweeper.
// If the sweeper is already running, this function does nothing.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) startSweeper() {
	if s.sweeperOn.CompareAndSwap(false, true) {
		s.sweeperDone = make(chan struct{})
		s.sweeperExited = make(chan struct{})
		go s.sweeper()
	}
}

// stopSweeper signals the sweeper to exit and blocks until it has. After
// stopSweeper returns no further sweeps run. The sweeper can't be started
// again after it has been stopped.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) stopSweeper() {
	if s.sweeperOn.CompareAndSwap(true, false) {
		close(s.sweeperDone)
		<-s.sweeperExited
	}
}

// sweeper is the background eviction loop.
// WARNING: this method should never be called directly! The lifecycle runs
// through startSweeper() and stopSweeper().
func (s *Store) sweeper() {
	defer close(s.sweeperExited)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.sweeperDone:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep performs one eager eviction pass: scan the table, drop expired
// entries and persist once if anything was dropped.
func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return
	}

	evicted := s.table.SweepExpired(nowUnix())
	if evicted == 0 {
		return
	}

	s.stats.expired.Add(int64(evicted))
	s.logger.Debug("expiry sweep evicted entries", "count", evicted, "remaining", len(s.table))

	if err := s.saveLocked(); err != nil {
		// no caller is waiting on the sweeper; the next successful
		// mutation rewrites the file anyway
		s.logger.Error("expiry sweep could not persist", "error", err)
	}
}
