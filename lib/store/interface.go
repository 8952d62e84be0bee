package store

import (
	"fmt"
	"time"

	"github.com/lbraun/sKV/lib/util"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Factory is a function type that creates a new store instance.
// This is used to abstract the construction of a store from its consumers,
// e.g. the conformance test suite or the command line interface.
type Factory func() (IStore, error)

// IStore is the generic interface for interacting with a key-value store.
// All operations return a *Error (nil on success); read operations return
// the requested data along with it.
type IStore interface {
	// Create inserts the value for a key, optionally expiring after ttl.
	// A ttl <= 0 means the entry never expires. Whether a key that already
	// holds a live value is overwritten or rejected depends on the
	// configured DuplicatePolicy.
	Create(key string, value any, ttl time.Duration) (err error)
	// Read returns the serialized JSON value for a key. Reading an absent
	// or expired key fails with RetCKeyNotFound; an expired entry is
	// evicted as a side effect. The returned slice is an independent copy.
	Read(key string) (value []byte, err error)
	// Delete removes a key-value pair. Deleting an absent or expired key
	// fails with RetCKeyNotFound; an expired entry is still evicted.
	Delete(key string) (err error)
	// BatchCreate inserts many key-value pairs in one critical section.
	// Batch entries never expire. Items are applied best-effort: the
	// returned map holds one outcome per key, nil for success or the
	// specific *Error otherwise. The error return is reserved for whole
	// batch failures (size limit, persistence).
	BatchCreate(items map[string]any) (outcomes map[string]error, err error)
	// Has reports whether a key holds a live (non-expired) value. Unlike
	// Read it never evicts and has no side effects.
	Has(key string) (loaded bool, err error)
	// Info returns metadata about the store. It is not guaranteed that all
	// fields are filled in by every implementation.
	Info() (info StoreInfo, err error)
	// Close tears the store down. Further operations fail with
	// RetCStoreClosed. Close is idempotent.
	Close() (err error)
}

// StoreInfo reports metadata about a store instance.
type StoreInfo struct {
	Keys          int        `json:"keys"`
	Path          string     `json:"path,omitempty"`
	FileSizeBytes int64      `json:"file_size_bytes"`
	ValueSizes    util.Stats `json:"value_sizes"`

	// Monotonic operation counters since the store was opened.
	Creates  uint64 `json:"creates"`
	Reads    uint64 `json:"reads"`
	Deletes  uint64 `json:"deletes"`
	Batches  uint64 `json:"batches"`
	Expired  uint64 `json:"expired"`
	Persists uint64 `json:"persists"`
}

// --------------------------------------------------------------------------
// Duplicate Policy
// --------------------------------------------------------------------------

// DuplicatePolicy selects the Create behavior for a key that already holds
// a live entry. An expired entry counts as absent under either policy.
type DuplicatePolicy int

const (
	// DuplicateOverwrite replaces value and expiry (last-writer-wins).
	DuplicateOverwrite DuplicatePolicy = iota
	// DuplicateReject fails the create with RetCKeyExists and leaves the
	// existing entry untouched.
	DuplicateReject
)

// String returns the config spelling of the policy.
func (p DuplicatePolicy) String() string {
	if p == DuplicateReject {
		return "reject"
	}
	return "overwrite"
}

// ParseDuplicatePolicy converts the config spelling back to a policy.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch s {
	case "overwrite", "":
		return DuplicateOverwrite, nil
	case "reject":
		return DuplicateReject, nil
	default:
		return DuplicateOverwrite, fmt.Errorf("invalid duplicate policy %q (want overwrite or reject)", s)
	}
}

// --------------------------------------------------------------------------
// Limits
// --------------------------------------------------------------------------

// Default validation ceilings. All of them can be overridden per store
// through the Limits struct.
const (
	DefaultMaxKeyLength  = 32        // Unicode characters per key
	DefaultMaxValueSize  = 16 * 1024 // bytes per serialized value
	DefaultMaxFileSize   = 1 << 30   // bytes for the whole store file
	DefaultMaxBatchItems = 100       // items per BatchCreate call
)

// Limits holds the validation ceilings of a store. A zero value in any
// field means "use the default".
type Limits struct {
	MaxKeyLength  int   `json:"max_key_length"`
	MaxValueSize  int   `json:"max_value_size"`
	MaxFileSize   int64 `json:"max_file_size"`
	MaxBatchItems int   `json:"max_batch_items"`
}

// DefaultLimits returns the default ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxKeyLength:  DefaultMaxKeyLength,
		MaxValueSize:  DefaultMaxValueSize,
		MaxFileSize:   DefaultMaxFileSize,
		MaxBatchItems: DefaultMaxBatchItems,
	}
}

// Normalize returns a copy of the limits with zero fields replaced by the
// defaults.
func (l Limits) Normalize() Limits {
	if l.MaxKeyLength <= 0 {
		l.MaxKeyLength = DefaultMaxKeyLength
	}
	if l.MaxValueSize <= 0 {
		l.MaxValueSize = DefaultMaxValueSize
	}
	if l.MaxFileSize <= 0 {
		l.MaxFileSize = DefaultMaxFileSize
	}
	if l.MaxBatchItems <= 0 {
		l.MaxBatchItems = DefaultMaxBatchItems
	}
	return l
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message and optionally the underlying cause of an I/O failure.
type Error struct {
	Code  RetCode // The return code
	Msg   string  // The error message
	cause error   // Underlying cause, nil for validation errors
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("KVStoreError (code %s): %s: %v", e.Code, e.Msg, e.cause)
	}
	return fmt.Sprintf("KVStoreError (code %s): %s", e.Code, e.Msg)
}

// Is matches errors by return code so that errors.Is(err, ErrKeyNotFound)
// works for any error produced by a store.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Unwrap returns the underlying cause, nil for validation errors.
func (e *Error) Unwrap() error {
	return e.cause
}

// NewError creates a new KVStoreError with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// WrapError creates a new KVStoreError that records err as the cause.
// Used for RetCIOFailure so callers can reach the original error via
// errors.Unwrap.
func WrapError(code RetCode, msg string, err error) *Error {
	return &Error{
		Code:  code,
		Msg:   msg,
		cause: err,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess        RetCode = iota // 0: Operation executed successfully.
	RetCKeyNotFound                   // 1: Read/delete on an absent or expired key.
	RetCKeyExists                     // 2: Duplicate create under the reject policy.
	RetCKeyTooLong                    // 3: Key empty or over the maximum length.
	RetCValueTooLarge                 // 4: Serialized value over the maximum size.
	RetCFileSizeLimit                 // 5: Projected store file size over the ceiling.
	RetCBatchSizeLimit                // 6: Batch item count over the limit.
	RetCInvalidValue                  // 7: Value not JSON-serializable.
	RetCInvalidKey                    // 8: Key not valid UTF-8.
	RetCStoreClosed                   // 9: Operation on a closed store.
	RetCIOFailure                     // 10: Lock timeout or read/write/parse failure.
)

// String returns the symbolic name of the return code.
func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCKeyNotFound:
		return "KeyNotFound"
	case RetCKeyExists:
		return "KeyExists"
	case RetCKeyTooLong:
		return "KeyTooLong"
	case RetCValueTooLarge:
		return "ValueTooLarge"
	case RetCFileSizeLimit:
		return "FileSizeLimitExceeded"
	case RetCBatchSizeLimit:
		return "BatchSizeLimitExceeded"
	case RetCInvalidValue:
		return "InvalidValue"
	case RetCInvalidKey:
		return "InvalidKey"
	case RetCStoreClosed:
		return "StoreClosed"
	case RetCIOFailure:
		return "IOFailure"
	default:
		return "Unknown"
	}
}

// Sentinel errors for use with errors.Is. Matching compares return codes,
// so any *Error produced by a store compares equal to its sentinel.
var (
	ErrKeyNotFound    = NewError(RetCKeyNotFound, "key not found")
	ErrKeyExists      = NewError(RetCKeyExists, "key already exists")
	ErrKeyTooLong     = NewError(RetCKeyTooLong, "key too long")
	ErrValueTooLarge  = NewError(RetCValueTooLarge, "value too large")
	ErrFileSizeLimit  = NewError(RetCFileSizeLimit, "file size limit exceeded")
	ErrBatchSizeLimit = NewError(RetCBatchSizeLimit, "batch size limit exceeded")
	ErrInvalidValue   = NewError(RetCInvalidValue, "value not serializable")
	ErrInvalidKey     = NewError(RetCInvalidKey, "key not valid UTF-8")
	ErrStoreClosed    = NewError(RetCStoreClosed, "store is closed")
	ErrIOFailure      = NewError(RetCIOFailure, "persistence failure")
)
