// Package internal holds the in-memory table of the file-backed store and
// its on-disk JSON codec. The table itself carries no locking: the owning
// store serializes all access through its own mutex.
package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Entry
// --------------------------------------------------------------------------

// Entry is one record of the table: the serialized JSON value and the
// absolute expiry as seconds since the Unix epoch. ExpireAt == 0 means
// the entry never expires.
type Entry struct {
	Value    json.RawMessage
	ExpireAt float64
}

// Expired reports whether the entry's expiry is set and has passed. The
// comparison is strict: at now == ExpireAt the entry is still live.
func (e Entry) Expired(now float64) bool {
	return e.ExpireAt != 0 && now > e.ExpireAt
}

// --------------------------------------------------------------------------
// Table
// --------------------------------------------------------------------------

// Table is the authoritative in-memory state, a plain map from key to Entry.
type Table map[string]Entry

// SweepExpired removes every entry whose expiry has passed and returns the
// number of evicted entries.
func (t Table) SweepExpired(now float64) int {
	evicted := 0
	for key, entry := range t {
		if entry.Expired(now) {
			delete(t, key)
			evicted++
		}
	}
	return evicted
}

// --------------------------------------------------------------------------
// Wire format
// --------------------------------------------------------------------------

// entryDTO is the on-disk shape of one entry. Expiry is a pointer so a
// never-expiring entry round-trips as JSON null.
type entryDTO struct {
	Value  json.RawMessage `json:"value"`
	Expiry *float64        `json:"expiry"`
}

func toDTO(entry Entry) entryDTO {
	dto := entryDTO{Value: entry.Value}
	if entry.ExpireAt != 0 {
		expiry := entry.ExpireAt
		dto.Expiry = &expiry
	}
	return dto
}

func fromDTO(dto entryDTO) Entry {
	entry := Entry{Value: dto.Value}
	if dto.Expiry != nil {
		entry.ExpireAt = *dto.Expiry
	}
	return entry
}

// EncodeTable serializes the full table as one JSON object keyed by entry
// key. The snapshot has no header or version field, the whole file is the
// table.
func EncodeTable(t Table) ([]byte, error) {
	out := make(map[string]entryDTO, len(t))
	for key, entry := range t {
		out[key] = toDTO(entry)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode table: %w", err)
	}
	return data, nil
}

// DecodeTable parses a serialized table snapshot. Empty input (including
// an all-whitespace file) yields an empty table.
func DecodeTable(data []byte) (Table, error) {
	t := make(Table)
	if len(bytes.TrimSpace(data)) == 0 {
		return t, nil
	}

	var raw map[string]entryDTO
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode table: %w", err)
	}
	for key, dto := range raw {
		t[key] = fromDTO(dto)
	}
	return t, nil
}

// EncodedEntrySize returns the serialized size of a one-entry object
// {key: entry}. This is the growth a new key adds to the snapshot, used
// for the file size ceiling projection.
func EncodedEntrySize(key string, entry Entry) (int, error) {
	data, err := json.Marshal(map[string]entryDTO{key: toDTO(entry)})
	if err != nil {
		return 0, fmt.Errorf("encode entry %q: %w", key, err)
	}
	return len(data), nil
}
