package fstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lbraun/sKV/lib/store"
	"github.com/lbraun/sKV/lib/store/fstore/internal"
)

// --------------------------------------------------------------------------
// Snapshot Loading
// --------------------------------------------------------------------------

// load reads the store file into the in-memory table. A missing file is
// not an error: the store starts empty and the file appears on the first
// persisted mutation. Called from New before the store is shared, so no
// mutex is required.
func (s *Store) load() error {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		s.table = make(internal.Table)
		s.fileSize = 0
		s.logger.Info("store file does not exist yet, starting empty", "path", s.path)
		return nil
	}

	if err := s.locker.Acquire(s.lockTimeout); err != nil {
		return store.WrapError(store.RetCIOFailure, fmt.Sprintf("lock store file %q for loading", s.path), err)
	}
	defer func() { _ = s.locker.Release() }()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return store.WrapError(store.RetCIOFailure, fmt.Sprintf("read store file %q", s.path), err)
	}

	table, err := internal.DecodeTable(data)
	if err != nil {
		return store.WrapError(store.RetCIOFailure, fmt.Sprintf("decode store file %q", s.path), err)
	}

	s.table = table
	s.fileSize = int64(len(data))
	for _, entry := range table {
		s.sizes.AddSample(len(entry.Value))
	}

	s.logger.Info("store file loaded", "path", s.path, "keys", len(table), "bytes", len(data))
	return nil
}

// --------------------------------------------------------------------------
// Snapshot Persistence
// --------------------------------------------------------------------------

// saveLocked serializes the full table and rewrites the store file under
// the advisory lock. The table keeps its new state even when persistence
// fails; the error surfaces to the caller and the next successful save
// writes the current state. Callers must hold s.mu.
func (s *Store) saveLocked() error {
	data, err := internal.EncodeTable(s.table)
	if err != nil {
		return store.WrapError(store.RetCIOFailure, fmt.Sprintf("encode store file %q", s.path), err)
	}

	if err := s.locker.Acquire(s.lockTimeout); err != nil {
		return store.WrapError(store.RetCIOFailure, fmt.Sprintf("lock store file %q for writing", s.path), err)
	}
	defer func() { _ = s.locker.Release() }()

	if err := writeFileAtomic(s.path, data); err != nil {
		return store.WrapError(store.RetCIOFailure, fmt.Sprintf("write store file %q", s.path), err)
	}

	s.fileSize = int64(len(data))
	s.stats.persists.Inc()
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path. Readers either see the previous snapshot or the
// new one, never a torn write. This is also why the advisory lock lives
// in a sidecar file: the rename would detach a lock held on the store
// file itself from the path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	return nil
}
