// Package store persists library and playback state in a Badger key-value
// database. Every record is JSON under a typed key prefix; secondary lookups
// go through small index keys written in the same transaction as the record.
package store

import (
	"encoding/json/v2"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/aloudapp/aloud-server/internal/logger"
)

// Store wraps a Badger database instance.
type Store struct {
	db  *badger.DB
	log *logger.Logger
}

// New opens (or creates) the database at path.
func New(path string, log *logger.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Badger's own logging is noise at our level
	opts.SyncWrites = true       // survive crashes without replaying corrupt tails
	opts.CompactL0OnClose = true // faster startup next time

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	s := &Store{db: db, log: log}
	if log != nil {
		log.Info("database opened", "path", path)
	}
	return s, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	if s.log != nil {
		s.log.Info("closing database")
	}
	return s.db.Close()
}

// RunGC runs one round of Badger value-log garbage collection. Safe to call
// periodically; returns without error when there is nothing to collect.
func (s *Store) RunGC() error {
	err := s.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// Helper methods for database operations.

// get retrieves a JSON value by key.
func (s *Store) get(key []byte, dest any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dest)
		})
	})
}

// set stores a JSON value by key.
func (s *Store) set(key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// delete removes a key.
func (s *Store) delete(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// exists checks if a key exists.
func (s *Store) exists(key []byte) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
