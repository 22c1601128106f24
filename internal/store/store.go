// Package store persists the item list and step history of load runs in
// a bbolt database, so a later step can read back what an earlier one
// wrote.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"go.etcd.io/bbolt"

	"github.com/ehrlich-b/go-aio/internal/data"
)

var (
	// ErrStepNotFound is returned when a step is not in the store
	ErrStepNotFound = errors.New("step not found")
)

var (
	itemsBucket = []byte("items")
	stepsBucket = []byte("steps")
	metaBucket  = []byte("meta")

	inputKey = []byte("input")
)

// ItemRecord is an item together with the directory holding it
type ItemRecord struct {
	data.Record
	Path string `json:"path"`
	Step string `json:"step"`
}

// Key identifies the item in the store. The same item may live under
// several paths after a copy.
func (r ItemRecord) Key() string {
	return path.Join(r.Path, r.Name)
}

// StepRecord describes one finished load step
type StepRecord struct {
	ID        string        `json:"id"`
	Op        string        `json:"op"`
	SrcPath   string        `json:"src_path,omitempty"`
	DstPath   string        `json:"dst_path,omitempty"`
	Count     int           `json:"count"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Started   time.Time     `json:"started"`
	Elapsed   time.Duration `json:"elapsed"`
	Error     string        `json:"error,omitempty"`
}

// InputRecord is the content source all stored items derive from
type InputRecord struct {
	Seed uint64 `json:"seed"`
	Size int    `json:"size"`
}

// Store is a bbolt-backed item and step store
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the database at path
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{itemsBucket, stepsBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Path returns the database file path
func (s *Store) Path() string { return s.db.Path() }

// SaveItems stores or replaces the given items in one transaction
func (s *Store) SaveItems(items []ItemRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(itemsBucket)
		for _, it := range items {
			raw, err := json.Marshal(it)
			if err != nil {
				return fmt.Errorf("failed to marshal item %s: %w", it.Name, err)
			}
			if err := b.Put([]byte(it.Key()), raw); err != nil {
				return fmt.Errorf("failed to put item %s: %w", it.Name, err)
			}
		}
		return nil
	})
}

// Items returns every stored item in key order
func (s *Store) Items() ([]ItemRecord, error) {
	var items []ItemRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(itemsBucket).ForEach(func(k, v []byte) error {
			var it ItemRecord
			if err := json.Unmarshal(v, &it); err != nil {
				return fmt.Errorf("failed to unmarshal item %s: %w", k, err)
			}
			items = append(items, it)
			return nil
		})
	})
	return items, err
}

// DeleteItems removes items by key
func (s *Store) DeleteItems(keys ...string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(itemsBucket)
		for _, key := range keys {
			if err := b.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ItemCount returns the number of stored items
func (s *Store) ItemCount() (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(itemsBucket).Stats().KeyN
		return nil
	})
	return n, err
}

// SaveStep records a finished step
func (s *Store) SaveStep(step *StepRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		raw, err := json.Marshal(step)
		if err != nil {
			return fmt.Errorf("failed to marshal step: %w", err)
		}
		return tx.Bucket(stepsBucket).Put([]byte(step.ID), raw)
	})
}

// GetStep returns a recorded step
func (s *Store) GetStep(id string) (*StepRecord, error) {
	var step StepRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(stepsBucket).Get([]byte(id))
		if raw == nil {
			return ErrStepNotFound
		}
		if err := json.Unmarshal(raw, &step); err != nil {
			return fmt.Errorf("failed to unmarshal step: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &step, nil
}

// SaveInput records the content source. Items stored later must be read
// back with the same input.
func (s *Store) SaveInput(in InputRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		return tx.Bucket(metaBucket).Put(inputKey, raw)
	})
}

// Input returns the recorded content source, if any
func (s *Store) Input() (InputRecord, bool, error) {
	var in InputRecord
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(metaBucket).Get(inputKey)
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &in)
	})
	return in, found, err
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}
