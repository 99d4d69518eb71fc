// Package store persists bundle snapshots by key. It is the raw data source strategies
// load from and the sink pipelines save to.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Aidin1998/bundleprep/internal/bundle"
	"github.com/Aidin1998/bundleprep/pkg/errors"
	"github.com/dgraph-io/badger/v3"
)

// Store defines the persistence used by load and save strategies.
type Store interface {
	// Save persists snap under key, replacing any previous value.
	Save(ctx context.Context, key string, snap *bundle.Snapshot) error

	// Load retrieves the snapshot stored under key.
	Load(ctx context.Context, key string) (*bundle.Snapshot, error)

	// List returns the stored keys in sorted order.
	List(ctx context.Context) ([]string, error)

	Close() error
}

const keyPrefix = "bundle:"

func notFound(key string) error {
	return errors.NotFoundf("bundle %q not found", key).WithField("missing", key, "not stored")
}

func checkKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.Configurationf("empty bundle key").WithField("invalid", "bundle_key", "empty")
	}
	return nil
}

// BadgerStore persists snapshots as JSON in BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens a store at path, or an in-memory one when inMemory is set.
func NewBadgerStore(path string, inMemory bool) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Save stores the snapshot under bundle:<key>.
func (s *BadgerStore) Save(ctx context.Context, key string, snap *bundle.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKey(key); err != nil {
		return err
	}
	value, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode bundle %q: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), value)
	})
}

// Load returns the snapshot stored under key.
func (s *BadgerStore) Load(ctx context.Context, key string) (*bundle.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkKey(key); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, err
	}
	var snap bundle.Snapshot
	if err := json.Unmarshal(value, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode bundle %q: %w", key, err)
	}
	return &snap, nil
}

// List returns every stored bundle key.
func (s *BadgerStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, strings.TrimPrefix(string(it.Item().Key()), keyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// MemoryStore keeps encoded snapshots in a map.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

func (m *MemoryStore) Save(ctx context.Context, key string, snap *bundle.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKey(key); err != nil {
		return err
	}
	value, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode bundle %q: %w", key, err)
	}
	m.mu.Lock()
	m.items[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, key string) (*bundle.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkKey(key); err != nil {
		return nil, err
	}
	m.mu.RLock()
	value, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, notFound(key)
	}
	var snap bundle.Snapshot
	if err := json.Unmarshal(value, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode bundle %q: %w", key, err)
	}
	return &snap, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Close() error { return nil }
