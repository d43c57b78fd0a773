// Package store encapsulates the badger database that persists moderation
// state under the configured data path.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"tg_antispam_bot/internal/config"
)

// Well-known keys. Per-chat state lives under ChatKey(chatID).
const (
	KeyGlobal     = "global"
	chatKeyPrefix = "chat:"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("store: key not found")

// openBadger is overridable for tests.
var openBadger = func(opts badger.Options) (*badger.DB, error) {
	return badger.Open(opts)
}

// Manager owns the badger database handle.
type Manager struct {
	db *badger.DB
}

// Open initializes the badger database at the configured data path, creating
// the directory when missing.
func Open(cfg config.Config) (*Manager, error) {
	if strings.TrimSpace(cfg.DataPath) == "" {
		return nil, errors.New("data path is required")
	}

	opts := badger.DefaultOptions(cfg.DataPath).WithLogger(nil)

	db, err := openBadger(opts)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	return &Manager{db: db}, nil
}

// OpenInMemory initializes an ephemeral badger database. Used in tests.
func OpenInMemory() (*Manager, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)

	db, err := openBadger(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory state database: %w", err)
	}

	return &Manager{db: db}, nil
}

// ChatKey returns the storage key for a chat's probation state.
func ChatKey(chatID int64) string {
	return chatKeyPrefix + strconv.FormatInt(chatID, 10)
}

// Get decodes the JSON value stored under key into out. Returns ErrNotFound
// when the key is absent.
func (m *Manager) Get(key string, out interface{}) error {
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}

	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("get %s: %w", key, err)
	}

	return nil
}

// Set encodes value as JSON and writes it under key.
func (m *Manager) Set(key string, value interface{}) error {
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	if err := m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	}); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	return nil
}

// SetBatch writes all entries inside a single transaction; used by the state
// flush so a crash mid-flush cannot persist half a snapshot.
func (m *Manager) SetBatch(entries map[string]interface{}) error {
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}
	if len(entries) == 0 {
		return nil
	}

	encoded := make(map[string][]byte, len(entries))
	for key, value := range entries {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		encoded[key] = data
	}

	if err := m.db.Update(func(txn *badger.Txn) error {
		for key, data := range encoded {
			if err := txn.Set([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}

	return nil
}

// ForEachChat calls fn with every persisted per-chat record. Records whose
// key suffix is not a valid chat id are skipped.
func (m *Manager) ForEachChat(fn func(chatID int64, value []byte) error) error {
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}
	if fn == nil {
		return errors.New("callback is required")
	}

	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(chatKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			chatID, err := strconv.ParseInt(strings.TrimPrefix(string(item.Key()), chatKeyPrefix), 10, 64)
			if err != nil {
				continue
			}

			if err := item.Value(func(val []byte) error {
				return fn(chatID, val)
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("iterate chats: %w", err)
	}

	return nil
}

// Healthy reports whether the database is open and usable.
func (m *Manager) Healthy() error {
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}
	if m.db.IsClosed() {
		return errors.New("state database is closed")
	}

	return nil
}

// Close releases the badger handle, flushing pending writes.
func (m *Manager) Close() error {
	if m == nil || m.db == nil {
		return nil
	}

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("close state database: %w", err)
	}

	return nil
}
