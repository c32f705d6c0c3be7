// Package localstore is the embedded key-value store that took over
// the role browser local storage played in the original frontend-only
// app: one flat namespace of string keys holding JSON blobs, with a
// small quota. Backed by bbolt so writes survive restarts and tests
// can open isolated databases.
package localstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gfmeira/gestor/internal/domain"
	bolt "go.etcd.io/bbolt"
)

const (
	// dirPerm is the permission mode for the data directory.
	dirPerm = fs.FileMode(0o700)

	// filePerm is the permission mode for the database file.
	filePerm = fs.FileMode(0o600)

	// openTimeout is the maximum time to wait for the bolt file lock.
	openTimeout = 5 * time.Second

	// DefaultQuota mirrors the ~5MB local-storage budget the original
	// app lived within.
	DefaultQuota = int64(5 * 1024 * 1024)
)

var dataBucket = []byte("data")

// Store wraps a bbolt database holding the application's key-value state.
type Store struct {
	db    *bolt.DB
	quota int64
}

// Open opens (or creates) the store at path with the given quota.
// A quota of 0 means DefaultQuota.
func Open(path string, quota int64) (*Store, error) {
	if quota <= 0 {
		quota = DefaultQuota
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := bolt.Open(path, filePerm, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(dataBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &Store{db: db, quota: quota}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the raw value for key. The second return is false when
// the key is absent.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(dataBucket).Get([]byte(key))
		if v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, value != nil, nil
}

// Set writes value under key, enforcing the quota. Replacing a key
// counts only the delta, so edits to large values don't false-trip.
func (s *Store) Set(key string, value []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(dataBucket)

		used := usedBytes(b)
		if prev := b.Get([]byte(key)); prev != nil {
			used -= int64(len(key) + len(prev))
		}
		if used+int64(len(key)+len(value)) > s.quota {
			return &domain.ErrQuotaExceeded{Used: used, Quota: s.quota}
		}

		return b.Put([]byte(key), value)
	})
	if err != nil {
		var quotaErr *domain.ErrQuotaExceeded
		if errors.As(err, &quotaErr) {
			return err
		}
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(dataBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Keys returns every key in the store, in byte order.
func (s *Store) Keys() ([]string, error) {
	return s.KeysWithPrefix("")
}

// KeysWithPrefix returns all keys starting with prefix, in byte order.
func (s *Store) KeysWithPrefix(prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(dataBucket).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("keys with prefix %q: %w", prefix, err)
	}
	return keys, nil
}

// GetJSON unmarshals the value under key into v. Returns false when
// the key is absent, leaving v untouched.
func (s *Store) GetJSON(key string, v any) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// SetJSON marshals v and stores it under key.
func (s *Store) SetJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return s.Set(key, raw)
}

// Usage sums key and value byte lengths against the quota, the same
// accounting the original app applied to local storage.
func (s *Store) Usage() (domain.StorageUsage, error) {
	var used int64
	err := s.db.View(func(tx *bolt.Tx) error {
		used = usedBytes(tx.Bucket(dataBucket))
		return nil
	})
	if err != nil {
		return domain.StorageUsage{}, fmt.Errorf("usage: %w", err)
	}
	return domain.StorageUsage{
		UsedBytes:  used,
		QuotaBytes: s.quota,
		Percent:    float64(used) / float64(s.quota) * 100,
	}, nil
}

func usedBytes(b *bolt.Bucket) int64 {
	var used int64
	_ = b.ForEach(func(k, v []byte) error {
		used += int64(len(k) + len(v))
		return nil
	})
	return used
}
