package service_test

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/gfmeira/gestor/internal/domain"
)

// memKV is an in-memory port.KeyValue for service tests.
type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (m *memKV) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memKV) Keys() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memKV) KeysWithPrefix(prefix string) ([]string, error) {
	all, _ := m.Keys()
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *memKV) GetJSON(key string, v any) (bool, error) {
	raw, ok, err := m.Get(key)
	if err != nil || !ok {
		return false, err
	}
	return true, json.Unmarshal(raw, v)
}

func (m *memKV) SetJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return m.Set(key, raw)
}

func (m *memKV) Usage() (domain.StorageUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var used int64
	for k, v := range m.data {
		used += int64(len(k) + len(v))
	}
	return domain.StorageUsage{UsedBytes: used, QuotaBytes: domain.MaxFileSize}, nil
}

// mockExternalStore is a fake of the remote HTTP store with injectable
// failures and a record of everything pushed to it.
type mockExternalStore struct {
	mu      sync.Mutex
	records map[string][]map[string]any
	backups map[string]*domain.BackupSnapshot
	created []map[string]any
	deleted []string

	listErr   error
	createErr error
	putErr    error
	getErr    error
}

func newMockExternalStore() *mockExternalStore {
	return &mockExternalStore{
		records: make(map[string][]map[string]any),
		backups: make(map[string]*domain.BackupSnapshot),
	}
}

func (m *mockExternalStore) ListRecords(_ context.Context, entity string) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.records[entity], nil
}

func (m *mockExternalStore) CreateRecord(_ context.Context, entity string, record map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.records[entity] = append(m.records[entity], record)
	m.created = append(m.created, record)
	return nil
}

func (m *mockExternalStore) UpdateRecord(_ context.Context, entity, id string, record map[string]any) error {
	return nil
}

func (m *mockExternalStore) DeleteRecord(_ context.Context, entity, id string) error {
	return nil
}

func (m *mockExternalStore) PutBackup(_ context.Context, date string, snapshot *domain.BackupSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.backups[date] = snapshot
	return nil
}

func (m *mockExternalStore) GetBackup(_ context.Context, date string) (*domain.BackupSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	snapshot, ok := m.backups[date]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "backup", ID: date}
	}
	return snapshot, nil
}

func (m *mockExternalStore) DeleteBackup(_ context.Context, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.backups, date)
	m.deleted = append(m.deleted, date)
	return nil
}
