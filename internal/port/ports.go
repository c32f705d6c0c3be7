// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/gfmeira/gestor/internal/domain"
)

// KeyValue is the narrow store interface that replaced ad hoc
// local-storage key access. Values are opaque byte slices; most callers
// use the JSON helpers. Implemented by the bbolt-backed localstore.
type KeyValue interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Keys() ([]string, error)
	KeysWithPrefix(prefix string) ([]string, error)
	GetJSON(key string, v any) (bool, error)
	SetJSON(key string, v any) error
	Usage() (domain.StorageUsage, error)
}

// ExternalStore is the unauthenticated remote HTTP store used for
// collection sync and backups (the /bancoexterno paths).
type ExternalStore interface {
	ListRecords(ctx context.Context, entity string) ([]map[string]any, error)
	CreateRecord(ctx context.Context, entity string, record map[string]any) error
	UpdateRecord(ctx context.Context, entity, id string, record map[string]any) error
	DeleteRecord(ctx context.Context, entity, id string) error

	PutBackup(ctx context.Context, date string, snapshot *domain.BackupSnapshot) error
	GetBackup(ctx context.Context, date string) (*domain.BackupSnapshot, error)
	DeleteBackup(ctx context.Context, date string) error
}

// EntityAPI is the backend-as-a-service CRUD interface consumed by the
// catalog service, one logical table per entity name.
type EntityAPI interface {
	List(ctx context.Context, entity string) ([]map[string]any, error)
	Get(ctx context.Context, entity, id string) (map[string]any, error)
	Create(ctx context.Context, entity string, data map[string]any) (map[string]any, domain.Source, error)
	Update(ctx context.Context, entity, id string, data map[string]any) (domain.Source, error)
	Delete(ctx context.Context, entity, id string) error
	BulkCreate(ctx context.Context, entity string, records []map[string]any) (domain.Source, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
