package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gfmeira/gestor/internal/domain"
	"github.com/gfmeira/gestor/internal/infra/observability"
	"github.com/gfmeira/gestor/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var syncTracer = otel.Tracer("service/sync")

// syncCollection names one tracked collection and the field that
// identifies its records.
type syncCollection struct {
	name    string
	idField string
}

// syncedCollections are reconciled in this order on every cycle.
var syncedCollections = []syncCollection{
	{name: keyCashMovements, idField: "id"},
	{name: keyMarketplaceOrders, idField: "id"},
	{name: keyAppUsers, idField: "username"},
}

// SyncService reconciles the tracked collections between the local
// store and the external HTTP store. The policy is deliberately crude:
// union by id, the local record wins wholesale on conflict, remote-only
// records are appended as-is. A remote edit to a record that also
// exists locally is dropped — single-writer assumption inherited from
// the original app.
type SyncService struct {
	kv      port.KeyValue
	remote  port.ExternalStore
	metrics *observability.Metrics
	logger  *zap.Logger
	sf      singleflight.Group
}

// NewSyncService creates the sync service.
func NewSyncService(kv port.KeyValue, remote port.ExternalStore, metrics *observability.Metrics, logger *zap.Logger) *SyncService {
	return &SyncService{
		kv:      kv,
		remote:  remote,
		metrics: metrics,
		logger:  logger,
	}
}

// SyncAll runs one sync cycle across all tracked collections,
// sequentially and in a fixed order. A collection that fails is logged
// and reported but never aborts the rest of the cycle. Concurrent
// callers (a manual trigger racing the scheduled tick) share a single
// in-flight cycle.
func (s *SyncService) SyncAll(ctx context.Context) (*domain.SyncReport, error) {
	v, err, _ := s.sf.Do("sync-all", func() (any, error) {
		return s.runCycle(ctx), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.SyncReport), nil
}

func (s *SyncService) runCycle(ctx context.Context) *domain.SyncReport {
	ctx, span := syncTracer.Start(ctx, "Sync.Cycle")
	defer span.End()

	start := time.Now()
	report := &domain.SyncReport{
		StartedAt: start.Format(time.RFC3339),
	}

	for _, col := range syncedCollections {
		result := s.syncCollection(ctx, col)
		report.Collections = append(report.Collections, result)

		if result.Error != "" {
			s.metrics.IncrSyncCollection(col.name, "error")
			s.logger.Warn("sync: collection failed, skipping until next cycle",
				zap.String("collection", col.name),
				zap.String("error", result.Error),
			)
			continue
		}
		s.metrics.IncrSyncCollection(col.name, "ok")
		s.logger.Debug("sync: collection reconciled",
			zap.String("collection", col.name),
			zap.Int("merged", result.Merged),
			zap.Int("pulled", result.Pulled),
			zap.Int("pushed", result.Pushed),
		)
	}

	report.Duration = time.Since(start).String()
	return report
}

// SyncCashMovements reconciles just the cash_movements collection.
// Kept for the manual per-collection triggers the dashboard exposes.
func (s *SyncService) SyncCashMovements(ctx context.Context) (domain.CollectionSync, error) {
	return s.syncOne(ctx, keyCashMovements)
}

// SyncMarketplaceOrders reconciles just the marketplace_orders collection.
func (s *SyncService) SyncMarketplaceOrders(ctx context.Context) (domain.CollectionSync, error) {
	return s.syncOne(ctx, keyMarketplaceOrders)
}

// SyncUsers reconciles just the app_users collection.
func (s *SyncService) SyncUsers(ctx context.Context) (domain.CollectionSync, error) {
	return s.syncOne(ctx, keyAppUsers)
}

func (s *SyncService) syncOne(ctx context.Context, name string) (domain.CollectionSync, error) {
	for _, col := range syncedCollections {
		if col.name != name {
			continue
		}
		result := s.syncCollection(ctx, col)
		if result.Error != "" {
			s.metrics.IncrSyncCollection(col.name, "error")
			return result, fmt.Errorf("sync %s: %s", name, result.Error)
		}
		s.metrics.IncrSyncCollection(col.name, "ok")
		return result, nil
	}
	return domain.CollectionSync{}, &domain.ErrValidation{Field: "collection", Message: "unknown collection " + name}
}

// syncCollection performs one collection's read-merge-write-push pass.
// The remote snapshot taken before the merge decides what gets pushed;
// the merged array is written locally before any push so a push failure
// never loses the pulled records.
func (s *SyncService) syncCollection(ctx context.Context, col syncCollection) domain.CollectionSync {
	ctx, span := syncTracer.Start(ctx, "Sync.Collection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", col.name))

	result := domain.CollectionSync{Name: col.name}

	var local []map[string]any
	if _, err := s.kv.GetJSON(col.name, &local); err != nil {
		result.Error = fmt.Sprintf("read local: %v", err)
		return result
	}

	remote, err := s.remote.ListRecords(ctx, col.name)
	if err != nil {
		result.Error = fmt.Sprintf("fetch remote: %v", err)
		return result
	}

	merged, toPush := Merge(local, remote, col.idField)
	result.Merged = len(merged)
	result.Pulled = len(merged) - len(local)

	if err := s.kv.SetJSON(col.name, merged); err != nil {
		result.Error = fmt.Sprintf("write merged: %v", err)
		return result
	}

	// Records the remote has never seen are posted individually; no
	// batching, matching the store's per-record POST surface.
	for _, rec := range toPush {
		if err := s.remote.CreateRecord(ctx, col.name, rec); err != nil {
			result.Error = fmt.Sprintf("push record: %v", err)
			break
		}
		result.Pushed++
	}
	if result.Pushed > 0 {
		s.metrics.AddRecordsPushed(col.name, result.Pushed)
	}

	return result
}

// Merge unions local and remote arrays by idField. The local version
// wins wholesale when both sides hold the same id; remote-only records
// are appended in their remote order. The second return lists local
// records absent from the remote snapshot, i.e. what needs pushing.
// Records without an id value are kept locally but never pushed —
// there is nothing to identify them by on the other side.
func Merge(local, remote []map[string]any, idField string) (merged, toPush []map[string]any) {
	merged = make([]map[string]any, 0, len(local)+len(remote))

	localIDs := make(map[string]struct{}, len(local))
	for _, rec := range local {
		merged = append(merged, rec)
		if id := stringField(rec, idField); id != "" {
			localIDs[id] = struct{}{}
		}
	}

	remoteIDs := make(map[string]struct{}, len(remote))
	for _, rec := range remote {
		id := stringField(rec, idField)
		if id != "" {
			remoteIDs[id] = struct{}{}
		}
		if id == "" {
			continue
		}
		if _, exists := localIDs[id]; !exists {
			merged = append(merged, rec)
			localIDs[id] = struct{}{}
		}
	}

	for _, rec := range local {
		id := stringField(rec, idField)
		if id == "" {
			continue
		}
		if _, exists := remoteIDs[id]; !exists {
			toPush = append(toPush, rec)
		}
	}

	return merged, toPush
}

func stringField(rec map[string]any, field string) string {
	v, _ := rec[field].(string)
	return v
}
