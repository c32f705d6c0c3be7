package service

import (
	"context"
	"errors"
	"time"

	"github.com/gfmeira/gestor/internal/domain"
	"github.com/gfmeira/gestor/internal/infra/observability"
	"github.com/gfmeira/gestor/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var backupTracer = otel.Tracer("service/backup")

const backupDateLayout = "2006-01-02"

// backupAllowlist is the fixed set of keys a snapshot covers. Keys
// prefixed manual_audio_ are collected separately.
var backupAllowlist = []string{
	keyAppUsers,
	keyCashMovements,
	keyMarketplaceOrders,
	keyProductsMeta,
	keyAlertMode,
	keyAlertInterval,
	keyMarketplaceMode,
}

// BackupService snapshots the allowlisted local-store keys once per
// day, pushing to the external store with a local fallback, and prunes
// snapshots past the retention window. Restore blind-overwrites the
// covered keys — last restore wins, no merging.
type BackupService struct {
	kv        port.KeyValue
	remote    port.ExternalStore
	retention time.Duration
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time // injectable clock for retention tests
}

// NewBackupService creates the backup service.
func NewBackupService(kv port.KeyValue, remote port.ExternalStore, retention time.Duration, metrics *observability.Metrics, logger *zap.Logger) *BackupService {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &BackupService{
		kv:        kv,
		remote:    remote,
		retention: retention,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Perform takes a snapshot and stores it. Unless force is set, it is a
// no-op when a backup already ran today (the scheduler calls it with
// force=false, the manual endpoint with force=true). The result says
// whether the snapshot landed remotely or fell back to the local store;
// it is one or the other, never both.
func (b *BackupService) Perform(ctx context.Context, force bool) (*domain.BackupResult, error) {
	ctx, span := backupTracer.Start(ctx, "Backup.Perform")
	defer span.End()

	now := b.now()
	date := now.Format(backupDateLayout)

	if !force {
		raw, ok, err := b.kv.Get(keyLastBackupDate)
		if err != nil {
			return nil, err
		}
		if ok && string(raw) == date {
			b.logger.Debug("backup: already ran today", zap.String("date", date))
			return nil, nil
		}
	}

	snapshot, err := b.buildSnapshot(now)
	if err != nil {
		return nil, err
	}

	result := &domain.BackupResult{
		Timestamp: snapshot.Timestamp,
		Date:      date,
		Keys:      len(snapshot.Data),
	}

	if err := b.remote.PutBackup(ctx, date, snapshot); err != nil {
		b.logger.Warn("backup: remote push failed, falling back to local store",
			zap.String("date", date),
			zap.Error(err),
		)
		b.metrics.IncrExternalError("external-store/backups")
		b.metrics.IncrFallbackWrite("backup")
		if err := b.kv.SetJSON(backupKeyPrefix+date, snapshot); err != nil {
			return nil, err
		}
		result.Source = domain.SourceLocal
	} else {
		result.Source = domain.SourceRemote
	}
	b.metrics.IncrBackup(string(result.Source))

	if err := b.kv.Set(keyLastBackupDate, []byte(date)); err != nil {
		return nil, err
	}
	if err := b.appendToList(domain.BackupEntry{
		Timestamp: snapshot.Timestamp,
		Date:      date,
		Source:    result.Source,
	}); err != nil {
		return nil, err
	}

	b.logger.Info("backup: snapshot stored",
		zap.String("date", date),
		zap.String("source", string(result.Source)),
		zap.Int("keys", result.Keys),
	)
	span.SetAttributes(attribute.String("source", string(result.Source)))
	return result, nil
}

func (b *BackupService) buildSnapshot(now time.Time) (*domain.BackupSnapshot, error) {
	snapshot := &domain.BackupSnapshot{
		Timestamp: now.Format(time.RFC3339),
		Data:      make(map[string]string),
	}

	collect := func(key string) error {
		raw, ok, err := b.kv.Get(key)
		if err != nil {
			return err
		}
		if ok {
			snapshot.Data[key] = string(raw)
		}
		return nil
	}

	for _, key := range backupAllowlist {
		if err := collect(key); err != nil {
			return nil, err
		}
	}

	audioKeys, err := b.kv.KeysWithPrefix(manualAudioPrefix)
	if err != nil {
		return nil, err
	}
	for _, key := range audioKeys {
		if err := collect(key); err != nil {
			return nil, err
		}
	}

	return snapshot, nil
}

func (b *BackupService) appendToList(entry domain.BackupEntry) error {
	var list []domain.BackupEntry
	if _, err := b.kv.GetJSON(keyBackupList, &list); err != nil {
		return err
	}
	list = append(list, entry)
	return b.kv.SetJSON(keyBackupList, list)
}

// List returns the tracked backup entries, newest first.
func (b *BackupService) List() ([]domain.BackupEntry, error) {
	var list []domain.BackupEntry
	if _, err := b.kv.GetJSON(keyBackupList, &list); err != nil {
		return nil, err
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

// CleanOld drops backups older than the retention window: the tracked
// list is rewritten, local snapshot keys deleted, and remote snapshots
// removed best-effort (an unreachable store never blocks pruning).
func (b *BackupService) CleanOld(ctx context.Context) (int, error) {
	ctx, span := backupTracer.Start(ctx, "Backup.CleanOld")
	defer span.End()

	var list []domain.BackupEntry
	found, err := b.kv.GetJSON(keyBackupList, &list)
	if err != nil || !found {
		return 0, err
	}

	cutoff := b.now().Add(-b.retention)
	kept := list[:0]
	removed := 0
	for _, entry := range list {
		t, err := time.Parse(time.RFC3339, entry.Timestamp)
		if err == nil && t.Before(cutoff) {
			if err := b.remote.DeleteBackup(ctx, entry.Date); err != nil {
				b.logger.Debug("backup: remote prune failed",
					zap.String("date", entry.Date),
					zap.Error(err),
				)
			}
			if err := b.kv.Delete(backupKeyPrefix + entry.Date); err != nil {
				return removed, err
			}
			removed++
			continue
		}
		kept = append(kept, entry)
	}

	if removed > 0 {
		if err := b.kv.SetJSON(keyBackupList, kept); err != nil {
			return removed, err
		}
		b.logger.Info("backup: pruned old snapshots", zap.Int("removed", removed))
	}
	return removed, nil
}

// Restore fetches the snapshot for the given timestamp (remote first,
// then the local fallback key) and overwrites every covered key with
// the snapshot's value. No merge, no conflict check. Returns where the
// snapshot was found, or ErrNotFound when neither side has it.
func (b *BackupService) Restore(ctx context.Context, timestamp string) (*domain.BackupResult, error) {
	ctx, span := backupTracer.Start(ctx, "Backup.Restore")
	defer span.End()

	date := timestamp
	if t, err := time.Parse(time.RFC3339, timestamp); err == nil {
		date = t.Format(backupDateLayout)
	}
	span.SetAttributes(attribute.String("date", date))

	source := domain.SourceRemote
	snapshot, err := b.remote.GetBackup(ctx, date)
	if err != nil {
		var notFound *domain.ErrNotFound
		if !errors.As(err, &notFound) {
			b.logger.Warn("backup: remote restore fetch failed, trying local",
				zap.String("date", date),
				zap.Error(err),
			)
		}
		snapshot = nil
	}
	if snapshot == nil {
		var local domain.BackupSnapshot
		found, err := b.kv.GetJSON(backupKeyPrefix+date, &local)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, &domain.ErrNotFound{Resource: "backup", ID: timestamp}
		}
		snapshot = &local
		source = domain.SourceLocal
	}

	for key, raw := range snapshot.Data {
		if err := b.kv.Set(key, []byte(raw)); err != nil {
			return nil, err
		}
	}

	b.logger.Info("backup: snapshot restored",
		zap.String("date", date),
		zap.String("source", string(source)),
		zap.Int("keys", len(snapshot.Data)),
	)
	return &domain.BackupResult{
		Timestamp: snapshot.Timestamp,
		Date:      date,
		Source:    source,
		Keys:      len(snapshot.Data),
	}, nil
}
