package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gfmeira/gestor/internal/domain"
	"github.com/gfmeira/gestor/internal/infra/observability"
	"github.com/gfmeira/gestor/internal/service"

	"go.uber.org/zap"
)

func newBackupService(kv *memKV, remote *mockExternalStore) *service.BackupService {
	return service.NewBackupService(kv, remote, 7*24*time.Hour, observability.NewMetrics(), zap.NewNop())
}

func TestBackup_RoundTrip(t *testing.T) {
	kv := newMemKV()
	remote := newMockExternalStore()
	svc := newBackupService(kv, remote)

	if err := kv.SetJSON("cash_movements", []map[string]any{{"id": "m1"}}); err != nil {
		t.Fatal(err)
	}
	if err := kv.Set("alert_mode", []byte("on")); err != nil {
		t.Fatal(err)
	}
	if err := kv.Set("manual_audio_greeting", []byte("data:audio/mp3;base64,AAAA")); err != nil {
		t.Fatal(err)
	}

	result, err := svc.Perform(context.Background(), true)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Source != domain.SourceRemote {
		t.Errorf("expected remote source, got %s", result.Source)
	}
	if result.Keys != 3 {
		t.Errorf("expected 3 keys in snapshot, got %d", result.Keys)
	}

	// Wipe the covered keys, then restore.
	for _, key := range []string{"cash_movements", "alert_mode", "manual_audio_greeting"} {
		if err := kv.Delete(key); err != nil {
			t.Fatal(err)
		}
	}

	restored, err := svc.Restore(context.Background(), result.Timestamp)
	if err != nil {
		t.Fatalf("expected restore to succeed, got %v", err)
	}
	if restored.Source != domain.SourceRemote {
		t.Errorf("expected restore from remote, got %s", restored.Source)
	}

	raw, ok, err := kv.Get("alert_mode")
	if err != nil || !ok {
		t.Fatal("expected alert_mode restored")
	}
	if string(raw) != "on" {
		t.Errorf("expected byte-exact restore, got %q", raw)
	}
	var movements []map[string]any
	if _, err := kv.GetJSON("cash_movements", &movements); err != nil || len(movements) != 1 {
		t.Errorf("expected cash movement restored, got %v (err %v)", movements, err)
	}
}

func TestBackup_FallsBackToLocalStore(t *testing.T) {
	kv := newMemKV()
	remote := newMockExternalStore()
	remote.putErr = errors.New("connection refused")
	svc := newBackupService(kv, remote)

	if err := kv.Set("alert_mode", []byte("off")); err != nil {
		t.Fatal(err)
	}

	result, err := svc.Perform(context.Background(), true)
	if err != nil {
		t.Fatalf("expected local fallback, not an error: %v", err)
	}
	if result.Source != domain.SourceLocal {
		t.Fatalf("expected local source, got %s", result.Source)
	}

	// The snapshot must exist locally, and nothing remotely.
	var snapshot domain.BackupSnapshot
	found, err := kv.GetJSON("backup_"+result.Date, &snapshot)
	if err != nil || !found {
		t.Fatal("expected local fallback snapshot")
	}
	if len(remote.backups) != 0 {
		t.Error("expected no remote snapshot after a failed push")
	}

	// Restore should find the local copy once the remote says not found.
	restored, err := svc.Restore(context.Background(), result.Timestamp)
	if err != nil {
		t.Fatalf("expected restore from local fallback, got %v", err)
	}
	if restored.Source != domain.SourceLocal {
		t.Errorf("expected local restore source, got %s", restored.Source)
	}
}

func TestBackup_SkipsWhenAlreadyRanToday(t *testing.T) {
	kv := newMemKV()
	remote := newMockExternalStore()
	svc := newBackupService(kv, remote)

	first, err := svc.Perform(context.Background(), false)
	if err != nil || first == nil {
		t.Fatalf("expected first run to back up, got %v (%v)", first, err)
	}

	second, err := svc.Perform(context.Background(), false)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if second != nil {
		t.Error("expected same-day run to be a no-op")
	}

	forced, err := svc.Perform(context.Background(), true)
	if err != nil || forced == nil {
		t.Fatalf("expected forced run to back up anyway, got %v (%v)", forced, err)
	}
}

func TestBackup_RetentionBoundary(t *testing.T) {
	kv := newMemKV()
	remote := newMockExternalStore()
	svc := newBackupService(kv, remote)

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	// Take one backup today, one 6 days ago, one 8 days ago.
	ages := []time.Duration{8 * 24 * time.Hour, 6 * 24 * time.Hour, 0}
	for _, age := range ages {
		at := now.Add(-age)
		svc.SetNow(func() time.Time { return at })
		if _, err := svc.Perform(context.Background(), true); err != nil {
			t.Fatal(err)
		}
	}

	svc.SetNow(func() time.Time { return now })
	removed, err := svc.CleanOld(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected only the 8-day-old backup pruned, got %d", removed)
	}

	list, err := svc.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 surviving backups, got %d", len(list))
	}
	for _, entry := range list {
		parsed, err := time.Parse(time.RFC3339, entry.Timestamp)
		if err != nil {
			t.Fatal(err)
		}
		if now.Sub(parsed) > 7*24*time.Hour {
			t.Errorf("backup older than retention survived: %s", entry.Timestamp)
		}
	}
	if len(remote.deleted) != 1 {
		t.Errorf("expected 1 remote prune, got %v", remote.deleted)
	}
}

func TestBackup_ListNewestFirst(t *testing.T) {
	kv := newMemKV()
	remote := newMockExternalStore()
	svc := newBackupService(kv, remote)

	base := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	for day := 0; day < 3; day++ {
		at := base.AddDate(0, 0, day)
		svc.SetNow(func() time.Time { return at })
		if _, err := svc.Perform(context.Background(), true); err != nil {
			t.Fatal(err)
		}
	}

	list, err := svc.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(list))
	}
	if list[0].Date != "2026-08-31" || list[2].Date != "2026-08-29" {
		t.Errorf("expected newest first, got %s .. %s", list[0].Date, list[2].Date)
	}
}

func TestRestore_UnknownTimestamp(t *testing.T) {
	kv := newMemKV()
	remote := newMockExternalStore()
	svc := newBackupService(kv, remote)

	_, err := svc.Restore(context.Background(), "2020-01-01T00:00:00Z")
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
