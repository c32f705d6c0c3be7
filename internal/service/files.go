package service

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gfmeira/gestor/internal/domain"
	"github.com/gfmeira/gestor/internal/infra/observability"
	"github.com/gfmeira/gestor/internal/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FileService persists uploaded blobs (receipt images, audio clips)
// entirely inside the local store as base64 data URLs, under
// local_file_<id> keys. There is no external object storage; the 5 MiB
// per-file cap keeps a single upload from eating the whole quota.
type FileService struct {
	kv      port.KeyValue
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewFileService creates the file service.
func NewFileService(kv port.KeyValue, metrics *observability.Metrics, logger *zap.Logger) *FileService {
	return &FileService{kv: kv, metrics: metrics, logger: logger}
}

// Save encodes content into a stored file. Files over the cap are
// rejected before anything touches the store.
func (f *FileService) Save(name, mimeType string, content []byte) (*domain.StoredFile, error) {
	if int64(len(content)) > domain.MaxFileSize {
		return nil, &domain.ErrTooLarge{Size: int64(len(content)), Max: domain.MaxFileSize}
	}
	if name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "required"}
	}

	file := &domain.StoredFile{
		ID:         uuid.New().String(),
		Name:       name,
		Type:       mimeType,
		Data:       fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(content)),
		Size:       int64(len(content)),
		UploadedAt: time.Now().Format(time.RFC3339),
	}

	if err := f.kv.SetJSON(fileKeyPrefix+file.ID, file); err != nil {
		return nil, err
	}
	f.updateUsageGauge()

	f.logger.Info("files: stored",
		zap.String("id", file.ID),
		zap.String("name", name),
		zap.Int64("size", file.Size),
	)
	return file, nil
}

// Get returns a stored file by id.
func (f *FileService) Get(id string) (*domain.StoredFile, error) {
	var file domain.StoredFile
	found, err := f.kv.GetJSON(fileKeyPrefix+id, &file)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &domain.ErrNotFound{Resource: "file", ID: id}
	}
	return &file, nil
}

// Delete removes a stored file by id.
func (f *FileService) Delete(id string) error {
	if _, err := f.Get(id); err != nil {
		return err
	}
	if err := f.kv.Delete(fileKeyPrefix + id); err != nil {
		return err
	}
	f.updateUsageGauge()
	return nil
}

// List returns stored files, newest upload first. filterType narrows
// by MIME prefix ("image/", "audio/") or exact type; empty means all.
func (f *FileService) List(filterType string) ([]domain.StoredFile, error) {
	keys, err := f.kv.KeysWithPrefix(fileKeyPrefix)
	if err != nil {
		return nil, err
	}

	files := make([]domain.StoredFile, 0, len(keys))
	for _, key := range keys {
		var file domain.StoredFile
		found, err := f.kv.GetJSON(key, &file)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		if filterType != "" && !strings.HasPrefix(file.Type, filterType) {
			continue
		}
		files = append(files, file)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].UploadedAt > files[j].UploadedAt
	})
	return files, nil
}

// Usage reports local-store consumption against the quota.
func (f *FileService) Usage() (domain.StorageUsage, error) {
	usage, err := f.kv.Usage()
	if err == nil {
		f.metrics.SetStorageUsed(usage.UsedBytes)
	}
	return usage, err
}

// CleanOld deletes files uploaded more than daysOld days ago and
// returns how many were removed.
func (f *FileService) CleanOld(daysOld int) (int, error) {
	if daysOld <= 0 {
		return 0, &domain.ErrValidation{Field: "daysOld", Message: "must be positive"}
	}

	files, err := f.List("")
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().AddDate(0, 0, -daysOld)
	removed := 0
	for _, file := range files {
		t, err := time.Parse(time.RFC3339, file.UploadedAt)
		if err != nil || !t.Before(cutoff) {
			continue
		}
		if err := f.kv.Delete(fileKeyPrefix + file.ID); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		f.updateUsageGauge()
		f.logger.Info("files: cleaned old uploads", zap.Int("removed", removed))
	}
	return removed, nil
}

func (f *FileService) updateUsageGauge() {
	if usage, err := f.kv.Usage(); err == nil {
		f.metrics.SetStorageUsed(usage.UsedBytes)
	}
}
