package service_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/gfmeira/gestor/internal/domain"
	"github.com/gfmeira/gestor/internal/infra/observability"
	"github.com/gfmeira/gestor/internal/service"

	"go.uber.org/zap"
)

func newFileService(kv *memKV) *service.FileService {
	return service.NewFileService(kv, observability.NewMetrics(), zap.NewNop())
}

func TestFiles_SaveAndGet(t *testing.T) {
	kv := newMemKV()
	svc := newFileService(kv)

	content := []byte("fake image bytes")
	file, err := svc.Save("receipt.png", "image/png", content)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if file.Size != int64(len(content)) {
		t.Errorf("expected size %d, got %d", len(content), file.Size)
	}
	if !strings.HasPrefix(file.Data, "data:image/png;base64,") {
		t.Errorf("expected data URL, got %q", file.Data[:30])
	}

	got, err := svc.Get(file.ID)
	if err != nil {
		t.Fatalf("expected stored file, got %v", err)
	}
	if got.Name != "receipt.png" || got.Data != file.Data {
		t.Errorf("stored file differs: %+v", got)
	}
}

func TestFiles_RejectsOversizedWithoutWriting(t *testing.T) {
	kv := newMemKV()
	svc := newFileService(kv)

	oversized := bytes.Repeat([]byte("x"), domain.MaxFileSize+1)
	_, err := svc.Save("huge.bin", "application/octet-stream", oversized)

	var tooLarge *domain.ErrTooLarge
	if !errors.As(err, &tooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if tooLarge.Max != domain.MaxFileSize {
		t.Errorf("expected max %d in error, got %d", domain.MaxFileSize, tooLarge.Max)
	}

	keys, err := kv.KeysWithPrefix("local_file_")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Error("a rejected upload must leave no partial write behind")
	}
}

func TestFiles_ExactCapAccepted(t *testing.T) {
	kv := newMemKV()
	svc := newFileService(kv)

	// Boundary: a file of exactly the cap is fine.
	content := bytes.Repeat([]byte("x"), domain.MaxFileSize)
	if _, err := svc.Save("cap.bin", "application/octet-stream", content); err != nil {
		t.Fatalf("expected file at exact cap accepted, got %v", err)
	}
}

func TestFiles_ListFiltersByMIMEPrefix(t *testing.T) {
	kv := newMemKV()
	svc := newFileService(kv)

	uploads := []struct{ name, mime string }{
		{"a.png", "image/png"},
		{"b.jpg", "image/jpeg"},
		{"c.mp3", "audio/mpeg"},
	}
	for _, u := range uploads {
		if _, err := svc.Save(u.name, u.mime, []byte("data")); err != nil {
			t.Fatal(err)
		}
	}

	images, err := svc.List("image/")
	if err != nil {
		t.Fatal(err)
	}
	if len(images) != 2 {
		t.Errorf("expected 2 images, got %d", len(images))
	}

	audio, err := svc.List("audio/")
	if err != nil {
		t.Fatal(err)
	}
	if len(audio) != 1 || audio[0].Name != "c.mp3" {
		t.Errorf("expected the audio file, got %v", audio)
	}

	all, err := svc.List("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("expected all 3 files, got %d", len(all))
	}
}

func TestFiles_Delete(t *testing.T) {
	kv := newMemKV()
	svc := newFileService(kv)

	file, err := svc.Save("a.png", "image/png", []byte("data"))
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(file.ID); err != nil {
		t.Fatalf("expected delete to succeed, got %v", err)
	}

	var notFound *domain.ErrNotFound
	if _, err := svc.Get(file.ID); !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
