package entities_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gfmeira/gestor/internal/domain"
	"github.com/gfmeira/gestor/internal/infra/entities"
	"github.com/gfmeira/gestor/internal/infra/resilience"

	"go.uber.org/zap"
)

// memKV is a map-backed stand-in for the local store.
type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: make(map[string][]byte)} }

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
	return domain.StorageUsage{}, nil
}

func testClient(t *testing.T, kv *memKV, handler http.Handler) *entities.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxConcurrency: 2}
	return entities.NewClient(server.Client(), server.URL, "test-key", resilience.NewCircuitBreaker("test"), cfg, kv, zap.NewNop())
}

func TestCreate_RemoteSuccess(t *testing.T) {
	kv := newMemKV()
	client := testClient(t, kv, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != "test-key" {
			t.Error("expected apikey header")
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Error("expected bearer token")
		}
		var data map[string]any
		json.NewDecoder(r.Body).Decode(&data)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(data)
	}))

	created, source, err := client.Create(context.Background(), "Product", map[string]any{"name": "vaso"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if source != domain.SourceRemote {
		t.Errorf("expected remote source, got %s", source)
	}
	if created["id"] == "" || created["id"] == nil {
		t.Error("expected id auto-assigned")
	}

	depth, err := client.QueueDepth("Product")
	if err != nil {
		t.Fatal(err)
	}
	if depth != 0 {
		t.Errorf("expected empty queue after remote success, got %d", depth)
	}
}

func TestCreate_FailureQueuesLocally(t *testing.T) {
	kv := newMemKV()
	client := testClient(t, kv, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	created, source, err := client.Create(context.Background(), "Product", map[string]any{"name": "vaso"})
	if err != nil {
		t.Fatalf("a queued write is not an error, got %v", err)
	}
	if source != domain.SourceQueued {
		t.Fatalf("expected queued source, got %s", source)
	}
	if created["id"] == nil {
		t.Error("queued record still gets an id")
	}

	depth, err := client.QueueDepth("Product")
	if err != nil {
		t.Fatal(err)
	}
	if depth != 1 {
		t.Errorf("expected 1 queued record, got %d", depth)
	}
}

func TestFlushQueue_DrainsWhenAPIRecovers(t *testing.T) {
	kv := newMemKV()
	var healthy bool
	var mu sync.Mutex
	received := 0

	client := testClient(t, kv, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		received++
		w.WriteHeader(http.StatusCreated)
	}))

	// Two writes park in the queue while the API is down.
	for i := 0; i < 2; i++ {
		_, source, err := client.Create(context.Background(), "Sale", map[string]any{"total": 10.0})
		if err != nil || source != domain.SourceQueued {
			t.Fatalf("expected queued write, got source=%s err=%v", source, err)
		}
	}

	mu.Lock()
	healthy = true
	mu.Unlock()

	flushed, err := client.FlushQueue(context.Background(), "Sale")
	if err != nil {
		t.Fatalf("expected flush to succeed, got %v", err)
	}
	if flushed != 2 {
		t.Errorf("expected 2 records flushed, got %d", flushed)
	}
	mu.Lock()
	if received != 2 {
		t.Errorf("expected 2 records re-posted, got %d", received)
	}
	mu.Unlock()

	depth, _ := client.QueueDepth("Sale")
	if depth != 0 {
		t.Errorf("expected empty unsynced queue after flush, got %d", depth)
	}
}

func TestFlushAllQueues(t *testing.T) {
	kv := newMemKV()
	client := testClient(t, kv, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	// Seed two queues directly, the shape the frontend left behind.
	for _, entity := range []string{"Product", "Sale"} {
		if err := kv.SetJSON("external_"+entity, []domain.QueuedRecord{
			{ID: "q1", Data: map[string]any{"id": "r1"}, QueuedAt: time.Now().Format(time.RFC3339)},
		}); err != nil {
			t.Fatal(err)
		}
	}

	total, err := client.FlushAllQueues(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if total != 2 {
		t.Errorf("expected 2 flushed across queues, got %d", total)
	}
}

func TestGet_NotFound(t *testing.T) {
	kv := newMemKV()
	client := testClient(t, kv, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.Get(context.Background(), "Product", "missing")
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete_FailureIsNotQueued(t *testing.T) {
	kv := newMemKV()
	client := testClient(t, kv, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	err := client.Delete(context.Background(), "Product", "p1")
	var external *domain.ErrExternalService
	if !errors.As(err, &external) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}

	depth, _ := client.QueueDepth("Product")
	if depth != 0 {
		t.Error("deletes must never be queued for replay")
	}
}
