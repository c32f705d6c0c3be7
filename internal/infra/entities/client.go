// Package entities is the client for the backend-as-a-service entity
// API, the primary datastore for business records (products, sales,
// customers and the rest). Writes that cannot reach the API are parked
// in a per-entity fallback queue in the local store and drained later.
package entities

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/gfmeira/gestor/internal/domain"
	"github.com/gfmeira/gestor/internal/infra/resilience"
	"github.com/gfmeira/gestor/internal/port"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("entities")

// Client wraps HTTP calls to the entity API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	kv         port.KeyValue
	bulkhead   *resilience.Bulkhead
	logger     *zap.Logger
}

// NewClient creates an entity API client. kv backs the fallback queues.
func NewClient(httpClient *http.Client, baseURL, apiKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, kv port.KeyValue, logger *zap.Logger) *Client {
	maxConc := cfg.MaxConcurrency
	if maxConc <= 0 {
		maxConc = 1
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		cb:         cb,
		cfg:        cfg,
		kv:         kv,
		bulkhead:   resilience.NewBulkhead(maxConc),
		logger:     logger,
	}
}

func queueKey(entity string) string {
	return "external_" + entity
}

// doRequest executes an authenticated request against /entities.
func (c *Client) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	u := fmt.Sprintf("%s/entities/%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("entity api: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("entity api: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, fmt.Errorf("entity api returned status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

func (c *Client) execute(ctx context.Context, fn func() error) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, fn)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return &domain.ErrCircuitOpen{Service: "entity-api"}
	}
	return err
}

// List fetches all records of an entity.
func (c *Client) List(ctx context.Context, entity string) ([]map[string]any, error) {
	ctx, span := tracer.Start(ctx, "Entities.List")
	defer span.End()
	span.SetAttributes(attribute.String("entity", entity))

	var records []map[string]any
	err := c.execute(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, url.PathEscape(entity), nil)
		if err != nil {
			return err
		}
		if body == nil {
			records = []map[string]any{}
			return nil
		}
		return json.Unmarshal(body, &records)
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "entity-api/" + entity, Err: err}
	}
	return records, nil
}

// Get fetches one record by id.
func (c *Client) Get(ctx context.Context, entity, id string) (map[string]any, error) {
	ctx, span := tracer.Start(ctx, "Entities.Get")
	defer span.End()
	span.SetAttributes(attribute.String("entity", entity), attribute.String("id", id))

	var record map[string]any
	err := c.execute(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, url.PathEscape(entity)+"/"+url.PathEscape(id), nil)
		if err != nil {
			return err
		}
		if body == nil {
			return &domain.ErrNotFound{Resource: entity, ID: id}
		}
		return json.Unmarshal(body, &record)
	})
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			return nil, notFound
		}
		return nil, &domain.ErrExternalService{Service: "entity-api/" + entity, Err: err}
	}
	return record, nil
}

// Create posts a record. On remote failure the record is queued in the
// local store with synced=false and the caller gets SourceQueued, so
// degraded durability is visible instead of silently swallowed.
func (c *Client) Create(ctx context.Context, entity string, data map[string]any) (map[string]any, domain.Source, error) {
	ctx, span := tracer.Start(ctx, "Entities.Create")
	defer span.End()
	span.SetAttributes(attribute.String("entity", entity))

	if data["id"] == nil || data["id"] == "" {
		data["id"] = uuid.New().String()
	}

	var created map[string]any
	err := c.execute(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodPost, url.PathEscape(entity), data)
		if err != nil {
			return err
		}
		if body == nil {
			created = data
			return nil
		}
		return json.Unmarshal(body, &created)
	})
	if err != nil {
		if qErr := c.enqueue(entity, data); qErr != nil {
			return nil, "", &domain.ErrExternalService{Service: "entity-api/" + entity, Err: err}
		}
		c.logger.Warn("entity api: create queued locally",
			zap.String("entity", entity),
			zap.Error(err),
		)
		return data, domain.SourceQueued, nil
	}
	return created, domain.SourceRemote, nil
}

// Update replaces a record by id, queueing the write on failure.
func (c *Client) Update(ctx context.Context, entity, id string, data map[string]any) (domain.Source, error) {
	ctx, span := tracer.Start(ctx, "Entities.Update")
	defer span.End()
	span.SetAttributes(attribute.String("entity", entity), attribute.String("id", id))

	data["id"] = id
	err := c.execute(ctx, func() error {
		_, err := c.doRequest(ctx, http.MethodPut, url.PathEscape(entity)+"/"+url.PathEscape(id), data)
		return err
	})
	if err != nil {
		if qErr := c.enqueue(entity, data); qErr != nil {
			return "", &domain.ErrExternalService{Service: "entity-api/" + entity, Err: err}
		}
		c.logger.Warn("entity api: update queued locally",
			zap.String("entity", entity),
			zap.String("id", id),
			zap.Error(err),
		)
		return domain.SourceQueued, nil
	}
	return domain.SourceRemote, nil
}

// Delete removes a record by id. Deletes are not queued: the original
// app dropped them on failure too, and replaying a stale delete after
// an outage is worse than keeping the record.
func (c *Client) Delete(ctx context.Context, entity, id string) error {
	ctx, span := tracer.Start(ctx, "Entities.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("entity", entity), attribute.String("id", id))

	err := c.execute(ctx, func() error {
		_, err := c.doRequest(ctx, http.MethodDelete, url.PathEscape(entity)+"/"+url.PathEscape(id), nil)
		return err
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "entity-api/" + entity, Err: err}
	}
	return nil
}

// BulkCreate posts records one by one; the API has no batch endpoint.
// Any record that fails is queued and the whole call reports
// SourceQueued.
func (c *Client) BulkCreate(ctx context.Context, entity string, records []map[string]any) (domain.Source, error) {
	ctx, span := tracer.Start(ctx, "Entities.BulkCreate")
	defer span.End()
	span.SetAttributes(attribute.String("entity", entity), attribute.Int("count", len(records)))

	source := domain.SourceRemote
	for _, rec := range records {
		_, s, err := c.Create(ctx, entity, rec)
		if err != nil {
			return "", err
		}
		if s == domain.SourceQueued {
			source = domain.SourceQueued
		}
	}
	return source, nil
}
