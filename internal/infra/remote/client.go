// Package remote talks to the external HTTP store used for collection
// sync and backups. The store is a generic per-entity JSON CRUD surface
// under /bancoexterno/<entity>[/<id>] plus a backups sub-path; it has
// no authentication and accepts arbitrary entity names — a known gap in
// the deployed store, recorded here rather than papered over.
package remote

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

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("remote")

// Client wraps HTTP calls to the external store.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	logger     *zap.Logger
}

// NewClient creates an external store client.
func NewClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
		logger:     logger,
	}
}

// AudioURL builds the URL of a static audio asset. The original app
// only ever constructed these URLs for the browser to fetch.
func (c *Client) AudioURL(name string) string {
	return fmt.Sprintf("%s/audios/%s", c.baseURL, url.PathEscape(name))
}

// doRequest executes one request against /bancoexterno. 404 and 204
// yield a nil body with no error; other non-2xx codes are errors.
func (c *Client) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	u := fmt.Sprintf("%s/bancoexterno/%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		c.logger.Error("external store: failed to create request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("external store: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("external store: failed to read response body",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, nil // no data
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("external store: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, fmt.Errorf("external store returned status %d: %s", resp.StatusCode, string(body))
	}

	c.logger.Debug("external store: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	return body, nil
}

// execute runs fn inside the circuit breaker with retry + backoff.
func (c *Client) execute(ctx context.Context, fn func() error) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, fn)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return &domain.ErrCircuitOpen{Service: "external-store"}
	}
	return err
}

// ListRecords fetches the full array stored for an entity. A missing
// entity reads as an empty collection.
func (c *Client) ListRecords(ctx context.Context, entity string) ([]map[string]any, error) {
	ctx, span := tracer.Start(ctx, "Remote.ListRecords")
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
		if err := json.Unmarshal(body, &records); err != nil {
			return fmt.Errorf("decode %s records: %w", entity, err)
		}
		return nil
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "external-store/" + entity, Err: err}
	}
	return records, nil
}

// CreateRecord posts a single record to an entity collection.
func (c *Client) CreateRecord(ctx context.Context, entity string, record map[string]any) error {
	ctx, span := tracer.Start(ctx, "Remote.CreateRecord")
	defer span.End()
	span.SetAttributes(attribute.String("entity", entity))

	err := c.execute(ctx, func() error {
		_, err := c.doRequest(ctx, http.MethodPost, url.PathEscape(entity), record)
		return err
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "external-store/" + entity, Err: err}
	}
	return nil
}

// UpdateRecord replaces a record by id.
func (c *Client) UpdateRecord(ctx context.Context, entity, id string, record map[string]any) error {
	ctx, span := tracer.Start(ctx, "Remote.UpdateRecord")
	defer span.End()
	span.SetAttributes(attribute.String("entity", entity), attribute.String("id", id))

	err := c.execute(ctx, func() error {
		_, err := c.doRequest(ctx, http.MethodPut, url.PathEscape(entity)+"/"+url.PathEscape(id), record)
		return err
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "external-store/" + entity, Err: err}
	}
	return nil
}

// DeleteRecord removes a record by id.
func (c *Client) DeleteRecord(ctx context.Context, entity, id string) error {
	ctx, span := tracer.Start(ctx, "Remote.DeleteRecord")
	defer span.End()
	span.SetAttributes(attribute.String("entity", entity), attribute.String("id", id))

	err := c.execute(ctx, func() error {
		_, err := c.doRequest(ctx, http.MethodDelete, url.PathEscape(entity)+"/"+url.PathEscape(id), nil)
		return err
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "external-store/" + entity, Err: err}
	}
	return nil
}

// PutBackup stores a snapshot under /bancoexterno/backups/<date>.
func (c *Client) PutBackup(ctx context.Context, date string, snapshot *domain.BackupSnapshot) error {
	ctx, span := tracer.Start(ctx, "Remote.PutBackup")
	defer span.End()
	span.SetAttributes(attribute.String("date", date))

	err := c.execute(ctx, func() error {
		_, err := c.doRequest(ctx, http.MethodPut, "backups/"+url.PathEscape(date), snapshot)
		return err
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "external-store/backups", Err: err}
	}
	return nil
}

// GetBackup fetches a snapshot by date. Returns ErrNotFound when the
// store has no backup for that date.
func (c *Client) GetBackup(ctx context.Context, date string) (*domain.BackupSnapshot, error) {
	ctx, span := tracer.Start(ctx, "Remote.GetBackup")
	defer span.End()
	span.SetAttributes(attribute.String("date", date))

	var snapshot *domain.BackupSnapshot
	err := c.execute(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, "backups/"+url.PathEscape(date), nil)
		if err != nil {
			return err
		}
		if body == nil {
			return &domain.ErrNotFound{Resource: "backup", ID: date}
		}
		var snap domain.BackupSnapshot
		if err := json.Unmarshal(body, &snap); err != nil {
			return fmt.Errorf("decode backup %s: %w", date, err)
		}
		snapshot = &snap
		return nil
	})
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			return nil, notFound
		}
		return nil, &domain.ErrExternalService{Service: "external-store/backups", Err: err}
	}
	return snapshot, nil
}

// DeleteBackup removes a snapshot by date. Best effort for retention
// pruning; a 404 is success.
func (c *Client) DeleteBackup(ctx context.Context, date string) error {
	ctx, span := tracer.Start(ctx, "Remote.DeleteBackup")
	defer span.End()
	span.SetAttributes(attribute.String("date", date))

	err := c.execute(ctx, func() error {
		_, err := c.doRequest(ctx, http.MethodDelete, "backups/"+url.PathEscape(date), nil)
		return err
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "external-store/backups", Err: err}
	}
	return nil
}
