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
)

var catalogTracer = otel.Tracer("service/catalog")

// ProductMeta is per-product local metadata the entity API doesn't
// carry: shelf location and the low-stock alert threshold. Keyed by
// product id under products_meta.
type ProductMeta struct {
	ProductID  string `json:"product_id"`
	Location   string `json:"location,omitempty"`
	AlertBelow int    `json:"alert_below,omitempty"`
}

// CatalogService fronts the backend-as-a-service entity API for the
// business entities, layering on the two behaviors the generic CRUD
// can't express: product listings merged with local metadata, and the
// stock decrement when a sale is recorded.
type CatalogService struct {
	api     port.EntityAPI
	kv      port.KeyValue
	cache   port.Cache[[]map[string]any]
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewCatalogService creates the catalog service.
func NewCatalogService(api port.EntityAPI, kv port.KeyValue, cache port.Cache[[]map[string]any], metrics *observability.Metrics, logger *zap.Logger) *CatalogService {
	return &CatalogService{
		api:     api,
		kv:      kv,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

func checkEntity(name string) error {
	if !domain.KnownEntity(name) {
		return &domain.ErrValidation{Field: "entity", Message: fmt.Sprintf("unknown entity %q", name)}
	}
	return nil
}

// List returns all records of an entity, cached for the configured TTL.
// Product listings get the local metadata merged in.
func (c *CatalogService) List(ctx context.Context, entity string) ([]map[string]any, error) {
	ctx, span := catalogTracer.Start(ctx, "Catalog.List")
	defer span.End()
	span.SetAttributes(attribute.String("entity", entity))

	if err := checkEntity(entity); err != nil {
		return nil, err
	}

	cacheKey := "entity:" + entity
	if cached, ok := c.cache.Get(cacheKey); ok {
		c.metrics.IncrCacheHit("entities")
		return cached, nil
	}
	c.metrics.IncrCacheMiss("entities")

	records, err := c.api.List(ctx, entity)
	if err != nil {
		return nil, err
	}

	if entity == "Product" {
		if err := c.mergeProductMeta(records); err != nil {
			return nil, err
		}
	}

	c.cache.Set(cacheKey, records)
	return records, nil
}

func (c *CatalogService) mergeProductMeta(products []map[string]any) error {
	var metas []ProductMeta
	if _, err := c.kv.GetJSON(keyProductsMeta, &metas); err != nil {
		return err
	}
	byID := make(map[string]ProductMeta, len(metas))
	for _, m := range metas {
		byID[m.ProductID] = m
	}
	for _, p := range products {
		id, _ := p["id"].(string)
		meta, ok := byID[id]
		if !ok {
			continue
		}
		if meta.Location != "" {
			p["location"] = meta.Location
		}
		if meta.AlertBelow > 0 {
			p["alert_below"] = meta.AlertBelow
		}
	}
	return nil
}

// SetProductMeta upserts local metadata for a product.
func (c *CatalogService) SetProductMeta(meta ProductMeta) error {
	if meta.ProductID == "" {
		return &domain.ErrValidation{Field: "product_id", Message: "required"}
	}
	var metas []ProductMeta
	if _, err := c.kv.GetJSON(keyProductsMeta, &metas); err != nil {
		return err
	}
	for i := range metas {
		if metas[i].ProductID == meta.ProductID {
			metas[i] = meta
			c.cache.Delete("entity:Product")
			return c.kv.SetJSON(keyProductsMeta, metas)
		}
	}
	metas = append(metas, meta)
	c.cache.Delete("entity:Product")
	return c.kv.SetJSON(keyProductsMeta, metas)
}

// Get fetches one record by id.
func (c *CatalogService) Get(ctx context.Context, entity, id string) (map[string]any, error) {
	if err := checkEntity(entity); err != nil {
		return nil, err
	}
	return c.api.Get(ctx, entity, id)
}

// Create posts a record, reporting where the write landed.
func (c *CatalogService) Create(ctx context.Context, entity string, data map[string]any) (map[string]any, domain.Source, error) {
	if err := checkEntity(entity); err != nil {
		return nil, "", err
	}
	rec, source, err := c.api.Create(ctx, entity, data)
	if err == nil {
		c.cache.Delete("entity:" + entity)
		if source == domain.SourceQueued {
			c.metrics.IncrFallbackWrite("entity_create")
		}
	}
	return rec, source, err
}

// Update replaces a record by id.
func (c *CatalogService) Update(ctx context.Context, entity, id string, data map[string]any) (domain.Source, error) {
	if err := checkEntity(entity); err != nil {
		return "", err
	}
	source, err := c.api.Update(ctx, entity, id, data)
	if err == nil {
		c.cache.Delete("entity:" + entity)
		if source == domain.SourceQueued {
			c.metrics.IncrFallbackWrite("entity_update")
		}
	}
	return source, err
}

// Delete removes a record by id.
func (c *CatalogService) Delete(ctx context.Context, entity, id string) error {
	if err := checkEntity(entity); err != nil {
		return err
	}
	if err := c.api.Delete(ctx, entity, id); err != nil {
		return err
	}
	c.cache.Delete("entity:" + entity)
	return nil
}

// BulkCreate posts several records of one entity.
func (c *CatalogService) BulkCreate(ctx context.Context, entity string, records []map[string]any) (domain.Source, error) {
	if err := checkEntity(entity); err != nil {
		return "", err
	}
	source, err := c.api.BulkCreate(ctx, entity, records)
	if err == nil {
		c.cache.Delete("entity:" + entity)
		if source == domain.SourceQueued {
			c.metrics.IncrFallbackWrite("entity_bulk")
		}
	}
	return source, err
}

// SaleItem is one product line in a sale request.
type SaleItem struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// SaleRequest is the payload for recording a sale.
type SaleRequest struct {
	CustomerID string     `json:"customer_id,omitempty"`
	Items      []SaleItem `json:"items"`
	Total      float64    `json:"total"`
	Date       string     `json:"date,omitempty"`
}

// CreateSale records a sale and decrements stock_quantity on each sold
// product. The decrement is a read-modify-write against the entity API
// with no transaction around it; a concurrent edit to the same product
// can lose one of the updates, exactly as the original app could across
// tabs. Stock is clamped at zero rather than going negative.
func (c *CatalogService) CreateSale(ctx context.Context, req SaleRequest) (map[string]any, domain.Source, error) {
	ctx, span := catalogTracer.Start(ctx, "Catalog.CreateSale")
	defer span.End()

	if len(req.Items) == 0 {
		return nil, "", &domain.ErrValidation{Field: "items", Message: "at least one item required"}
	}
	for _, item := range req.Items {
		if item.ProductID == "" || item.Quantity <= 0 {
			return nil, "", &domain.ErrValidation{Field: "items", Message: "each item needs a product_id and positive quantity"}
		}
	}
	if req.Date == "" {
		req.Date = time.Now().Format("2006-01-02")
	}

	sale := map[string]any{
		"customer_id": req.CustomerID,
		"items":       req.Items,
		"total":       req.Total,
		"date":        req.Date,
	}
	created, source, err := c.api.Create(ctx, "Sale", sale)
	if err != nil {
		return nil, "", err
	}
	c.cache.Delete("entity:Sale")

	for _, item := range req.Items {
		if err := c.decrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			// The sale is already recorded; a failed decrement is
			// logged and the stock drifts until the next manual count.
			c.logger.Warn("catalog: stock decrement failed",
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
		}
	}

	return created, source, nil
}

func (c *CatalogService) decrementStock(ctx context.Context, productID string, quantity int) error {
	product, err := c.api.Get(ctx, "Product", productID)
	if err != nil {
		return err
	}

	stock, _ := product["stock_quantity"].(float64)
	stock -= float64(quantity)
	if stock < 0 {
		stock = 0
	}
	product["stock_quantity"] = stock

	if _, err := c.api.Update(ctx, "Product", productID, product); err != nil {
		return err
	}
	c.cache.Delete("entity:Product")
	return nil
}
