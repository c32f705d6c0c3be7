package service

import (
	"fmt"
	"time"

	"github.com/gfmeira/gestor/internal/domain"
	"github.com/gfmeira/gestor/internal/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MarketplaceService manages marketplace fulfillment orders. Stored
// orders accumulated several historical shapes (Portuguese field names,
// an accented status string, missing timestamps), so every read maps
// the raw records through normalizeOrder and persists the normalized
// form back — which doubles as a one-shot migration the first time a
// legacy record is touched. Normalization is idempotent: a second pass
// over already-normalized data is byte-identical.
type MarketplaceService struct {
	kv     port.KeyValue
	logger *zap.Logger
}

// NewMarketplaceService creates the marketplace order service.
func NewMarketplaceService(kv port.KeyValue, logger *zap.Logger) *MarketplaceService {
	return &MarketplaceService{kv: kv, logger: logger}
}

// load reads, normalizes and rewrites the order collection.
func (m *MarketplaceService) load() ([]domain.MarketplaceOrder, error) {
	var raw []map[string]any
	if _, err := m.kv.GetJSON(keyMarketplaceOrders, &raw); err != nil {
		return nil, err
	}

	orders := make([]domain.MarketplaceOrder, 0, len(raw))
	for _, rec := range raw {
		orders = append(orders, normalizeOrder(rec))
	}

	if err := m.kv.SetJSON(keyMarketplaceOrders, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (m *MarketplaceService) store(orders []domain.MarketplaceOrder) error {
	return m.kv.SetJSON(keyMarketplaceOrders, orders)
}

// normalizeOrder maps one stored record, whatever its vintage, onto the
// current order shape.
func normalizeOrder(rec map[string]any) domain.MarketplaceOrder {
	order := domain.MarketplaceOrder{
		ID:           stringField(rec, "id"),
		OrderNumber:  firstString(rec, "order_number", "numero_pedido"),
		CustomerName: firstString(rec, "customer_name", "cliente"),
		Status:       stringField(rec, "status"),
		CreatedDate:  stringField(rec, "created_date"),
		CreatedAt:    stringField(rec, "created_at"),
		CompletedBy:  stringField(rec, "completed_by"),
		Source:       stringField(rec, "source"),
	}

	items, ok := rec["items"].([]any)
	if !ok {
		items, _ = rec["itens"].([]any)
	}
	for _, it := range items {
		itemRec, ok := it.(map[string]any)
		if !ok {
			continue
		}
		order.Items = append(order.Items, domain.OrderItem{
			Product:  firstString(itemRec, "product", "produto"),
			Quantity: intField(itemRec, "quantity", "qtd", "quantidade"),
			Location: firstString(itemRec, "location", "localizacao"),
		})
	}

	switch order.Status {
	case domain.OrderStatusDoneOld:
		order.Status = domain.OrderStatusDone
	case "":
		order.Status = domain.OrderStatusPending
	}

	// Backfill the two timestamp fields from each other; only invent a
	// time when the record carries neither.
	if order.CreatedDate == "" {
		order.CreatedDate = order.CreatedAt
	}
	if order.CreatedAt == "" {
		order.CreatedAt = order.CreatedDate
	}
	if order.CreatedDate == "" {
		now := time.Now().Format(time.RFC3339)
		order.CreatedDate = now
		order.CreatedAt = now
	}

	return order
}

// Create stores a new order in pendente status.
func (m *MarketplaceService) Create(order domain.MarketplaceOrder) (*domain.MarketplaceOrder, error) {
	if order.OrderNumber == "" {
		return nil, &domain.ErrValidation{Field: "order_number", Message: "required"}
	}
	if len(order.Items) == 0 {
		return nil, &domain.ErrValidation{Field: "items", Message: "at least one item required"}
	}

	orders, err := m.load()
	if err != nil {
		return nil, err
	}

	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	order.Status = domain.OrderStatusPending
	now := time.Now().Format(time.RFC3339)
	order.CreatedDate = now
	order.CreatedAt = now

	orders = append(orders, order)
	if err := m.store(orders); err != nil {
		return nil, err
	}

	m.logger.Info("marketplace: order created",
		zap.String("id", order.ID),
		zap.String("order_number", order.OrderNumber),
	)
	return &order, nil
}

// List returns all orders, normalized.
func (m *MarketplaceService) List() ([]domain.MarketplaceOrder, error) {
	return m.load()
}

// Pending returns orders not yet completed (pendente or separando).
func (m *MarketplaceService) Pending() ([]domain.MarketplaceOrder, error) {
	orders, err := m.load()
	if err != nil {
		return nil, err
	}
	pending := make([]domain.MarketplaceOrder, 0, len(orders))
	for _, o := range orders {
		if o.Status != domain.OrderStatusDone {
			pending = append(pending, o)
		}
	}
	return pending, nil
}

// Completed returns orders in concluido status.
func (m *MarketplaceService) Completed() ([]domain.MarketplaceOrder, error) {
	orders, err := m.load()
	if err != nil {
		return nil, err
	}
	done := make([]domain.MarketplaceOrder, 0, len(orders))
	for _, o := range orders {
		if o.Status == domain.OrderStatusDone {
			done = append(done, o)
		}
	}
	return done, nil
}

// Stats counts orders per status.
func (m *MarketplaceService) Stats() (*domain.OrderStats, error) {
	orders, err := m.load()
	if err != nil {
		return nil, err
	}
	stats := &domain.OrderStats{Total: len(orders)}
	for _, o := range orders {
		switch o.Status {
		case domain.OrderStatusPending:
			stats.Pending++
		case domain.OrderStatusPicking:
			stats.Picking++
		case domain.OrderStatusDone:
			stats.Completed++
		}
	}
	return stats, nil
}

// AdvanceStatus moves an order along the pendente -> separando ->
// concluido flow. Skipping separando is allowed (most order producers
// never used it); moving backwards or out of concluido is not.
func (m *MarketplaceService) AdvanceStatus(id, status, completedBy string) (*domain.MarketplaceOrder, error) {
	rank := map[string]int{
		domain.OrderStatusPending: 0,
		domain.OrderStatusPicking: 1,
		domain.OrderStatusDone:    2,
	}
	newRank, ok := rank[status]
	if !ok {
		return nil, &domain.ErrValidation{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}

	orders, err := m.load()
	if err != nil {
		return nil, err
	}

	for i := range orders {
		if orders[i].ID != id {
			continue
		}
		if newRank <= rank[orders[i].Status] {
			return nil, &domain.ErrInvalidTransition{From: orders[i].Status, To: status}
		}
		orders[i].Status = status
		if status == domain.OrderStatusDone {
			orders[i].CompletedBy = completedBy
		}
		if err := m.store(orders); err != nil {
			return nil, err
		}
		m.logger.Info("marketplace: order status advanced",
			zap.String("id", id),
			zap.String("status", status),
		)
		return &orders[i], nil
	}
	return nil, &domain.ErrNotFound{Resource: "order", ID: id}
}

// Delete removes an order by id.
func (m *MarketplaceService) Delete(id string) error {
	orders, err := m.load()
	if err != nil {
		return err
	}
	kept := orders[:0]
	for _, o := range orders {
		if o.ID != id {
			kept = append(kept, o)
		}
	}
	if len(kept) == len(orders) {
		return &domain.ErrNotFound{Resource: "order", ID: id}
	}
	return m.store(kept)
}

// firstString returns the first non-empty string among the given fields.
func firstString(rec map[string]any, fields ...string) string {
	for _, f := range fields {
		if v, ok := rec[f].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// intField reads the first of the given fields as an int. JSON numbers
// decode as float64; legacy records sometimes stored quantities as
// strings, which are ignored rather than guessed at.
func intField(rec map[string]any, fields ...string) int {
	for _, f := range fields {
		if v, ok := rec[f].(float64); ok {
			return int(v)
		}
	}
	return 0
}
