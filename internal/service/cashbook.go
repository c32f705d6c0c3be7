package service

import (
	"time"

	"github.com/gfmeira/gestor/internal/domain"
	"github.com/gfmeira/gestor/internal/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CashbookService manages the cash_movements collection. Every write
// is a full read-modify-write of the stored array; concurrent writers
// (a user edit racing a sync merge) resolve as last writer wins, the
// same behavior the original app had across browser tabs.
type CashbookService struct {
	kv     port.KeyValue
	logger *zap.Logger
}

// NewCashbookService creates the cashbook service.
func NewCashbookService(kv port.KeyValue, logger *zap.Logger) *CashbookService {
	return &CashbookService{kv: kv, logger: logger}
}

func (c *CashbookService) load() ([]domain.CashMovement, error) {
	var movements []domain.CashMovement
	if _, err := c.kv.GetJSON(keyCashMovements, &movements); err != nil {
		return nil, err
	}
	return movements, nil
}

func (c *CashbookService) store(movements []domain.CashMovement) error {
	return c.kv.SetJSON(keyCashMovements, movements)
}

func validateMovement(m *domain.CashMovement) error {
	if m.Type != domain.MovementIn && m.Type != domain.MovementOut {
		return &domain.ErrValidation{Field: "type", Message: "must be entrada or saida"}
	}
	if m.Value <= 0 {
		return &domain.ErrValidation{Field: "value", Message: "must be positive"}
	}
	if m.Category == "" {
		return &domain.ErrValidation{Field: "category", Message: "required"}
	}
	return nil
}

// Create appends a movement. Date defaults to today when empty.
func (c *CashbookService) Create(m domain.CashMovement) (*domain.CashMovement, error) {
	if err := validateMovement(&m); err != nil {
		return nil, err
	}

	movements, err := c.load()
	if err != nil {
		return nil, err
	}

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Date == "" {
		m.Date = time.Now().Format("2006-01-02")
	}
	m.CreatedDate = time.Now().Format(time.RFC3339)

	movements = append(movements, m)
	if err := c.store(movements); err != nil {
		return nil, err
	}

	c.logger.Info("cashbook: movement created",
		zap.String("id", m.ID),
		zap.String("type", m.Type),
		zap.Float64("value", m.Value),
	)
	return &m, nil
}

// List returns all movements.
func (c *CashbookService) List() ([]domain.CashMovement, error) {
	movements, err := c.load()
	if err != nil {
		return nil, err
	}
	if movements == nil {
		movements = []domain.CashMovement{}
	}
	return movements, nil
}

// Update mutates a movement in place by id.
func (c *CashbookService) Update(id string, m domain.CashMovement) (*domain.CashMovement, error) {
	if err := validateMovement(&m); err != nil {
		return nil, err
	}

	movements, err := c.load()
	if err != nil {
		return nil, err
	}

	for i := range movements {
		if movements[i].ID != id {
			continue
		}
		m.ID = id
		m.CreatedDate = movements[i].CreatedDate
		movements[i] = m
		if err := c.store(movements); err != nil {
			return nil, err
		}
		return &movements[i], nil
	}
	return nil, &domain.ErrNotFound{Resource: "cash_movement", ID: id}
}

// Delete filters a movement out by id.
func (c *CashbookService) Delete(id string) error {
	movements, err := c.load()
	if err != nil {
		return err
	}
	kept := movements[:0]
	for _, m := range movements {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(movements) {
		return &domain.ErrNotFound{Resource: "cash_movement", ID: id}
	}
	return c.store(kept)
}

// Summary totals movements between from and to (inclusive, 2006-01-02
// strings; empty bounds mean unbounded). Outgoing values count into
// ByCategory as negatives so the category map nets out.
func (c *CashbookService) Summary(from, to string) (*domain.CashSummary, error) {
	movements, err := c.load()
	if err != nil {
		return nil, err
	}

	summary := &domain.CashSummary{ByCategory: make(map[string]float64)}
	for _, m := range movements {
		if from != "" && m.Date < from {
			continue
		}
		if to != "" && m.Date > to {
			continue
		}
		switch m.Type {
		case domain.MovementIn:
			summary.TotalIn += m.Value
			summary.ByCategory[m.Category] += m.Value
		case domain.MovementOut:
			summary.TotalOut += m.Value
			summary.ByCategory[m.Category] -= m.Value
		}
	}
	summary.Balance = summary.TotalIn - summary.TotalOut
	return summary, nil
}
