package service_test

import (
	"errors"
	"testing"

	"github.com/gfmeira/gestor/internal/domain"
	"github.com/gfmeira/gestor/internal/service"

	"go.uber.org/zap"
)

func TestCashbook_CreateAndList(t *testing.T) {
	kv := newMemKV()
	svc := service.NewCashbookService(kv, zap.NewNop())

	created, err := svc.Create(domain.CashMovement{
		Type:     domain.MovementIn,
		Value:    150.50,
		Category: "vendas",
		Reason:   "venda balcão",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if created.ID == "" {
		t.Error("expected generated id")
	}
	if created.Date == "" {
		t.Error("expected date defaulted to today")
	}

	movements, err := svc.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(movements) != 1 {
		t.Fatalf("expected 1 movement, got %d", len(movements))
	}
}

func TestCashbook_Validation(t *testing.T) {
	kv := newMemKV()
	svc := service.NewCashbookService(kv, zap.NewNop())

	cases := []struct {
		name string
		m    domain.CashMovement
	}{
		{"bad type", domain.CashMovement{Type: "transfer", Value: 10, Category: "x"}},
		{"zero value", domain.CashMovement{Type: domain.MovementIn, Value: 0, Category: "x"}},
		{"negative value", domain.CashMovement{Type: domain.MovementOut, Value: -5, Category: "x"}},
		{"missing category", domain.CashMovement{Type: domain.MovementIn, Value: 10}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(tc.m)
			var validation *domain.ErrValidation
			if !errors.As(err, &validation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCashbook_UpdatePreservesCreatedDate(t *testing.T) {
	kv := newMemKV()
	svc := service.NewCashbookService(kv, zap.NewNop())

	created, err := svc.Create(domain.CashMovement{
		Type: domain.MovementIn, Value: 100, Category: "vendas",
	})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.Update(created.ID, domain.CashMovement{
		Type: domain.MovementOut, Value: 80, Category: "fornecedores",
	})
	if err != nil {
		t.Fatalf("expected update to succeed, got %v", err)
	}
	if updated.ID != created.ID {
		t.Errorf("expected id preserved, got %s", updated.ID)
	}
	if updated.CreatedDate != created.CreatedDate {
		t.Errorf("expected created_date preserved, got %s", updated.CreatedDate)
	}
	if updated.Type != domain.MovementOut || updated.Value != 80 {
		t.Errorf("expected movement replaced, got %+v", updated)
	}
}

func TestCashbook_DeleteUnknown(t *testing.T) {
	kv := newMemKV()
	svc := service.NewCashbookService(kv, zap.NewNop())

	var notFound *domain.ErrNotFound
	if err := svc.Delete("missing"); !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCashbook_Summary(t *testing.T) {
	kv := newMemKV()
	svc := service.NewCashbookService(kv, zap.NewNop())

	seed := []domain.CashMovement{
		{Type: domain.MovementIn, Value: 100, Category: "vendas", Date: "2026-08-01"},
		{Type: domain.MovementIn, Value: 50, Category: "vendas", Date: "2026-08-15"},
		{Type: domain.MovementOut, Value: 30, Category: "frete", Date: "2026-08-20"},
		{Type: domain.MovementIn, Value: 999, Category: "vendas", Date: "2026-07-31"}, // outside window
	}
	for _, m := range seed {
		if _, err := svc.Create(m); err != nil {
			t.Fatal(err)
		}
	}

	summary, err := svc.Summary("2026-08-01", "2026-08-31")
	if err != nil {
		t.Fatal(err)
	}
	if summary.TotalIn != 150 {
		t.Errorf("expected total_in 150, got %f", summary.TotalIn)
	}
	if summary.TotalOut != 30 {
		t.Errorf("expected total_out 30, got %f", summary.TotalOut)
	}
	if summary.Balance != 120 {
		t.Errorf("expected balance 120, got %f", summary.Balance)
	}
	if summary.ByCategory["vendas"] != 150 || summary.ByCategory["frete"] != -30 {
		t.Errorf("unexpected by_category: %v", summary.ByCategory)
	}
}
