package service_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/observability"
	"github.com/boddenberg/ledger-overview-bfa/internal/service"

	"go.uber.org/zap"
)

var simNow = time.Date(2024, 7, 19, 15, 0, 0, 0, time.UTC)

func flatLedger() *domain.Ledger {
	ledger := &domain.Ledger{Subject: personal}
	for m := time.January; m <= time.June; m++ {
		ledger.Records = append(ledger.Records,
			rec(time.Date(2024, m, 5, 0, 0, 0, 0, time.UTC), 1000, domain.KindIncome, "salary"),
			rec(time.Date(2024, m, 9, 0, 0, 0, 0, time.UTC), 400, domain.KindExpense, "rent"),
		)
	}
	// scheduled, not history
	ledger.Records = append(ledger.Records, rec(simNow.AddDate(0, 1, 0), 9000, domain.KindExpense, ""))
	return ledger
}

func newSimulations(src *mockSource, store *mockSimulationStore) *service.SimulationService {
	svc := service.NewSimulationService(src, store, observability.NewMetrics(), zap.NewNop())
	service.SetSimulationClock(svc, func() time.Time { return simNow })
	return svc
}

func TestSimulation_RunProjectsAndStores(t *testing.T) {
	src := &mockSource{ledgers: map[domain.Subject]*domain.Ledger{personal: flatLedger()}}
	store := &mockSimulationStore{}
	svc := newSimulations(src, store)

	got, err := svc.Run(context.Background(), sessionFor(personal), domain.SimulationRequest{
		Name:       "  raise and cheaper rent ",
		Parameters: domain.SimulationParameters{IncomeChangePercent: 10, ExpenseCutFlat: 100},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(got.ProjectedData) != 12 {
		t.Fatalf("expected 12 projected months, got %d", len(got.ProjectedData))
	}
	if got.ProjectedData[0].Date != "2024-07" || got.ProjectedData[11].Date != "2025-06" {
		t.Errorf("unexpected projection window %s..%s", got.ProjectedData[0].Date, got.ProjectedData[11].Date)
	}
	for _, p := range got.ProjectedData {
		if math.Abs(p.ProjectedAmount-800) > 0.01 {
			t.Errorf("%s: expected 800, got %v", p.Date, p.ProjectedAmount)
		}
	}
	if got.Summary == "" {
		t.Error("expected a summary")
	}

	if len(store.saved) != 1 {
		t.Fatalf("expected one stored simulation, got %d", len(store.saved))
	}
	saved := store.saved[0]
	if saved.ID != got.SimulationID || saved.ID == "" {
		t.Errorf("stored id %q does not match response id %q", saved.ID, got.SimulationID)
	}
	if saved.Name != "raise and cheaper rent" || saved.Subject != personal || !saved.CreatedAt.Equal(simNow) {
		t.Errorf("unexpected stored simulation: %+v", saved)
	}
	if saved.Parameters.IncomeChangePercent != 10 || saved.Parameters.ExpenseCutFlat != 100 {
		t.Errorf("parameters not stored: %+v", saved.Parameters)
	}
}

func TestSimulation_RejectsBadRequests(t *testing.T) {
	tests := []struct {
		name string
		req  domain.SimulationRequest
	}{
		{"blank name", domain.SimulationRequest{Name: " "}},
		{"income wiped out", domain.SimulationRequest{Name: "x", Parameters: domain.SimulationParameters{IncomeChangePercent: -100}}},
		{"negative cut", domain.SimulationRequest{Name: "x", Parameters: domain.SimulationParameters{ExpenseCutFlat: -1}}},
		{"unknown scope", domain.SimulationRequest{Name: "x", Scope: "family"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &mockSource{}
			store := &mockSimulationStore{}
			_, err := newSimulations(src, store).Run(context.Background(), sessionFor(personal), tt.req)

			var verr *domain.ErrValidation
			if !errors.As(err, &verr) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
			if src.calls != 0 || len(store.saved) != 0 {
				t.Error("nothing may be fetched or stored for a rejected request")
			}
		})
	}
}

func TestSimulation_OtherSubjectIsForbidden(t *testing.T) {
	src := &mockSource{}
	_, err := newSimulations(src, &mockSimulationStore{}).Run(context.Background(), sessionFor(company), domain.SimulationRequest{
		Name:       "peek",
		Scope:      domain.ScopeCompany,
		ResourceID: strp("OTHER"),
	})

	var forbidden *domain.ErrForbidden
	if !errors.As(err, &forbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if src.calls != 0 {
		t.Error("source must not be touched")
	}
}

func TestSimulation_StoreErrorPropagates(t *testing.T) {
	src := &mockSource{ledgers: map[domain.Subject]*domain.Ledger{personal: flatLedger()}}
	_, err := newSimulations(src, &mockSimulationStore{err: errBackend}).Run(context.Background(), sessionFor(personal), domain.SimulationRequest{Name: "x"})

	if !errors.Is(err, errBackend) {
		t.Errorf("expected backend error, got %v", err)
	}
}

func TestSimulation_ListIsPerSubject(t *testing.T) {
	src := &mockSource{ledgers: map[domain.Subject]*domain.Ledger{personal: flatLedger()}}
	store := &mockSimulationStore{}
	svc := newSimulations(src, store)
	ctx := context.Background()

	for _, name := range []string{"first", "second"} {
		if _, err := svc.Run(ctx, sessionFor(personal), domain.SimulationRequest{Name: name}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.Run(ctx, sessionFor(company), domain.SimulationRequest{Name: "acme"}); err == nil {
		t.Fatal("company run without resource_id must fail")
	}

	sims, err := svc.List(ctx, sessionFor(personal), domain.ScopePersonal, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(sims) != 2 || sims[0].Name != "second" {
		t.Errorf("unexpected list: %+v", sims)
	}
}
