// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
)

// TransactionSource supplies the normalized ledger of a subject.
// Implemented by the Supabase and SQLite adapters. Records come back
// date-descending, but consumers must not rely on the order.
type TransactionSource interface {
	FetchBySubject(ctx context.Context, subject domain.Subject) (*domain.Ledger, error)
	FetchSince(ctx context.Context, subject domain.Subject, from time.Time) (*domain.Ledger, error)
}

// SubjectDirectory resolves the individuals and organizations that own ledgers.
type SubjectDirectory interface {
	LookupSubject(ctx context.Context, subject domain.Subject) (*domain.SubjectProfile, error)
	ListSubjects(ctx context.Context, scope domain.Scope) ([]domain.SubjectProfile, error)
}

// LedgerStore is a backend that is both a transaction source and a
// directory, and keeps simulation runs next to the ledgers.
type LedgerStore interface {
	TransactionSource
	SubjectDirectory
	SimulationStore
	Ping(ctx context.Context) error
}

// OverviewProvider yields an analytics overview for the session's subject.
// Local aggregation and the remote analytics endpoint both satisfy it, and
// consumers must not be able to tell them apart.
type OverviewProvider interface {
	FetchOverview(ctx context.Context, session *domain.Session, scope domain.Scope, resourceID *string) (*domain.OverviewResponse, error)
}

// AnomalyReporter receives the data-quality findings of a ledger.
type AnomalyReporter interface {
	Report(ctx context.Context, subject domain.Subject, anomalies []domain.Anomaly) error
}

// AssistantAgent answers questions about a subject's finances. The agent
// behind it is a remote conversational service.
type AssistantAgent interface {
	Ask(ctx context.Context, req *domain.AgentRequest) (*domain.AgentResponse, error)
}

// SimulationStore keeps projection runs (simulations / simulation_results).
type SimulationStore interface {
	SaveSimulation(ctx context.Context, sim *domain.Simulation) error
	ListSimulations(ctx context.Context, subject domain.Subject) ([]domain.Simulation, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool)
	Set(ctx context.Context, key string, value T)
	Delete(ctx context.Context, key string)
}
