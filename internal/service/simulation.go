package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/ledger-overview-bfa/internal/analytics"
	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/observability"
	"github.com/boddenberg/ledger-overview-bfa/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SimulationService projects a subject's monthly net flow and stores each
// run.
type SimulationService struct {
	source  port.TransactionSource
	store   port.SimulationStore
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewSimulationService creates a SimulationService.
func NewSimulationService(source port.TransactionSource, store port.SimulationStore, metrics *observability.Metrics, logger *zap.Logger) *SimulationService {
	return &SimulationService{source: source, store: store, metrics: metrics, logger: logger, now: time.Now}
}

// Run projects the next twelve months of the selected ledger under
// req.Parameters and stores the result. An empty scope means the session's
// own scope.
func (s *SimulationService) Run(ctx context.Context, session *domain.Session, req domain.SimulationRequest) (*domain.SimulationResponse, error) {
	ctx, span := tracer.Start(ctx, "SimulationService.Run")
	defer span.End()

	now := s.now()
	scope := req.Scope
	if scope == "" && session != nil {
		scope = session.Subject.Scope
	}
	subject, err := ResolveSubject(session, now, scope, req.ResourceID)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("subject", subject.Key()))

	ledger, err := s.source.FetchBySubject(ctx, subject)
	if err != nil {
		s.metrics.IncrExternalError("ledger")
		return nil, fmt.Errorf("simulation fetch: %w", err)
	}

	// future-dated records are not history
	history := analytics.MonthlyFlows(analytics.Within(ledger.Records, time.Time{}, now), now)
	points := analytics.Project(history, req.Parameters)

	sim := &domain.Simulation{
		ID:            uuid.NewString(),
		Subject:       subject,
		Name:          strings.TrimSpace(req.Name),
		Parameters:    req.Parameters,
		Summary:       analytics.ProjectionSummary(history, points),
		ProjectedData: points,
		CreatedAt:     now.UTC(),
	}
	if err := s.store.SaveSimulation(ctx, sim); err != nil {
		s.metrics.IncrExternalError("simulations")
		return nil, fmt.Errorf("save simulation: %w", err)
	}

	s.logger.Info("simulation stored",
		zap.String("subject", subject.Key()),
		zap.String("simulation_id", sim.ID),
		zap.Int("history_months", len(history)),
	)
	return &domain.SimulationResponse{
		SimulationID:  sim.ID,
		Summary:       sim.Summary,
		ProjectedData: sim.ProjectedData,
	}, nil
}

// List returns the stored simulations of the selected ledger, newest first.
func (s *SimulationService) List(ctx context.Context, session *domain.Session, scope domain.Scope, resourceID *string) ([]domain.Simulation, error) {
	ctx, span := tracer.Start(ctx, "SimulationService.List")
	defer span.End()

	subject, err := ResolveSubject(session, s.now(), scope, resourceID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("subject", subject.Key()))

	sims, err := s.store.ListSimulations(ctx, subject)
	if err != nil {
		s.metrics.IncrExternalError("simulations")
		return nil, fmt.Errorf("list simulations: %w", err)
	}
	return sims, nil
}
