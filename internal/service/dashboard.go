package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/observability"
	"github.com/boddenberg/ledger-overview-bfa/internal/port"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DashboardService assembles the dashboard page. The overview comes from
// whichever port.OverviewProvider is configured (local aggregation or the
// remote analytics endpoint); the service cannot tell them apart.
type DashboardService struct {
	overview port.OverviewProvider
	origin   string
	ledger   *LedgerService
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewDashboardService creates a DashboardService. origin labels the
// provider in metrics ("local" or "remote").
func NewDashboardService(overview port.OverviewProvider, origin string, ledger *LedgerService, metrics *observability.Metrics, logger *zap.Logger) *DashboardService {
	return &DashboardService{
		overview: overview,
		origin:   origin,
		ledger:   ledger,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Overview fetches only the overview through the configured provider.
func (s *DashboardService) Overview(ctx context.Context, session *domain.Session, scope domain.Scope, resourceID *string) (*domain.OverviewResponse, error) {
	ctx, span := tracer.Start(ctx, "DashboardService.Overview")
	defer span.End()

	resp, err := s.overview.FetchOverview(ctx, session, scope, resourceID)
	if err != nil {
		return nil, err
	}
	if s.origin != "local" {
		s.metrics.IncrOverview(s.origin, scope)
	}
	return resp, nil
}

// Load fetches overview, current-month summary and categories concurrently.
// The first failure cancels the others.
func (s *DashboardService) Load(ctx context.Context, session *domain.Session, scope domain.Scope, resourceID *string) (*domain.Dashboard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "DashboardService.Load")
	defer span.End()

	// fail before fanning out when the caller may not read this ledger
	if _, err := ResolveSubject(session, s.now(), scope, resourceID); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("dashboard", time.Since(start))
	}()

	var dash domain.Dashboard
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		o, err := s.Overview(gCtx, session, scope, resourceID)
		if err != nil {
			return fmt.Errorf("overview: %w", err)
		}
		dash.Overview = o
		return nil
	})

	g.Go(func() error {
		m, err := s.ledger.MonthSummary(gCtx, session, scope, resourceID)
		if err != nil {
			return fmt.Errorf("month summary: %w", err)
		}
		dash.MonthSummary = m
		return nil
	})

	g.Go(func() error {
		c, err := s.ledger.Categories(gCtx, session, scope, resourceID)
		if err != nil {
			return fmt.Errorf("categories: %w", err)
		}
		dash.Categories = c
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.Error("dashboard load failed",
			zap.String("scope", string(scope)),
			zap.Error(err),
		)
		return nil, err
	}
	return &dash, nil
}
