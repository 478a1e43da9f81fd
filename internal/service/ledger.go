package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/ledger-overview-bfa/internal/analytics"
	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/observability"
	"github.com/boddenberg/ledger-overview-bfa/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// LedgerService answers the smaller dashboard queries straight from the
// transaction source.
type LedgerService struct {
	source  port.TransactionSource
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewLedgerService creates a LedgerService.
func NewLedgerService(source port.TransactionSource, metrics *observability.Metrics, logger *zap.Logger) *LedgerService {
	return &LedgerService{source: source, metrics: metrics, logger: logger, now: time.Now}
}

// MonthSummary returns the totals of the current calendar month, from its
// first instant up to now. Records dated in the future are left out. It
// uses the same totals methodology as the overview.
func (s *LedgerService) MonthSummary(ctx context.Context, session *domain.Session, scope domain.Scope, resourceID *string) (*domain.MonthSummary, error) {
	ctx, span := tracer.Start(ctx, "LedgerService.MonthSummary")
	defer span.End()

	now := s.now()
	subject, err := ResolveSubject(session, now, scope, resourceID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("subject", subject.Key()))

	from := analytics.MonthStart(now)
	ledger, err := s.source.FetchSince(ctx, subject, from)
	if err != nil {
		s.metrics.IncrExternalError("ledger")
		return nil, fmt.Errorf("month summary fetch: %w", err)
	}

	return &domain.MonthSummary{
		Subject: subject,
		From:    from,
		To:      now,
		Totals:  analytics.Totals(analytics.Within(ledger.Records, from, now)),
	}, nil
}

// Categories returns the per-category breakdown of the subject's ledger.
func (s *LedgerService) Categories(ctx context.Context, session *domain.Session, scope domain.Scope, resourceID *string) ([]domain.CategoryTotal, error) {
	ctx, span := tracer.Start(ctx, "LedgerService.Categories")
	defer span.End()

	subject, err := ResolveSubject(session, s.now(), scope, resourceID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("subject", subject.Key()))

	ledger, err := s.source.FetchBySubject(ctx, subject)
	if err != nil {
		s.metrics.IncrExternalError("ledger")
		return nil, fmt.Errorf("categories fetch: %w", err)
	}
	return analytics.GroupByCategory(ledger.Records), nil
}
