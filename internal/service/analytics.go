// Package service holds the use cases of the BFA: aggregation of a
// subject's ledger, the dashboard bundle and session issuance.
package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/boddenberg/ledger-overview-bfa/internal/analytics"
	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/observability"
	"github.com/boddenberg/ledger-overview-bfa/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("service/analytics")

// AnalyticsService computes overviews locally from a transaction source.
// It implements port.OverviewProvider.
type AnalyticsService struct {
	source   port.TransactionSource
	cache    port.Cache[*domain.OverviewResponse]
	reporter port.AnomalyReporter
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewAnalyticsService creates the analytics service with all dependencies injected.
func NewAnalyticsService(
	source port.TransactionSource,
	cache port.Cache[*domain.OverviewResponse],
	reporter port.AnomalyReporter,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *AnalyticsService {
	return &AnalyticsService{
		source:   source,
		cache:    cache,
		reporter: reporter,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// FetchOverview aggregates the ledger of the subject selected by scope and
// resourceID. Results are cached per subject.
func (s *AnalyticsService) FetchOverview(ctx context.Context, session *domain.Session, scope domain.Scope, resourceID *string) (*domain.OverviewResponse, error) {
	ctx, span := tracer.Start(ctx, "AnalyticsService.FetchOverview")
	defer span.End()

	subject, err := ResolveSubject(session, s.now(), scope, resourceID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("subject", subject.Key()))

	cacheKey := "overview:" + subject.Key()
	if cached, ok := s.cache.Get(ctx, cacheKey); ok && cached != nil {
		s.metrics.IncrCacheHit("overview")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("overview")

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("overview", time.Since(start))
	}()

	ledger, err := s.source.FetchBySubject(ctx, subject)
	if err != nil {
		s.logger.Error("failed to fetch ledger",
			zap.String("subject", subject.Key()),
			zap.Error(err),
		)
		s.metrics.IncrExternalError("ledger")
		return nil, fmt.Errorf("ledger fetch: %w", err)
	}

	overview, excluded := analytics.AggregateWithAnomalies(ledger.Records)
	s.report(ctx, subject, slices.Concat(ledger.Anomalies, excluded))

	resp := &domain.OverviewResponse{
		Scope:      subject.Scope,
		ResourceID: subject.ID,
		Overview:   overview,
	}
	s.cache.Set(ctx, cacheKey, resp)
	s.metrics.IncrOverview("local", subject.Scope)

	s.logger.Info("overview computed",
		zap.String("subject", subject.Key()),
		zap.Int("records", len(ledger.Records)),
		zap.Float64("net_balance", overview.NetBalance),
	)
	return resp, nil
}

// Invalidate drops the cached overview of subject.
func (s *AnalyticsService) Invalidate(ctx context.Context, subject domain.Subject) {
	s.cache.Delete(ctx, "overview:"+subject.Key())
}

// report hands anomalies to the reporter. Failures are logged only; the
// overview is still returned.
func (s *AnalyticsService) report(ctx context.Context, subject domain.Subject, anomalies []domain.Anomaly) {
	if len(anomalies) == 0 || s.reporter == nil {
		return
	}
	if err := s.reporter.Report(ctx, subject, anomalies); err != nil {
		s.logger.Warn("anomaly report failed",
			zap.String("subject", subject.Key()),
			zap.Int("count", len(anomalies)),
			zap.Error(err),
		)
	}
}
