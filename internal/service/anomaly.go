package service

import (
	"context"
	"errors"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/observability"
	"github.com/boddenberg/ledger-overview-bfa/internal/port"

	"go.uber.org/zap"
)

// LogReporter logs anomalies and counts them by reason.
type LogReporter struct {
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewLogReporter creates a LogReporter.
func NewLogReporter(logger *zap.Logger, metrics *observability.Metrics) *LogReporter {
	return &LogReporter{logger: logger, metrics: metrics}
}

// Report never fails.
func (r *LogReporter) Report(_ context.Context, subject domain.Subject, anomalies []domain.Anomaly) error {
	if len(anomalies) == 0 {
		return nil
	}
	r.metrics.RecordAnomalies(anomalies)

	details := make([]string, 0, len(anomalies))
	for _, a := range anomalies {
		details = append(details, a.String())
	}
	r.logger.Warn("ledger rows excluded from aggregates",
		zap.String("subject", subject.Key()),
		zap.Int("count", len(anomalies)),
		zap.Strings("anomalies", details),
	)
	return nil
}

// MultiReporter fans a report out to several reporters. Every reporter is
// called; their errors are joined.
type MultiReporter []port.AnomalyReporter

func (m MultiReporter) Report(ctx context.Context, subject domain.Subject, anomalies []domain.Anomaly) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, subject, anomalies); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
