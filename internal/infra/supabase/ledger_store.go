package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Ledgers (implements port.TransactionSource)
// ============================================================

const ledgerColumns = "select=fecha,monto,tipo,categoria"

// ledgerPath builds the PostgREST query selecting a subject's ledger rows.
func ledgerPath(subject domain.Subject) (string, error) {
	switch subject.Scope {
	case domain.ScopePersonal:
		return fmt.Sprintf("personal_tx?%s&user_id=eq.%s&order=fecha.desc", ledgerColumns, url.QueryEscape(subject.ID)), nil
	case domain.ScopeCompany:
		return fmt.Sprintf("company_tx?%s&empresa_id=eq.%s&order=fecha.desc", ledgerColumns, url.QueryEscape(subject.ID)), nil
	}
	return "", &domain.ErrValidation{Field: "scope", Message: fmt.Sprintf("unsupported scope %q", subject.Scope)}
}

// FetchBySubject returns every ledger row of the subject, newest first.
func (c *Client) FetchBySubject(ctx context.Context, subject domain.Subject) (*domain.Ledger, error) {
	ctx, span := tracer.Start(ctx, "Supabase.FetchBySubject")
	defer span.End()
	span.SetAttributes(attribute.String("subject", subject.Key()))

	path, err := ledgerPath(subject)
	if err != nil {
		return nil, err
	}
	return c.fetchLedger(ctx, subject, path)
}

// FetchSince returns the subject's rows dated on or after from.
func (c *Client) FetchSince(ctx context.Context, subject domain.Subject, from time.Time) (*domain.Ledger, error) {
	ctx, span := tracer.Start(ctx, "Supabase.FetchSince")
	defer span.End()
	span.SetAttributes(
		attribute.String("subject", subject.Key()),
		attribute.String("from", from.Format(time.RFC3339)),
	)

	path, err := ledgerPath(subject)
	if err != nil {
		return nil, err
	}
	path += "&fecha=gte." + url.QueryEscape(from.Format(time.RFC3339))
	return c.fetchLedger(ctx, subject, path)
}

func (c *Client) fetchLedger(ctx context.Context, subject domain.Subject, path string) (*domain.Ledger, error) {
	body, err := c.get(ctx, "supabase/ledger", path)
	if err != nil {
		return nil, err
	}

	var rows []domain.RawRecord
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, &domain.ErrExternalService{Service: "supabase/ledger", Err: fmt.Errorf("decode ledger rows: %w", err)}
		}
	}

	ledger := domain.NormalizeRows(subject, rows)
	if len(ledger.Anomalies) > 0 {
		c.logger.Debug("supabase: ledger rows rejected at boundary",
			zap.String("subject", subject.Key()),
			zap.Int("rejected", len(ledger.Anomalies)),
			zap.Int("accepted", len(ledger.Records)),
		)
	}
	return ledger, nil
}
