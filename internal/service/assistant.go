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

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// AssistantService answers free-form questions about the session's own
// ledger through the conversational agent.
type AssistantService struct {
	source  port.TransactionSource
	agent   port.AssistantAgent
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewAssistantService creates an AssistantService. A nil agent makes every
// question fail with domain.ErrNotConfigured.
func NewAssistantService(source port.TransactionSource, agent port.AssistantAgent, metrics *observability.Metrics, logger *zap.Logger) *AssistantService {
	return &AssistantService{source: source, agent: agent, metrics: metrics, logger: logger, now: time.Now}
}

// Ask sends query to the agent together with the most recent records,
// totals and category breakdown of the session's subject.
func (s *AssistantService) Ask(ctx context.Context, session *domain.Session, query string) (*domain.AssistantResponse, error) {
	ctx, span := tracer.Start(ctx, "AssistantService.Ask")
	defer span.End()

	now := s.now()
	if !session.Active(now) {
		return nil, &domain.ErrNoSession{}
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &domain.ErrValidation{Field: "query", Message: "query is required"}
	}
	if len(query) > domain.MaxAssistantQuery {
		return nil, &domain.ErrValidation{Field: "query", Message: fmt.Sprintf("query must be at most %d bytes", domain.MaxAssistantQuery)}
	}

	own := session.Subject.ID
	subject, err := ResolveSubject(session, now, session.Subject.Scope, &own)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("subject", subject.Key()))

	if s.agent == nil {
		return nil, &domain.ErrNotConfigured{Setting: "ASSISTANT_API_URL"}
	}

	ledger, err := s.source.FetchBySubject(ctx, subject)
	if err != nil {
		s.metrics.IncrExternalError("ledger")
		return nil, fmt.Errorf("assistant context fetch: %w", err)
	}

	start := time.Now()
	resp, err := s.agent.Ask(ctx, &domain.AgentRequest{
		Query:   query,
		Subject: subject,
		Context: agentContext(ledger.Records),
	})
	s.metrics.RecordRequestDuration("assistant", time.Since(start))
	if err != nil {
		s.metrics.IncrExternalError("assistant")
		s.logger.Error("assistant call failed",
			zap.String("subject", subject.Key()),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("assistant answered",
		zap.String("subject", subject.Key()),
		zap.Int("tokens_used", resp.TokensUsed),
	)
	return &domain.AssistantResponse{Answer: resp.Answer}, nil
}

// agentContext keeps the newest AssistantContextSize records and summarizes
// the whole ledger.
func agentContext(records []domain.TransactionRecord) domain.AgentContext {
	recent := analytics.SortedByDateDesc(records)
	if len(recent) > domain.AssistantContextSize {
		recent = recent[:domain.AssistantContextSize]
	}

	txs := make([]domain.AgentTransaction, 0, len(recent))
	for _, r := range recent {
		txs = append(txs, domain.AgentTransaction{
			Date:     r.Date.Format("2006-01-02"),
			Amount:   r.Amount,
			Kind:     r.Kind,
			Category: r.Category,
		})
	}
	return domain.AgentContext{
		RecentTransactions: txs,
		Totals:             analytics.Totals(records),
		Categories:         analytics.GroupByCategory(records),
	}
}
