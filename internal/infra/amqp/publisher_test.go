package amqp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChannel struct {
	exchange string
	key      string
	msgs     []amqp091.Publishing
	err      error
	closed   bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.exchange, f.key = exchange, key
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublisher_Report(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(ch, "ledger.events", "ledger.anomalies", zap.NewNop())
	p.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	subject := domain.Subject{Scope: domain.ScopeCompany, ID: "ACME"}
	anomalies := []domain.Anomaly{
		{Reason: domain.AnomalyUnknownKind, Index: 3, Detail: `tipo="reembolso"`},
		{Reason: domain.AnomalyMissingAmount, Index: 8},
	}

	require.NoError(t, p.Report(context.Background(), subject, anomalies))

	require.Len(t, ch.msgs, 1)
	assert.Equal(t, "ledger.events", ch.exchange)
	assert.Equal(t, "ledger.anomalies", ch.key)

	msg := ch.msgs[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp091.Persistent, msg.DeliveryMode)

	event, err := AnomalyEventFromJSON(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, msg.MessageId, event.ID)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, domain.ScopeCompany, event.Scope)
	assert.Equal(t, "ACME", event.SubjectID)
	assert.Equal(t, 2, event.Count)
	assert.Equal(t, anomalies, event.Anomalies)
	assert.True(t, event.OccurredAt.Equal(p.now()))
}

func TestPublisher_NothingToReport(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(ch, "x", "k", zap.NewNop())

	require.NoError(t, p.Report(context.Background(), domain.Subject{Scope: domain.ScopePersonal, ID: "1"}, nil))
	assert.Empty(t, ch.msgs)
}

func TestPublisher_PublishError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := newPublisher(ch, "x", "k", zap.NewNop())

	err := p.Report(context.Background(), domain.Subject{Scope: domain.ScopePersonal, ID: "1"},
		[]domain.Anomaly{{Reason: domain.AnomalyBadDate}})
	assert.ErrorContains(t, err, "channel closed")

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}
