package amqp

import (
	"encoding/json"
	"time"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"

	"github.com/google/uuid"
)

// AnomalyEvent is published once per ledger read that rejected rows.
type AnomalyEvent struct {
	ID         string           `json:"id"`
	Scope      domain.Scope     `json:"scope"`
	SubjectID  string           `json:"subject_id"`
	Count      int              `json:"count"`
	Anomalies  []domain.Anomaly `json:"anomalies"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// NewAnomalyEvent builds an event with a fresh id.
func NewAnomalyEvent(subject domain.Subject, anomalies []domain.Anomaly, now time.Time) AnomalyEvent {
	return AnomalyEvent{
		ID:         uuid.NewString(),
		Scope:      subject.Scope,
		SubjectID:  subject.ID,
		Count:      len(anomalies),
		Anomalies:  anomalies,
		OccurredAt: now.UTC(),
	}
}

func (e AnomalyEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// AnomalyEventFromJSON decodes a published event.
func AnomalyEventFromJSON(data []byte) (*AnomalyEvent, error) {
	var e AnomalyEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
