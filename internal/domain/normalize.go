package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RawRecord is a ledger row exactly as the storage backends return it
// (personal_tx / company_tx columns).
type RawRecord struct {
	Fecha     string              `json:"fecha"`
	Monto     decimal.NullDecimal `json:"monto"`
	Tipo      string              `json:"tipo"`
	Categoria *string             `json:"categoria"`
}

// AnomalyReason names why a row was kept out of the aggregates.
type AnomalyReason string

const (
	AnomalyUnknownKind    AnomalyReason = "unknown_kind"
	AnomalyBadDate        AnomalyReason = "unparseable_date"
	AnomalyMissingAmount  AnomalyReason = "missing_amount"
	AnomalyNegativeAmount AnomalyReason = "negative_amount"
	// AnomalyNonFiniteAmount marks amounts that are NaN or infinite as float64.
	AnomalyNonFiniteAmount AnomalyReason = "non_finite_amount"
)

// Anomaly is a data-quality finding about one input row.
type Anomaly struct {
	Reason AnomalyReason `json:"reason"`
	Index  int           `json:"index"`
	Detail string        `json:"detail"`
}

func (a Anomaly) String() string {
	return fmt.Sprintf("row %d: %s (%s)", a.Index, a.Reason, a.Detail)
}

// dateLayouts are tried in order; PostgREST emits RFC3339 for timestamptz,
// plain timestamps without offset, or bare dates.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
}

// ParseDate parses a ledger date. Values without an offset are read as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// ParseKind maps the stored movement type to a Kind. Both the Spanish
// column values of the ledgers and the English names are accepted.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ingreso", "income":
		return KindIncome, true
	case "gasto", "expense":
		return KindExpense, true
	}
	return "", false
}

// NormalizeRow validates one raw row at the source boundary. A row that
// cannot be trusted is returned as an Anomaly instead of a record.
func NormalizeRow(subject Subject, index int, raw RawRecord) (TransactionRecord, *Anomaly) {
	kind, ok := ParseKind(raw.Tipo)
	if !ok {
		return TransactionRecord{}, &Anomaly{Reason: AnomalyUnknownKind, Index: index, Detail: fmt.Sprintf("tipo=%q", raw.Tipo)}
	}

	date, err := ParseDate(raw.Fecha)
	if err != nil {
		return TransactionRecord{}, &Anomaly{Reason: AnomalyBadDate, Index: index, Detail: err.Error()}
	}
	if date.IsZero() {
		return TransactionRecord{}, &Anomaly{Reason: AnomalyBadDate, Index: index, Detail: fmt.Sprintf("zero date %q", raw.Fecha)}
	}

	if !raw.Monto.Valid {
		return TransactionRecord{}, &Anomaly{Reason: AnomalyMissingAmount, Index: index, Detail: "monto is null"}
	}
	if raw.Monto.Decimal.IsNegative() {
		return TransactionRecord{}, &Anomaly{Reason: AnomalyNegativeAmount, Index: index, Detail: "monto=" + raw.Monto.Decimal.String()}
	}
	amount := raw.Monto.Decimal.InexactFloat64()
	if math.IsInf(amount, 0) || math.IsNaN(amount) {
		return TransactionRecord{}, &Anomaly{Reason: AnomalyNonFiniteAmount, Index: index, Detail: "monto=" + raw.Monto.Decimal.String()}
	}

	var category *string
	if raw.Categoria != nil && strings.TrimSpace(*raw.Categoria) != "" {
		c := strings.TrimSpace(*raw.Categoria)
		category = &c
	}

	return TransactionRecord{
		Date:     date,
		Amount:   amount,
		Kind:     kind,
		Category: category,
		Subject:  subject,
	}, nil
}

// NormalizeRows builds a Ledger from raw rows, preserving their order.
func NormalizeRows(subject Subject, rows []RawRecord) *Ledger {
	ledger := &Ledger{
		Subject: subject,
		Records: make([]TransactionRecord, 0, len(rows)),
	}
	for i, raw := range rows {
		rec, anomaly := NormalizeRow(subject, i, raw)
		if anomaly != nil {
			ledger.Anomalies = append(ledger.Anomalies, *anomaly)
			continue
		}
		ledger.Records = append(ledger.Records, rec)
	}
	return ledger
}
