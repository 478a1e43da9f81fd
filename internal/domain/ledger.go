// Package domain defines the core entities of the ledger overview BFA.
// These models are independent of the storage backends and of the HTTP
// layer; both the local aggregation path and the remote analytics path
// produce the same Overview shape.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ============================================================
// Subjects
// ============================================================

// Scope identifies which kind of subject a ledger belongs to.
type Scope string

const (
	ScopePersonal Scope = "personal"
	ScopeCompany  Scope = "company"
)

// Valid reports whether s is one of the known scopes.
func (s Scope) Valid() bool {
	return s == ScopePersonal || s == ScopeCompany
}

// Subject is the individual or organization whose transactions are aggregated.
// Personal subjects are identified by an integer, companies by a string code.
type Subject struct {
	Scope Scope  `json:"scope"`
	ID    string `json:"id"`
}

// ParseSubject validates a scope/identifier pair coming from the outside.
func ParseSubject(scope Scope, id string) (Subject, error) {
	id = strings.TrimSpace(id)
	switch scope {
	case ScopePersonal:
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil || n <= 0 {
			return Subject{}, &ErrValidation{Field: "resource_id", Message: "personal subject id must be a positive integer"}
		}
		return Subject{Scope: scope, ID: strconv.FormatInt(n, 10)}, nil
	case ScopeCompany:
		if id == "" {
			return Subject{}, &ErrValidation{Field: "resource_id", Message: "company id is required"}
		}
		return Subject{Scope: scope, ID: id}, nil
	default:
		return Subject{}, &ErrValidation{Field: "scope", Message: fmt.Sprintf("unsupported scope %q", scope)}
	}
}

// Key returns a stable string usable as a cache key.
func (s Subject) Key() string {
	return string(s.Scope) + ":" + s.ID
}

func (s Subject) String() string {
	return s.Key()
}

// SubjectProfile is the directory entry for a subject (app_users / companies).
type SubjectProfile struct {
	Subject Subject `json:"subject"`
	Name    string  `json:"name"`
}

// ============================================================
// Transactions
// ============================================================

// Kind classifies a transaction record. Direction of money flow is carried
// by the kind, never by the sign of the amount.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// UncategorizedLabel replaces an absent category when grouping by category.
const UncategorizedLabel = "uncategorized"

// TransactionRecord is one normalized ledger movement.
type TransactionRecord struct {
	Date     time.Time `json:"date"`
	Amount   float64   `json:"amount"`
	Kind     Kind      `json:"kind"`
	Category *string   `json:"category,omitempty"`
	Subject  Subject   `json:"subject"`
}

// CategoryOrDefault returns the category, or UncategorizedLabel when absent or blank.
func (r TransactionRecord) CategoryOrDefault() string {
	if r.Category == nil || strings.TrimSpace(*r.Category) == "" {
		return UncategorizedLabel
	}
	return *r.Category
}

// Ledger is what a transaction source hands over for one subject: the
// records that passed boundary validation plus the rows it rejected.
type Ledger struct {
	Subject   Subject             `json:"subject"`
	Records   []TransactionRecord `json:"records"`
	Anomalies []Anomaly           `json:"anomalies,omitempty"`
}

// ============================================================
// Aggregates
// ============================================================

// DailyBucket is the sum of expenses for one calendar day ("Jan 5").
type DailyBucket struct {
	Label  string  `json:"date"`
	Amount float64 `json:"amount"`
}

// MonthlyBucket is the sum of expenses for one calendar month ("January 2024").
type MonthlyBucket struct {
	Label  string  `json:"month"`
	Amount float64 `json:"amount"`
}

// Overview is the complete aggregate consumed by the dashboard.
// Field names follow the remote analytics wire format.
type Overview struct {
	TotalIncome      float64         `json:"total_income"`
	TotalExpenses    float64         `json:"total_expenses"`
	NetBalance       float64         `json:"net_balance"`
	MarginPercentage float64         `json:"balance_percentage"`
	DailyExpenses    []DailyBucket   `json:"daily_expenses"`
	MonthlyExpenses  []MonthlyBucket `json:"monthly_expenses"`
}

// OverviewResponse is the envelope returned by POST /api/v1/analytics/overview.
type OverviewResponse struct {
	Scope      Scope  `json:"scope"`
	ResourceID string `json:"resource_id"`
	Overview
}

// OverviewRequest is the body of POST /api/v1/analytics/overview.
type OverviewRequest struct {
	Scope      Scope   `json:"scope"`
	ResourceID *string `json:"resource_id,omitempty"`
}

// Totals is the income/expense/balance triple used by the current-month summary.
type Totals struct {
	IncomeTotal  float64 `json:"income_total"`
	ExpenseTotal float64 `json:"expense_total"`
	Balance      float64 `json:"balance"`
}

// MonthSummary is Totals restricted to the current calendar month.
type MonthSummary struct {
	Subject Subject   `json:"subject"`
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Totals
}

// CategoryTotal groups income and expenses of one category.
type CategoryTotal struct {
	Category string  `json:"category"`
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
}

// Dashboard bundles everything the dashboard page needs in one response.
type Dashboard struct {
	Overview     *OverviewResponse `json:"overview"`
	MonthSummary *MonthSummary     `json:"month_summary"`
	Categories   []CategoryTotal   `json:"categories"`
}

// AnalyticsMetrics is a snapshot of service counters for GET /api/v1/metrics/analytics.
type AnalyticsMetrics struct {
	OverviewsLocal  int64   `json:"overviews_local"`
	OverviewsRemote int64   `json:"overviews_remote"`
	Anomalies       int64   `json:"anomalies"`
	CacheHitRate    float64 `json:"cache_hit_rate"`
	ExternalErrors  int64   `json:"external_errors"`
}
