// Package analytics turns a subject's transaction records into the
// aggregates a dashboard needs. Every function here is pure: no I/O, no
// clock, no shared state, so it is safe to call concurrently.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
)

const (
	// DailyWindow is the number of most recent expense days kept.
	DailyWindow = 7
	// MonthlyWindow is the number of most recent expense months kept.
	MonthlyWindow = 6

	dayLabelLayout   = "Jan 2"
	monthLabelLayout = "January 2006"
)

// dayKey and monthKey identify calendar buckets independently of their label,
// so "Jan 5" of two different years never collapse into one bucket.
type dayKey struct {
	year  int
	month time.Month
	day   int
}

type monthKey struct {
	year  int
	month time.Month
}

func (k dayKey) before(o dayKey) bool {
	if k.year != o.year {
		return k.year < o.year
	}
	if k.month != o.month {
		return k.month < o.month
	}
	return k.day < o.day
}

func (k monthKey) before(o monthKey) bool {
	if k.year != o.year {
		return k.year < o.year
	}
	return k.month < o.month
}

// Aggregate computes the Overview of records. Records that are not
// well-typed are left out; use AggregateWithAnomalies to see them.
func Aggregate(records []domain.TransactionRecord) domain.Overview {
	overview, _ := AggregateWithAnomalies(records)
	return overview
}

// AggregateWithAnomalies computes the Overview of records and reports every
// record excluded from it.
func AggregateWithAnomalies(records []domain.TransactionRecord) (domain.Overview, []domain.Anomaly) {
	var (
		totalIncome   float64
		totalExpenses float64
		anomalies     []domain.Anomaly
	)

	daily := make(map[dayKey]float64)
	monthly := make(map[monthKey]float64)

	for i, r := range records {
		if a := check(i, r); a != nil {
			anomalies = append(anomalies, *a)
			continue
		}

		switch r.Kind {
		case domain.KindIncome:
			totalIncome += r.Amount
		case domain.KindExpense:
			totalExpenses += r.Amount

			y, m, d := r.Date.Date()
			daily[dayKey{y, m, d}] += r.Amount
			monthly[monthKey{y, m}] += r.Amount
		}
	}

	netBalance := totalIncome - totalExpenses

	return domain.Overview{
		TotalIncome:      totalIncome,
		TotalExpenses:    totalExpenses,
		NetBalance:       netBalance,
		MarginPercentage: margin(totalIncome, netBalance),
		DailyExpenses:    dailySeries(daily),
		MonthlyExpenses:  monthlySeries(monthly),
	}, anomalies
}

// Totals sums income and expenses the same way Aggregate does.
func Totals(records []domain.TransactionRecord) domain.Totals {
	var t domain.Totals
	for i, r := range records {
		if check(i, r) != nil {
			continue
		}
		switch r.Kind {
		case domain.KindIncome:
			t.IncomeTotal += r.Amount
		case domain.KindExpense:
			t.ExpenseTotal += r.Amount
		}
	}
	t.Balance = t.IncomeTotal - t.ExpenseTotal
	return t
}

// GroupByCategory sums income and expenses per category. Records without a
// category are grouped under domain.UncategorizedLabel. The result is
// ordered by expenses descending, then by category name.
func GroupByCategory(records []domain.TransactionRecord) []domain.CategoryTotal {
	groups := make(map[string]*domain.CategoryTotal)
	for i, r := range records {
		if check(i, r) != nil {
			continue
		}
		name := r.CategoryOrDefault()
		g, ok := groups[name]
		if !ok {
			g = &domain.CategoryTotal{Category: name}
			groups[name] = g
		}
		if r.Kind == domain.KindIncome {
			g.Income += r.Amount
		} else {
			g.Expenses += r.Amount
		}
	}

	out := make([]domain.CategoryTotal, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Expenses != out[j].Expenses {
			return out[i].Expenses > out[j].Expenses
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// Within returns the records dated between from and to, both inclusive.
// The input slice is not modified.
func Within(records []domain.TransactionRecord, from, to time.Time) []domain.TransactionRecord {
	out := make([]domain.TransactionRecord, 0, len(records))
	for _, r := range records {
		if r.Date.Before(from) || r.Date.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// MonthStart returns midnight of the first day of now's month, in now's location.
func MonthStart(now time.Time) time.Time {
	y, m, _ := now.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
}

// DayLabel renders the short day label used by the daily series ("Jan 5").
func DayLabel(t time.Time) string {
	return t.Format(dayLabelLayout)
}

// MonthLabel renders the month label used by the monthly series ("January 2024").
func MonthLabel(t time.Time) string {
	return t.Format(monthLabelLayout)
}

func margin(income, net float64) float64 {
	if income > 0 {
		return net / income * 100
	}
	return 0
}

// check returns an anomaly for records that cannot be classified.
func check(index int, r domain.TransactionRecord) *domain.Anomaly {
	switch {
	case r.Kind != domain.KindIncome && r.Kind != domain.KindExpense:
		return &domain.Anomaly{Reason: domain.AnomalyUnknownKind, Index: index, Detail: fmt.Sprintf("kind=%q", r.Kind)}
	case math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0):
		return &domain.Anomaly{Reason: domain.AnomalyNonFiniteAmount, Index: index, Detail: fmt.Sprintf("amount=%v", r.Amount)}
	case r.Amount < 0:
		return &domain.Anomaly{Reason: domain.AnomalyNegativeAmount, Index: index, Detail: fmt.Sprintf("amount=%v", r.Amount)}
	case r.Date.IsZero():
		return &domain.Anomaly{Reason: domain.AnomalyBadDate, Index: index, Detail: "zero date"}
	}
	return nil
}

func dailySeries(buckets map[dayKey]float64) []domain.DailyBucket {
	keys := make([]dayKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].before(keys[j]) })
	if len(keys) > DailyWindow {
		keys = keys[len(keys)-DailyWindow:]
	}

	out := make([]domain.DailyBucket, 0, len(keys))
	for _, k := range keys {
		out = append(out, domain.DailyBucket{
			Label:  DayLabel(time.Date(k.year, k.month, k.day, 0, 0, 0, 0, time.UTC)),
			Amount: buckets[k],
		})
	}
	return out
}

func monthlySeries(buckets map[monthKey]float64) []domain.MonthlyBucket {
	keys := make([]monthKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].before(keys[j]) })
	if len(keys) > MonthlyWindow {
		keys = keys[len(keys)-MonthlyWindow:]
	}

	out := make([]domain.MonthlyBucket, 0, len(keys))
	for _, k := range keys {
		out = append(out, domain.MonthlyBucket{
			Label:  MonthLabel(time.Date(k.year, k.month, 1, 0, 0, 0, 0, time.UTC)),
			Amount: buckets[k],
		})
	}
	return out
}
