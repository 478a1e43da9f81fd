package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
)

const (
	// ProjectionHorizon is the number of future months a projection covers.
	ProjectionHorizon = 12
	// MinHistoryMonths is the shortest history a trend is fitted on. Shorter
	// histories are padded with empty months in front.
	MinHistoryMonths = 6

	// two-sided 80% normal interval
	intervalZ = 1.2816
)

// MonthlyFlows sums income and expenses per calendar month, from the month
// of the oldest well-typed record to the month of the newest. Months with
// no records are kept as zeros and the series is padded in front to
// MinHistoryMonths. With no usable records the series is MinHistoryMonths
// empty months ending at anchor's month.
func MonthlyFlows(records []domain.TransactionRecord, anchor time.Time) []domain.MonthlyFlow {
	sums := make(map[monthKey]*domain.MonthlyFlow)
	var (
		first, last monthKey
		seen        bool
	)
	for i, r := range records {
		if check(i, r) != nil {
			continue
		}
		y, m, _ := r.Date.Date()
		k := monthKey{y, m}
		f, ok := sums[k]
		if !ok {
			f = &domain.MonthlyFlow{Month: k.start()}
			sums[k] = f
		}
		if r.Kind == domain.KindIncome {
			f.Income += r.Amount
		} else {
			f.Expense += r.Amount
		}
		if !seen {
			first, last, seen = k, k, true
		}
		if k.before(first) {
			first = k
		}
		if last.before(k) {
			last = k
		}
	}

	if !seen {
		y, m, _ := anchor.Date()
		first, last = monthKey{y, m}, monthKey{y, m}
	}

	start := first.start()
	end := last.start()
	if earliest := end.AddDate(0, -(MinHistoryMonths - 1), 0); earliest.Before(start) {
		start = earliest
	}

	var out []domain.MonthlyFlow
	for t := start; !t.After(end); t = t.AddDate(0, 1, 0) {
		k := monthKey{t.Year(), t.Month()}
		if f, ok := sums[k]; ok {
			out = append(out, *f)
			continue
		}
		out = append(out, domain.MonthlyFlow{Month: t})
	}
	return out
}

// Project fits a least-squares linear trend to the monthly income and
// expense series of history and extends it ProjectionHorizon months past
// its last month. Each point is the net flow after params are applied;
// the bounds are an 80% prediction interval of the net trend.
func Project(history []domain.MonthlyFlow, params domain.SimulationParameters) []domain.ProjectedPoint {
	n := len(history)
	if n == 0 {
		return []domain.ProjectedPoint{}
	}

	incomes := make([]float64, n)
	expenses := make([]float64, n)
	for i, f := range history {
		incomes[i] = f.Income
		expenses[i] = f.Expense
	}
	incomeFit := fitLine(incomes)
	expenseFit := fitLine(expenses)

	xbar := float64(n-1) / 2
	var sxx, sse float64
	for i, f := range history {
		x := float64(i)
		sxx += (x - xbar) * (x - xbar)
		resid := f.Net() - (incomeFit.at(x) - expenseFit.at(x))
		sse += resid * resid
	}
	var sd float64
	if n > 2 {
		sd = math.Sqrt(sse / float64(n-2))
	}

	scale := 1 + params.IncomeChangePercent/100
	last := history[n-1].Month

	out := make([]domain.ProjectedPoint, 0, ProjectionHorizon)
	for h := 1; h <= ProjectionHorizon; h++ {
		x := float64(n - 1 + h)
		income := math.Max(0, incomeFit.at(x))
		expense := math.Max(0, expenseFit.at(x))
		amount := income*scale - math.Max(0, expense-params.ExpenseCutFlat)

		spread := 0.0
		if sd > 0 {
			lever := 1 + 1/float64(n)
			if sxx > 0 {
				lever += (x - xbar) * (x - xbar) / sxx
			}
			spread = intervalZ * sd * math.Sqrt(lever)
		}

		out = append(out, domain.ProjectedPoint{
			Date:            last.AddDate(0, h, 0).Format(domain.ProjectionMonthLayout),
			ProjectedAmount: round2(amount),
			LowerBound:      round2(amount - spread),
			UpperBound:      round2(amount + spread),
		})
	}
	return out
}

// ProjectionSummary describes a projection in one sentence.
func ProjectionSummary(history []domain.MonthlyFlow, points []domain.ProjectedPoint) string {
	if len(points) == 0 {
		return "No projection: the ledger has no usable history."
	}
	var total float64
	for _, p := range points {
		total += p.ProjectedAmount
	}
	return fmt.Sprintf("Linear trend over %d months of history projects a net flow of %.2f from %s to %s (%.2f per month on average).",
		len(history), total, points[0].Date, points[len(points)-1].Date, total/float64(len(points)))
}

// SortedByDateDesc returns a copy of records ordered newest first. Equal
// dates keep their input order.
func SortedByDateDesc(records []domain.TransactionRecord) []domain.TransactionRecord {
	out := make([]domain.TransactionRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

type line struct{ intercept, slope float64 }

func (l line) at(x float64) float64 { return l.intercept + l.slope*x }

// fitLine is ordinary least squares of ys against x = 0..len(ys)-1.
func fitLine(ys []float64) line {
	n := float64(len(ys))
	if len(ys) < 2 {
		if len(ys) == 1 {
			return line{intercept: ys[0]}
		}
		return line{}
	}
	xbar := (n - 1) / 2
	var ybar float64
	for _, y := range ys {
		ybar += y
	}
	ybar /= n

	var sxy, sxx float64
	for i, y := range ys {
		dx := float64(i) - xbar
		sxy += dx * (y - ybar)
		sxx += dx * dx
	}
	slope := sxy / sxx
	return line{intercept: ybar - slope*xbar, slope: slope}
}

func (k monthKey) start() time.Time {
	return time.Date(k.year, k.month, 1, 0, 0, 0, 0, time.UTC)
}

// round2 rounds to cents; adding zero turns -0 into 0.
func round2(v float64) float64 {
	return math.Round(v*100)/100 + 0
}
