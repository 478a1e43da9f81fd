package domain

import (
	"math"
	"strings"
	"time"
)

// ============================================================
// Cash-flow simulations
// ============================================================

const (
	// MaxSimulationName bounds the length of a simulation name, in bytes.
	MaxSimulationName = 120
	// ProjectionMonthLayout formats ProjectedPoint.Date ("2024-08").
	ProjectionMonthLayout = "2006-01"
)

// SimulationParameters adjust the projected monthly net flow. Income is
// scaled by IncomeChangePercent and expenses are lowered by ExpenseCutFlat
// (never below zero).
type SimulationParameters struct {
	IncomeChangePercent float64 `json:"income_change_percent"`
	ExpenseCutFlat      float64 `json:"expense_cut_flat"`
}

// Validate rejects parameters that would make the projection meaningless.
func (p SimulationParameters) Validate() error {
	switch {
	case math.IsNaN(p.IncomeChangePercent) || p.IncomeChangePercent <= -100 || p.IncomeChangePercent > 1000:
		return &ErrValidation{Field: "parameters.income_change_percent", Message: "must be greater than -100 and at most 1000"}
	case math.IsNaN(p.ExpenseCutFlat) || p.ExpenseCutFlat < 0 || p.ExpenseCutFlat > 1e12:
		return &ErrValidation{Field: "parameters.expense_cut_flat", Message: "must be between 0 and 1e12"}
	}
	return nil
}

// SimulationRequest is the body of POST /api/v1/simulations. Scope and
// ResourceID select the ledger the same way the overview request does.
type SimulationRequest struct {
	Name       string               `json:"name"`
	Parameters SimulationParameters `json:"parameters"`
	Scope      Scope                `json:"scope,omitempty"`
	ResourceID *string              `json:"resource_id,omitempty"`
}

// Validate checks the name and the parameters.
func (r SimulationRequest) Validate() error {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return &ErrValidation{Field: "name", Message: "name is required"}
	}
	if len(name) > MaxSimulationName {
		return &ErrValidation{Field: "name", Message: "name is too long"}
	}
	return r.Parameters.Validate()
}

// ProjectedPoint is the projected net flow of one future month.
type ProjectedPoint struct {
	Date            string  `json:"date"`
	ProjectedAmount float64 `json:"projected_amount"`
	LowerBound      float64 `json:"lower_bound"`
	UpperBound      float64 `json:"upper_bound"`
}

// MonthlyFlow is the income and expense total of one calendar month.
type MonthlyFlow struct {
	Month   time.Time `json:"month"`
	Income  float64   `json:"income"`
	Expense float64   `json:"expense"`
}

// Net returns income minus expense.
func (f MonthlyFlow) Net() float64 {
	return f.Income - f.Expense
}

// Simulation is a stored projection run.
type Simulation struct {
	ID            string               `json:"id"`
	Subject       Subject              `json:"subject"`
	Name          string               `json:"name"`
	Parameters    SimulationParameters `json:"parameters"`
	Summary       string               `json:"summary"`
	ProjectedData []ProjectedPoint     `json:"projected_data"`
	CreatedAt     time.Time            `json:"created_at"`
}

// SimulationResponse is returned by POST /api/v1/simulations.
type SimulationResponse struct {
	SimulationID  string           `json:"simulation_id,omitempty"`
	Summary       string           `json:"summary"`
	ProjectedData []ProjectedPoint `json:"projected_data"`
}
