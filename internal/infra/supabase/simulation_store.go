package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Simulations (implements port.SimulationStore)
// ============================================================

// simulationRow maps the simulations table. Personal runs are keyed by
// user_id, company runs by empresa_id.
type simulationRow struct {
	ID         string                      `json:"id"`
	UserID     *int64                      `json:"user_id,omitempty"`
	EmpresaID  *string                     `json:"empresa_id,omitempty"`
	Name       string                      `json:"name"`
	Parameters domain.SimulationParameters `json:"parameters"`
	CreatedAt  time.Time                   `json:"created_at"`
}

type simulationResultRow struct {
	SimulationID   string                  `json:"simulation_id,omitempty"`
	ProjectedData  []domain.ProjectedPoint `json:"projected_data"`
	SummaryInsight string                  `json:"summary_insight"`
}

// ownerFilter returns the column and value identifying the subject's runs.
func ownerFilter(subject domain.Subject) (string, string, error) {
	switch subject.Scope {
	case domain.ScopePersonal:
		return "user_id", subject.ID, nil
	case domain.ScopeCompany:
		return "empresa_id", subject.ID, nil
	}
	return "", "", &domain.ErrValidation{Field: "scope", Message: fmt.Sprintf("unsupported scope %q", subject.Scope)}
}

// SaveSimulation inserts the run, then its projection.
func (c *Client) SaveSimulation(ctx context.Context, sim *domain.Simulation) error {
	ctx, span := tracer.Start(ctx, "Supabase.SaveSimulation")
	defer span.End()
	span.SetAttributes(attribute.String("simulation.id", sim.ID))

	row := simulationRow{
		ID:         sim.ID,
		Name:       sim.Name,
		Parameters: sim.Parameters,
		CreatedAt:  sim.CreatedAt.UTC(),
	}
	switch sim.Subject.Scope {
	case domain.ScopePersonal:
		id, err := strconv.ParseInt(sim.Subject.ID, 10, 64)
		if err != nil {
			return &domain.ErrValidation{Field: "resource_id", Message: "personal id must be an integer"}
		}
		row.UserID = &id
	case domain.ScopeCompany:
		id := sim.Subject.ID
		row.EmpresaID = &id
	default:
		return &domain.ErrValidation{Field: "scope", Message: fmt.Sprintf("unsupported scope %q", sim.Subject.Scope)}
	}

	payload, err := json.Marshal(row)
	if err != nil {
		return err
	}
	if err := c.post(ctx, "supabase/simulations", "simulations", payload); err != nil {
		return err
	}

	payload, err = json.Marshal(simulationResultRow{
		SimulationID:   sim.ID,
		ProjectedData:  sim.ProjectedData,
		SummaryInsight: sim.Summary,
	})
	if err != nil {
		return err
	}
	return c.post(ctx, "supabase/simulations", "simulation_results", payload)
}

// ListSimulations returns the subject's simulations with their
// projections, newest first.
func (c *Client) ListSimulations(ctx context.Context, subject domain.Subject) ([]domain.Simulation, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListSimulations")
	defer span.End()
	span.SetAttributes(attribute.String("subject", subject.Key()))

	column, value, err := ownerFilter(subject)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("simulations?select=id,name,parameters,created_at,simulation_results(projected_data,summary_insight)&%s=eq.%s&order=created_at.desc",
		column, url.QueryEscape(value))

	body, err := c.get(ctx, "supabase/simulations", path)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		simulationRow
		Results json.RawMessage `json:"simulation_results"`
	}
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, &domain.ErrExternalService{Service: "supabase/simulations", Err: fmt.Errorf("decode simulations: %w", err)}
		}
	}

	out := make([]domain.Simulation, 0, len(rows))
	for _, r := range rows {
		result, err := embeddedResult(r.Results)
		if err != nil {
			return nil, &domain.ErrExternalService{Service: "supabase/simulations", Err: fmt.Errorf("decode result of %s: %w", r.ID, err)}
		}
		if result.ProjectedData == nil {
			result.ProjectedData = []domain.ProjectedPoint{}
		}
		out = append(out, domain.Simulation{
			ID:            r.ID,
			Subject:       subject,
			Name:          r.Name,
			Parameters:    r.Parameters,
			Summary:       result.SummaryInsight,
			ProjectedData: result.ProjectedData,
			CreatedAt:     r.CreatedAt,
		})
	}
	return out, nil
}

// embeddedResult accepts the embedded simulation_results either as an
// object (one-to-one) or as an array, depending on how PostgREST sees the
// relationship.
func embeddedResult(raw json.RawMessage) (simulationResultRow, error) {
	var res simulationResultRow
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return res, nil
	}
	if raw[0] == '[' {
		var list []simulationResultRow
		if err := json.Unmarshal(raw, &list); err != nil {
			return res, err
		}
		if len(list) > 0 {
			res = list[0]
		}
		return res, nil
	}
	err := json.Unmarshal(raw, &res)
	return res, err
}
