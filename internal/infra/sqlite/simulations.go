package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Simulations (implements port.SimulationStore)
// ============================================================

// SaveSimulation stores the run and its projection in one transaction.
func (s *Store) SaveSimulation(ctx context.Context, sim *domain.Simulation) error {
	ctx, span := tracer.Start(ctx, "SQLite.SaveSimulation")
	defer span.End()
	span.SetAttributes(attribute.String("simulation.id", sim.ID))

	params, err := json.Marshal(sim.Parameters)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	projected, err := json.Marshal(sim.ProjectedData)
	if err != nil {
		return fmt.Errorf("encode projection: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO simulations (id, scope, subject_id, name, parameters, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		sim.ID, string(sim.Subject.Scope), sim.Subject.ID, sim.Name, string(params), sim.CreatedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert simulation: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO simulation_results (simulation_id, projected_data, summary_insight) VALUES (?, ?, ?)",
		sim.ID, string(projected), sim.Summary,
	); err != nil {
		return fmt.Errorf("insert simulation result: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("sqlite: simulation saved", zap.String("subject", sim.Subject.Key()), zap.String("id", sim.ID))
	return nil
}

// ListSimulations returns the subject's simulations, newest first.
func (s *Store) ListSimulations(ctx context.Context, subject domain.Subject) ([]domain.Simulation, error) {
	ctx, span := tracer.Start(ctx, "SQLite.ListSimulations")
	defer span.End()
	span.SetAttributes(attribute.String("subject", subject.Key()))

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.parameters, s.created_at, r.projected_data, r.summary_insight
		FROM simulations s JOIN simulation_results r ON r.simulation_id = s.id
		WHERE s.scope = ? AND s.subject_id = ?
		ORDER BY s.created_at DESC, s.rowid DESC`,
		string(subject.Scope), subject.ID)
	if err != nil {
		return nil, fmt.Errorf("list simulations: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Simulation, 0)
	for rows.Next() {
		sim := domain.Simulation{Subject: subject}
		var params, projected, createdAt string
		if err := rows.Scan(&sim.ID, &sim.Name, &params, &createdAt, &projected, &sim.Summary); err != nil {
			return nil, fmt.Errorf("scan simulation: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &sim.Parameters); err != nil {
			return nil, fmt.Errorf("decode parameters of %s: %w", sim.ID, err)
		}
		if err := json.Unmarshal([]byte(projected), &sim.ProjectedData); err != nil {
			return nil, fmt.Errorf("decode projection of %s: %w", sim.ID, err)
		}
		if sim.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at of %s: %w", sim.ID, err)
		}
		out = append(out, sim)
	}
	return out, rows.Err()
}
