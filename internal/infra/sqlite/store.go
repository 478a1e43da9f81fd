// Package sqlite is the local ledger backend. It keeps the same tables and
// column names as the hosted database so rows go through the same boundary
// normalization.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("sqlite")

// Store implements port.LedgerStore on a SQLite file.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates (if needed) and migrates the database at dbPath.
func Open(dbPath string, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite ledger ready", zap.String("path", dbPath))
	return &Store{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func ledgerQuery(scope domain.Scope) (string, error) {
	switch scope {
	case domain.ScopePersonal:
		return "SELECT fecha, monto, tipo, categoria FROM personal_tx WHERE user_id = ?", nil
	case domain.ScopeCompany:
		return "SELECT fecha, monto, tipo, categoria FROM company_tx WHERE empresa_id = ?", nil
	}
	return "", &domain.ErrValidation{Field: "scope", Message: fmt.Sprintf("unsupported scope %q", scope)}
}

// subjectArg converts the subject id to the column's storage type.
func subjectArg(subject domain.Subject) (any, error) {
	if subject.Scope != domain.ScopePersonal {
		return subject.ID, nil
	}
	id, err := strconv.ParseInt(subject.ID, 10, 64)
	if err != nil {
		return nil, &domain.ErrValidation{Field: "resource_id", Message: "personal id must be an integer"}
	}
	return id, nil
}

// FetchBySubject returns every ledger row of the subject, newest first.
func (s *Store) FetchBySubject(ctx context.Context, subject domain.Subject) (*domain.Ledger, error) {
	ctx, span := tracer.Start(ctx, "SQLite.FetchBySubject")
	defer span.End()
	span.SetAttributes(attribute.String("subject", subject.Key()))

	query, err := ledgerQuery(subject.Scope)
	if err != nil {
		return nil, err
	}
	arg, err := subjectArg(subject)
	if err != nil {
		return nil, err
	}

	rows, err := s.queryRows(ctx, query+" ORDER BY fecha DESC, id DESC", arg)
	if err != nil {
		return nil, err
	}
	return domain.NormalizeRows(subject, rows), nil
}

// FetchSince returns the subject's rows dated on or after from. The SQL
// filter works on the stored text and is coarse (whole days); the exact
// cut is applied after parsing.
func (s *Store) FetchSince(ctx context.Context, subject domain.Subject, from time.Time) (*domain.Ledger, error) {
	ctx, span := tracer.Start(ctx, "SQLite.FetchSince")
	defer span.End()
	span.SetAttributes(
		attribute.String("subject", subject.Key()),
		attribute.String("from", from.Format(time.RFC3339)),
	)

	query, err := ledgerQuery(subject.Scope)
	if err != nil {
		return nil, err
	}
	arg, err := subjectArg(subject)
	if err != nil {
		return nil, err
	}

	rows, err := s.queryRows(ctx, query+" AND fecha >= ? ORDER BY fecha DESC, id DESC",
		arg, from.AddDate(0, 0, -1).Format("2006-01-02"))
	if err != nil {
		return nil, err
	}

	ledger := domain.NormalizeRows(subject, rows)
	kept := ledger.Records[:0]
	for _, r := range ledger.Records {
		if !r.Date.Before(from) {
			kept = append(kept, r)
		}
	}
	ledger.Records = kept
	return ledger, nil
}

func (s *Store) queryRows(ctx context.Context, query string, args ...any) ([]domain.RawRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []domain.RawRecord
	for rows.Next() {
		var (
			raw       domain.RawRecord
			categoria sql.NullString
		)
		if err := rows.Scan(&raw.Fecha, &raw.Monto, &raw.Tipo, &categoria); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		if categoria.Valid {
			c := categoria.String
			raw.Categoria = &c
		}
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return out, nil
}

// ============================================================
// Subject directory
// ============================================================

func directoryTable(scope domain.Scope) (string, error) {
	switch scope {
	case domain.ScopePersonal:
		return "app_users", nil
	case domain.ScopeCompany:
		return "companies", nil
	}
	return "", &domain.ErrValidation{Field: "scope", Message: fmt.Sprintf("unsupported scope %q", scope)}
}

// LookupSubject fetches a single directory entry.
func (s *Store) LookupSubject(ctx context.Context, subject domain.Subject) (*domain.SubjectProfile, error) {
	ctx, span := tracer.Start(ctx, "SQLite.LookupSubject")
	defer span.End()

	table, err := directoryTable(subject.Scope)
	if err != nil {
		return nil, err
	}
	arg, err := subjectArg(subject)
	if err != nil {
		return nil, err
	}

	var name string
	err = s.db.QueryRowContext(ctx, "SELECT name FROM "+table+" WHERE id = ?", arg).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: string(subject.Scope) + " subject", ID: subject.ID}
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", table, err)
	}
	return &domain.SubjectProfile{Subject: subject, Name: name}, nil
}

// ListSubjects returns every subject of scope ordered by id.
func (s *Store) ListSubjects(ctx context.Context, scope domain.Scope) ([]domain.SubjectProfile, error) {
	ctx, span := tracer.Start(ctx, "SQLite.ListSubjects")
	defer span.End()

	table, err := directoryTable(scope)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT CAST(id AS TEXT), name FROM "+table+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	out := make([]domain.SubjectProfile, 0)
	for rows.Next() {
		var p domain.SubjectProfile
		if err := rows.Scan(&p.Subject.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		p.Subject.Scope = scope
		out = append(out, p)
	}
	return out, rows.Err()
}

// ============================================================
// Writes (import / fixtures)
// ============================================================

// PutSubject inserts or renames a directory entry.
func (s *Store) PutSubject(ctx context.Context, profile domain.SubjectProfile) error {
	table, err := directoryTable(profile.Subject.Scope)
	if err != nil {
		return err
	}
	arg, err := subjectArg(profile.Subject)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO "+table+" (id, name) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET name = excluded.name",
		arg, profile.Name)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

// AppendRows stores raw ledger rows for subject as they are, in one
// transaction. Rows are not validated here; they are checked when read.
func (s *Store) AppendRows(ctx context.Context, subject domain.Subject, rows []domain.RawRecord) (int, error) {
	var stmt string
	switch subject.Scope {
	case domain.ScopePersonal:
		stmt = "INSERT INTO personal_tx (user_id, fecha, monto, tipo, categoria) VALUES (?, ?, ?, ?, ?)"
	case domain.ScopeCompany:
		stmt = "INSERT INTO company_tx (empresa_id, fecha, monto, tipo, categoria) VALUES (?, ?, ?, ?, ?)"
	default:
		return 0, &domain.ErrValidation{Field: "scope", Message: fmt.Sprintf("unsupported scope %q", subject.Scope)}
	}
	arg, err := subjectArg(subject)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for i, r := range rows {
		var monto any
		if r.Monto.Valid {
			monto = r.Monto.Decimal.String()
		}
		if _, err := tx.ExecContext(ctx, stmt, arg, r.Fecha, monto, r.Tipo, r.Categoria); err != nil {
			return 0, fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("sqlite: rows appended", zap.String("subject", subject.Key()), zap.Int("count", len(rows)))
	return len(rows), nil
}
