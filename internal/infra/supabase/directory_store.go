package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Subject directory (implements port.SubjectDirectory)
// ============================================================

// directoryRow maps app_users / companies. Personal ids are integers and
// company ids are text, so the id is kept raw and rendered afterwards.
type directoryRow struct {
	ID   json.RawMessage `json:"id"`
	Name *string         `json:"name"`
}

func directoryTable(scope domain.Scope) (string, error) {
	switch scope {
	case domain.ScopePersonal:
		return "app_users", nil
	case domain.ScopeCompany:
		return "companies", nil
	}
	return "", &domain.ErrValidation{Field: "scope", Message: fmt.Sprintf("unsupported scope %q", scope)}
}

func (r directoryRow) profile(scope domain.Scope) domain.SubjectProfile {
	id := strings.Trim(string(r.ID), `"`)
	name := ""
	if r.Name != nil {
		name = *r.Name
	}
	return domain.SubjectProfile{Subject: domain.Subject{Scope: scope, ID: id}, Name: name}
}

// LookupSubject fetches a single directory entry.
func (c *Client) LookupSubject(ctx context.Context, subject domain.Subject) (*domain.SubjectProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.LookupSubject")
	defer span.End()
	span.SetAttributes(attribute.String("subject", subject.Key()))

	table, err := directoryTable(subject.Scope)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("%s?select=id,name&id=eq.%s&limit=1", table, url.QueryEscape(subject.ID))
	body, err := c.get(ctx, "supabase/directory", path)
	if err != nil {
		return nil, err
	}
	if body == nil || string(body) == "[]" {
		return nil, &domain.ErrNotFound{Resource: string(subject.Scope) + " subject", ID: subject.ID}
	}

	var rows []directoryRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: string(subject.Scope) + " subject", ID: subject.ID}
	}

	p := rows[0].profile(subject.Scope)
	return &p, nil
}

// ListSubjects returns every subject of scope ordered by id.
func (c *Client) ListSubjects(ctx context.Context, scope domain.Scope) ([]domain.SubjectProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListSubjects")
	defer span.End()

	table, err := directoryTable(scope)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, "supabase/directory", table+"?select=id,name&order=id.asc")
	if err != nil {
		return nil, err
	}

	var rows []directoryRow
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode %s: %w", table, err)
		}
	}

	out := make([]domain.SubjectProfile, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.profile(scope))
	}
	return out, nil
}
