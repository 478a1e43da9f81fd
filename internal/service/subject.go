package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
)

// ResolveSubject decides which ledger a request may read.
//
// personal: resourceID defaults to the session's own id and must be an
// integer. company: resourceID is required. In both cases the resolved
// subject must be the session's subject.
func ResolveSubject(session *domain.Session, now time.Time, scope domain.Scope, resourceID *string) (domain.Subject, error) {
	if !session.Active(now) {
		return domain.Subject{}, &domain.ErrNoSession{}
	}

	var id string
	if resourceID != nil {
		id = strings.TrimSpace(*resourceID)
	}

	switch scope {
	case domain.ScopePersonal:
		if id == "" {
			if session.Subject.Scope != domain.ScopePersonal {
				return domain.Subject{}, &domain.ErrValidation{Field: "resource_id", Message: "resource_id is required"}
			}
			id = session.Subject.ID
		}
	case domain.ScopeCompany:
		if id == "" {
			return domain.Subject{}, &domain.ErrValidation{Field: "resource_id", Message: "resource_id is required for company scope"}
		}
	default:
		return domain.Subject{}, &domain.ErrValidation{Field: "scope", Message: fmt.Sprintf("scope must be %q or %q", domain.ScopePersonal, domain.ScopeCompany)}
	}

	subject, err := domain.ParseSubject(scope, id)
	if err != nil {
		return domain.Subject{}, err
	}
	if subject != session.Subject {
		return domain.Subject{}, &domain.ErrForbidden{Action: "read ledger of " + subject.Key()}
	}
	return subject, nil
}
