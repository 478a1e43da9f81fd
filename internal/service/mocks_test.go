package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
)

// --- Mocks ---

type mockSource struct {
	mu        sync.Mutex
	ledgers   map[domain.Subject]*domain.Ledger
	err       error
	calls     int
	sinceFrom time.Time
}

func (m *mockSource) FetchBySubject(_ context.Context, subject domain.Subject) (*domain.Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if l, ok := m.ledgers[subject]; ok {
		return l, nil
	}
	return &domain.Ledger{Subject: subject}, nil
}

func (m *mockSource) FetchSince(ctx context.Context, subject domain.Subject, from time.Time) (*domain.Ledger, error) {
	l, err := m.FetchBySubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sinceFrom = from
	m.mu.Unlock()

	out := &domain.Ledger{Subject: subject}
	for _, r := range l.Records {
		if !r.Date.Before(from) {
			out.Records = append(out.Records, r)
		}
	}
	return out, nil
}

type mockDirectory struct {
	profiles map[domain.Subject]string
	err      error
}

func (m *mockDirectory) LookupSubject(_ context.Context, subject domain.Subject) (*domain.SubjectProfile, error) {
	if m.err != nil {
		return nil, m.err
	}
	name, ok := m.profiles[subject]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "subject", ID: subject.ID}
	}
	return &domain.SubjectProfile{Subject: subject, Name: name}, nil
}

func (m *mockDirectory) ListSubjects(_ context.Context, scope domain.Scope) ([]domain.SubjectProfile, error) {
	var out []domain.SubjectProfile
	for s, name := range m.profiles {
		if s.Scope == scope {
			out = append(out, domain.SubjectProfile{Subject: s, Name: name})
		}
	}
	return out, nil
}

type mockReporter struct {
	mu      sync.Mutex
	reports [][]domain.Anomaly
	err     error
}

func (m *mockReporter) Report(_ context.Context, _ domain.Subject, anomalies []domain.Anomaly) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, anomalies)
	return m.err
}

type mockProvider struct {
	resp *domain.OverviewResponse
	err  error
}

func (m *mockProvider) FetchOverview(_ context.Context, _ *domain.Session, _ domain.Scope, _ *string) (*domain.OverviewResponse, error) {
	return m.resp, m.err
}

type mockAgent struct {
	mu    sync.Mutex
	req   *domain.AgentRequest
	calls int
	resp  *domain.AgentResponse
	err   error
}

func (m *mockAgent) Ask(_ context.Context, req *domain.AgentRequest) (*domain.AgentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.req = req
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

type mockSimulationStore struct {
	mu    sync.Mutex
	saved []*domain.Simulation
	err   error
}

func (m *mockSimulationStore) SaveSimulation(_ context.Context, sim *domain.Simulation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, sim)
	return nil
}

func (m *mockSimulationStore) ListSimulations(_ context.Context, subject domain.Subject) ([]domain.Simulation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := []domain.Simulation{}
	for i := len(m.saved) - 1; i >= 0; i-- {
		if m.saved[i].Subject == subject {
			out = append(out, *m.saved[i])
		}
	}
	return out, nil
}

var errBackend = errors.New("backend down")

// --- Fixtures ---

var (
	personal = domain.Subject{Scope: domain.ScopePersonal, ID: "7"}
	company  = domain.Subject{Scope: domain.ScopeCompany, ID: "ACME"}
)

func sessionFor(s domain.Subject) *domain.Session {
	return &domain.Session{Subject: s, AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}
}

func strp(s string) *string { return &s }

func rec(date time.Time, amount float64, kind domain.Kind, category string) domain.TransactionRecord {
	r := domain.TransactionRecord{Date: date, Amount: amount, Kind: kind, Subject: personal}
	if category != "" {
		r.Category = &category
	}
	return r
}
