package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
	"github.com/boddenberg/ledger-overview-bfa/internal/handler"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/cache"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/client"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/observability"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/resilience"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/sqlite"
	"github.com/boddenberg/ledger-overview-bfa/internal/service"

	"go.uber.org/zap"
)

func TestHealthz(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAPIWithoutBackend(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

// --- Full stack on a SQLite ledger ---

type stack struct {
	router    http.Handler
	analytics *service.AnalyticsService
	store     *sqlite.Store
}

func newStack(t *testing.T) *stack {
	t.Helper()
	return newStackWithAgent(t, "")
}

// newStackWithAgent wires the assistant to the agent at agentURL; an empty
// URL leaves the assistant unconfigured.
func newStackWithAgent(t *testing.T, agentURL string) *stack {
	t.Helper()
	logger := zap.NewNop()
	ctx := context.Background()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "ledger.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ana := domain.Subject{Scope: domain.ScopePersonal, ID: "7"}
	acme := domain.Subject{Scope: domain.ScopeCompany, ID: "ACME"}
	for _, p := range []domain.SubjectProfile{{Subject: ana, Name: "Ana"}, {Subject: acme, Name: "Acme"}} {
		if err := store.PutSubject(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	var rows []domain.RawRecord
	payload := `[
		{"fecha":"2024-01-05","monto":100,"tipo":"gasto","categoria":"comida"},
		{"fecha":"2024-01-05T15:00:00Z","monto":"50","tipo":"gasto"},
		{"fecha":"2024-01-10","monto":1000,"tipo":"ingreso","categoria":"sueldo"},
		{"fecha":"2024-01-11","monto":3,"tipo":"prestamo"}
	]`
	if err := json.Unmarshal([]byte(payload), &rows); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AppendRows(ctx, ana, rows); err != nil {
		t.Fatal(err)
	}

	metrics := observability.NewMetrics()
	reporter := service.NewLogReporter(logger, metrics)
	analytics := service.NewAnalyticsService(store, cache.New[*domain.OverviewResponse](time.Minute), reporter, metrics, logger)
	ledger := service.NewLedgerService(store, metrics, logger)
	agent := client.NewAssistantClient(&http.Client{Timeout: 2 * time.Second}, agentURL, resilience.NewCircuitBreaker("assistant-test"), resilience.Config{})

	router := handler.NewRouter(handler.Services{
		Analytics:   analytics,
		Ledger:      ledger,
		Dashboard:   service.NewDashboardService(analytics, "local", ledger, metrics, logger),
		Auth:        service.NewAuthService(store, "test-secret", time.Hour, logger),
		Assistant:   service.NewAssistantService(store, agent, metrics, logger),
		Simulations: service.NewSimulationService(store, store, metrics, logger),
		Backend:     "sqlite",
		Store:       store,
	}, metrics, logger)

	return &stack{router: router, analytics: analytics, store: store}
}

func (s *stack) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *stack) login(t *testing.T, scope domain.Scope, id, name string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Scope: scope, SubjectID: id, Name: name})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	return resp.AccessToken
}

func TestLogin(t *testing.T) {
	s := newStack(t)

	if rec := s.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Scope: "personal", SubjectID: "7", Name: "bob"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("name mismatch: expected 401, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Scope: "personal", SubjectID: "abc", Name: "Ana"}); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed id: expected 400, got %d", rec.Code)
	}
	if tok := s.login(t, domain.ScopePersonal, "7", " ANA "); tok == "" {
		t.Error("expected a token")
	}
}

func TestListSubjects(t *testing.T) {
	s := newStack(t)

	rec := s.do(t, http.MethodGet, "/api/v1/subjects/company", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got []domain.SubjectProfile
	json.NewDecoder(rec.Body).Decode(&got)
	if len(got) != 1 || got[0].Name != "Acme" {
		t.Errorf("unexpected subjects: %+v", got)
	}

	if rec := s.do(t, http.MethodGet, "/api/v1/subjects/team", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestOverview_Endpoint(t *testing.T) {
	s := newStack(t)
	token := s.login(t, domain.ScopePersonal, "7", "Ana")

	rec := s.do(t, http.MethodPost, "/api/v1/analytics/overview", token, map[string]string{"scope": "personal"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var raw map[string]any
	json.Unmarshal(rec.Body.Bytes(), &raw)
	for _, key := range []string{"scope", "resource_id", "total_income", "total_expenses", "net_balance", "balance_percentage", "daily_expenses", "monthly_expenses"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing %q in response", key)
		}
	}

	var got domain.OverviewResponse
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.ResourceID != "7" || got.TotalIncome != 1000 || got.TotalExpenses != 150 || got.MarginPercentage != 85 {
		t.Errorf("unexpected overview: %+v", got)
	}
	if len(got.DailyExpenses) != 1 || got.DailyExpenses[0] != (domain.DailyBucket{Label: "Jan 5", Amount: 150}) {
		t.Errorf("unexpected daily series: %+v", got.DailyExpenses)
	}
	if len(got.MonthlyExpenses) != 1 || got.MonthlyExpenses[0] != (domain.MonthlyBucket{Label: "January 2024", Amount: 150}) {
		t.Errorf("unexpected monthly series: %+v", got.MonthlyExpenses)
	}
}

func TestOverview_Authorization(t *testing.T) {
	s := newStack(t)
	token := s.login(t, domain.ScopePersonal, "7", "Ana")

	tests := []struct {
		name  string
		token string
		body  any
		want  int
	}{
		{"no token", "", map[string]string{"scope": "personal"}, http.StatusUnauthorized},
		{"bad token", "garbage", map[string]string{"scope": "personal"}, http.StatusUnauthorized},
		{"other person", token, map[string]string{"scope": "personal", "resource_id": "8"}, http.StatusForbidden},
		{"non integer id", token, map[string]string{"scope": "personal", "resource_id": "x"}, http.StatusBadRequest},
		{"company without id", token, map[string]string{"scope": "company"}, http.StatusBadRequest},
		{"company not own", token, map[string]string{"scope": "company", "resource_id": "ACME"}, http.StatusForbidden},
		{"unknown scope", token, map[string]string{"scope": "team"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/analytics/overview", tt.token, tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCategoriesAndMonthSummary(t *testing.T) {
	s := newStack(t)
	token := s.login(t, domain.ScopePersonal, "7", "Ana")

	rec := s.do(t, http.MethodGet, "/api/v1/analytics/categories", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("categories: expected 200, got %d", rec.Code)
	}
	var cats []domain.CategoryTotal
	json.NewDecoder(rec.Body).Decode(&cats)
	if len(cats) != 3 || cats[0].Category != "comida" {
		t.Errorf("unexpected categories: %+v", cats)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/analytics/month-summary?scope=personal&resource_id=7", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("month summary: expected 200, got %d", rec.Code)
	}
	var summary domain.MonthSummary
	json.NewDecoder(rec.Body).Decode(&summary)
	// fixtures are dated 2024, nothing falls in the current month
	if summary.Totals != (domain.Totals{}) {
		t.Errorf("expected empty month totals, got %+v", summary.Totals)
	}
}

func TestDashboard(t *testing.T) {
	s := newStack(t)
	token := s.login(t, domain.ScopePersonal, "7", "Ana")

	rec := s.do(t, http.MethodGet, "/api/v1/dashboard", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var dash domain.Dashboard
	json.NewDecoder(rec.Body).Decode(&dash)
	if dash.Overview == nil || dash.Overview.NetBalance != 850 || dash.MonthSummary == nil || len(dash.Categories) != 3 {
		t.Errorf("unexpected dashboard: %+v", dash)
	}

	if rec := s.do(t, http.MethodGet, "/api/v1/dashboard?resource_id=9", token, nil); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestAnalyticsMetricsSnapshot(t *testing.T) {
	s := newStack(t)
	token := s.login(t, domain.ScopePersonal, "7", "Ana")
	s.do(t, http.MethodPost, "/api/v1/analytics/overview", token, map[string]string{"scope": "personal"})

	rec := s.do(t, http.MethodGet, "/api/v1/metrics/analytics", "", nil)
	var snap domain.AnalyticsMetrics
	json.NewDecoder(rec.Body).Decode(&snap)
	if snap.OverviewsLocal != 1 || snap.Anomalies != 1 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

// TestOverview_LocalAndRemoteAgree fetches the same ledger through the local
// service and through the HTTP client against this router.
func TestOverview_LocalAndRemoteAgree(t *testing.T) {
	s := newStack(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	auth := service.NewAuthService(s.store, "test-secret", time.Hour, zap.NewNop())
	session, err := auth.IssueSession(domain.Subject{Scope: domain.ScopePersonal, ID: "7"})
	if err != nil {
		t.Fatal(err)
	}

	remote := client.NewOverviewClient(&http.Client{Timeout: 5 * time.Second}, srv.URL, resilience.NewCircuitBreaker("equivalence"))

	localResp, err := s.analytics.FetchOverview(context.Background(), session, domain.ScopePersonal, nil)
	if err != nil {
		t.Fatalf("local: %v", err)
	}
	remoteResp, err := remote.FetchOverview(context.Background(), session, domain.ScopePersonal, nil)
	if err != nil {
		t.Fatalf("remote: %v", err)
	}

	if localResp.TotalIncome != remoteResp.TotalIncome ||
		localResp.TotalExpenses != remoteResp.TotalExpenses ||
		localResp.NetBalance != remoteResp.NetBalance ||
		localResp.MarginPercentage != remoteResp.MarginPercentage {
		t.Errorf("totals differ: local %+v remote %+v", localResp.Overview, remoteResp.Overview)
	}
	if len(localResp.DailyExpenses) != len(remoteResp.DailyExpenses) || len(localResp.MonthlyExpenses) != len(remoteResp.MonthlyExpenses) {
		t.Fatalf("series lengths differ")
	}
	for i := range localResp.DailyExpenses {
		if localResp.DailyExpenses[i] != remoteResp.DailyExpenses[i] {
			t.Errorf("daily bucket %d differs", i)
		}
	}
	for i := range localResp.MonthlyExpenses {
		if localResp.MonthlyExpenses[i] != remoteResp.MonthlyExpenses[i] {
			t.Errorf("monthly bucket %d differs", i)
		}
	}

	// the remote path surfaces authorization failures as status errors
	_, err = remote.FetchOverview(context.Background(), session, domain.ScopePersonal, strPtr("8"))
	var rs *domain.ErrRemoteStatus
	if !errors.As(err, &rs) || rs.Status != http.StatusForbidden {
		t.Errorf("expected remote 403, got %v", err)
	}
}

func strPtr(s string) *string { return &s }

func TestJWTAuthMiddleware_RejectsOtherSchemes(t *testing.T) {
	s := newStack(t)
	token := s.login(t, domain.ScopePersonal, "7", "Ana")

	for _, header := range []string{"Basic " + token, "Bearer", "Bearer   ", token} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: expected 401, got %d", header, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("lower-case scheme: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAssistant_Endpoint(t *testing.T) {
	var got domain.AgentRequest
	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"answer":"Cut back on comida.","tokens_used":12}`))
	}))
	defer agent.Close()

	s := newStackWithAgent(t, agent.URL)
	token := s.login(t, domain.ScopePersonal, "7", "Ana")

	rec := s.do(t, http.MethodPost, "/api/v1/assistant", token, domain.AssistantRequest{Query: "How am I doing?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.AssistantResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Answer != "Cut back on comida." {
		t.Errorf("unexpected answer %q", resp.Answer)
	}
	if got.Subject.ID != "7" || len(got.Context.RecentTransactions) != 3 || got.Context.Totals.Balance != 850 {
		t.Errorf("unexpected agent request: %+v", got)
	}

	if rec := s.do(t, http.MethodPost, "/api/v1/assistant", token, domain.AssistantRequest{Query: " "}); rec.Code != http.StatusBadRequest {
		t.Errorf("blank query: expected 400, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/v1/assistant", "", domain.AssistantRequest{Query: "hi"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", rec.Code)
	}
}

func TestAssistant_EndpointFailures(t *testing.T) {
	s := newStack(t)
	token := s.login(t, domain.ScopePersonal, "7", "Ana")
	if rec := s.do(t, http.MethodPost, "/api/v1/assistant", token, domain.AssistantRequest{Query: "hi"}); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured agent: expected 503, got %d", rec.Code)
	}

	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer agent.Close()
	s = newStackWithAgent(t, agent.URL)
	token = s.login(t, domain.ScopePersonal, "7", "Ana")
	if rec := s.do(t, http.MethodPost, "/api/v1/assistant", token, domain.AssistantRequest{Query: "hi"}); rec.Code != http.StatusBadGateway {
		t.Errorf("failing agent: expected 502, got %d", rec.Code)
	}
}

func TestSimulations_Endpoint(t *testing.T) {
	s := newStack(t)
	token := s.login(t, domain.ScopePersonal, "7", "Ana")

	rec := s.do(t, http.MethodPost, "/api/v1/simulations", token, domain.SimulationRequest{
		Name:       "ten percent raise",
		Parameters: domain.SimulationParameters{IncomeChangePercent: 10},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.SimulationResponse
	json.NewDecoder(rec.Body).Decode(&created)
	if created.SimulationID == "" || len(created.ProjectedData) != 12 || created.Summary == "" {
		t.Errorf("unexpected simulation: %+v", created)
	}
	// fixtures end in January 2024
	if created.ProjectedData[0].Date != "2024-02" {
		t.Errorf("expected projection to start 2024-02, got %s", created.ProjectedData[0].Date)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/simulations", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var sims []domain.Simulation
	json.NewDecoder(rec.Body).Decode(&sims)
	if len(sims) != 1 || sims[0].ID != created.SimulationID || sims[0].Parameters.IncomeChangePercent != 10 {
		t.Errorf("unexpected list: %+v", sims)
	}

	bad := s.do(t, http.MethodPost, "/api/v1/simulations", token, domain.SimulationRequest{Name: ""})
	if bad.Code != http.StatusBadRequest {
		t.Errorf("blank name: expected 400, got %d", bad.Code)
	}
	other := s.do(t, http.MethodGet, "/api/v1/simulations?resource_id=9", token, nil)
	if other.Code != http.StatusForbidden {
		t.Errorf("other subject: expected 403, got %d", other.Code)
	}
}
