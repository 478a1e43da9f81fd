package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/client"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAssistantClient(url string, retries int) *client.AssistantClient {
	cfg := resilience.Config{MaxRetries: retries, InitialBackoff: time.Millisecond}
	return client.NewAssistantClient(&http.Client{Timeout: 2 * time.Second}, url, resilience.NewCircuitBreaker("assistant-test"), cfg)
}

func agentRequest() *domain.AgentRequest {
	return &domain.AgentRequest{
		Query:   "Can I afford a new laptop?",
		Subject: domain.Subject{Scope: domain.ScopePersonal, ID: "7"},
		Context: domain.AgentContext{
			RecentTransactions: []domain.AgentTransaction{{Date: "2024-01-05", Amount: 100, Kind: domain.KindExpense, Category: strp("food")}},
			Totals:             domain.Totals{IncomeTotal: 1000, ExpenseTotal: 100, Balance: 900},
		},
	}
}

func TestAssistantClient_Success(t *testing.T) {
	var gotPath, gotMethod string
	var gotReq domain.AgentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotReq)
		io.WriteString(w, `{"answer":"Yes, if you keep food spending flat.","sources":["ledger"],"tokens_used":321}`)
	}))
	defer srv.Close()

	got, err := newAssistantClient(srv.URL+"/", 0).Ask(context.Background(), agentRequest())
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/v1/chat", gotPath)
	assert.Equal(t, "Can I afford a new laptop?", gotReq.Query)
	assert.Equal(t, "7", gotReq.Subject.ID)
	require.Len(t, gotReq.Context.RecentTransactions, 1)
	assert.Equal(t, 900.0, gotReq.Context.Totals.Balance)

	assert.Equal(t, "Yes, if you keep food spending flat.", got.Answer)
	assert.Equal(t, 321, got.TokensUsed)
}

func TestAssistantClient_NotConfigured(t *testing.T) {
	_, err := newAssistantClient("", 0).Ask(context.Background(), agentRequest())

	var nc *domain.ErrNotConfigured
	require.True(t, errors.As(err, &nc))
	assert.Equal(t, "ASSISTANT_API_URL", nc.Setting)
}

func TestAssistantClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, `{"answer":"ok"}`)
	}))
	defer srv.Close()

	got, err := newAssistantClient(srv.URL, 2).Ask(context.Background(), agentRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Answer)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestAssistantClient_ClientErrorsAreNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"detail":"query too long"}`)
	}))
	defer srv.Close()

	_, err := newAssistantClient(srv.URL, 3).Ask(context.Background(), agentRequest())

	var ext *domain.ErrExternalService
	require.True(t, errors.As(err, &ext))
	assert.Equal(t, "assistant", ext.Service)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "query too long")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAssistantClient_EmptyAnswerIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"answer":"  "}`)
	}))
	defer srv.Close()

	_, err := newAssistantClient(srv.URL, 0).Ask(context.Background(), agentRequest())

	var ext *domain.ErrExternalService
	assert.True(t, errors.As(err, &ext))
}

func TestAssistantClient_OpenBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c := newAssistantClient(srv.URL, 0)

	for i := 0; i < 5; i++ {
		c.Ask(context.Background(), agentRequest())
	}
	_, err := c.Ask(context.Background(), agentRequest())

	var open *domain.ErrCircuitOpen
	require.True(t, errors.As(err, &open))
	assert.Equal(t, "assistant", open.Service)
}
