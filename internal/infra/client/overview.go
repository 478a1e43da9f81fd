// Package client holds HTTP clients for services this BFA consumes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("client")

const overviewPath = "/api/v1/analytics/overview"

// OverviewClient fetches a precomputed overview from a remote analytics
// endpoint. It implements port.OverviewProvider.
//
// Each call sends exactly one request. The breaker may refuse a call while
// open but never re-sends one.
type OverviewClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	now        func() time.Time
}

// NewOverviewClient creates a new OverviewClient. An empty baseURL is
// accepted; calls then fail with domain.ErrNotConfigured.
func NewOverviewClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker) *OverviewClient {
	return &OverviewClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         cb,
		now:        time.Now,
	}
}

// FetchOverview asks the remote endpoint for the overview of scope /
// resourceID, authenticated by session.
func (c *OverviewClient) FetchOverview(ctx context.Context, session *domain.Session, scope domain.Scope, resourceID *string) (*domain.OverviewResponse, error) {
	ctx, span := tracer.Start(ctx, "OverviewClient.FetchOverview")
	defer span.End()
	span.SetAttributes(attribute.String("scope", string(scope)))

	if !session.Active(c.now()) {
		return nil, &domain.ErrNoSession{}
	}
	if c.baseURL == "" {
		return nil, &domain.ErrNotConfigured{Setting: "REMOTE_ANALYTICS_URL"}
	}

	body, err := json.Marshal(domain.OverviewRequest{Scope: scope, ResourceID: resourceID})
	if err != nil {
		return nil, err
	}

	var out domain.OverviewResponse
	err = resilience.Execute(c.cb, "analytics-overview", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+overviewPath, bytes.NewReader(body))
		if err != nil {
			return resilience.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+session.AccessToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(resp.Body)
			statusErr := &domain.ErrRemoteStatus{Status: resp.StatusCode, Body: string(raw)}
			if resp.StatusCode < 500 {
				return resilience.Permanent(statusErr)
			}
			return statusErr
		}

		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode overview: %w", err)
		}
		return nil
	})
	if err != nil {
		var statusErr *domain.ErrRemoteStatus
		if errors.As(err, &statusErr) {
			span.SetAttributes(attribute.Int("http.status_code", statusErr.Status))
			return nil, statusErr
		}
		var open *domain.ErrCircuitOpen
		if errors.As(err, &open) {
			return nil, open
		}
		return nil, &domain.ErrExternalService{Service: "analytics-overview", Err: err}
	}

	if out.DailyExpenses == nil {
		out.DailyExpenses = []domain.DailyBucket{}
	}
	if out.MonthlyExpenses == nil {
		out.MonthlyExpenses = []domain.MonthlyBucket{}
	}
	return &out, nil
}
