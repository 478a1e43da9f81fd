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

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
)

const assistantPath = "/v1/chat"

// AssistantClient calls the conversational agent:
//
//	POST {baseURL}/v1/chat  {"query": "...", "subject": {...}, "context": {...}}
//	200                     {"answer": "...", "sources": [...], "tokens_used": 1250}
//
// It implements port.AssistantAgent.
type AssistantClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewAssistantClient creates the agent client. baseURL is the agent root,
// without /v1/chat.
func NewAssistantClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *AssistantClient {
	return &AssistantClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         cb,
		cfg:        cfg,
	}
}

// Ask sends req to the agent. Transport failures and 5xx answers are
// retried when the resilience config allows it; 4xx answers are not.
func (c *AssistantClient) Ask(ctx context.Context, req *domain.AgentRequest) (*domain.AgentResponse, error) {
	ctx, span := tracer.Start(ctx, "AssistantClient.Ask")
	defer span.End()
	span.SetAttributes(
		attribute.String("subject", req.Subject.Key()),
		attribute.Int("context.transactions", len(req.Context.RecentTransactions)),
	)

	if c.baseURL == "" {
		return nil, &domain.ErrNotConfigured{Setting: "ASSISTANT_API_URL"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal assistant request: %w", err)
	}

	var out domain.AgentResponse
	err = resilience.Execute(c.cb, "assistant", func() error {
		return resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+assistantPath, bytes.NewReader(body))
			if err != nil {
				return resilience.Permanent(err)
			}
			httpReq.Header.Set("Content-Type", "application/json")
			httpReq.Header.Set("Accept", "application/json")

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return fmt.Errorf("http call to assistant: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				statusErr := fmt.Errorf("assistant %s returned status %d: %s", assistantPath, resp.StatusCode, strings.TrimSpace(string(raw)))
				if resp.StatusCode < 500 {
					return resilience.Permanent(statusErr)
				}
				return statusErr
			}

			out = domain.AgentResponse{}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return fmt.Errorf("decode assistant answer: %w", err)
			}
			if strings.TrimSpace(out.Answer) == "" {
				return errors.New("assistant returned an empty answer")
			}
			return nil
		})
	})
	if err != nil {
		var open *domain.ErrCircuitOpen
		if errors.As(err, &open) {
			return nil, open
		}
		return nil, &domain.ErrExternalService{Service: "assistant", Err: err}
	}

	span.SetAttributes(attribute.Int("tokens_used", out.TokensUsed))
	return &out, nil
}
