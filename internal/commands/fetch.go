package commands

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/client"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/resilience"
)

func newFetchCommand() *cobra.Command {
	var (
		baseURL    string
		token      string
		scope      string
		resourceID string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Request an overview from a running analytics endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("LEDGER_TOKEN")
			}
			session := &domain.Session{AccessToken: token}

			var rid *string
			if cmd.Flags().Changed("resource-id") {
				rid = &resourceID
			}

			c := client.NewOverviewClient(
				&http.Client{Timeout: timeout},
				baseURL,
				resilience.NewCircuitBreaker("overviewctl"),
			)
			resp, err := c.FetchOverview(cmd.Context(), session, domain.Scope(scope), rid)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "base URL of the analytics service")
	cmd.Flags().StringVar(&token, "token", "", "access token (defaults to $LEDGER_TOKEN)")
	cmd.Flags().StringVar(&scope, "scope", string(domain.ScopePersonal), "personal or company")
	cmd.Flags().StringVar(&resourceID, "resource-id", "", "subject id; personal sessions may omit it")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")

	return cmd
}
