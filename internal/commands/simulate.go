package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/boddenberg/ledger-overview-bfa/internal/analytics"
	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
)

func newSimulateCommand() *cobra.Command {
	var (
		file   string
		params domain.SimulationParameters
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Project the monthly net flow of a JSON export of ledger rows",
		Long: "Reads a JSON array of ledger rows and prints a twelve month projection of\n" +
			"the net flow. Nothing is stored.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := params.Validate(); err != nil {
				return err
			}
			rows, err := readRows(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			return runSimulate(cmd.OutOrStdout(), rows, params, time.Now())
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "rows file, - for stdin")
	cmd.Flags().Float64Var(&params.IncomeChangePercent, "income-change", 0, "income change in percent")
	cmd.Flags().Float64Var(&params.ExpenseCutFlat, "expense-cut", 0, "flat monthly expense cut")

	return cmd
}

func runSimulate(stdout io.Writer, rows []domain.RawRecord, params domain.SimulationParameters, now time.Time) error {
	// the subject only labels the records here
	ledger := domain.NormalizeRows(domain.Subject{Scope: domain.ScopePersonal, ID: "1"}, rows)
	history := analytics.MonthlyFlows(analytics.Within(ledger.Records, time.Time{}, now), now)
	points := analytics.Project(history, params)

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(domain.SimulationResponse{
		Summary:       analytics.ProjectionSummary(history, points),
		ProjectedData: points,
	}); err != nil {
		return fmt.Errorf("encoding projection: %w", err)
	}
	return nil
}
