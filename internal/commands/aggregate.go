package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/boddenberg/ledger-overview-bfa/internal/analytics"
	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
)

func newAggregateCommand() *cobra.Command {
	var file, scope, resourceID string

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate a JSON export of ledger rows into an overview",
		Long: "Reads a JSON array of ledger rows (fecha, monto, tipo, categoria) and prints\n" +
			"the overview. Rows that cannot be aggregated are listed on stderr.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, err := domain.ParseSubject(domain.Scope(scope), resourceID)
			if err != nil {
				return err
			}
			rows, err := readRows(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			return runAggregate(cmd.OutOrStdout(), cmd.ErrOrStderr(), subject, rows)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "rows file, - for stdin")
	cmd.Flags().StringVar(&scope, "scope", string(domain.ScopePersonal), "personal or company")
	cmd.Flags().StringVar(&resourceID, "resource-id", "1", "subject id the rows belong to")

	return cmd
}

func runAggregate(stdout, stderr io.Writer, subject domain.Subject, rows []domain.RawRecord) error {
	ledger := domain.NormalizeRows(subject, rows)
	overview, excluded := analytics.AggregateWithAnomalies(ledger.Records)

	anomalies := slices.Concat(ledger.Anomalies, excluded)
	for _, a := range anomalies {
		fmt.Fprintf(stderr, "skipped %s\n", a)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(domain.OverviewResponse{
		Scope:      subject.Scope,
		ResourceID: subject.ID,
		Overview:   overview,
	})
}

// readRows decodes a JSON array of raw ledger rows from path, or from stdin
// when path is "-".
func readRows(stdin io.Reader, path string) ([]domain.RawRecord, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening rows file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var rows []domain.RawRecord
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decoding rows: %w", err)
	}
	return rows, nil
}
