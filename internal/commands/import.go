package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/sqlite"
)

func newImportCommand() *cobra.Command {
	var dbPath, file, scope, resourceID, name string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load ledger rows into a SQLite ledger database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, err := domain.ParseSubject(domain.Scope(scope), resourceID)
			if err != nil {
				return err
			}
			rows, err := readRows(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			store, err := sqlite.Open(dbPath, zap.NewNop())
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			if name != "" {
				if err := store.PutSubject(ctx, domain.SubjectProfile{Subject: subject, Name: name}); err != nil {
					return fmt.Errorf("registering subject: %w", err)
				}
			}
			n, err := store.AppendRows(ctx, subject, rows)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d rows for %s\n", n, subject.Key())
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "./data/ledger.db", "SQLite database path")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "rows file, - for stdin")
	cmd.Flags().StringVar(&scope, "scope", string(domain.ScopePersonal), "personal or company")
	cmd.Flags().StringVar(&resourceID, "resource-id", "", "subject id (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name; registers or renames the subject")
	_ = cmd.MarkFlagRequired("resource-id")

	return cmd
}
