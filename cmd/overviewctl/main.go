package main

import (
	"os"

	"github.com/boddenberg/ledger-overview-bfa/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
