package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dominoclient/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dominoctl",
		Short: "Client for turn-based domino matches",
		Long: `dominoctl joins a domino match on the game server and keeps local
state in sync: moves apply instantly and are confirmed (or rolled back)
against the server, actions taken while offline are queued durably and
replayed on reconnect.`,
	}

	rootCmd.AddCommand(cli.PlayCmd())
	rootCmd.AddCommand(cli.QueueCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
