// Command indexer extracts the live storage state of a smart contract: it
// walks the declared storage schema, resolves collection bounds from the
// performance hints, reads every reachable slot in batches and emits a flat
// map from field path to raw word.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "0.2.0"

func main() {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "indexer",
		Short:         "Extract contract storage state through its schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newExtractCmd())
	root.AddCommand(newRunsCmd())
	root.AddCommand(newDiffCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the indexer version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "indexer %s\n", version)
		},
	}
}
