package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/metacontract/indexer/internal/config"
	"github.com/metacontract/indexer/internal/extract"
)

func newExtractCmd() *cobra.Command {
	var (
		rpcURL    string
		network   string
		contract  string
		accessor  string
		layoutDoc string
		rootsDoc  string
		hintsDoc  string
		dbPath    string
		maxSteps  int
		timeout   time.Duration
		filter    string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Run one extraction against the configured contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if rpcURL != "" {
				cfg.RPCURL = rpcURL
			}
			if network != "" {
				cfg.Network = network
			}
			if contract != "" {
				cfg.Contract = contract
			}
			if accessor != "" {
				cfg.AccessorPath = accessor
			}
			if layoutDoc != "" {
				cfg.LayoutPath = layoutDoc
			}
			if rootsDoc != "" {
				cfg.RootsPath = rootsDoc
			}
			if hintsDoc != "" {
				cfg.HintsPath = hintsDoc
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			if maxSteps > 0 {
				cfg.MaxSteps = maxSteps
			}
			if timeout > 0 {
				cfg.ReadTimeout = timeout
			}

			res, runID, err := extract.NewRunner(cfg).Run(cmd.Context())
			if err != nil {
				return err
			}

			outputs, err := extract.FilterOutputs(res.Outputs, filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(outputs); err != nil {
					return err
				}
			} else {
				for _, path := range extract.SortedPaths(outputs) {
					fmt.Fprintf(out, "%s = %s\n", path, outputs[path])
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d fields in %d steps\n", len(outputs), res.Steps)
			if runID != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "run %s recorded\n", runID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rpcURL, "rpc", "", "RPC endpoint (defaults to INDEXER_RPC_URL)")
	cmd.Flags().StringVar(&network, "network", "", "chain name (defaults to INDEXER_NETWORK)")
	cmd.Flags().StringVar(&contract, "contract", "", "contract address")
	cmd.Flags().StringVar(&accessor, "accessor", "", "accessor bytecode file")
	cmd.Flags().StringVar(&layoutDoc, "layout", "", "storage layout types document")
	cmd.Flags().StringVar(&rootsDoc, "base-slots", "", "base slots document")
	cmd.Flags().StringVar(&hintsDoc, "hints", "", "performance hint YAML")
	cmd.Flags().StringVar(&dbPath, "db", "", "run store DSN (empty disables persistence)")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "step budget override")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-batch read timeout")
	cmd.Flags().StringVar(&filter, "filter", "", "glob over emitted field paths")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit outputs as JSON")

	return cmd
}
