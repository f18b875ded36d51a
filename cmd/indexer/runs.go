package main

import (
	"encoding/json"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/metacontract/indexer/db"
	"github.com/metacontract/indexer/internal/config"
	"github.com/metacontract/indexer/internal/extract"
	"github.com/metacontract/indexer/models"
)

func storePath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	cfg := config.Load()
	if cfg.DBPath == "" {
		return "", fmt.Errorf("no run store configured (set --db or INDEXER_DB_PATH)")
	}
	return cfg.DBPath, nil
}

func newRunsCmd() *cobra.Command {
	var dbPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded extraction runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := storePath(dbPath)
			if err != nil {
				return err
			}
			gdb, err := db.Connect(dsn, false)
			if err != nil {
				return err
			}
			runs, err := db.ListRuns(gdb, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %-7s %-9s %s  steps=%d  %s\n",
					r.PublicULID, r.Status, r.Network, r.Contract, r.Steps,
					r.StartedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "run store DSN")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

func newDiffCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "diff <run-a> <run-b>",
		Short: "Show a unified diff of two recorded runs' outputs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := storePath(dbPath)
			if err != nil {
				return err
			}
			gdb, err := db.Connect(dsn, false)
			if err != nil {
				return err
			}
			a, err := db.GetRun(gdb, args[0])
			if err != nil {
				return err
			}
			b, err := db.GetRun(gdb, args[1])
			if err != nil {
				return err
			}

			diff := difflib.UnifiedDiff{
				A:        renderOutput(a),
				B:        renderOutput(b),
				FromFile: a.PublicULID,
				ToFile:   b.PublicULID,
				Context:  3,
			}
			text, err := difflib.GetUnifiedDiffString(diff)
			if err != nil {
				return err
			}
			if text == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "runs are identical")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "run store DSN")
	return cmd
}

// renderOutput flattens a run's stored output into sorted "path = value"
// lines for diffing.
func renderOutput(r *models.Run) []string {
	var outputs map[string]string
	if len(r.Output) > 0 {
		// Stored by FinishRun; a decode failure just yields an empty side.
		_ = json.Unmarshal(r.Output, &outputs)
	}
	lines := make([]string, 0, len(outputs))
	for _, path := range extract.SortedPaths(outputs) {
		lines = append(lines, fmt.Sprintf("%s = %s\n", path, outputs[path]))
	}
	return lines
}
