package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"factual/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [fact-id]",
	Short: "Show journaled runs, or one fact's results across runs",
	Long: `History reads the run journal. Without arguments it lists recent
runs; with a fact ID (pkg.x/adds) it shows that fact's results across runs,
which is how flapping facts get caught. Requires history.enabled in the
configuration.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.History.Enabled {
			return fmt.Errorf("run journal is disabled; set history.enabled in %s", cfgPath)
		}
		store, err := history.Open(cfg.History.Path, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		if len(args) == 1 {
			outcomes, err := store.FactHistory(args[0], historyLimit)
			if err != nil {
				return err
			}
			if len(outcomes) == 0 {
				fmt.Fprintf(out, "no journaled results for %s\n", args[0])
				return nil
			}
			for _, o := range outcomes {
				fmt.Fprintf(out, "%s  %-5s  %v", o.RunID, o.Status, o.Duration)
				if o.Detail != "" {
					fmt.Fprintf(out, "  %s", o.Detail)
				}
				fmt.Fprintln(out)
			}
			return nil
		}

		runs, err := store.RecentRuns(historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "no journaled runs")
			return nil
		}
		for _, r := range runs {
			status := "ok"
			if !r.AllPassed() {
				status = "FAILED"
			}
			fmt.Fprintf(out, "%s  %s  checked=%d passed=%d failed=%d errored=%d",
				r.Started.Local().Format("2006-01-02 15:04:05"), r.RunID,
				r.Checked, r.Passed, r.Failed, r.Errored)
			if r.LoadFailures > 0 {
				fmt.Fprintf(out, " loads=%d", r.LoadFailures)
			}
			fmt.Fprintf(out, "  %s\n", status)
		}
		return nil
	},
}
