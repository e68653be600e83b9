package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"factual/internal/checker"
	"factual/internal/selector"
)

// parseSelectors maps command arguments to selectors. No arguments means
// "the ambient namespace" when --ns is set and "everything" otherwise; an
// empty namespace fetch is then a legitimate empty result, not an error.
func parseSelectors(args []string) ([]selector.Selector, error) {
	if len(args) == 0 {
		if nsFlag != "" {
			return nil, nil
		}
		return []selector.Selector{selector.All{}}, nil
	}
	return selector.ParseAll(args)
}

var checkCmd = &cobra.Command{
	Use:   "check [selector ...]",
	Short: "Check the selected facts",
	Long: `Check loads every fact script quietly, selects facts and runs them.

Selectors:
  :all        every fact
  :slow       facts tagged "slow"
  /add.*/     facts whose name matches the regexp
  name:text   facts whose name contains text
  ns:pkg.x    facts of namespace pkg.x
  pkg.x       bare tokens are namespace references

With no selectors and --ns set, the facts of that namespace are checked;
with neither, every fact is. Each selector argument resolves independently
and a fact matched twice is checked twice.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sels, err := parseSelectors(args)
		if err != nil {
			return err
		}
		a, err := newStdoutApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		loads, err := a.quietLoad(ctx)
		if err != nil {
			return err
		}
		facts := selector.Fetch(a.comp, nsFlag, sels...)
		sum := a.ctl.CheckMany(ctx, facts)
		if !sum.AllPassed() || len(loads) > 0 {
			return errRunFailed
		}
		return nil
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [selector ...]",
	Short: "List the facts a selection would check, without running them",
	RunE: func(cmd *cobra.Command, args []string) error {
		sels, err := parseSelectors(args)
		if err != nil {
			return err
		}
		a, err := newStdoutApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		loads, err := a.quietLoad(ctx)
		if err != nil {
			return err
		}
		facts := selector.Fetch(a.comp, nsFlag, sels...)
		for _, f := range facts {
			fmt.Fprintln(cmd.OutOrStdout(), f.String())
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d fact(s)\n", len(facts))
		if len(loads) > 0 {
			return errRunFailed
		}
		return nil
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget <selector> [selector ...]",
	Short: "Remove the selected facts from the compendium",
	Long: `Forget removes the selected facts. With per-command invocation the
compendium is rebuilt from the scripts each time, so forget mostly matters
inside the interactive session, where the registry persists between
commands.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sels, err := selector.ParseAll(args)
		if err != nil {
			return err
		}
		a, err := newStdoutApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		loads, err := a.quietLoad(ctx)
		if err != nil {
			return err
		}
		removed := 0
		for _, f := range selector.Fetch(a.comp, nsFlag, sels...) {
			if a.comp.Remove(f.ID) {
				removed++
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "forgot %d fact(s)\n", removed)
		if len(loads) > 0 {
			return errRunFailed
		}
		return nil
	},
}

var recheckCmd = &cobra.Command{
	Use:   "recheck",
	Short: "Re-run the most recently checked fact",
	Long: `Recheck re-runs the last fact any check touched. Check history lives
in the registry, so per-command invocation starts empty every time; recheck
earns its keep inside the interactive session.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newStdoutApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		loads, err := a.quietLoad(ctx)
		if err != nil {
			return err
		}
		sum, err := a.ctl.RecheckLast(ctx)
		if errors.Is(err, checker.ErrNothingChecked) {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing has been checked yet")
			return nil
		}
		if err != nil {
			return err
		}
		if !sum.AllPassed() || len(loads) > 0 {
			return errRunFailed
		}
		return nil
	},
}
