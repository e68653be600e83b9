package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"factual/internal/inspect"
)

var queryRules []string

var queryCmd = &cobra.Command{
	Use:   "query <predicate>",
	Short: "Query the compendium with Mangle datalog",
	Long: `Query loads every fact script quietly, exports the registry as
datalog facts and evaluates the given predicate.

Built-in predicates:
  fact(Id, Namespace, Name)       every registered fact
  fact_tag(Id, Key)               truthy metadata entries
  fact_meta(Id, Key, Value)       all metadata entries, values stringified
  last_checked(Id)                the recheck target, if any

Additional rules extend the program:

  facts query slow_fact --rule 'slow_fact(N) :- fact(Id, _, N), fact_tag(Id, "slow").'`,
	Args: cobra.ExactArgs(1),
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
		eng := inspect.New(a.comp, logger)
		rows, err := eng.Query(args[0], queryRules...)
		if err != nil {
			known := strings.Join(inspect.Predicates(), ", ")
			return fmt.Errorf("%w (built-in predicates: %s)", err, known)
		}
		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no results")
		}
		for _, row := range rows {
			fmt.Fprintln(cmd.OutOrStdout(), row.String())
		}
		if len(loads) > 0 {
			return errRunFailed
		}
		return nil
	},
}
