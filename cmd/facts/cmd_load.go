package main

import (
	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load [namespace ...]",
	Short: "Load fact scripts and check every fact as it registers",
	Long: `Load reads fact scripts into the compendium, checking each fact the
moment it registers. With no arguments every namespace under the configured
source roots is loaded. Arguments may be namespace names (my.pkg) or
wildcards (my.*) that expand against the discovered scripts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newStdoutApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		sum, err := a.loader.Load(ctx, args...)
		if err != nil {
			return err
		}
		if !sum.AllPassed() {
			return errRunFailed
		}
		return nil
	},
}
