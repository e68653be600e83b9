package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"factual/internal/autotest"
)

var autotestCmd = &cobra.Command{
	Use:   "autotest [namespace ...]",
	Short: "Watch the source roots and recheck namespaces as scripts change",
	Long: `Autotest loads the given namespaces (all of them by default), then
watches the source roots. Saving a fact script reloads and rechecks its
namespace; deleting one forgets the namespace. Ctrl-C stops the watch.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newStdoutApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		if _, err := a.loader.Load(ctx, args...); err != nil {
			return err
		}

		w, err := autotest.New(a.cfg, a.loader, a.comp, logger)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "watching %s (ctrl-c to stop)\n",
			strings.Join(a.cfg.SourceRoots, ", "))

		<-ctx.Done()
		w.Stop()
		return nil
	},
}
