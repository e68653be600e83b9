package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"factual/internal/config"
	"factual/internal/logging"
)

const version = "0.1.0"

var (
	// Global flags
	cfgPath   string
	verbose   bool
	levelFlag string
	nsFlag    string

	cfg    *config.Config
	logger *zap.Logger
)

// errRunFailed signals a run with failing checks. The console already
// reported the details, so main only turns it into the exit code.
var errRunFailed = errors.New("run failed")

var rootCmd = &cobra.Command{
	Use:   "facts",
	Short: "facts - a fact checking framework",
	Long: `facts defines and checks facts: named, metadata-tagged assertions
registered by *.facts.go scripts under the source roots.

Scripts are plain Go, evaluated at load time; every fact is checked the
moment it registers, so a broken script fails against its own namespace.

Run without arguments to start the interactive session.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The interactive session owns the terminal and builds its own
		// state; version and help need no configuration at all.
		switch cmd.Name() {
		case "facts", "version", "help":
			return nil
		}

		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if levelFlag != "" {
			cfg.PrintLevel = levelFlag
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err = logging.Build(verbose, cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runREPL()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the facts version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("facts %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", config.DefaultPath, "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&levelFlag, "level", "l", "", "Print level: silent, summary, normal or verbose")
	rootCmd.PersistentFlags().StringVar(&nsFlag, "ns", "", "Ambient namespace for selector-less check/fetch")

	queryCmd.Flags().StringArrayVar(&queryRules, "rule", nil, "Additional datalog rule (repeatable)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "How many entries to show")

	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(forgetCmd)
	rootCmd.AddCommand(recheckCmd)
	rootCmd.AddCommand(autotestCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
