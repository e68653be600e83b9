package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"factual/internal/checker"
	"factual/internal/compendium"
	"factual/internal/config"
	"factual/internal/history"
	"factual/internal/loader"
	"factual/internal/report"
)

// app bundles the wired framework for one command or session: compendium,
// console emitter, optional run journal, controller and loader.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	comp    *compendium.Compendium
	console *report.Console
	store   *history.Store
	ctl     *checker.Controller
	loader  *loader.Loader
}

// newApp wires everything against the given output writer. The journal is
// best-effort: an unopenable history database logs a warning and the run
// proceeds without it.
func newApp(cfg *config.Config, logger *zap.Logger, out io.Writer) (*app, error) {
	level, err := report.ParseLevel(cfg.PrintLevel)
	if err != nil {
		return nil, err
	}

	comp := compendium.New()
	console := report.NewConsole(out, level, logger)
	emitter := report.Emitter(console)

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg.History.Path, logger)
		if err != nil {
			logger.Warn("run journal unavailable", zap.Error(err))
			store = nil
		} else {
			emitter = report.Multi(console, history.NewJournal(store, logger))
		}
	}

	ctl := checker.New(comp, emitter, logger)
	return &app{
		cfg:     cfg,
		logger:  logger,
		comp:    comp,
		console: console,
		store:   store,
		ctl:     ctl,
		loader:  loader.New(comp, ctl, cfg, logger),
	}, nil
}

func newStdoutApp() (*app, error) {
	return newApp(cfg, logger, os.Stdout)
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing run journal", zap.Error(err))
		}
	}
}

// quietLoad populates the compendium without checking or journaling, for
// the commands that run their own selection afterwards. Load errors still
// reach the console; the returned slice carries them for the exit code.
func (a *app) quietLoad(ctx context.Context) ([]report.LoadFailure, error) {
	ctl := checker.New(a.comp, loadErrorsOnly{console: a.console}, a.logger)
	ld := loader.New(a.comp, ctl, a.cfg, a.logger)
	ld.SetCheckOnLoad(false)
	sum, err := ld.Load(ctx)
	if err != nil {
		return nil, err
	}
	return sum.Loads, nil
}

// loadErrorsOnly forwards load errors to the console and swallows every
// other event of the populating pass.
type loadErrorsOnly struct {
	report.Nop
	console *report.Console
}

func (e loadErrorsOnly) LoadError(ns string, err error) {
	e.console.LoadError(ns, err)
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
