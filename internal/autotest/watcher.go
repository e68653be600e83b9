// Package autotest watches the source roots and reruns namespaces whose
// fact scripts change. Edits reload and recheck the namespace, deletions
// forget it.
package autotest

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"factual/internal/compendium"
	"factual/internal/config"
	"factual/internal/loader"
	"factual/internal/report"
)

// Runner reruns namespaces. The loader satisfies it.
type Runner interface {
	Load(ctx context.Context, specs ...string) (report.Summary, error)
}

// Watcher drives the autotest loop: fsnotify events are debounced per file,
// settled files are mapped back to namespaces, and each batch is rerun as
// one load.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	runner      Runner
	comp        *compendium.Compendium
	roots       []string
	debounceMap map[string]time.Time
	debounceDur time.Duration
	logger      *zap.Logger
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats Stats
}

// Stats tracks watcher activity for tests and the REPL status line.
type Stats struct {
	FilesCreated        int
	FilesModified       int
	FilesDeleted        int
	RunsTriggered       int
	NamespacesForgotten int
	Errors              int
	LastEventTime       time.Time
	LastEventPath       string
	LastEventType       string
}

// New creates a watcher over the configured source roots. A nil logger
// disables logging.
func New(cfg *config.Config, runner Runner, comp *compendium.Compendium, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		watcher:     fsw,
		runner:      runner,
		comp:        comp,
		roots:       cfg.SourceRoots,
		debounceMap: make(map[string]time.Time),
		debounceDur: cfg.GetDebounce(),
		logger:      logger,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start registers watches on every directory under the source roots and
// begins processing events. Non-blocking; Stop shuts the loop down.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	watched := 0
	for _, root := range w.roots {
		n, err := w.watchTree(root)
		if err != nil {
			w.logger.Warn("cannot watch source root",
				zap.String("root", root), zap.Error(err))
			continue
		}
		watched += n
	}
	if watched == 0 {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return errors.New("no source root could be watched")
	}
	w.logger.Info("autotest watching",
		zap.Strings("roots", w.roots),
		zap.Int("directories", watched),
		zap.Duration("debounce", w.debounceDur))

	go w.run(ctx)
	return nil
}

// watchTree adds root and every non-hidden subdirectory to the watcher,
// returning how many directories were added. fsnotify watches are flat, so
// recursion happens here and again on directory-create events.
func (w *Watcher) watchTree(root string) (int, error) {
	added := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		added++
		return nil
	})
	if err != nil {
		return added, err
	}
	return added, nil
}

// Stop stops the watcher and waits for the event loop to drain.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("error closing watcher", zap.Error(err))
	}
	w.logger.Info("autotest stopped")
}

// run is the event loop. The ticker sweeps the debounce map so rapid saves
// collapse into one rerun.
func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.processSettled(ctx)
		}
	}
}

// handleEvent records one filesystem event for debounced processing. New
// directories are added to the watch set instead.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	var eventType string
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = "create"
	case event.Op&fsnotify.Write != 0:
		eventType = "modify"
	case event.Op&fsnotify.Remove != 0:
		eventType = "delete"
	case event.Op&fsnotify.Rename != 0:
		eventType = "rename"
	default:
		return
	}

	if eventType == "create" {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			base := filepath.Base(event.Name)
			if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "_") {
				return
			}
			if err := w.watcher.Add(event.Name); err != nil {
				w.logger.Warn("cannot watch new directory",
					zap.String("dir", event.Name), zap.Error(err))
			} else {
				w.logger.Debug("watching new directory", zap.String("dir", event.Name))
			}
			return
		}
	}

	base := filepath.Base(event.Name)
	if !strings.HasSuffix(base, loader.ScriptSuffix) {
		return
	}
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "_") {
		return
	}

	w.logger.Debug("script event",
		zap.String("type", eventType),
		zap.String("path", event.Name))

	w.mu.Lock()
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventPath = event.Name
	w.stats.LastEventType = eventType
	switch eventType {
	case "create":
		w.stats.FilesCreated++
	case "modify":
		w.stats.FilesModified++
	case "delete", "rename":
		w.stats.FilesDeleted++
	}
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

// processSettled reruns every namespace whose events have settled past the
// debounce window. Reruns happen outside the lock; this goroutine is the
// only caller, so reloads stay serialized.
func (w *Watcher) processSettled(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	if len(settled) == 0 {
		return
	}

	reload := make(map[string]bool)
	for _, path := range settled {
		ns, ok := w.namespaceFor(path)
		if !ok {
			w.logger.Debug("event outside any source root", zap.String("path", path))
			continue
		}
		if _, err := os.Stat(path); err != nil {
			w.forget(ns, path)
			continue
		}
		reload[ns] = true
	}
	if len(reload) == 0 {
		return
	}

	nss := make([]string, 0, len(reload))
	for ns := range reload {
		nss = append(nss, ns)
	}
	sort.Strings(nss)

	w.logger.Info("change settled, rerunning", zap.Strings("namespaces", nss))
	sum, err := w.runner.Load(ctx, nss...)
	w.mu.Lock()
	if err != nil {
		w.stats.Errors++
	} else {
		w.stats.RunsTriggered++
	}
	w.mu.Unlock()
	if err != nil {
		w.logger.Error("rerun failed", zap.Error(err))
		return
	}
	w.logger.Info("rerun finished",
		zap.Int("checked", sum.Checked),
		zap.Int("passed", sum.Passed),
		zap.Int("failed", sum.Failed),
		zap.Int("errored", sum.Errored))
}

// forget drops a namespace whose script went away.
func (w *Watcher) forget(ns, path string) {
	removed := w.comp.RemoveNamespace(ns)
	w.mu.Lock()
	w.stats.NamespacesForgotten++
	w.mu.Unlock()
	w.logger.Info("script removed, namespace forgotten",
		zap.String("namespace", ns),
		zap.String("path", path),
		zap.Int("facts", removed))
}

// namespaceFor maps an event path back to a namespace via the first root
// that contains it.
func (w *Watcher) namespaceFor(path string) (string, bool) {
	for _, root := range w.roots {
		if ns, ok := loader.NamespaceForFile(root, path); ok {
			return ns, true
		}
	}
	return "", false
}

// GetStats returns a copy of the watcher statistics.
func (w *Watcher) GetStats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// IsWatching reports whether the event loop is running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// WatchedDirs returns the directories currently under watch.
func (w *Watcher) WatchedDirs() []string {
	return w.watcher.WatchList()
}
