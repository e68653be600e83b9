package loader

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ScriptSuffix marks a file as a fact script.
const ScriptSuffix = ".facts.go"

// NamespaceForFile maps a fact script under root to its namespace:
// <root>/a/b.facts.go becomes a.b. It reports false for paths outside the
// root, non-script files, and names that would not map back (a dot inside a
// path segment).
func NamespaceForFile(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasSuffix(rel, ScriptSuffix) {
		return "", false
	}
	rel = strings.TrimSuffix(rel, ScriptSuffix)

	segments := strings.Split(rel, "/")
	for _, seg := range segments {
		if seg == "" || strings.Contains(seg, ".") {
			return "", false
		}
	}
	return strings.Join(segments, "."), true
}

// FileForNamespace is the inverse mapping, relative to a root.
func FileForNamespace(root, ns string) string {
	parts := strings.Split(ns, ".")
	return filepath.Join(root, filepath.Join(parts...)+ScriptSuffix)
}

// Discover scans every source root for fact scripts and returns their
// namespaces, sorted and deduplicated. Roots are scanned concurrently;
// a missing root is skipped with a warning rather than failing discovery.
func (l *Loader) Discover(ctx context.Context) ([]string, error) {
	roots := l.cfg.SourceRoots
	if len(roots) == 0 {
		return nil, errors.New("no source roots configured")
	}

	perRoot := make([][]string, len(roots))
	g, ctx := errgroup.WithContext(ctx)
	for idx, root := range roots {
		idx, root := idx, root
		g.Go(func() error {
			nss, err := l.scanRoot(ctx, root)
			if err != nil {
				return err
			}
			perRoot[idx] = nss
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []string
	for _, nss := range perRoot {
		for _, ns := range nss {
			if !seen[ns] {
				seen[ns] = true
				out = append(out, ns)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// scanRoot walks one root. Hidden and underscore-prefixed entries are
// skipped, as the Go toolchain does.
func (l *Loader) scanRoot(ctx context.Context, root string) ([]string, error) {
	if _, err := os.Stat(root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("source root does not exist", zap.String("root", root))
			return nil, nil
		}
		return nil, err
	}

	var nss []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			return nil
		}
		if ns, ok := NamespaceForFile(root, path); ok {
			nss = append(nss, ns)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nss, nil
}
