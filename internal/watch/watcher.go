// Package watch keeps the index in step with a documents directory: files
// that are created or changed are re-ingested and deleted files are removed.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kalambet/hrassist/internal/ingest"
	"github.com/kalambet/hrassist/internal/loader"
	"github.com/kalambet/hrassist/internal/storage"
)

const defaultSettle = 500 * time.Millisecond

// Ingester is the part of ingest.Pipeline the watcher drives.
type Ingester interface {
	IngestFile(ctx context.Context, path string) ingest.Result
	RemoveDocument(ctx context.Context, id string) error
}

// Watcher reacts to changes in one directory. Events for the same file are
// coalesced until the file has been quiet for the settle period, so an
// editor's burst of writes causes one ingestion.
type Watcher struct {
	dir    string
	ing    Ingester
	settle time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]time.Time
}

// New creates a Watcher for dir.
func New(dir string, ing Ingester) *Watcher {
	return &Watcher{
		dir:     dir,
		ing:     ing,
		settle:  defaultSettle,
		logger:  slog.Default(),
		pending: make(map[string]time.Time),
	}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching documents", "dir", w.dir)

	tick := time.NewTicker(w.settle / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.note(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		case now := <-tick.C:
			for _, path := range w.due(now) {
				w.sync(ctx, path)
			}
		}
	}
}

func (w *Watcher) note(ev fsnotify.Event) {
	if !relevant(ev.Name) {
		return
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	w.mu.Lock()
	w.pending[ev.Name] = time.Now()
	w.mu.Unlock()
}

// due returns the pending paths that have settled, in name order.
func (w *Watcher) due(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var paths []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.settle {
			paths = append(paths, path)
			delete(w.pending, path)
		}
	}
	slices.Sort(paths)
	return paths
}

// sync brings the index in line with the file's current state on disk.
func (w *Watcher) sync(ctx context.Context, path string) {
	name := filepath.Base(path)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		err := w.ing.RemoveDocument(ctx, ingest.DocumentID(name))
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			w.logger.Warn("removing document", "name", name, "error", err)
		default:
			w.logger.Info("document removed after delete", "name", name)
		}
		return
	}

	res := w.ing.IngestFile(ctx, path)
	if !res.OK() {
		w.logger.Warn("re-ingesting document", "name", name, "error", res.Err)
		return
	}
	w.logger.Info("document re-ingested", "name", name, "chunks", res.Chunks)
}

// relevant reports whether a path is a visible file of a supported format.
func relevant(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return false
	}
	_, err := loader.FormatFromPath(name)
	return err == nil
}
