package catalog

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/unirepo/internal/schema"
)

// DefaultDebounce is how long the watcher waits for a burst of file events to
// settle before rebuilding.
const DefaultDebounce = 200 * time.Millisecond

// WatchTarget is one catalog source directory to watch.
type WatchTarget struct {
	Name   string
	Dir    string // absolute path
	Schema schema.Schema
}

// RebuildFunc rebuilds the named catalog.
type RebuildFunc func(ctx context.Context, name string) error

// Watch starts an fsnotify watcher on every target directory and calls
// rebuild for each catalog whose PDFs changed until ctx is cancelled.
//
// Events are debounced: a copy of many files into the directory results in a
// single rebuild once no event has arrived for the debounce interval. Targets
// whose directory does not exist are skipped.
func Watch(ctx context.Context, targets []WatchTarget, debounce time.Duration, logger *slog.Logger, rebuild RebuildFunc) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	byDir := make(map[string][]WatchTarget)
	for _, t := range targets {
		dir := filepath.Clean(t.Dir)
		if _, ok := byDir[dir]; !ok {
			if addErr := w.Add(dir); addErr != nil {
				logger.Warn("watcher: skip dir",
					slog.String("catalog", t.Name),
					slog.String("dir", dir),
					slog.String("error", addErr.Error()))
				continue
			}
		}
		byDir[dir] = append(byDir[dir], t)
	}

	logger.Info("watcher: started", slog.Int("dirs", len(byDir)))

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			names := make([]string, 0, len(pending))
			for n := range pending {
				names = append(names, n)
			}
			sort.Strings(names)
			pending = make(map[string]struct{})
			for _, n := range names {
				if rbErr := rebuild(ctx, n); rbErr != nil {
					logger.Warn("watcher: rebuild failed", slog.String("catalog", n), slog.String("error", rbErr.Error()))
					continue
				}
				logger.Debug("watcher: rebuilt", slog.String("catalog", n))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			dir, base := filepath.Split(ev.Name)
			for _, t := range byDir[filepath.Clean(dir)] {
				if !t.Schema.Match(base) {
					continue
				}
				pending[t.Name] = struct{}{}
				logger.Debug("watcher: change",
					slog.String("catalog", t.Name),
					slog.String("file", base),
					slog.String("op", ev.Op.String()))
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
