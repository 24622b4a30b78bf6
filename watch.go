package codescan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits after the last relevant file event
// before re-scanning.
const DefaultDebounce = 250 * time.Millisecond

// ScanFunc receives the outcome of every scan Watch runs.
type ScanFunc func(*Summary, error)

// Watch runs an initial scan, then re-scans whenever a supported file under
// the root changes, until ctx is cancelled. Events are debounced so a burst
// of writes triggers one scan. Scan errors are passed to fn and do not stop
// the watch; Watch returns nil when ctx is cancelled.
func (e *Engine) Watch(ctx context.Context, fn ScanFunc) error {
	if fn == nil {
		fn = func(*Summary, error) {}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("codescan: watch: %w", err)
	}
	defer w.Close()

	if err := e.watchTree(w, e.root); err != nil {
		return fmt.Errorf("codescan: watch: %w", err)
	}

	scan := func() {
		sum, err := e.Scan(ctx)
		if ctx.Err() != nil {
			return
		}
		fn(sum, err)
	}
	scan()

	timer := time.NewTimer(e.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := e.watchTree(w, ev.Name); err != nil {
						e.log.WithField("path", e.relPath(ev.Name)).WithError(err).Warn("failed to watch directory")
					}
				}
			}
			if !e.relevant(ev) {
				continue
			}
			e.log.WithField("path", e.relPath(ev.Name)).WithField("op", ev.Op.String()).Debug("change detected")
			timer.Reset(e.debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			e.log.WithError(err).Warn("watch error")
		case <-timer.C:
			scan()
		}
	}
}

// watchTree adds dir and every non-excluded directory below it.
func (e *Engine) watchTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != e.root && e.exclude.skipDir(d.Name(), e.relPath(path)) {
			return fs.SkipDir
		}
		if err := w.Add(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	})
}

// relevant reports whether ev could change the report. Writes made by the
// scan itself (state directory, report, temp files) are ignored.
func (e *Engine) relevant(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}
	name := ev.Name
	if name == e.ReportPath() || strings.HasPrefix(name, e.StateDir()+string(filepath.Separator)) {
		return false
	}
	if strings.Contains(filepath.Base(name), ".tmp") {
		return false
	}
	rel := e.relPath(name)
	for _, part := range strings.Split(rel, "/") {
		if _, ok := e.exclude.dirs[part]; ok {
			return false
		}
	}
	if e.exclude.match(rel) {
		return false
	}
	// Removed or renamed directories have no extension but still drop files.
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		return true
	}
	if info, err := os.Stat(name); err == nil && info.IsDir() {
		return true
	}
	return e.registry.Supports(name)
}
