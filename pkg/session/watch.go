package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/japaniel/wordgloss/pkg/logger"
)

// DefaultDebounce collapses the burst of events a single save produces.
const DefaultDebounce = 50 * time.Millisecond

// Watcher calls a reload function whenever one of its files changes.
type Watcher struct {
	Debounce time.Duration
	Logger   *zap.Logger
}

// Watch blocks until ctx is done, calling reload(path) after each change to
// one of paths settles. Parent directories are watched so files replaced by
// rename-on-save are still seen.
func (w *Watcher) Watch(ctx context.Context, paths []string, reload func(path string)) error {
	log := logger.Nop(w.Logger)
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	targets := make(map[string]string, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		targets[abs] = p
		dir := filepath.Dir(abs)
		if !dirs[dir] {
			if err := fw.Add(dir); err != nil {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
			dirs[dir] = true
		}
	}

	var mu sync.Mutex
	timers := make(map[string]*time.Timer)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", zap.Error(err))
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil {
				continue
			}
			orig, ok := targets[abs]
			if !ok {
				continue
			}
			log.Debug("change detected", zap.String("path", orig), zap.String("op", ev.Op.String()))

			mu.Lock()
			if t, ok := timers[abs]; ok {
				t.Reset(debounce)
			} else {
				timers[abs] = time.AfterFunc(debounce, func() {
					if ctx.Err() == nil {
						reload(orig)
					}
				})
			}
			mu.Unlock()
		}
	}
}
