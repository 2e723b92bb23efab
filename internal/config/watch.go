package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc rebuilds the snapshot from the files on disk.
type ReloadFunc func() (*Snapshot, error)

// Watcher swaps a new snapshot into a Store whenever one of the watched files
// changes. A failed reload keeps the previous snapshot.
type Watcher struct {
	fs     *fsnotify.Watcher
	store  *Store
	reload ReloadFunc
	files  map[string]struct{}
	// Debounce coalesces the burst of events editors produce on save.
	Debounce time.Duration
	// OnDateChange, if set, runs after a reload installed a different
	// target date.
	OnDateChange func(prev, next *Snapshot)
}

// NewWatcher watches the directories holding files. Empty paths are skipped.
func NewWatcher(store *Store, reload ReloadFunc, files ...string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fs:       fw,
		store:    store,
		reload:   reload,
		files:    map[string]struct{}{},
		Debounce: 200 * time.Millisecond,
	}
	dirs := map[string]struct{}{}
	for _, f := range files {
		if f == "" {
			continue
		}
		abs, err := filepath.Abs(f)
		if err != nil {
			_ = fw.Close()
			return nil, err
		}
		w.files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for d := range dirs {
		if err := fw.Add(d); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Run processes events until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.Debounce)
			} else {
				timer.Reset(w.Debounce)
			}
			pending = timer.C
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slog.Warn("Config watcher error", "error", err)
		case <-pending:
			pending = nil
			w.apply()
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		return false
	}
	_, ok := w.files[abs]
	return ok
}

func (w *Watcher) apply() {
	next, err := w.reload()
	if err != nil {
		slog.Error("Config reload failed, keeping previous settings", "error", err)
		return
	}
	prev := w.store.Swap(next)
	fields := []any{"date", next.Date, "whitelist", next.Whitelist.Len()}
	changed := prev != nil && prev.Date != next.Date
	if changed {
		fields = append(fields, "previousDate", prev.Date)
	}
	slog.Info("Config reloaded", fields...)
	if changed && w.OnDateChange != nil {
		w.OnDateChange(prev, next)
	}
}

func (w *Watcher) Close() error { return w.fs.Close() }
