package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/finixos/finix/internal/util"
	"github.com/finixos/finix/pkg/logging"
)

// Tracker watches configuration-adjacent paths and maintains the set
// of pending change records. It never parses configuration and never
// triggers a reload itself; the event loop feeds it raw events and an
// external scheduler queries it.
//
// All methods are called from the event-loop goroutine only.
type Tracker struct {
	fw  *fsnotify.Watcher
	log *logging.Logger

	// bases maps each watched path to itself, so a raw event can be
	// attributed to the directory or file it was registered under.
	bases map[string]struct{}

	// pending holds one record per canonical changed path.
	pending map[string]struct{}
}

// NewTracker creates a tracker with no watches.
func NewTracker(log *logging.Logger) (*Tracker, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &Tracker{
		fw:      fw,
		log:     log,
		bases:   make(map[string]struct{}),
		pending: make(map[string]struct{}),
	}, nil
}

// WatchConfig registers watches for the standard layout: the rcsd
// root with its available/ and enabled/ subdirectories, the main
// configuration file and any environment-file directories. A failing
// watch is logged and skipped; a system may legitimately lack some of
// these paths.
func (t *Tracker) WatchConfig(e *Engine) {
	paths := []string{
		e.RCSDPath,
		filepath.Join(e.RCSDPath, "available"),
		filepath.Join(e.RCSDPath, "enabled"),
		e.ConfPath,
	}
	paths = append(paths, e.EnvDirs...)

	for _, path := range paths {
		if err := t.Watch(path); err != nil {
			t.log.Debug("Not watching %s: %v", path, err)
		}
	}
}

// Watch adds a single file or directory to the watch set.
func (t *Tracker) Watch(path string) error {
	if err := t.fw.Add(path); err != nil {
		return err
	}
	t.bases[filepath.Clean(path)] = struct{}{}
	return nil
}

// Events exposes the raw event channel for the event loop's select.
func (t *Tracker) Events() <-chan fsnotify.Event {
	return t.fw.Events
}

// Errors exposes the watcher error channel.
func (t *Tracker) Errors() <-chan error {
	return t.fw.Errors
}

// HandleEvent attributes one raw event to its watched base and
// records the canonical changed path. Recording is idempotent:
// registering the same canonical path twice yields one record.
// Delete and rename events are recorded like any other change; the
// next reload discards all records regardless.
func (t *Tracker) HandleEvent(ev fsnotify.Event) {
	if ev.Name == "" {
		return
	}

	base := t.baseFor(ev.Name)
	if base == "" {
		t.log.Debug("Ignoring event outside watch set: %s", ev.Name)
		return
	}

	path := util.CanonicalPath(ev.Name)
	if _, ok := t.pending[path]; ok {
		t.log.Debug("Change already registered for %s", path)
		return
	}

	t.log.Debug("Change registered for %s (base %s, op %s)", path, base, ev.Op)
	t.pending[path] = struct{}{}
}

// baseFor finds the watched base path an event belongs to.
func (t *Tracker) baseFor(name string) string {
	name = filepath.Clean(name)
	if _, ok := t.bases[name]; ok {
		return name
	}
	dir := filepath.Dir(name)
	if _, ok := t.bases[dir]; ok {
		return dir
	}
	// Events can surface through a resolved symlink target.
	for base := range t.bases {
		if strings.HasPrefix(name, base+string(filepath.Separator)) {
			return base
		}
	}
	return ""
}

// AnyChange reports whether at least one change record is pending.
// It never blocks.
func (t *Tracker) AnyChange() bool {
	return len(t.pending) > 0
}

// Changed reports whether the given path has a pending record.
func (t *Tracker) Changed(path string) bool {
	if path == "" {
		return false
	}
	_, ok := t.pending[util.CanonicalPath(path)]
	return ok
}

// DropPending discards all change records. Called at the end of every
// reload, whether or not each individual event was consumed.
func (t *Tracker) DropPending() {
	clear(t.pending)
}

// Drain consumes and discards all currently queued raw events without
// producing records. Used when a reload must be intentionally
// skipped, e.g. during shutdown.
func (t *Tracker) Drain() {
	for {
		select {
		case _, ok := <-t.fw.Events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Close stops watching.
func (t *Tracker) Close() error {
	return t.fw.Close()
}
