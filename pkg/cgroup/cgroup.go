// Package cgroup manages the top-level control group hierarchy that
// configuration files declare with cgroup directives. Groups are
// recorded during parsing and written out to the unified hierarchy in
// one pass afterwards, so a reload that redefines a group never
// leaves a half-applied configuration behind.
package cgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/finixos/finix/pkg/logging"
)

// DefaultRoot is the mount point of the unified cgroup hierarchy.
const DefaultRoot = "/sys/fs/cgroup"

// Setting is a single controller property, e.g. cpu.weight:100.
type Setting struct {
	Key   string
	Value string
}

// SettingError describes a malformed cgroup setting.
type SettingError struct {
	Group   string
	Setting string
}

func (e *SettingError) Error() string {
	return fmt.Sprintf("cgroup %s: invalid setting %q", e.Group, e.Setting)
}

// Group is a declared top-level control group.
type Group struct {
	Name     string
	Settings []Setting

	removal bool
}

// Manager tracks declared groups and materializes them on the
// filesystem. Implements config.CGroupManager.
type Manager struct {
	log    *logging.Logger
	root   string
	groups map[string]*Group
}

// NewManager creates a manager rooted at the unified hierarchy mount.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		log:    log,
		root:   DefaultRoot,
		groups: make(map[string]*Group),
	}
}

// SetRoot overrides the hierarchy mount point, used by tests.
func (m *Manager) SetRoot(root string) {
	m.root = root
}

// Available reports whether the unified hierarchy is mounted.
func (m *Manager) Available() bool {
	_, err := os.Stat(filepath.Join(m.root, "cgroup.controllers"))
	return err == nil
}

// Configure records a group declaration, replacing an earlier one
// with the same name and clearing its removal mark. Settings are a
// comma-separated list of controller.property:value pairs.
func (m *Manager) Configure(name, settings string) error {
	group := &Group{Name: name}

	for _, field := range strings.Split(settings, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, value, ok := strings.Cut(field, ":")
		if !ok || !validSettingKey(key) || value == "" {
			return &SettingError{Group: name, Setting: field}
		}
		group.Settings = append(group.Settings, Setting{Key: key, Value: value})
	}

	m.groups[name] = group
	m.log.Debug("Configured cgroup '%s' with %d setting(s)", name, len(group.Settings))
	return nil
}

// Mark flags all groups as removal candidates ahead of a replay.
func (m *Manager) Mark() {
	for _, g := range m.groups {
		g.removal = true
	}
}

// Sweep drops groups that were not re-declared since Mark. The
// directories are left in place, a group may still hold processes
// that supervision is winding down.
func (m *Manager) Sweep() {
	for name, g := range m.groups {
		if g.removal {
			m.log.Info("Dropping stale cgroup '%s'", name)
			delete(m.groups, name)
		}
	}
}

// Materialize creates every declared group directory and writes its
// settings. Failures are logged and skipped; a read-only or absent
// hierarchy must not abort a reload.
func (m *Manager) Materialize() {
	if !m.Available() {
		m.log.Debug("No unified cgroup hierarchy at %s, skipping", m.root)
		return
	}

	for _, name := range m.names() {
		g := m.groups[name]
		dir := filepath.Join(m.root, name)
		if err := os.MkdirAll(dir, 0755); err != nil {
			m.log.Warn("Failed creating cgroup '%s': %v", name, err)
			continue
		}
		for _, s := range g.Settings {
			path := filepath.Join(dir, s.Key)
			if err := os.WriteFile(path, []byte(s.Value+"\n"), 0644); err != nil {
				m.log.Warn("Failed setting %s=%s for cgroup '%s': %v", s.Key, s.Value, name, err)
			}
		}
	}
}

// Find returns the declared group with the given name, or nil.
func (m *Manager) Find(name string) *Group {
	return m.groups[name]
}

// Len returns the number of declared groups.
func (m *Manager) Len() int {
	return len(m.groups)
}

func (m *Manager) names() []string {
	names := make([]string, 0, len(m.groups))
	for name := range m.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// validSettingKey accepts controller.property names such as
// cpu.weight or memory.max.
func validSettingKey(key string) bool {
	ctrl, prop, ok := strings.Cut(key, ".")
	return ok && ctrl != "" && prop != "" && !strings.ContainsAny(key, "/ \t")
}
