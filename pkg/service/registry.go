// Package service implements the directive registry: the record of
// every dynamic service, task, run, sysv and tty declaration the
// configuration engine has registered, with the mark-and-sweep
// reconciliation used across reloads. Process supervision itself
// lives elsewhere; the registry is its source of truth.
package service

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/finixos/finix/pkg/config"
	"github.com/finixos/finix/pkg/logging"
)

// Entry is one registered dynamic directive.
type Entry struct {
	Kind      config.DirectiveKind
	Name      string
	ID        string // multi-instance discriminator (':ID' or template instance)
	Runlevels config.RunlevelMask
	Cond      Condition
	Cmd       []string // command and arguments; tty device/args for KindTTY
	Descr     string
	File      string // source fragment, empty for built-ins
	Instance  string
	CGroup    string
	Rlimits   config.RlimitSet
	EnvFile   string
	PIDFile   string
	Manual    bool

	removal bool
}

// Key returns the registry identity of the entry.
func (en *Entry) Key() string {
	if en.ID != "" {
		return en.Name + ":" + en.ID
	}
	return en.Name
}

// MarkedForRemoval reports whether the entry is a removal candidate.
func (en *Entry) MarkedForRemoval() bool {
	return en.removal
}

// RegisterError describes a directive that could not be registered.
type RegisterError struct {
	Kind    config.DirectiveKind
	Spec    string
	Message string
}

func (e *RegisterError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Kind, e.Spec, e.Message)
}

// Registry holds all registered entries, keyed by name[:id].
type Registry struct {
	log     *logging.Logger
	entries map[string]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		log:     log,
		entries: make(map[string]*Entry),
	}
}

// Register parses a dynamic directive and records it, replacing any
// previous registration with the same identity and clearing its
// removal mark. Implements config.ServiceRegistry.
func (r *Registry) Register(d config.Directive) error {
	entry, err := parseEntry(d)
	if err != nil {
		return err
	}

	key := entry.Key()
	if _, ok := r.entries[key]; ok {
		r.log.Debug("Updating %s '%s' from %s", entry.Kind, key, d.File)
	} else {
		r.log.Debug("Registered %s '%s' from %s", entry.Kind, key, d.File)
	}
	r.entries[key] = entry
	return nil
}

// MarkDynamic marks every entry as a candidate for removal. Entries
// re-registered during the subsequent replay have the mark cleared;
// Cleanup sweeps the rest.
func (r *Registry) MarkDynamic() {
	for _, en := range r.entries {
		en.removal = true
	}
}

// Cleanup sweeps entries still marked for removal, then prunes
// entries whose condition requires a service that no longer exists,
// repeating until the set is stable. The surviving entries form the
// reverse dependency map.
func (r *Registry) Cleanup() {
	for key, en := range r.entries {
		if en.removal {
			r.log.Info("Removing stale %s '%s'", en.Kind, key)
			delete(r.entries, key)
		}
	}

	for {
		pruned := false
		for want, keys := range r.ReverseDeps() {
			if r.haveService(want) {
				continue
			}
			for _, key := range keys {
				en := r.entries[key]
				if en == nil {
					continue
				}
				r.log.Warn("Removing %s '%s', condition needs missing service '%s'", en.Kind, key, want)
				delete(r.entries, key)
				pruned = true
			}
		}
		if !pruned {
			return
		}
	}
}

func (r *Registry) haveService(name string) bool {
	for _, en := range r.entries {
		if en.Name == name {
			return true
		}
	}
	return false
}

// ReverseDeps returns, for each service name, the keys of entries
// whose condition depends on it.
func (r *Registry) ReverseDeps() map[string][]string {
	deps := make(map[string][]string)
	for key, en := range r.entries {
		for _, want := range en.Cond.Requires() {
			deps[want] = append(deps[want], key)
		}
	}
	for _, keys := range deps {
		sort.Strings(keys)
	}
	return deps
}

// Find returns the entry with the given key, or nil.
func (r *Registry) Find(key string) *Entry {
	return r.entries[key]
}

// List returns all entries ordered by key.
func (r *Registry) List() []*Entry {
	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	list := make([]*Entry, 0, len(keys))
	for _, key := range keys {
		list = append(list, r.entries[key])
	}
	return list
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

// parseEntry parses the directive remainder:
//
//	[runlevels] [<cond>] [options] command [args] [-- description]
//
// Recognized options are name:NAME, :ID, env:FILE, pid:FILE,
// manual:yes and log. For tty directives the command tokens are the
// device and getty arguments.
func parseEntry(d config.Directive) (*Entry, error) {
	entry := &Entry{
		Kind:      d.Kind,
		Runlevels: config.ParseRunlevels(""),
		Cond:      Condition{SighupOK: true},
		File:      d.File,
		Instance:  d.Instance,
		CGroup:    d.CGroup,
		Rlimits:   d.Rlimits,
	}

	tokens := splitCommand(d.Spec)
	i := 0

opts:
	for ; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case strings.HasPrefix(tok, "["):
			entry.Runlevels = config.ParseRunlevels(tok)
		case strings.HasPrefix(tok, "<"):
			entry.Cond = ParseCondition(strings.TrimSuffix(strings.TrimPrefix(tok, "<"), ">"))
		case strings.HasPrefix(tok, "name:"):
			entry.Name = tok[len("name:"):]
		case strings.HasPrefix(tok, ":"):
			entry.ID = tok[1:]
		case strings.HasPrefix(tok, "env:"):
			entry.EnvFile = tok[len("env:"):]
		case strings.HasPrefix(tok, "pid:"):
			entry.PIDFile = tok[len("pid:"):]
		case tok == "manual:yes":
			entry.Manual = true
		case tok == "log" || strings.HasPrefix(tok, "log:"):
			// Output redirection is supervision's concern; accepted
			// here so the command boundary stays correct.
		default:
			break opts
		}
	}

	if i >= len(tokens) {
		return nil, &RegisterError{Kind: d.Kind, Spec: d.Spec, Message: "missing command"}
	}

	cmd := tokens[i:]
	for j, tok := range cmd {
		if tok == "--" {
			entry.Descr = strings.Join(cmd[j+1:], " ")
			cmd = cmd[:j]
			break
		}
	}
	if len(cmd) == 0 {
		return nil, &RegisterError{Kind: d.Kind, Spec: d.Spec, Message: "missing command"}
	}
	entry.Cmd = cmd

	if entry.Name == "" {
		entry.Name = defaultName(d.Kind, cmd[0])
	}
	if entry.ID == "" && d.Instance != "" {
		entry.ID = d.Instance
	}
	return entry, nil
}

// defaultName derives a registry name from the command when no
// name: option was given. TTY entries are named after their device.
func defaultName(kind config.DirectiveKind, cmd string) string {
	if kind == config.KindTTY {
		return "tty:" + filepath.Base(strings.TrimPrefix(cmd, "@"))
	}
	base := filepath.Base(cmd)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// splitCommand splits a directive remainder into tokens, respecting
// quotes and backslash escapes.
func splitCommand(s string) []string {
	var parts []string
	var current strings.Builder
	inQuote := false
	quoteChar := byte(0)
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if escaped {
			current.WriteByte(ch)
			escaped = false
			continue
		}

		if ch == '\\' {
			escaped = true
			continue
		}

		if inQuote {
			if ch == quoteChar {
				inQuote = false
			} else {
				current.WriteByte(ch)
			}
			continue
		}

		if ch == '"' || ch == '\'' {
			inQuote = true
			quoteChar = ch
			continue
		}

		if ch == ' ' || ch == '\t' {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
			continue
		}

		current.WriteByte(ch)
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
