// Package config implements the finix configuration engine: the
// declarative directive parser, override resolution across the rcsd
// tree, template instantiation, resource-limit and control-group
// scoping, change tracking and the reload protocol.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/finixos/finix/internal/util"
	"github.com/finixos/finix/pkg/logging"
)

// Default filesystem layout.
const (
	DefaultConfPath   = "/etc/finix.conf"
	DefaultRCSDPath   = "/etc/finix.d"
	DefaultSystemPath = "/usr/share/finix.d"
	DefaultRescuePath = "/lib/finix/rescue.conf"
)

// DefaultHostname is used when neither configuration nor /etc/hostname
// provides a name.
const DefaultHostname = "noname"

// defaultRunlevel is the compiled-in runlevel used when the configured
// value is missing or malformed.
const defaultRunlevel = 2

// DirectiveKind identifies a dynamic directive.
type DirectiveKind uint8

const (
	KindService DirectiveKind = iota // monitored daemon, respawned on exit
	KindTask                         // one-shot task
	KindRun                          // like task, but waits for completion
	KindSysv                         // SysV init script
	KindTTY                          // getty on a terminal device
)

func (k DirectiveKind) String() string {
	switch k {
	case KindService:
		return "service"
	case KindTask:
		return "task"
	case KindRun:
		return "run"
	case KindSysv:
		return "sysv"
	case KindTTY:
		return "tty"
	default:
		return fmt.Sprintf("DirectiveKind(%d)", k)
	}
}

// Directive is a parsed, dispatch-ready dynamic configuration line.
type Directive struct {
	Kind     DirectiveKind
	Spec     string // directive remainder: runlevels, options, command
	Rlimits  RlimitSet
	File     string // source fragment path, empty for built-ins
	Instance string // template instance name, empty otherwise
	CGroup   string // cgroup context active when the line was read
}

// ServiceRegistry receives dynamic directives and reconciles them with
// the live service set. Supervision itself is outside the engine.
type ServiceRegistry interface {
	// Register records a directive, replacing any previous
	// registration with the same identity and clearing its removal
	// mark.
	Register(d Directive) error

	// MarkDynamic marks every known dynamic registration as a
	// candidate for removal.
	MarkDynamic()

	// Cleanup recomputes reverse dependencies, prunes registrations
	// whose activation condition can no longer be satisfied, and
	// sweeps away everything still marked.
	Cleanup()
}

// CGroupManager receives control-group configuration.
type CGroupManager interface {
	// Configure records settings for a named group. The settings
	// string is a comma-joined list of controller.property:value
	// tokens, forwarded verbatim from the directive.
	Configure(name, settings string) error

	// Mark flags all groups as candidates for removal.
	Mark()

	// Sweep removes groups still marked after a reload.
	Sweep()

	// Materialize applies the final top-level group tree.
	Materialize()
}

// PeriodicCheck is reinitialized when the service-interval setting
// transitions or changes.
type PeriodicCheck interface {
	Reinit(interval time.Duration)
}

// CommandRunner executes boot-time commands (mknod, modprobe, network
// scripts) on behalf of the parser.
type CommandRunner interface {
	Run(cmdline string, descr string, args ...interface{}) error
}

// Engine holds all state of the configuration subsystem: resolved
// paths, parsed boot settings, the global resource-limit scope and the
// environment record set. It has an explicit create/reset lifecycle
// driven by Reload and is only ever touched from the event-loop
// goroutine.
type Engine struct {
	log *logging.Logger

	Registry ServiceRegistry
	CGroups  CGroupManager
	Periodic PeriodicCheck
	Runner   CommandRunner

	// Filesystem layout.
	ConfPath   string
	RCSDPath   string
	SystemPath string // read-only defaults, shadowed by rcsd entries
	RescuePath string
	EnvDirs    []string // watched but never parsed

	// Boot mode requested on the kernel command line.
	Rescue bool
	Single bool

	// Boot settings from static directives.
	Hostname        string
	NetworkScript   string
	Runparts        string
	ShutdownScript  string
	RunlevelCfg     int
	RebootDelay     int // seconds, clamped 0-60
	ServiceInterval time.Duration

	// Log rotation thresholds for service log files.
	LogSizeMax  int64
	LogCountMax int

	// Global is the resource-limit scope applied to the daemon and to
	// services outside the override tree. baseline holds the limits
	// captured once at startup; every reload starts over from it.
	Global   RlimitSet
	baseline RlimitSet

	runlevel int // current runlevel; Bootstrap until the first switch

	envNames map[string]struct{} // names assigned via `set`

	currentCGroup string // cgroup context for subsequent lines in a file
}

// defaultEnv is the fixed environment the engine reseeds on every
// reload, so stale variables from a previous configuration cannot
// leak forward.
var defaultEnv = map[string]string{
	"PATH":    "/usr/sbin:/usr/bin:/sbin:/bin",
	"SHELL":   "/bin/sh",
	"LOGNAME": "root",
	"USER":    "root",
}

// NewEngine creates an engine with default paths and thresholds. The
// current process limits are captured as the baseline for every
// subsequent reload.
func NewEngine(log *logging.Logger) *Engine {
	e := &Engine{
		log:         log,
		ConfPath:    DefaultConfPath,
		RCSDPath:    DefaultRCSDPath,
		SystemPath:  DefaultSystemPath,
		RescuePath:  DefaultRescuePath,
		Hostname:    DefaultHostname,
		RunlevelCfg: defaultRunlevel,
		LogSizeMax:  200000,
		LogCountMax: 5,
		envNames:    make(map[string]struct{}),
	}
	e.baseline = CaptureRlimits()
	e.Global = e.baseline
	return e
}

// Runlevel returns the current runlevel.
func (e *Engine) Runlevel() int {
	return e.runlevel
}

// SetRunlevel records the current runlevel. Static boot-only
// directives are honored only while it is Bootstrap.
func (e *Engine) SetRunlevel(level int) {
	e.runlevel = level
}

func (e *Engine) bootstrap() bool {
	return e.runlevel == Bootstrap
}

// SetEnv parses a KEY=VALUE assignment, strips surrounding whitespace
// and quotes from both sides, applies it to the process environment
// and records the variable name for the next reset.
func (e *Engine) SetEnv(assignment string) error {
	eq := strings.IndexByte(assignment, '=')
	if eq < 0 {
		return fmt.Errorf("malformed assignment %q, expected KEY=VALUE", assignment)
	}

	key := util.StripQuotes(strings.TrimSpace(assignment[:eq]))
	value := util.StripQuotes(strings.TrimSpace(assignment[eq+1:]))
	if key == "" {
		return fmt.Errorf("malformed assignment %q, empty key", assignment)
	}

	if err := os.Setenv(key, value); err != nil {
		return err
	}
	e.envNames[key] = struct{}{}
	return nil
}

// EnvRecorded reports whether a variable name was assigned via `set`
// since the last reset.
func (e *Engine) EnvRecorded(name string) bool {
	_, ok := e.envNames[name]
	return ok
}

// resetEnv drops every recorded variable and reseeds the fixed
// defaults. The record set is always empty before replay begins.
func (e *Engine) resetEnv() {
	for name := range e.envNames {
		os.Unsetenv(name)
		delete(e.envNames, name)
	}
	for key, value := range defaultEnv {
		os.Setenv(key, value)
	}
}
