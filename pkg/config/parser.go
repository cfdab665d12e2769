package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/finixos/finix/internal/util"
)

// IncludeError is returned when an include target is missing or not
// absolute. It is the only parse failure that aborts configuration
// loading; every other malformed directive is logged and skipped.
type IncludeError struct {
	File   string // file containing the directive
	Line   int
	Target string
}

func (e *IncludeError) Error() string {
	return fmt.Sprintf("%s:%d: include target %q missing, absolute path required", e.File, e.Line, e.Target)
}

// fileScope is the parser state that never crosses file boundaries:
// the resource-limit scope, the template instance and the source path.
type fileScope struct {
	file     string
	instance string
	override bool
	line     int
	rlimits  *RlimitSet
}

// directiveEntry is one row of the dispatch table. Entries are tried
// in order; the first match consumes the line.
type directiveEntry struct {
	name     string
	prefix   bool // match on first-token prefix instead of equality
	bootOnly bool // effective only in the bootstrap runlevel
	fn       func(e *Engine, sc *fileScope, arg string) error
}

// directiveTable is the ordered prefix-dispatch table. Boot-only
// directives still consume their line outside bootstrap, they just
// have no effect. Populated in init: doInclude recurses back into
// the parser, so a composite literal would form an initialization
// cycle.
var directiveTable []directiveEntry

func init() {
	directiveTable = []directiveEntry{
		{name: "host", bootOnly: true, fn: doHostname},
		{name: "hostname", bootOnly: true, fn: doHostname},
		{name: "mknod", bootOnly: true, fn: doMknod},
		{name: "module", bootOnly: true, fn: doModule},
		{name: "network", bootOnly: true, fn: doNetwork},
		{name: "rcsd", bootOnly: true, fn: doRCSD},
		{name: "runparts", bootOnly: true, fn: doRunparts},
		{name: "set", bootOnly: true, fn: doSet},
		{name: "runlevel", bootOnly: true, fn: doRunlevel},
		{name: "reboot-delay", bootOnly: true, fn: doRebootDelay},
		{name: "service-interval", bootOnly: true, fn: doServiceInterval},

		{name: "include", fn: doInclude},
		{name: "log", fn: doLog},
		{name: "shutdown", fn: doShutdown},

		{name: "service", fn: dynamic(KindService)},
		{name: "task", fn: dynamic(KindTask)},
		{name: "run", fn: dynamic(KindRun)},
		{name: "sysv", fn: dynamic(KindSysv)},
		{name: "tty", fn: dynamic(KindTTY)},
		{name: "rlimit", fn: doRlimit},
		{name: "cgroup.", prefix: true, fn: doCGroupSwitch},
		{name: "cgroup", fn: doCGroup},
	}
}

// ParseConfigFile parses one configuration file. The override flag
// marks files from the rcsd tree: those get a fresh per-file
// resource-limit scope seeded from the global set. Template fragments
// are expanded per line; a bare template declaration is skipped
// entirely.
func (e *Engine) ParseConfigFile(path string, override bool) error {
	instance, skip := TemplateInstance(path)
	if skip {
		e.log.Debug("Skipping bare template %s", path)
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return e.parseConfig(f, path, override, instance)
}

// ParseConfig parses directives from r, attributing them to file in
// log output. Used directly by tests; ParseConfigFile is the normal
// entry point.
func (e *Engine) ParseConfig(r io.Reader, file string, override bool) error {
	return e.parseConfig(r, file, override, "")
}

func (e *Engine) parseConfig(r io.Reader, file string, override bool, instance string) error {
	sc := &fileScope{file: file, instance: instance, override: override}

	// Override-tree fragments get their own limit scope, seeded from
	// the global one and discarded when the file ends. The cgroup
	// context likewise starts empty for every file; an included file
	// must not disturb the including file's context, so the previous
	// one is restored on return.
	var fileLimits RlimitSet
	if override {
		fileLimits = e.Global
		sc.rlimits = &fileLimits
	} else {
		sc.rlimits = &e.Global
	}
	prevCGroup := e.currentCGroup
	e.currentCGroup = ""
	defer func() { e.currentCGroup = prevCGroup }()

	e.log.Debug("Parsing %s", file)

	scanner := bufio.NewScanner(r)
	var pending string
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		raw := scanner.Text()

		// Escaped newline joins the next physical line.
		if cont, ok := strings.CutSuffix(raw, `\`); ok && !strings.HasSuffix(cont, `\`) {
			pending += cont
			continue
		}
		if err := e.parseLine(sc, pending+raw, lineNum); err != nil {
			return err
		}
		pending = ""
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", file, err)
	}

	// A trailing backslash on the last physical line still carries a
	// directive.
	if pending != "" {
		return e.parseLine(sc, pending, lineNum)
	}
	return nil
}

// parseLine normalizes and dispatches one logical line. The returned
// error is nil unless an include target is missing.
func (e *Engine) parseLine(sc *fileScope, line string, lineNum int) error {
	line = strings.ReplaceAll(line, "\t", " ")
	line = stripComment(line)
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	line = ExpandTemplate(line, sc.instance)

	sc.line = lineNum
	if err := e.dispatch(sc, line); err != nil {
		// Only a missing include target is fatal.
		if _, ok := err.(*IncludeError); ok {
			return err
		}
		e.log.Warn("%s:%d: %v", sc.file, lineNum, err)
	}
	return nil
}

// dispatch tries the line against the directive table; unmatched
// lines fall back to an environment assignment.
func (e *Engine) dispatch(sc *fileScope, line string) error {
	word, rest := util.FirstWord(line)

	for _, entry := range directiveTable {
		var arg string
		if entry.prefix {
			if len(word) <= len(entry.name) || !strings.EqualFold(word[:len(entry.name)], entry.name) {
				continue
			}
			arg = word[len(entry.name):]
		} else {
			if !strings.EqualFold(word, entry.name) {
				continue
			}
			arg = rest
		}

		if entry.bootOnly && !e.bootstrap() {
			e.log.Debug("%s:%d: '%s' is boot-only, ignored", sc.file, sc.line, entry.name)
			return nil
		}
		return entry.fn(e, sc, arg)
	}

	// Fallback: bare KEY=VALUE environment assignment.
	if strings.ContainsRune(line, '=') {
		return e.SetEnv(line)
	}
	e.log.Debug("%s:%d: unrecognized directive %q, skipped", sc.file, sc.line, word)
	return nil
}

// stripComment removes an unescaped '#' comment, honoring single and
// double quotes. A backslash-escaped '#' is kept literally.
func stripComment(line string) string {
	var sb strings.Builder
	var quote byte

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '\\' && i+1 < len(line) && line[i+1] == '#':
			sb.WriteByte('#')
			i++
			continue
		case c == '#':
			return sb.String()
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// --- Static boot-only directives ---

func doHostname(e *Engine, sc *fileScope, arg string) error {
	if arg == "" {
		return fmt.Errorf("hostname: missing argument")
	}
	e.Hostname = arg
	return nil
}

func doMknod(e *Engine, sc *fileScope, arg string) error {
	if arg == "" {
		return fmt.Errorf("mknod: missing device specification")
	}
	if e.Runner == nil {
		return nil
	}
	return e.Runner.Run("mknod "+arg, "Creating device node %s", arg)
}

func doModule(e *Engine, sc *fileScope, arg string) error {
	if arg == "" {
		return fmt.Errorf("module: missing module name")
	}

	name, _ := util.FirstWord(arg)
	if moduleLoaded(name) {
		e.log.Debug("Module %s already loaded", name)
		return nil
	}
	if e.Runner == nil {
		return nil
	}
	return e.Runner.Run("modprobe "+arg, "Loading kernel module %s", name)
}

// moduleLoaded scans /proc/modules for the named module.
func moduleLoaded(name string) bool {
	data, err := os.ReadFile("/proc/modules")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if mod, _ := util.FirstWord(line); mod == name {
			return true
		}
	}
	return false
}

func doNetwork(e *Engine, sc *fileScope, arg string) error {
	if arg == "" {
		return fmt.Errorf("network: missing script path")
	}
	e.NetworkScript = arg
	return nil
}

func doRCSD(e *Engine, sc *fileScope, arg string) error {
	if !filepath.IsAbs(arg) {
		return fmt.Errorf("rcsd: %q is not an absolute path", arg)
	}
	e.RCSDPath = arg
	return nil
}

func doRunparts(e *Engine, sc *fileScope, arg string) error {
	if arg == "" {
		return fmt.Errorf("runparts: missing directory path")
	}
	e.Runparts = arg
	return nil
}

func doRunlevel(e *Engine, sc *fileScope, arg string) error {
	level, err := strconv.Atoi(arg)
	if err != nil || level < 1 || level > 9 || level == Reserved {
		e.log.Warn("%s:%d: invalid runlevel %q, falling back to %d", sc.file, sc.line, arg, defaultRunlevel)
		level = defaultRunlevel
	}
	e.RunlevelCfg = level
	return nil
}

func doRebootDelay(e *Engine, sc *fileScope, arg string) error {
	delay, err := util.ClampInt(arg, 0, 60)
	if err != nil {
		return fmt.Errorf("reboot-delay: %w", err)
	}
	e.RebootDelay = delay
	return nil
}

func doServiceInterval(e *Engine, sc *fileScope, arg string) error {
	minutes, err := util.ClampInt(arg, 0, 1440)
	if err != nil {
		return fmt.Errorf("service-interval: %w", err)
	}

	interval := time.Duration(minutes) * time.Minute
	if interval != e.ServiceInterval {
		e.ServiceInterval = interval
		if e.Periodic != nil {
			e.Periodic.Reinit(interval)
		}
	}
	return nil
}

// --- Always-active directives ---

func doInclude(e *Engine, sc *fileScope, arg string) error {
	if !filepath.IsAbs(arg) || !fileExists(arg) {
		return &IncludeError{File: sc.file, Line: sc.line, Target: arg}
	}
	return e.ParseConfigFile(arg, sc.override)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func doLog(e *Engine, sc *fileScope, arg string) error {
	fields := strings.FieldsFunc(arg, func(r rune) bool {
		return r == ' ' || r == ':' || r == '='
	})

	for i := 0; i < len(fields); i++ {
		var value string
		if i+1 < len(fields) {
			value = fields[i+1]
		}

		switch {
		case strings.HasPrefix(fields[i], "size"):
			n, err := util.ParseBytes(value)
			if err != nil {
				return fmt.Errorf("log: bad size: %w", err)
			}
			e.LogSizeMax = n
			i++
		case strings.HasPrefix(fields[i], "count"):
			n, err := util.ParseBytes(value)
			if err != nil {
				return fmt.Errorf("log: bad count: %w", err)
			}
			e.LogCountMax = int(n)
			i++
		}
	}
	return nil
}

func doSet(e *Engine, sc *fileScope, arg string) error {
	return e.SetEnv(arg)
}

func doShutdown(e *Engine, sc *fileScope, arg string) error {
	if arg == "" {
		return fmt.Errorf("shutdown: missing script path")
	}
	e.ShutdownScript = arg
	return nil
}

// --- Dynamic directives ---

func dynamic(kind DirectiveKind) func(e *Engine, sc *fileScope, arg string) error {
	return func(e *Engine, sc *fileScope, arg string) error {
		if arg == "" {
			return fmt.Errorf("%s: missing specification", kind)
		}
		if e.Registry == nil {
			return nil
		}
		return e.Registry.Register(Directive{
			Kind:     kind,
			Spec:     arg,
			Rlimits:  *sc.rlimits,
			File:     sc.file,
			Instance: sc.instance,
			CGroup:   e.currentCGroup,
		})
	}
}

func doRlimit(e *Engine, sc *fileScope, arg string) error {
	return ParseRlimit(arg, sc.rlimits)
}
