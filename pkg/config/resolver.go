package config

import (
	"os"
	"path/filepath"
	"strings"
)

// FragmentCandidates returns the ordered list of fragment files to
// parse: system defaults first, then the flat rcsd directory, then
// its enabled/ symlink farm. A system-defaults entry whose basename
// reappears later in the list is suppressed, so the override tree
// always wins.
func (e *Engine) FragmentCandidates() []string {
	var system, override []string
	for _, pattern := range []string{
		filepath.Join(e.RCSDPath, "*.conf"),
		filepath.Join(e.RCSDPath, "enabled", "*.conf"),
	} {
		matches, _ := filepath.Glob(pattern)
		override = append(override, matches...)
	}
	if e.SystemPath != "" {
		system, _ = filepath.Glob(filepath.Join(e.SystemPath, "*.conf"))
	}

	shadowed := make(map[string]struct{}, len(override))
	for _, path := range override {
		shadowed[filepath.Base(path)] = struct{}{}
	}

	list := make([]string, 0, len(system)+len(override))
	for _, path := range system {
		if _, ok := shadowed[filepath.Base(path)]; ok {
			e.log.Debug("Skipping %s, shadowed by override tree", path)
			continue
		}
		list = append(list, path)
	}
	return append(list, override...)
}

// parseFragments parses every surviving fragment candidate. Each file
// gets the override treatment: a fresh per-file rlimit scope and an
// empty cgroup context. Unreadable or unfit candidates are skipped;
// only a missing include target aborts.
func (e *Engine) parseFragments() error {
	for _, path := range e.FragmentCandidates() {
		fi, err := os.Lstat(path)
		if err != nil {
			e.log.Debug("Skipping %s, cannot access: %v", path, err)
			continue
		}
		if fi.IsDir() {
			e.log.Debug("Skipping directory %s", path)
			continue
		}

		if fi.Mode()&os.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil {
				e.log.Warn("Skipping %s, dangling symlink", path)
				continue
			}
			path = resolved
			if st, err := os.Stat(path); err != nil || st.IsDir() {
				e.log.Debug("Skipping %s, not a regular file", path)
				continue
			}
		}

		if !strings.HasSuffix(path, ".conf") {
			e.log.Debug("Skipping %s, not a .conf file", path)
			continue
		}

		if err := e.ParseConfigFile(path, true); err != nil {
			if _, ok := err.(*IncludeError); ok {
				return err
			}
			e.log.Warn("Failed parsing %s: %v", path, err)
		}
	}
	return nil
}
