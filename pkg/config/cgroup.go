package config

import (
	"fmt"
	"strings"
)

// ValidCGroupName rejects group names that would escape the cgroup
// tree.
func ValidCGroupName(name string) bool {
	if name == "" {
		return false
	}
	return !strings.Contains(name, "..") && !strings.ContainsRune(name, '/')
}

// doCGroup handles `cgroup <name> <ctrl.prop:value>[,...]`: the name
// is validated and the settings list is forwarded verbatim to the
// control-group collaborator.
func doCGroup(e *Engine, sc *fileScope, arg string) error {
	name, settings := splitCGroupArg(arg)
	if !ValidCGroupName(name) {
		return fmt.Errorf("cgroup: invalid group name %q", name)
	}
	if e.CGroups == nil {
		return nil
	}
	return e.CGroups.Configure(name, settings)
}

// doCGroupSwitch handles `cgroup.NAME`: subsequent service, task and
// run directives in the same file inherit the named group.
func doCGroupSwitch(e *Engine, sc *fileScope, arg string) error {
	if !ValidCGroupName(arg) {
		return fmt.Errorf("cgroup: invalid group name %q", arg)
	}
	e.currentCGroup = arg
	return nil
}

func splitCGroupArg(arg string) (name, settings string) {
	i := strings.IndexAny(arg, " \t")
	if i < 0 {
		return arg, ""
	}
	return arg[:i], strings.TrimSpace(arg[i+1:])
}
