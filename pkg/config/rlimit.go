package config

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/finixos/finix/pkg/logging"
)

// NumResources is the number of per-process resource limit slots on
// Linux (RLIMIT_CPU .. RLIMIT_RTTIME).
const NumResources = 16

// RlimitSet holds a (soft, hard) limit pair per resource kind. The
// engine keeps a global set; the parser seeds a per-file copy from it
// for every override-tree fragment.
type RlimitSet [NumResources]unix.Rlimit

var rlimitNames = []struct {
	name     string
	resource int
}{
	{"as", unix.RLIMIT_AS},
	{"core", unix.RLIMIT_CORE},
	{"cpu", unix.RLIMIT_CPU},
	{"data", unix.RLIMIT_DATA},
	{"fsize", unix.RLIMIT_FSIZE},
	{"locks", unix.RLIMIT_LOCKS},
	{"memlock", unix.RLIMIT_MEMLOCK},
	{"msgqueue", unix.RLIMIT_MSGQUEUE},
	{"nice", unix.RLIMIT_NICE},
	{"nofile", unix.RLIMIT_NOFILE},
	{"nproc", unix.RLIMIT_NPROC},
	{"rss", unix.RLIMIT_RSS},
	{"rtprio", unix.RLIMIT_RTPRIO},
	{"rttime", unix.RLIMIT_RTTIME},
	{"sigpending", unix.RLIMIT_SIGPENDING},
	{"stack", unix.RLIMIT_STACK},
}

// ResourceByName maps a resource name like "nofile" to its RLIMIT_*
// constant.
func ResourceByName(name string) (int, bool) {
	for _, rn := range rlimitNames {
		if rn.name == name {
			return rn.resource, true
		}
	}
	return 0, false
}

// ResourceName maps an RLIMIT_* constant back to its name.
func ResourceName(resource int) string {
	for _, rn := range rlimitNames {
		if rn.resource == resource {
			return rn.name
		}
	}
	return "unknown"
}

// limitString renders a limit pair for log output.
func limitString(lim unix.Rlimit) string {
	part := func(v uint64) string {
		if v == unix.RLIM_INFINITY {
			return "unlimited"
		}
		return strconv.FormatUint(v, 10)
	}
	return fmt.Sprintf("%s, %s", part(lim.Cur), part(lim.Max))
}

// ParseRlimit parses the remainder of an rlimit directive and applies
// it to set. Three forms are accepted:
//
//	<soft|hard|both> <resource> <value>
//	<resource> <value>
//	<resource> <soft-value> <hard-value>
//
// where the bare two-field form is shorthand for "both". A value is a
// non-negative integer or the keyword "unlimited"/"infinity". The set
// is only mutated if the whole directive parses; any error discards
// the directive.
func ParseRlimit(args string, set *RlimitSet) error {
	fields := strings.Fields(args)

	var level, resName, val, hardVal string
	switch len(fields) {
	case 2:
		level, resName, val = "both", fields[0], fields[1]
	case 3:
		switch fields[0] {
		case "soft", "hard", "both":
			level, resName, val = fields[0], fields[1], fields[2]
		default:
			resName, val, hardVal = fields[0], fields[1], fields[2]
		}
	default:
		return fmt.Errorf("rlimit: expected 2 or 3 arguments, got %d", len(fields))
	}

	resource, ok := ResourceByName(resName)
	if !ok {
		return fmt.Errorf("rlimit: unknown resource %q", resName)
	}

	limit, err := parseLimitValue(resName, val)
	if err != nil {
		return err
	}

	if hardVal != "" {
		hard, err := parseLimitValue(resName, hardVal)
		if err != nil {
			return err
		}
		set[resource].Cur = limit
		set[resource].Max = hard
		return nil
	}

	switch level {
	case "soft":
		set[resource].Cur = limit
	case "hard":
		set[resource].Max = limit
	case "both":
		set[resource].Cur = limit
		set[resource].Max = limit
	}

	return nil
}

func parseLimitValue(resName, val string) (uint64, error) {
	if val == "unlimited" || val == "infinity" {
		return unix.RLIM_INFINITY, nil
	}
	n, err := strconv.ParseUint(val, 10, 63)
	if err != nil {
		return 0, fmt.Errorf("rlimit: invalid %s value %q", resName, val)
	}
	return n, nil
}

// CaptureRlimits reads the current process limits for every resource.
func CaptureRlimits() RlimitSet {
	var set RlimitSet
	for i := 0; i < NumResources; i++ {
		unix.Getrlimit(i, &set[i])
	}
	return set
}

// ApplyRlimits applies the set to the calling process, one resource at
// a time. A failure on a single resource is logged and does not block
// the remaining resources.
func ApplyRlimits(set *RlimitSet, log *logging.Logger) {
	for i := 0; i < NumResources; i++ {
		if err := unix.Setrlimit(i, &set[i]); err != nil {
			log.Warn("rlimit: failed setting %s (%s): %v",
				ResourceName(i), limitString(set[i]), err)
		}
	}
}
