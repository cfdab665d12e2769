package config

import "strings"

// Bootstrap is the runlevel finix occupies before the configured
// runlevel takes over. The 'S' token in a runlevel spec maps here.
const Bootstrap = 0

// Reserved is the runlevel reserved for reboot; it can never appear
// in a runlevel mask.
const Reserved = 6

// DefaultRunlevels is the runlevel spec assumed when a directive
// carries none.
const DefaultRunlevels = "[234]"

// RunlevelMask is a bitmask over runlevels 0-9. Bit 6 is never set.
type RunlevelMask uint16

// allLevels has bits 1-9 set, minus the reserved level. It is the
// base mask for the negated "[!...]" form.
const allLevels RunlevelMask = 0x3FE &^ (1 << Reserved)

// ParseRunlevels converts a bracketed runlevel spec such as "[234]",
// "[!2]" or "[S12345]" into a bitmask. An empty spec yields the
// default. Characters outside 0-9/S are ignored, as is the reserved
// level 6.
func ParseRunlevels(spec string) RunlevelMask {
	if spec == "" {
		spec = DefaultRunlevels
	}

	var mask RunlevelMask
	negate := false

	spec = strings.TrimPrefix(spec, "[")
	for i := 0; i < len(spec); i++ {
		c := spec[i]
		if c == ']' {
			break
		}
		if c == '!' {
			negate = true
			mask = allLevels
			continue
		}
		if c == 's' || c == 'S' {
			c = '0'
		}
		if c < '0' || c > '9' {
			continue
		}

		level := uint(c - '0')
		if level == Reserved {
			continue
		}
		if negate {
			mask &^= 1 << level
		} else {
			mask |= 1 << level
		}
	}

	return mask
}

// Has returns true if the given runlevel is in the mask.
func (m RunlevelMask) Has(level int) bool {
	if level < 0 || level > 9 {
		return false
	}
	return m&(1<<uint(level)) != 0
}

// Empty returns true if no runlevel is set.
func (m RunlevelMask) Empty() bool {
	return m == 0
}

// String renders the mask in the bracket syntax, with level 0 shown
// as 'S'.
func (m RunlevelMask) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	if m.Has(0) {
		sb.WriteByte('S')
	}
	for level := 1; level <= 9; level++ {
		if m.Has(level) {
			sb.WriteByte(byte('0' + level))
		}
	}
	sb.WriteByte(']')
	return sb.String()
}
