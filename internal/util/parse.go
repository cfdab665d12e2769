// Package util provides internal parsing and path helpers for finix.
package util

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseBytes parses a byte count with an optional decimal suffix:
// "200k" is 200000, "1M" is 1000000, "2G" is 2000000000. A bare
// number is returned as-is. Any other trailing character is an error.
func ParseBytes(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty byte value")
	}

	digits := len(s)
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			digits = i
			break
		}
	}
	if digits == 0 {
		return 0, fmt.Errorf("invalid byte value: %s", s)
	}

	mod := int64(1)
	if digits < len(s) {
		if digits != len(s)-1 {
			return 0, fmt.Errorf("invalid byte suffix: %s", s[digits:])
		}
		switch s[digits] {
		case 'k':
			mod = 1000
		case 'M':
			mod = 1000 * 1000
		case 'G':
			mod = 1000 * 1000 * 1000
		default:
			return 0, fmt.Errorf("invalid byte suffix: %s", s[digits:])
		}
	}

	n, err := strconv.ParseInt(s[:digits], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte value: %w", err)
	}

	return n * mod, nil
}

// ClampInt parses a decimal integer and clamps it to [lo, hi].
func ClampInt(s string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %w", err)
	}
	if n < lo {
		n = lo
	}
	if n > hi {
		n = hi
	}
	return n, nil
}

// StripQuotes removes one pair of matching surrounding quotes, if present.
func StripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// FirstWord splits a line into its first whitespace-separated token and
// the trimmed remainder.
func FirstWord(line string) (string, string) {
	line = strings.TrimSpace(line)
	i := strings.IndexAny(line, " \t")
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimSpace(line[i+1:])
}
