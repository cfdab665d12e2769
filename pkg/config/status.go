package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultStatusPath is where finix records its boundary state for
// command-line tools.
const DefaultStatusPath = "/run/finix.status"

// WriteStatusFile writes the line-oriented NAME=value status file
// consumed by finixctl: the resolved main configuration path, the
// override directory and the control socket path. No escaping is
// performed; none of the values may contain newlines.
func (e *Engine) WriteStatusFile(path, socket string) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "FINIX_CONF=%s\n", e.ConfPath)
	fmt.Fprintf(&sb, "FINIX_RCSD=%s\n", e.RCSDPath)
	fmt.Fprintf(&sb, "FINIX_SOCKET=%s\n", socket)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(sb.String()), 0644)
}

// ReadStatusFile parses a status file back into a key/value map.
func ReadStatusFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		values[key] = value
	}
	return values, nil
}
