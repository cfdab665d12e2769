package config

import (
	"path/filepath"
	"strings"
)

// placeholder is the token replaced by the instance name in every
// logical line of a template fragment.
const placeholder = "%i"

// TemplateInstance inspects a fragment file name for the template
// marker '@'. It returns the instance name embedded in the basename
// and whether the file should be skipped: a bare template such as
// "pump@.conf" only declares the template and carries no instance, so
// it is never parsed for directives.
func TemplateInstance(path string) (instance string, skip bool) {
	base := filepath.Base(path)
	at := strings.IndexByte(base, '@')
	if at < 0 {
		return "", false
	}

	instance = strings.TrimSuffix(base[at+1:], ".conf")
	if instance == "" {
		return "", true
	}
	return instance, false
}

// ExpandTemplate replaces every occurrence of the placeholder token in
// line with the instance name.
func ExpandTemplate(line, instance string) string {
	if instance == "" || !strings.Contains(line, placeholder) {
		return line
	}
	return strings.ReplaceAll(line, placeholder, instance)
}
