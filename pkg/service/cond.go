package service

import "strings"

// Condition is the ordered list of condition tokens gating a service,
// plus whether the service is expected to handle SIGHUP. A leading
// '!' in the declaration marks a daemon that must be restarted
// instead of signalled on reload.
type Condition struct {
	Tokens   []string
	SighupOK bool
}

// ParseCondition parses the contents of a <...> condition block.
// Daemons are assumed to support SIGHUP unless the block starts
// with '!'.
func ParseCondition(s string) Condition {
	cond := Condition{SighupOK: true}

	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "!"); ok {
		cond.SighupOK = false
		s = rest
	}
	if s == "" {
		return cond
	}

	for _, tok := range strings.Split(s, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			cond.Tokens = append(cond.Tokens, tok)
		}
	}
	return cond
}

// Empty returns true if no condition tokens are present.
func (c Condition) Empty() bool {
	return len(c.Tokens) == 0
}

// Requires returns the names of services this condition depends on,
// i.e. the targets of pid/ and service/ tokens.
func (c Condition) Requires() []string {
	var names []string
	for _, tok := range c.Tokens {
		if name, ok := strings.CutPrefix(tok, "pid/"); ok {
			names = append(names, name)
		} else if name, ok := strings.CutPrefix(tok, "service/"); ok {
			names = append(names, name)
		}
	}
	return names
}

// String renders the condition in declaration syntax.
func (c Condition) String() string {
	var sb strings.Builder
	sb.WriteByte('<')
	if !c.SighupOK {
		sb.WriteByte('!')
	}
	sb.WriteString(strings.Join(c.Tokens, ","))
	sb.WriteByte('>')
	return sb.String()
}
