// Package template turns input records into concrete argv slices.
//
// A template is the command prefix given on the command line plus an
// optional capture-group regex. Substitution tokens ({}, {0}, {1}…,
// {name}) are expanded by exact string replacement inside each argv
// element, so a token may sit adjacent to any other characters
// (url={u}, {"k":"{v}"}). Tokens with no binding are left literal.
package template

import (
	"regexp"
	"strconv"
	"strings"
)

// Template is the user's command prefix and substitution policy.
// A nil Regex selects auto-numbered substitution (argument mode) or
// whole-line substitution (input-stream mode).
type Template struct {
	Prefix []string
	Regex  *regexp.Regexp
}

// HasPrefix reports whether the user supplied any command words.
func (t *Template) HasPrefix() bool { return len(t.Prefix) > 0 }

// Render produces the argv for one record.
//
// fields holds the tuple of an argument-mode record, or exactly one
// element (the raw line) for an input-stream record. line is the
// space-joined tuple or the raw line, and is what the regex matches
// against.
//
// ok is false when a configured regex did not match; the record is to
// be dropped by the caller.
//
// When the prefix contains no substitution token and no regex is
// configured, the record's fields are appended as extra arguments;
// splitAppend additionally splits each appended field on whitespace
// (line-separated input), while NUL-separated input keeps each field
// as exactly one argv element.
func (t *Template) Render(fields []string, line string, splitAppend bool) (argv []string, ok bool) {
	pairs, ok := t.replacements(fields, line)
	if !ok {
		return nil, false
	}

	argv, changed := applyReplacements(t.Prefix, pairs)
	if changed || t.Regex != nil {
		return argv, true
	}

	// No token anywhere: fall back to appending the input.
	for _, f := range fields {
		if splitAppend {
			argv = append(argv, strings.Fields(f)...)
		} else {
			argv = append(argv, f)
		}
	}
	return argv, true
}

// replacements builds the token→value pairs for one record, in the
// layout strings.NewReplacer expects.
func (t *Template) replacements(fields []string, line string) ([]string, bool) {
	if t.Regex != nil {
		return t.regexReplacements(line)
	}

	pairs := make([]string, 0, 2*(len(fields)+2))
	for i, f := range fields {
		pairs = append(pairs, "{"+strconv.Itoa(i+1)+"}", f)
	}
	pairs = append(pairs, "{0}", line, "{}", line)
	return pairs, true
}

// regexReplacements matches the configured regex against line and
// binds {0}/{} to the whole line, {i} to numbered groups, and {name}
// to named groups. A non-match reports ok=false.
func (t *Template) regexReplacements(line string) ([]string, bool) {
	m := t.Regex.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	names := t.Regex.SubexpNames()
	pairs := make([]string, 0, 2*(len(m)+1))
	for i := 1; i < len(m); i++ {
		pairs = append(pairs, "{"+strconv.Itoa(i)+"}", m[i])
		if names[i] != "" {
			pairs = append(pairs, "{"+names[i]+"}", m[i])
		}
	}
	pairs = append(pairs, "{0}", line, "{}", line)
	return pairs, true
}

// applyReplacements substitutes every pair into every argument and
// reports whether anything changed.
func applyReplacements(args []string, pairs []string) ([]string, bool) {
	if len(args) == 0 {
		return nil, false
	}
	r := strings.NewReplacer(pairs...)
	out := make([]string, len(args))
	changed := false
	for i, a := range args {
		out[i] = r.Replace(a)
		if out[i] != a {
			changed = true
		}
	}
	return out, changed
}

// SplitCommand breaks a raw input line into argv words. Used when no
// command prefix is given and the line itself is the command.
func SplitCommand(line string) []string {
	return strings.Fields(line)
}

// ShellJoin renders argv as the single -c argument handed to the
// shell. The original words are joined with spaces verbatim so shell
// syntax inside them ($(…), ;, &&) keeps its meaning.
func ShellJoin(args []string) string {
	return strings.Join(args, " ")
}
