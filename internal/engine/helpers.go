package engine

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

// directiveGap matches a directive terminator followed by spacing.
var directiveGap = regexp.MustCompile(`;[\n ]+`)

// formatDirective renders one "name value;" line. Strings are single-quoted
// and booleans become on/off.
func formatDirective(name string, value any) string {
	switch v := value.(type) {
	case string:
		return fmt.Sprintf("%s '%s';", name, v)
	case bool:
		return fmt.Sprintf("%s %s;", name, onOff(v))
	default:
		return fmt.Sprintf("%s %v;", name, v)
	}
}

// lookupDirective renders option from set, or "" when absent or nil.
func lookupDirective(set map[string]any, option, directive string) string {
	value, ok := set[option]
	if !ok || value == nil {
		return ""
	}
	return formatDirective(directive, value)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// indentInclude normalizes an included block so it can be spliced into a
// parent template at the current column. The first line is left unindented
// because the parent already supplies its position.
func indentInclude(text string, indent int, fix bool) string {
	if fix {
		text = directiveGap.ReplaceAllString(text, ";\n")
	}
	pad := strings.Repeat(" ", indent)
	var b strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		b.WriteString(pad)
		b.WriteString(line)
	}
	return strings.TrimLeft(b.String(), " ")
}

// reindent strips leading blank lines and trailing whitespace, removes the
// common indentation and then indents every line by level spaces.
func reindent(text string, level int) string {
	lines := strings.Split(strings.TrimRight(text, " \t\r\n"), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}

	common := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, " \t"))
		if common < 0 || n < common {
			common = n
		}
	}
	if common < 0 {
		common = 0
	}

	pad := strings.Repeat(" ", level)
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = pad
			continue
		}
		lines[i] = pad + line[common:]
	}
	return strings.Join(lines, "\n")
}

// serializeStrset packs items into a single NUL-joined base64 token.
func serializeStrset(items ...string) string {
	return base64.StdEncoding.EncodeToString([]byte(strings.Join(items, "\x00")))
}
