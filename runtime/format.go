package runtime

import (
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// FormatMessage replaces {{path}} placeholders with resolved variable values.
// Unresolvable placeholders render as empty strings.
func (e *Execution) FormatMessage(template string) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		path := placeholderRe.FindStringSubmatch(m)[1]
		v, _ := e.Resolve(path)
		return v.String()
	})
}

// Placeholders lists the variable paths referenced by a message template.
func Placeholders(template string) []string {
	matches := placeholderRe.FindAllStringSubmatch(template, -1)
	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		paths = append(paths, m[1])
	}
	return paths
}
