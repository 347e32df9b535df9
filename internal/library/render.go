package library

import (
	"regexp"
	"strings"
)

var (
	placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)
	dateTimeRe    = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})(?:[T ](\d{2})[:-](\d{2})(?:[:-](\d{2}))?)?$`)
)

// Placeholders returns the {{name}} markers in sql, in order of first appearance.
func Placeholders(sql string) []string {
	seen := map[string]bool{}
	names := []string{}
	for _, m := range placeholderRe.FindAllStringSubmatch(sql, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Render substitutes values into sql. Markers without a value are left in
// place and reported in unresolved.
func Render(sql string, values map[string]string) (string, []string) {
	unresolved := []string{}
	seen := map[string]bool{}
	out := placeholderRe.ReplaceAllStringFunc(sql, func(marker string) string {
		name := placeholderRe.FindStringSubmatch(marker)[1]
		v, ok := values[name]
		if !ok {
			if !seen[name] {
				seen[name] = true
				unresolved = append(unresolved, name)
			}
			return marker
		}
		return NormalizeDateTime(v)
	})
	return out, unresolved
}

// NormalizeDateTime rewrites picker-style datetimes to "YYYY-MM-DD HH:MM:SS".
// Anything that is not a date or datetime comes back unchanged.
func NormalizeDateTime(value string) string {
	v := strings.TrimSpace(value)
	m := dateTimeRe.FindStringSubmatch(v)
	if m == nil {
		return value
	}
	if m[2] == "" {
		return m[1]
	}
	sec := m[4]
	if sec == "" {
		sec = "00"
	}
	return m[1] + " " + m[2] + ":" + m[3] + ":" + sec
}
