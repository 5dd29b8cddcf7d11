// Package strings holds small helpers for normalizing enumerated wire values.
package strings

import "strings"

// Unique folds each value, drops blanks and keeps the first occurrence of
// every folded value. A nil fold only trims whitespace.
func Unique(values []string, fold func(string) string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if fold != nil {
			v = fold(v)
		}
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// UniqueUpper normalizes enum tokens such as purpose tags: " csrd_disclosure"
// and "CSRD_DISCLOSURE" collapse into one entry.
func UniqueUpper(values []string) []string {
	return Unique(values, strings.ToUpper)
}
