// Package sql provides statement validation, mutation detection and
// named-parameter binding for the SQL engines querygate talks to.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates the query contains more than one statement.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
	// ErrEmptyQuery indicates nothing is left after normalization.
	ErrEmptyQuery = errors.New("query is empty")
)

// Normalize trims whitespace and one trailing semicolon, then rejects
// any remaining statement separator outside literals and comments.
func Normalize(query string) (string, error) {
	query = strings.TrimSpace(query)
	query = strings.TrimSpace(strings.TrimSuffix(query, ";"))
	if query == "" {
		return "", ErrEmptyQuery
	}

	multiple := false
	scanOutsideLiterals(query, func(i int) bool {
		if query[i] == ';' {
			multiple = true
			return false
		}
		return true
	})
	if multiple {
		return "", ErrMultipleStatements
	}
	return query, nil
}

// scanOutsideLiterals calls visit for every byte index that is not inside a
// quoted literal, quoted identifier or comment. visit returns false to stop.
func scanOutsideLiterals(query string, visit func(i int) bool) {
	n := len(query)
	for i := 0; i < n; i++ {
		c := query[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			// Doubled quotes re-enter the literal on the next iteration.
			for i++; i < n && query[i] != c; i++ {
				if query[i] == '\\' && c == '\'' {
					i++
				}
			}
		case c == '-' && i+1 < n && query[i+1] == '-':
			for i < n && query[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && query[i+1] == '*':
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				return
			}
			i += end + 3
		default:
			if !visit(i) {
				return
			}
		}
	}
}
