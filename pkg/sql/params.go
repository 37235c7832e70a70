package sql

import (
	"fmt"
	"strconv"
	"strings"
)

// Placeholder styles for positional parameters.
type Placeholder int

const (
	PlaceholderDollar   Placeholder = iota // $1, $2 (PostgreSQL)
	PlaceholderQuestion                    // ?, ? (MySQL, SQLite)
	PlaceholderAtP                         // @p1, @p2 (SQL Server)
)

// PlaceholderFor returns the placeholder style used by engine.
func PlaceholderFor(engine string) Placeholder {
	switch engine {
	case "mysql", "sqlite":
		return PlaceholderQuestion
	case "mssql":
		return PlaceholderAtP
	default:
		return PlaceholderDollar
	}
}

// BindNamed rewrites :name placeholders into positional ones and returns the
// ordered argument list. Literals, comments and ::casts are left alone.
// Every placeholder must have a value in params.
func BindNamed(query string, params map[string]any, style Placeholder) (string, []any, error) {
	var (
		out      strings.Builder
		args     []any
		position = map[string]int{}
		last     int
		missing  []string
	)

	scanOutsideLiterals(query, func(i int) bool {
		if query[i] != ':' || i < last {
			return true
		}
		// ::type casts and a lone colon are not placeholders.
		if i+1 >= len(query) || query[i+1] == ':' || (i > 0 && query[i-1] == ':') {
			return true
		}
		end := i + 1
		for end < len(query) && isWordByte(query[end]) {
			end++
		}
		if end == i+1 || !(query[i+1] == '_' || query[i+1] >= 'a' && query[i+1] <= 'z' || query[i+1] >= 'A' && query[i+1] <= 'Z') {
			return true
		}

		name := query[i+1 : end]
		value, ok := params[name]
		if !ok {
			missing = append(missing, name)
			return true
		}

		out.WriteString(query[last:i])
		idx, seen := position[name]
		if !seen || style == PlaceholderQuestion {
			args = append(args, value)
			idx = len(args)
			position[name] = idx
		}
		switch style {
		case PlaceholderDollar:
			out.WriteString("$" + strconv.Itoa(idx))
		case PlaceholderAtP:
			out.WriteString("@p" + strconv.Itoa(idx))
		default:
			out.WriteString("?")
		}
		last = end
		return true
	})

	if len(missing) > 0 {
		return "", nil, fmt.Errorf("missing values for parameters: %s", strings.Join(missing, ", "))
	}
	out.WriteString(query[last:])
	return out.String(), args, nil
}
