package redis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// SplitCommand splits a command line into arguments. Single and double
// quotes group words; backslash escapes apply inside double quotes.
func SplitCommand(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		inArg   bool
		quote   rune
		escaped bool
	)

	for _, r := range strings.TrimSpace(line) {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case quote == '"' && r == '\\':
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inArg = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteRune(r)
			inArg = true
		}
	}

	if quote != 0 || escaped {
		return nil, errors.New("unterminated quote in command")
	}
	if inArg {
		args = append(args, current.String())
	}
	return args, nil
}

// NormalizeReply converts a RESP reply into JSON-friendly values. RESP3 maps
// with non-string keys get their keys formatted.
func NormalizeReply(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = NormalizeReply(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = NormalizeReply(item)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = item
		}
		return out
	case []redis.Z:
		out := make([]any, len(val))
		for i, z := range val {
			out[i] = map[string]any{"member": NormalizeReply(z.Member), "score": z.Score}
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case []byte:
		return string(val)
	case int:
		return int64(val)
	default:
		return v
	}
}
