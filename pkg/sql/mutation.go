package sql

import (
	"strings"
)

// sqlMutationKeywords start statements that change data, schema or grants.
var sqlMutationKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true,
	"CREATE": true, "ALTER": true, "TRUNCATE": true, "REPLACE": true,
	"MERGE": true, "GRANT": true, "REVOKE": true, "UPSERT": true,
}

// redisWriteCommands are Redis commands that modify keys.
var redisWriteCommands = map[string]bool{
	"SET": true, "SETEX": true, "SETNX": true, "MSET": true, "APPEND": true,
	"DEL": true, "UNLINK": true, "RENAME": true, "EXPIRE": true, "PERSIST": true,
	"INCR": true, "INCRBY": true, "DECR": true, "DECRBY": true,
	"HSET": true, "HDEL": true, "HMSET": true, "HINCRBY": true,
	"LPUSH": true, "RPUSH": true, "LPOP": true, "RPOP": true, "LSET": true, "LREM": true,
	"SADD": true, "SREM": true, "SPOP": true,
	"ZADD": true, "ZREM": true, "ZINCRBY": true,
	"FLUSHDB": true, "FLUSHALL": true,
}

// IsMutation reports whether query would modify the target engine.
// MongoDB queries are find-only and never mutate.
func IsMutation(engine, query string) bool {
	switch engine {
	case "mongodb":
		return false
	case "redis":
		return redisWriteCommands[FirstKeyword(query)]
	default:
		kw := FirstKeyword(query)
		if kw == "WITH" {
			return cteHasMutation(query)
		}
		return sqlMutationKeywords[kw]
	}
}

// FirstKeyword returns the upper-cased first word of query, skipping
// leading comments and parentheses.
func FirstKeyword(query string) string {
	q := strings.TrimSpace(query)
	for {
		switch {
		case strings.HasPrefix(q, "--"):
			if nl := strings.IndexByte(q, '\n'); nl >= 0 {
				q = strings.TrimSpace(q[nl+1:])
				continue
			}
			return ""
		case strings.HasPrefix(q, "/*"):
			if end := strings.Index(q, "*/"); end >= 0 {
				q = strings.TrimSpace(q[end+2:])
				continue
			}
			return ""
		case strings.HasPrefix(q, "("):
			q = strings.TrimSpace(q[1:])
			continue
		}
		break
	}
	end := strings.IndexFunc(q, func(r rune) bool {
		return !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end < 0 {
		end = len(q)
	}
	return strings.ToUpper(q[:end])
}

// cteHasMutation catches data-modifying CTEs such as
// WITH d AS (DELETE FROM t RETURNING *) SELECT * FROM d.
func cteHasMutation(query string) bool {
	found := false
	scanOutsideLiterals(query, func(i int) bool {
		if i > 0 && isWordByte(query[i-1]) {
			return true
		}
		for kw := range sqlMutationKeywords {
			end := i + len(kw)
			// A following space separates the statement keyword from functions like replace(.
			if end < len(query) && strings.EqualFold(query[i:end], kw) && isSpaceByte(query[end]) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
