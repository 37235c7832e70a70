package datasource

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// NormalizeValue converts driver values into JSON-friendly types:
// times become RFC3339 strings, byte slices become text and UUIDs become
// their canonical string. Integer and float kinds are preserved.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UTC().Format(time.RFC3339)
	case []byte:
		if utf8.Valid(val) {
			return string(val)
		}
		return "\\x" + hex.EncodeToString(val)
	case uuid.UUID:
		return val.String()
	case [16]byte:
		return uuid.UUID(val).String()
	case float32:
		return float64(val)
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		if val > 1<<63-1 {
			return strconv.FormatUint(val, 10)
		}
		return int64(val)
	case *big.Int:
		if val.IsInt64() {
			return val.Int64()
		}
		return val.String()
	case time.Duration:
		return val.String()
	case fmt.Stringer:
		return val.String()
	default:
		return v
	}
}

// ConvertTextValue parses a textual driver value according to the column's
// database type name, as reported by sql.ColumnType.DatabaseTypeName.
func ConvertTextValue(dbType string, raw []byte) any {
	s := string(raw)
	switch t := strings.ToUpper(dbType); {
	case isIntegerType(t):
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case isDecimalType(t):
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case t == "BIT" || t == "BOOL" || t == "BOOLEAN":
		if len(raw) == 1 && (raw[0] == 0 || raw[0] == 1) {
			return raw[0] == 1
		}
	}
	return NormalizeValue(raw)
}

func isIntegerType(t string) bool {
	t = strings.TrimPrefix(t, "UNSIGNED ")
	switch t {
	case "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "MEDIUMINT", "YEAR", "INT2", "INT4", "INT8":
		return true
	}
	return false
}

func isDecimalType(t string) bool {
	switch t {
	case "DECIMAL", "NUMERIC", "FLOAT", "DOUBLE", "REAL", "MONEY", "SMALLMONEY", "NUMBER":
		return true
	}
	return false
}
