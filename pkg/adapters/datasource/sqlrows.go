package datasource

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ekaya-inc/querygate/pkg/models"
	sqlutil "github.com/ekaya-inc/querygate/pkg/sql"
)

// rowReturningKeywords start statements that produce a result set.
var rowReturningKeywords = map[string]bool{
	"SELECT": true, "WITH": true, "SHOW": true, "DESCRIBE": true, "DESC": true,
	"EXPLAIN": true, "PRAGMA": true, "VALUES": true, "TABLE": true,
}

// ReturnsRows reports whether query is expected to produce a result set.
func ReturnsRows(query string) bool {
	return rowReturningKeywords[sqlutil.FirstKeyword(query)]
}

// ValueConverter lets an engine override conversion for a column type.
// It returns false to fall back to the shared conversion.
type ValueConverter func(dbType string, v any) (any, bool)

// QuerySQL runs query on a database/sql pool and shapes the outcome as
// tabular rows or an acknowledgement.
func QuerySQL(ctx context.Context, db *sql.DB, query string, args []any, maxRows int, convert ValueConverter) (*models.ResultEnvelope, error) {
	if !ReturnsRows(query) {
		res, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			affected = 0
		}
		return models.NewAck(models.AckMessage, affected), nil
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return ScanSQLRows(rows, maxRows, convert)
}

// ScanSQLRows reads at most maxRows rows (all when maxRows <= 0).
func ScanSQLRows(rows *sql.Rows, maxRows int, convert ValueConverter) (*models.ResultEnvelope, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	if len(colTypes) == 0 {
		return models.NewAck(models.AckMessage, 0), nil
	}

	columns := make([]string, len(colTypes))
	for i, ct := range colTypes {
		columns[i] = ct.Name()
	}

	result := make([]map[string]any, 0)
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if maxRows > 0 && len(result) >= maxRows {
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = convertSQLValue(colTypes[i].DatabaseTypeName(), values[i], convert)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return models.NewTabular(columns, result), nil
}

func convertSQLValue(dbType string, v any, convert ValueConverter) any {
	if convert != nil {
		if out, ok := convert(dbType, v); ok {
			return out
		}
	}
	if raw, ok := v.([]byte); ok {
		return ConvertTextValue(dbType, raw)
	}
	return NormalizeValue(v)
}
