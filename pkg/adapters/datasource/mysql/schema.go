package mysql

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/querygate/pkg/models"
)

const columnsQuery = `
	SELECT c.TABLE_NAME, t.TABLE_TYPE, c.COLUMN_NAME, c.COLUMN_TYPE, c.COLUMN_KEY
	FROM information_schema.COLUMNS c
	JOIN information_schema.TABLES t
	  ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
	WHERE c.TABLE_SCHEMA = DATABASE()
	ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`

const foreignKeysQuery = `
	SELECT TABLE_NAME, COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
	FROM information_schema.KEY_COLUMN_USAGE
	WHERE TABLE_SCHEMA = DATABASE() AND REFERENCED_TABLE_NAME IS NOT NULL`

const indexesQuery = `
	SELECT DISTINCT TABLE_NAME, INDEX_NAME
	FROM information_schema.STATISTICS
	WHERE TABLE_SCHEMA = DATABASE() AND INDEX_NAME <> 'PRIMARY'
	ORDER BY TABLE_NAME, INDEX_NAME`

// DiscoverSchema lists tables and views of the connected database, then indexes.
func (a *Adapter) DiscoverSchema(ctx context.Context) ([]models.SchemaEntry, error) {
	fks, err := a.foreignKeys(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := a.DB.QueryContext(ctx, columnsQuery)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var entries []models.SchemaEntry
	index := map[string]int{}
	for rows.Next() {
		var table, tableType, column, colType, colKey string
		if err := rows.Scan(&table, &tableType, &column, &colType, &colKey); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}

		i, ok := index[table]
		if !ok {
			kind := models.EntryTable
			if tableType == "VIEW" {
				kind = models.EntryView
			}
			entries = append(entries, models.SchemaEntry{Name: table, Kind: kind})
			i = len(entries) - 1
			index[table] = i
		}

		col := models.SchemaColumn{Name: column, Type: colType}
		if colKey == "PRI" {
			col.Extra = "PK"
		} else if ref, ok := fks[table+"."+column]; ok {
			col.Extra = "FK -> " + ref
		}
		entries[i].Columns = append(entries[i].Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	idx, err := a.indexes(ctx)
	if err != nil {
		return nil, err
	}
	return append(entries, idx...), nil
}

func (a *Adapter) foreignKeys(ctx context.Context) (map[string]string, error) {
	rows, err := a.DB.QueryContext(ctx, foreignKeysQuery)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	fks := map[string]string{}
	for rows.Next() {
		var table, column, refTable, refColumn string
		if err := rows.Scan(&table, &column, &refTable, &refColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		fks[table+"."+column] = refTable + "." + refColumn
	}
	return fks, rows.Err()
}

func (a *Adapter) indexes(ctx context.Context) ([]models.SchemaEntry, error) {
	rows, err := a.DB.QueryContext(ctx, indexesQuery)
	if err != nil {
		return nil, fmt.Errorf("query indexes: %w", err)
	}
	defer rows.Close()

	var entries []models.SchemaEntry
	for rows.Next() {
		var table, name string
		if err := rows.Scan(&table, &name); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		entries = append(entries, models.SchemaEntry{Name: name, Kind: models.EntryIndex, Parent: table})
	}
	return entries, rows.Err()
}
