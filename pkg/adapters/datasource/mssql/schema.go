package mssql

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/querygate/pkg/models"
)

const columnsQuery = `
	SELECT c.TABLE_SCHEMA, c.TABLE_NAME, t.TABLE_TYPE, c.COLUMN_NAME, c.DATA_TYPE
	FROM INFORMATION_SCHEMA.COLUMNS c
	JOIN INFORMATION_SCHEMA.TABLES t
	  ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
	ORDER BY c.TABLE_SCHEMA, c.TABLE_NAME, c.ORDINAL_POSITION`

const primaryKeysQuery = `
	SELECT kcu.TABLE_SCHEMA, kcu.TABLE_NAME, kcu.COLUMN_NAME
	FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
	JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
	  ON kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME AND kcu.TABLE_SCHEMA = tc.TABLE_SCHEMA
	WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'`

const foreignKeysQuery = `
	SELECT
	    SCHEMA_NAME(pt.schema_id), pt.name,
	    COL_NAME(fkc.parent_object_id, fkc.parent_column_id),
	    SCHEMA_NAME(rt.schema_id), rt.name,
	    COL_NAME(fkc.referenced_object_id, fkc.referenced_column_id)
	FROM sys.foreign_key_columns fkc
	JOIN sys.tables pt ON pt.object_id = fkc.parent_object_id
	JOIN sys.tables rt ON rt.object_id = fkc.referenced_object_id`

const indexesQuery = `
	SELECT SCHEMA_NAME(t.schema_id), t.name, i.name
	FROM sys.indexes i
	JOIN sys.tables t ON t.object_id = i.object_id
	WHERE i.is_primary_key = 0 AND i.name IS NOT NULL AND t.is_ms_shipped = 0
	ORDER BY t.name, i.name`

// objectName omits the default dbo schema.
func objectName(schema, name string) string {
	if schema == "dbo" {
		return name
	}
	return schema + "." + name
}

// DiscoverSchema lists tables and views with their columns, then indexes.
func (a *Adapter) DiscoverSchema(ctx context.Context) ([]models.SchemaEntry, error) {
	pks, err := a.keyPairs(ctx, primaryKeysQuery)
	if err != nil {
		return nil, fmt.Errorf("query primary keys: %w", err)
	}
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
		var schema, table, tableType, column, dataType string
		if err := rows.Scan(&schema, &table, &tableType, &column, &dataType); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}

		name := objectName(schema, table)
		i, ok := index[name]
		if !ok {
			kind := models.EntryTable
			if tableType == "VIEW" {
				kind = models.EntryView
			}
			entries = append(entries, models.SchemaEntry{Name: name, Kind: kind})
			i = len(entries) - 1
			index[name] = i
		}

		col := models.SchemaColumn{Name: column, Type: dataType}
		key := name + "." + column
		if pks[key] {
			col.Extra = "PK"
		} else if ref, ok := fks[key]; ok {
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

func (a *Adapter) keyPairs(ctx context.Context, query string) (map[string]bool, error) {
	rows, err := a.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var schema, table, column string
		if err := rows.Scan(&schema, &table, &column); err != nil {
			return nil, err
		}
		out[objectName(schema, table)+"."+column] = true
	}
	return out, rows.Err()
}

func (a *Adapter) foreignKeys(ctx context.Context) (map[string]string, error) {
	rows, err := a.DB.QueryContext(ctx, foreignKeysQuery)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer rows.Close()

	fks := map[string]string{}
	for rows.Next() {
		var schema, table, column, refSchema, refTable, refColumn string
		if err := rows.Scan(&schema, &table, &column, &refSchema, &refTable, &refColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		fks[objectName(schema, table)+"."+column] = objectName(refSchema, refTable) + "." + refColumn
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
		var schema, table, name string
		if err := rows.Scan(&schema, &table, &name); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		entries = append(entries, models.SchemaEntry{
			Name:   objectName(schema, name),
			Kind:   models.EntryIndex,
			Parent: objectName(schema, table),
		})
	}
	return entries, rows.Err()
}
