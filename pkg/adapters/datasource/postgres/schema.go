package postgres

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/querygate/pkg/models"
)

const columnsQuery = `
	SELECT c.table_schema, c.table_name, t.table_type, c.column_name, c.data_type
	FROM information_schema.columns c
	JOIN information_schema.tables t
	  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
	WHERE c.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
	ORDER BY c.table_schema, c.table_name, c.ordinal_position`

const primaryKeysQuery = `
	SELECT kcu.table_schema, kcu.table_name, kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
	  ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
	WHERE tc.constraint_type = 'PRIMARY KEY'`

const foreignKeysQuery = `
	SELECT ns.nspname, cl.relname, att.attname, fns.nspname, fcl.relname, fatt.attname
	FROM pg_constraint con
	JOIN pg_class cl ON cl.oid = con.conrelid
	JOIN pg_namespace ns ON ns.oid = cl.relnamespace
	JOIN pg_class fcl ON fcl.oid = con.confrelid
	JOIN pg_namespace fns ON fns.oid = fcl.relnamespace
	CROSS JOIN LATERAL unnest(con.conkey, con.confkey) AS k(col, fcol)
	JOIN pg_attribute att ON att.attrelid = con.conrelid AND att.attnum = k.col
	JOIN pg_attribute fatt ON fatt.attrelid = con.confrelid AND fatt.attnum = k.fcol
	WHERE con.contype = 'f'`

const indexesQuery = `
	SELECT schemaname, tablename, indexname
	FROM pg_indexes
	WHERE schemaname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
	ORDER BY schemaname, tablename, indexname`

// objectName omits the default schema so prompts stay short.
func objectName(schema, name string) string {
	if schema == "public" {
		return name
	}
	return schema + "." + name
}

// DiscoverSchema lists tables and views with their columns, then indexes.
func (a *Adapter) DiscoverSchema(ctx context.Context) ([]models.SchemaEntry, error) {
	pks, err := a.primaryKeys(ctx)
	if err != nil {
		return nil, err
	}
	fks, err := a.foreignKeys(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := a.pool.Query(ctx, columnsQuery)
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

func (a *Adapter) primaryKeys(ctx context.Context) (map[string]bool, error) {
	rows, err := a.pool.Query(ctx, primaryKeysQuery)
	if err != nil {
		return nil, fmt.Errorf("query primary keys: %w", err)
	}
	defer rows.Close()

	pks := map[string]bool{}
	for rows.Next() {
		var schema, table, column string
		if err := rows.Scan(&schema, &table, &column); err != nil {
			return nil, fmt.Errorf("scan primary key: %w", err)
		}
		pks[objectName(schema, table)+"."+column] = true
	}
	return pks, rows.Err()
}

// foreignKeys maps "table.column" to "ref_table.ref_column".
func (a *Adapter) foreignKeys(ctx context.Context) (map[string]string, error) {
	rows, err := a.pool.Query(ctx, foreignKeysQuery)
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
	rows, err := a.pool.Query(ctx, indexesQuery)
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
