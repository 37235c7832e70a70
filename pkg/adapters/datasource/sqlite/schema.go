package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ekaya-inc/querygate/pkg/models"
)

type masterRow struct {
	typ, name, table string
}

// DiscoverSchema reads sqlite_master and the table_info/foreign_key_list pragmas.
func (a *Adapter) DiscoverSchema(ctx context.Context) ([]models.SchemaEntry, error) {
	rows, err := a.DB.QueryContext(ctx, `
		SELECT type, name, tbl_name FROM sqlite_master
		WHERE type IN ('table', 'view', 'index') AND name NOT LIKE 'sqlite_%'
		ORDER BY CASE type WHEN 'table' THEN 0 WHEN 'view' THEN 1 ELSE 2 END, name`)
	if err != nil {
		return nil, fmt.Errorf("query sqlite_master: %w", err)
	}
	var objects []masterRow
	for rows.Next() {
		var o masterRow
		if err := rows.Scan(&o.typ, &o.name, &o.table); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan sqlite_master: %w", err)
		}
		objects = append(objects, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sqlite_master: %w", err)
	}

	entries := make([]models.SchemaEntry, 0, len(objects))
	for _, o := range objects {
		switch o.typ {
		case "index":
			entries = append(entries, models.SchemaEntry{Name: o.name, Kind: models.EntryIndex, Parent: o.table})
		default:
			kind := models.EntryTable
			if o.typ == "view" {
				kind = models.EntryView
			}
			cols, err := a.columns(ctx, o.name)
			if err != nil {
				return nil, err
			}
			entries = append(entries, models.SchemaEntry{Name: o.name, Kind: kind, Columns: cols})
		}
	}
	return entries, nil
}

func (a *Adapter) columns(ctx context.Context, table string) ([]models.SchemaColumn, error) {
	fks, err := a.foreignKeys(ctx, table)
	if err != nil {
		return nil, err
	}

	rows, err := a.DB.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []models.SchemaColumn
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table_info %s: %w", table, err)
		}
		col := models.SchemaColumn{Name: name, Type: typ}
		if pk > 0 {
			col.Extra = "PK"
		} else if ref, ok := fks[name]; ok {
			col.Extra = "FK -> " + ref
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func (a *Adapter) foreignKeys(ctx context.Context, table string) (map[string]string, error) {
	rows, err := a.DB.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("foreign_key_list %s: %w", table, err)
	}
	defer rows.Close()

	fks := map[string]string{}
	for rows.Next() {
		var (
			id, seq                         int
			refTable, from                  string
			to                              sql.NullString
			onUpdate, onDelete, matchClause string
		)
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &matchClause); err != nil {
			return nil, fmt.Errorf("scan foreign_key_list %s: %w", table, err)
		}
		fks[from] = refTable + "." + to.String
	}
	return fks, rows.Err()
}
