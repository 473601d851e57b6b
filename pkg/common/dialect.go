package common

import (
	"fmt"
	"strings"
)

// Dialect carries the SQL differences between the supported drivers.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
	DialectMSSQL    Dialect = "mssql"
)

// NormalizeDialect maps driver names and aliases onto a Dialect.
func NormalizeDialect(name string) Dialect {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pgx", "pg":
		return DialectPostgres
	case "sqlite", "sqlite3":
		return DialectSQLite
	case "mssql", "sqlserver":
		return DialectMSSQL
	}
	return DialectPostgres
}

// DialectOf returns the dialect for a connection.
func DialectOf(db Database) Dialect {
	return NormalizeDialect(db.DriverName())
}

// QuoteIdent quotes a single identifier using ANSI double quotes.
func QuoteIdent(qualifier string) string {
	return `"` + strings.ReplaceAll(qualifier, `"`, `""`) + `"`
}

// QuoteLiteral quotes a string literal.
func QuoteLiteral(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

// QuoteIdent quotes a single identifier for the dialect.
func (d Dialect) QuoteIdent(name string) string {
	switch d {
	case DialectMSSQL:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	}
	return QuoteIdent(name)
}

// QuoteTable quotes a table reference, optionally schema-qualified.
func (d Dialect) QuoteTable(schema, table string) string {
	if schema == "" {
		return d.QuoteIdent(table)
	}
	if d == DialectSQLite {
		// sqlite has no schemas beyond attached databases; fold into the name.
		return d.QuoteIdent(schema + "_" + table)
	}
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(table)
}

// QuoteColumn quotes a column, qualified by table when one is given. table is
// a reference already quoted by QuoteTable.
func (d Dialect) QuoteColumn(table, column string) string {
	if table == "" {
		return d.QuoteIdent(column)
	}
	return table + "." + d.QuoteIdent(column)
}

// Paging renders the clause applying offset and limit. A negative limit means none.
// hasOrderBy tells MSSQL whether a placeholder ORDER BY is needed for OFFSET/FETCH.
func (d Dialect) Paging(offset, limit int, hasOrderBy bool) string {
	if offset <= 0 && limit < 0 {
		return ""
	}
	if offset < 0 {
		offset = 0
	}

	var sb strings.Builder
	switch d {
	case DialectMSSQL:
		if !hasOrderBy {
			sb.WriteString(" ORDER BY (SELECT NULL)")
		}
		fmt.Fprintf(&sb, " OFFSET %d ROWS", offset)
		if limit >= 0 {
			fmt.Fprintf(&sb, " FETCH NEXT %d ROWS ONLY", limit)
		}
	default:
		switch {
		case limit >= 0:
			fmt.Fprintf(&sb, " LIMIT %d", limit)
		case d == DialectSQLite:
			sb.WriteString(" LIMIT -1")
		}
		if offset > 0 {
			fmt.Fprintf(&sb, " OFFSET %d", offset)
		}
	}
	return sb.String()
}

// SupportsReturning reports whether INSERT ... RETURNING is available.
func (d Dialect) SupportsReturning() bool {
	return d == DialectPostgres || d == DialectSQLite
}

// InsertSQL renders an INSERT for the given columns. When returning is set the
// statement yields that column of the inserted row.
func (d Dialect) InsertSQL(table string, columns []string, returning string) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(table)
	if len(columns) == 0 {
		if returning != "" && d == DialectMSSQL {
			sb.WriteString(" OUTPUT INSERTED." + d.QuoteIdent(returning))
		}
		sb.WriteString(" DEFAULT VALUES")
		if returning != "" && d.SupportsReturning() {
			sb.WriteString(" RETURNING " + d.QuoteIdent(returning))
		}
		return sb.String()
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdent(c)
	}
	sb.WriteString(" (" + strings.Join(quoted, ", ") + ")")
	if returning != "" && d == DialectMSSQL {
		sb.WriteString(" OUTPUT INSERTED." + d.QuoteIdent(returning))
	}
	sb.WriteString(" VALUES (" + Placeholders(len(columns)) + ")")
	if returning != "" && d.SupportsReturning() {
		sb.WriteString(" RETURNING " + d.QuoteIdent(returning))
	}
	return sb.String()
}

// UpsertSQL renders an insert-or-update keyed on keyColumns. Arguments bind in
// column order.
func (d Dialect) UpsertSQL(table string, columns, keyColumns []string) (string, error) {
	if len(columns) == 0 || len(keyColumns) == 0 {
		return "", fmt.Errorf("upsert requires columns and key columns")
	}
	isKey := make(map[string]bool, len(keyColumns))
	for _, k := range keyColumns {
		isKey[strings.ToLower(k)] = true
	}
	var updates []string

	switch d {
	case DialectMSSQL:
		srcCols := make([]string, len(columns))
		names := make([]string, len(columns))
		values := make([]string, len(columns))
		for i, c := range columns {
			q := d.QuoteIdent(c)
			srcCols[i] = "? AS " + q
			names[i] = q
			values[i] = "source." + q
			if !isKey[strings.ToLower(c)] {
				updates = append(updates, "target."+q+" = source."+q)
			}
		}
		on := make([]string, len(keyColumns))
		for i, k := range keyColumns {
			q := d.QuoteIdent(k)
			on[i] = "target." + q + " = source." + q
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "MERGE INTO %s AS target USING (SELECT %s) AS source ON %s",
			table, strings.Join(srcCols, ", "), strings.Join(on, " AND "))
		if len(updates) > 0 {
			sb.WriteString(" WHEN MATCHED THEN UPDATE SET " + strings.Join(updates, ", "))
		}
		fmt.Fprintf(&sb, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);",
			strings.Join(names, ", "), strings.Join(values, ", "))
		return sb.String(), nil

	default:
		insert := d.InsertSQL(table, columns, "")
		keys := make([]string, len(keyColumns))
		for i, k := range keyColumns {
			keys[i] = d.QuoteIdent(k)
		}
		for _, c := range columns {
			if !isKey[strings.ToLower(c)] {
				q := d.QuoteIdent(c)
				updates = append(updates, q+" = EXCLUDED."+q)
			}
		}
		if len(updates) == 0 {
			return insert + " ON CONFLICT (" + strings.Join(keys, ", ") + ") DO NOTHING", nil
		}
		return insert + " ON CONFLICT (" + strings.Join(keys, ", ") + ") DO UPDATE SET " + strings.Join(updates, ", "), nil
	}
}

// Placeholders returns n comma separated ? placeholders.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
