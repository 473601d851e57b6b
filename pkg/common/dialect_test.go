package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDialect(t *testing.T) {
	tests := map[string]Dialect{
		"pgx":        DialectPostgres,
		"PostgreSQL": DialectPostgres,
		"sqlite3":    DialectSQLite,
		"sqlserver":  DialectMSSQL,
		"mariadb":    DialectPostgres,
		"unknown":    DialectPostgres,
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeDialect(in), in)
	}
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, `"a""b"`, DialectPostgres.QuoteIdent(`a"b`))
	assert.Equal(t, "[a]]b]", DialectMSSQL.QuoteIdent("a]b"))

	assert.Equal(t, `"sales"."orders"`, DialectPostgres.QuoteTable("sales", "orders"))
	assert.Equal(t, `"sales_orders"`, DialectSQLite.QuoteTable("sales", "orders"))
	assert.Equal(t, `"orders"."id"`, DialectPostgres.QuoteColumn(`"orders"`, "id"))
	assert.Equal(t, `"id"`, DialectPostgres.QuoteColumn("", "id"))
}

func TestPaging(t *testing.T) {
	tests := []struct {
		name    string
		d       Dialect
		offset  int
		limit   int
		ordered bool
		want    string
	}{
		{"none", DialectPostgres, 0, -1, false, ""},
		{"limit", DialectPostgres, 0, 10, false, " LIMIT 10"},
		{"offset only pg", DialectPostgres, 5, -1, false, " OFFSET 5"},
		{"offset only sqlite", DialectSQLite, 5, -1, false, " LIMIT -1 OFFSET 5"},
		{"both", DialectSQLite, 20, 10, true, " LIMIT 10 OFFSET 20"},
		{"mssql unordered", DialectMSSQL, 0, 10, false, " ORDER BY (SELECT NULL) OFFSET 0 ROWS FETCH NEXT 10 ROWS ONLY"},
		{"mssql ordered", DialectMSSQL, 5, -1, true, " OFFSET 5 ROWS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.d.Paging(tt.offset, tt.limit, tt.ordered))
		})
	}
}

func TestInsertSQL(t *testing.T) {
	assert.Equal(t, `INSERT INTO "people" ("name", "age") VALUES (?, ?) RETURNING "id"`,
		DialectPostgres.InsertSQL(`"people"`, []string{"name", "age"}, "id"))
	assert.Equal(t, `INSERT INTO [people] ([name]) OUTPUT INSERTED.[id] VALUES (?)`,
		DialectMSSQL.InsertSQL("[people]", []string{"name"}, "id"))
	assert.Equal(t, `INSERT INTO "people" DEFAULT VALUES RETURNING "id"`,
		DialectSQLite.InsertSQL(`"people"`, nil, "id"))
}

func TestUpsertSQL(t *testing.T) {
	sql, err := DialectPostgres.UpsertSQL(`"tags"`, []string{"id", "label"}, []string{"id"})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "tags" ("id", "label") VALUES (?, ?) ON CONFLICT ("id") DO UPDATE SET "label" = EXCLUDED."label"`, sql)

	sql, err = DialectSQLite.UpsertSQL(`"tags"`, []string{"id"}, []string{"id"})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "tags" ("id") VALUES (?) ON CONFLICT ("id") DO NOTHING`, sql)

	sql, err = DialectMSSQL.UpsertSQL("[tags]", []string{"id", "label"}, []string{"id"})
	require.NoError(t, err)
	assert.Equal(t, "MERGE INTO [tags] AS target USING (SELECT ? AS [id], ? AS [label]) AS source ON target.[id] = source.[id]"+
		" WHEN MATCHED THEN UPDATE SET target.[label] = source.[label]"+
		" WHEN NOT MATCHED THEN INSERT ([id], [label]) VALUES (source.[id], source.[label]);", sql)

	_, err = DialectPostgres.UpsertSQL(`"tags"`, nil, []string{"id"})
	assert.Error(t, err)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", Placeholders(0))
	assert.Equal(t, "?", Placeholders(1))
	assert.Equal(t, "?, ?, ?", Placeholders(3))
}
