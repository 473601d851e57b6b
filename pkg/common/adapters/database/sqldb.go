package database

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/bitechdev/autoquery/pkg/common"
	"github.com/bitechdev/autoquery/pkg/logger"
	"github.com/bitechdev/autoquery/pkg/reflection"
)

// SQLAdapter adapts a plain *sql.DB to the Database interface without an ORM.
// ? placeholders are rebound to the driver's native style.
type SQLAdapter struct {
	db      *sql.DB
	dialect common.Dialect
}

// NewSQLAdapter creates a database/sql adapter for the given dialect
func NewSQLAdapter(db *sql.DB, dialect common.Dialect) *SQLAdapter {
	return &SQLAdapter{db: db, dialect: dialect}
}

func (p *SQLAdapter) Exec(ctx context.Context, query string, args ...interface{}) (res common.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = logger.HandlePanic("SQLAdapter.Exec", r)
		}
	}()
	result, err := p.db.ExecContext(ctx, Rebind(p.dialect, query), args...)
	if err != nil {
		return nil, err
	}
	return &SQLResult{result: result}, nil
}

func (p *SQLAdapter) Query(ctx context.Context, dest interface{}, query string, args ...interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = logger.HandlePanic("SQLAdapter.Query", r)
		}
	}()
	rows, err := p.db.QueryContext(ctx, Rebind(p.dialect, query), args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	return scanRows(rows, dest)
}

func (p *SQLAdapter) BeginTx(ctx context.Context) (common.Database, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &SQLTxAdapter{tx: tx, dialect: p.dialect}, nil
}

func (p *SQLAdapter) CommitTx(ctx context.Context) error {
	return errNoTransaction
}

func (p *SQLAdapter) RollbackTx(ctx context.Context) error {
	return errNoTransaction
}

func (p *SQLAdapter) RunInTransaction(ctx context.Context, fn func(common.Database) error) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			err = logger.HandlePanic("SQLAdapter.RunInTransaction", r)
		} else if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	return fn(&SQLTxAdapter{tx: tx, dialect: p.dialect})
}

func (p *SQLAdapter) GetUnderlyingDB() interface{} {
	return p.db
}

func (p *SQLAdapter) DriverName() string {
	return string(p.dialect)
}

// Close closes the underlying *sql.DB
func (p *SQLAdapter) Close() error {
	return p.db.Close()
}

// SQLResult implements Result for database/sql
type SQLResult struct {
	result sql.Result
}

func (p *SQLResult) RowsAffected() int64 {
	if p.result == nil {
		return 0
	}
	rows, _ := p.result.RowsAffected()
	return rows
}

func (p *SQLResult) LastInsertId() (int64, error) {
	if p.result == nil {
		return 0, nil
	}
	return p.result.LastInsertId()
}

// SQLTxAdapter wraps a database/sql transaction
type SQLTxAdapter struct {
	tx      *sql.Tx
	dialect common.Dialect
}

func (p *SQLTxAdapter) Exec(ctx context.Context, query string, args ...interface{}) (common.Result, error) {
	result, err := p.tx.ExecContext(ctx, Rebind(p.dialect, query), args...)
	if err != nil {
		return nil, err
	}
	return &SQLResult{result: result}, nil
}

func (p *SQLTxAdapter) Query(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	rows, err := p.tx.QueryContext(ctx, Rebind(p.dialect, query), args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	return scanRows(rows, dest)
}

func (p *SQLTxAdapter) BeginTx(ctx context.Context) (common.Database, error) {
	return nil, fmt.Errorf("nested transactions not supported")
}

func (p *SQLTxAdapter) CommitTx(ctx context.Context) error {
	return p.tx.Commit()
}

func (p *SQLTxAdapter) RollbackTx(ctx context.Context) error {
	return p.tx.Rollback()
}

func (p *SQLTxAdapter) RunInTransaction(ctx context.Context, fn func(common.Database) error) error {
	return fn(p)
}

func (p *SQLTxAdapter) GetUnderlyingDB() interface{} {
	return p.tx
}

func (p *SQLTxAdapter) DriverName() string {
	return string(p.dialect)
}

// Rebind rewrites ? placeholders outside quoted strings into $n for postgres
// and @pn for mssql. Other dialects keep ?.
func Rebind(d common.Dialect, query string) string {
	var prefix string
	switch d {
	case common.DialectPostgres:
		prefix = "$"
	case common.DialectMSSQL:
		prefix = "@p"
	default:
		return query
	}

	var sb strings.Builder
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			sb.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			sb.WriteString(prefix + strconv.Itoa(n))
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// scanRows scans database rows into the destination using reflection
func scanRows(rows *sql.Rows, dest interface{}) error {
	columns, err := rows.Columns()
	if err != nil {
		return err
	}

	destValue := reflect.ValueOf(dest)
	if destValue.Kind() != reflect.Ptr {
		return fmt.Errorf("dest must be a pointer")
	}
	destValue = destValue.Elem()

	if destValue.Type() == reflect.TypeOf([]map[string]interface{}{}) {
		return scanRowsToMapSlice(rows, columns, destValue)
	}
	if destValue.Kind() == reflect.Slice && reflection.Indirect(destValue.Type().Elem()).Kind() == reflect.Struct {
		return scanRowsToStructSlice(rows, columns, destValue)
	}
	if destValue.Kind() == reflect.Struct && !reflection.IsTimeType(destValue.Type()) {
		return scanRowsToSingleStruct(rows, columns, destValue)
	}

	// Anything else is a single scalar from the first column.
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	return rows.Scan(dest)
}

func scanRowsToMapSlice(rows *sql.Rows, columns []string, destValue reflect.Value) error {
	results := make([]map[string]interface{}, 0)

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	destValue.Set(reflect.ValueOf(results))
	return rows.Err()
}

func scanRowsToStructSlice(rows *sql.Rows, columns []string, destValue reflect.Value) error {
	elemType := destValue.Type().Elem()
	isPtr := elemType.Kind() == reflect.Ptr
	if isPtr {
		elemType = elemType.Elem()
	}

	fieldMap, err := buildFieldMap(elemType)
	if err != nil {
		return err
	}

	for rows.Next() {
		elemValue := reflect.New(elemType).Elem()
		if err := rows.Scan(scanTargets(elemValue, columns, fieldMap)...); err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		if isPtr {
			destValue.Set(reflect.Append(destValue, elemValue.Addr()))
		} else {
			destValue.Set(reflect.Append(destValue, elemValue))
		}
	}

	return rows.Err()
}

func scanRowsToSingleStruct(rows *sql.Rows, columns []string, destValue reflect.Value) error {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}

	fieldMap, err := buildFieldMap(destValue.Type())
	if err != nil {
		return err
	}
	if err := rows.Scan(scanTargets(destValue, columns, fieldMap)...); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	return rows.Err()
}

func scanTargets(elem reflect.Value, columns []string, fieldMap map[string][]int) []interface{} {
	targets := make([]interface{}, len(columns))
	for i, col := range columns {
		if index, ok := fieldMap[strings.ToLower(col)]; ok {
			field := elem.FieldByIndex(index)
			if field.CanSet() {
				targets[i] = field.Addr().Interface()
				continue
			}
		}
		var dummy interface{}
		targets[i] = &dummy
	}
	return targets
}

// buildFieldMap maps lower-cased column and field names onto field indexes
func buildFieldMap(structType reflect.Type) (map[string][]int, error) {
	meta, err := reflection.GetModelMetadata(structType)
	if err != nil {
		return nil, err
	}
	fieldMap := make(map[string][]int, len(meta.Fields)*2)
	for _, f := range meta.Fields {
		fieldMap[strings.ToLower(f.Name)] = f.Index
		fieldMap[strings.ToLower(f.Column)] = f.Index
	}
	return fieldMap, nil
}
