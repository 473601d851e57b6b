package crud

import (
	"context"
	"reflect"
	"strings"

	"github.com/bitechdev/autoquery/pkg/autoquery"
	"github.com/bitechdev/autoquery/pkg/common"
	"github.com/bitechdev/autoquery/pkg/reflection"
)

func (e *Executor) execute(ctx context.Context, db common.Database, x *Execution) error {
	var err error
	switch {
	case x.Operation == OpCreate:
		err = e.insert(ctx, db, x)
	case x.Operation == OpSave && x.ID != nil:
		err = e.upsert(ctx, db, x)
	case x.Operation == OpSave:
		err = e.insert(ctx, db, x)
	case x.Operation == OpUpdate, x.Operation == OpPatch, x.SoftDelete:
		err = e.update(ctx, db, x)
	case x.Operation == OpDelete:
		err = e.delete(ctx, db, x)
	}
	if err != nil {
		return err
	}
	return x.advance(StateExecuted)
}

func (e *Executor) insert(ctx context.Context, db common.Database, x *Execution) error {
	meta := x.Metadata
	d := common.DialectOf(db)
	table := d.QuoteTable(meta.Model.Schema, meta.Model.Table)

	pk := meta.Model.PrimaryKey
	returning := ""
	if pk != nil && x.ID == nil {
		returning = pk.Column
	}
	sql := d.InsertSQL(table, x.Columns, returning)

	if returning != "" && (d.SupportsReturning() || d == common.DialectMSSQL) {
		var rows []map[string]interface{}
		if err := e.engine.Query(ctx, db, string(x.Operation), meta, &rows, sql, x.args()); err != nil {
			return err
		}
		x.RowsAffected = int64(len(rows))
		if len(rows) > 0 {
			x.ID = keyValue(pk, rowValue(rows[0], returning))
		}
		return nil
	}

	res, err := e.engine.Exec(ctx, db, string(x.Operation), meta, sql, x.args())
	if err != nil {
		return err
	}
	x.RowsAffected = res.RowsAffected()
	if returning != "" {
		if id, err := res.LastInsertId(); err == nil && id != 0 {
			x.ID = keyValue(pk, id)
		}
	}
	return nil
}

func (e *Executor) upsert(ctx context.Context, db common.Database, x *Execution) error {
	meta := x.Metadata
	d := common.DialectOf(db)
	table := d.QuoteTable(meta.Model.Schema, meta.Model.Table)

	sql, err := d.UpsertSQL(table, x.Columns, []string{meta.Model.PrimaryKey.Column})
	if err != nil {
		return err
	}
	res, err := e.engine.Exec(ctx, db, string(x.Operation), meta, sql, x.args())
	if err != nil {
		return err
	}
	x.RowsAffected = res.RowsAffected()
	return nil
}

// update writes the dirty values to the row matching the key, the auto
// filters and, when sent, the row version. Anything but exactly one row
// affected is a concurrency failure.
func (e *Executor) update(ctx context.Context, db common.Database, x *Execution) error {
	meta := x.Metadata
	model := meta.Model
	d := common.DialectOf(db)

	var sets []string
	for _, c := range x.Columns {
		sets = append(sets, d.QuoteIdent(c)+" = ?")
	}
	if rv := model.RowVersion; rv != nil {
		col := d.QuoteIdent(rv.Column)
		sets = append(sets, col+" = "+col+" + 1")
	}
	if len(sets) == 0 {
		return autoquery.NewValidationError(meta.Name, autoquery.ErrInvalidValue, "nothing to update")
	}
	args := x.args()

	where := []string{d.QuoteIdent(model.PrimaryKey.Column) + " = ?"}
	args = append(args, x.ID)
	filters, fargs, err := e.autoFilters(ctx, d, meta)
	if err != nil {
		return err
	}
	where = append(where, filters...)
	args = append(args, fargs...)
	if x.RowVersion != 0 && model.RowVersion != nil {
		where = append(where, d.QuoteIdent(model.RowVersion.Column)+" = ?")
		args = append(args, x.RowVersion)
	}

	sql := "UPDATE " + d.QuoteTable(model.Schema, model.Table) +
		" SET " + strings.Join(sets, ", ") +
		" WHERE " + strings.Join(where, " AND ")
	res, err := e.engine.Exec(ctx, db, string(x.Operation), meta, sql, args)
	if err != nil {
		return err
	}
	x.RowsAffected = res.RowsAffected()
	if x.RowsAffected != 1 {
		e.metrics.RecordConcurrencyConflict(model.Table)
		return &autoquery.ConcurrencyError{Table: model.Table, ID: x.ID, RowsAffected: x.RowsAffected}
	}
	return nil
}

// delete removes the rows matching the request's non-empty values and the
// auto filters. A request without values is refused.
func (e *Executor) delete(ctx context.Context, db common.Database, x *Execution) error {
	meta := x.Metadata
	model := meta.Model
	d := common.DialectOf(db)

	if len(x.filterColumns) == 0 {
		return autoquery.NewValidationError(meta.Name, autoquery.ErrUnsafeDelete, "no filter values in request")
	}

	var where []string
	var args []interface{}
	for _, c := range x.filterColumns {
		cond, err := autoquery.BuildCondition(autoquery.TermAnd, d.QuoteIdent(c), x.Filters[c], nil)
		if err != nil {
			return err
		}
		if cond != nil {
			where = append(where, cond.SQL)
			args = append(args, cond.Args...)
		}
	}
	if len(where) == 0 {
		return autoquery.NewValidationError(meta.Name, autoquery.ErrUnsafeDelete, "no filter values in request")
	}
	filters, fargs, err := e.autoFilters(ctx, d, meta)
	if err != nil {
		return err
	}
	where = append(where, filters...)
	args = append(args, fargs...)

	sql := "DELETE FROM " + d.QuoteTable(model.Schema, model.Table) + " WHERE " + strings.Join(where, " AND ")
	res, err := e.engine.Exec(ctx, db, string(x.Operation), meta, sql, args)
	if err != nil {
		return err
	}
	x.RowsAffected = res.RowsAffected()
	return nil
}

func (e *Executor) autoFilters(ctx context.Context, d common.Dialect, meta *autoquery.RequestMetadata) ([]string, []interface{}, error) {
	var where []string
	var args []interface{}
	for _, rule := range meta.AutoFilters {
		value, err := e.engine.EvalValue(ctx, rule.Value, rule.Eval)
		if err != nil {
			return nil, nil, err
		}
		cond, err := autoquery.BuildCondition(autoquery.TermEnsure, d.QuoteIdent(rule.Field.Column), value, rule.Template)
		if err != nil {
			return nil, nil, err
		}
		if cond != nil {
			where = append(where, cond.SQL)
			args = append(args, cond.Args...)
		}
	}
	return where, args, nil
}

// reread selects the row with the execution's key into dest.
func (e *Executor) reread(ctx context.Context, db common.Database, x *Execution, dest interface{}) error {
	meta := x.Metadata
	model := meta.Model
	d := common.DialectOf(db)
	sql := "SELECT * FROM " + d.QuoteTable(model.Schema, model.Table) +
		" WHERE " + d.QuoteIdent(model.PrimaryKey.Column) + " = ?"
	return e.engine.Query(ctx, db, "reread", meta, dest, sql, []interface{}{x.ID})
}

func rowValue(row map[string]interface{}, column string) interface{} {
	if v, ok := row[column]; ok {
		return v
	}
	for k, v := range row {
		if strings.EqualFold(k, column) {
			return v
		}
	}
	return nil
}

// keyValue converts a driver value to the key field's type where possible.
func keyValue(pk *reflection.FieldMetadata, v interface{}) interface{} {
	if v == nil {
		return nil
	}
	dst := reflection.Indirect(pk.Type)
	out := reflect.New(dst).Elem()
	if err := reflection.SetValue(out, v); err != nil {
		return v
	}
	return out.Interface()
}
