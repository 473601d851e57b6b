package crud

import (
	"context"

	"github.com/bitechdev/autoquery/pkg/common"
)

// Create inserts the request's values as a new row.
func Create[T any](ctx context.Context, e *Executor, req any) (*Response[T], error) {
	return mutate[T](ctx, e, nil, OpCreate, req)
}

// Update writes every persisted field of the request to the row with its key.
func Update[T any](ctx context.Context, e *Executor, req any) (*Response[T], error) {
	return mutate[T](ctx, e, nil, OpUpdate, req)
}

// Patch writes only the fields the request sets, plus any it asks to reset.
func Patch[T any](ctx context.Context, e *Executor, req any) (*Response[T], error) {
	return mutate[T](ctx, e, nil, OpPatch, req)
}

// Delete removes the matching rows, or stamps the soft delete column of a
// model that has one.
func Delete[T any](ctx context.Context, e *Executor, req any) (*Response[T], error) {
	return mutate[T](ctx, e, nil, OpDelete, req)
}

// Save inserts or updates the row with the request's key.
func Save[T any](ctx context.Context, e *Executor, req any) (*Response[T], error) {
	return mutate[T](ctx, e, nil, OpSave, req)
}

// CreateWith is Create on a connection owned by the caller. When db is a
// transaction the row, and its event, commit or roll back with it.
func CreateWith[T any](ctx context.Context, e *Executor, db common.Database, req any) (*Response[T], error) {
	return mutate[T](ctx, e, db, OpCreate, req)
}

// UpdateWith is Update on a connection owned by the caller.
func UpdateWith[T any](ctx context.Context, e *Executor, db common.Database, req any) (*Response[T], error) {
	return mutate[T](ctx, e, db, OpUpdate, req)
}

// PatchWith is Patch on a connection owned by the caller.
func PatchWith[T any](ctx context.Context, e *Executor, db common.Database, req any) (*Response[T], error) {
	return mutate[T](ctx, e, db, OpPatch, req)
}

// DeleteWith is Delete on a connection owned by the caller.
func DeleteWith[T any](ctx context.Context, e *Executor, db common.Database, req any) (*Response[T], error) {
	return mutate[T](ctx, e, db, OpDelete, req)
}

// SaveWith is Save on a connection owned by the caller.
func SaveWith[T any](ctx context.Context, e *Executor, db common.Database, req any) (*Response[T], error) {
	return mutate[T](ctx, e, db, OpSave, req)
}

func mutate[T any](ctx context.Context, e *Executor, db common.Database, op Operation, req any) (*Response[T], error) {
	var result *T
	after := func(ctx context.Context, db common.Database, x *Execution) error {
		if !x.Metadata.Rules.ReturnResult || x.ID == nil || x.Metadata.Model.PrimaryKey == nil ||
			(op == OpDelete && !x.SoftDelete) {
			return nil
		}
		rows := make([]T, 0, 1)
		if err := e.reread(ctx, db, x, &rows); err != nil {
			return err
		}
		if len(rows) > 0 {
			result = &rows[0]
		}
		return nil
	}

	x, err := e.run(ctx, db, op, req, after)
	if err != nil {
		return nil, err
	}
	return shape(x, result)
}

func shape[T any](x *Execution, result *T) (*Response[T], error) {
	resp := &Response[T]{ID: x.ID, Count: x.RowsAffected, Result: result}
	switch {
	case x.Operation == OpCreate && x.Metadata.Model.RowVersion != nil:
		resp.RowVersion = 1
	case x.RowVersion != 0 && x.RowsAffected == 1:
		resp.RowVersion = x.RowVersion + 1
	}
	if err := x.advance(StateResponseShaped); err != nil {
		return nil, err
	}
	return resp, nil
}
