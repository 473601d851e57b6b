package crud

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/uuid"

	"github.com/bitechdev/autoquery/pkg/autoquery"
	"github.com/bitechdev/autoquery/pkg/reflection"
)

var uuidType = reflect.TypeOf(uuid.UUID{})

// resolveValues copies the request, applies Populate and Defaults to the copy
// and collects the dirty values the operation writes.
func (e *Executor) resolveValues(ctx context.Context, x *Execution, req any) error {
	meta := x.Metadata
	dto := reflect.New(meta.RequestType).Elem()
	if sv, ok := reflection.StructValue(req); ok {
		dto.Set(sv)
	}

	for _, rule := range meta.Populate {
		if err := e.assign(ctx, dto, rule, false); err != nil {
			return err
		}
	}
	for _, rule := range meta.Defaults {
		if err := e.assign(ctx, dto, rule, true); err != nil {
			return err
		}
	}
	x.Request = dto.Addr().Interface()

	if err := e.resolveKey(ctx, x, dto); err != nil {
		return err
	}
	if meta.RowVersion != nil {
		if fv, ok := reflection.FieldValue(dto, meta.RowVersion.Field.Index); ok && !fv.IsZero() {
			rv, err := toInt64(fv.Interface())
			if err != nil {
				return autoquery.NewValidationError(meta.RowVersion.Name(), autoquery.ErrInvalidValue, "%v", err)
			}
			x.RowVersion = rv
		}
	}

	model := meta.Model
	if x.Operation == OpDelete && model.SoftDelete != nil {
		x.SoftDelete = true
		now, err := e.engine.EvalValue(ctx, nil, "utcnow")
		if err != nil {
			return err
		}
		x.set(model.SoftDelete.Column, now)
		return x.advance(StateValuesResolved)
	}

	for _, prop := range meta.Properties {
		if !prop.Persisted || prop.Ignore || prop.Target.Field == model.PrimaryKey {
			continue
		}
		fv, ok := reflection.FieldValue(dto, prop.Field.Index)
		if !ok {
			continue
		}
		f := prop.Target.Field
		zero := fv.IsZero()

		switch x.Operation {
		case OpCreate, OpSave:
			if zero && f.AutoID {
				x.set(f.Column, newAutoID(f))
				continue
			}
			if zero && f.HasDefault {
				continue
			}
		case OpUpdate:
			if zero && prop.UpdateStyle == autoquery.UpdateNonDefaults {
				continue
			}
		case OpPatch:
			if zero && prop.UpdateStyle != autoquery.UpdateAlways {
				continue
			}
		case OpDelete:
			if !zero {
				x.filter(f.Column, fv.Interface())
			}
			continue
		}
		x.set(f.Column, fv.Interface())
	}

	if x.Operation == OpCreate && model.RowVersion != nil {
		x.set(model.RowVersion.Column, 1)
	}
	if x.Operation == OpPatch && meta.Reset != nil {
		if err := resetValues(x, dto); err != nil {
			return err
		}
	}
	return x.advance(StateValuesResolved)
}

func (e *Executor) assign(ctx context.Context, dto reflect.Value, rule *autoquery.ValueRuleMetadata, onlyZero bool) error {
	fv, ok := reflection.FieldValue(dto, rule.Property.Index)
	if !ok || (onlyZero && !fv.IsZero()) {
		return nil
	}
	value, err := e.engine.EvalValue(ctx, rule.Value, rule.Eval)
	if err != nil {
		return fmt.Errorf("%s: %w", rule.Property.Name, err)
	}
	if err := reflection.SetValue(fv, value); err != nil {
		return autoquery.NewValidationError(rule.Property.Name, autoquery.ErrInvalidValue, "%v", err)
	}
	return nil
}

// resolveKey reads the primary key and, on create, supplies one when the
// database will not: the replayed id, or a new UUID for autoid keys.
func (e *Executor) resolveKey(ctx context.Context, x *Execution, dto reflect.Value) error {
	meta := x.Metadata
	pk := meta.Model.PrimaryKey
	if meta.PrimaryKey != nil {
		if v, ok := reflection.FieldValueFor(dto, meta.PrimaryKey.Field); ok && !reflection.IsZero(v) {
			x.ID = v
		}
	}

	switch x.Operation {
	case OpCreate, OpSave:
		if x.ID == nil && pk != nil {
			if id, ok := ReplayID(ctx); ok {
				v, err := reflection.ConvertString(id, pk.Type)
				if err != nil {
					return autoquery.NewValidationError(pk.Name, autoquery.ErrInvalidValue, "replay id: %v", err)
				}
				x.ID = v
			} else if pk.AutoID {
				x.ID = newAutoID(pk)
			}
		}
		if x.ID != nil {
			x.set(pk.Column, x.ID)
			if meta.PrimaryKey != nil {
				if fv, ok := reflection.FieldValue(dto, meta.PrimaryKey.Field.Index); ok && fv.IsZero() {
					_ = reflection.SetValue(fv, x.ID)
				}
			}
		} else if x.Operation == OpCreate && pk != nil && !pk.AutoIncrement {
			return autoquery.NewValidationError(pk.Name, autoquery.ErrPrimaryKeyRequired, "%s has no generated key", meta.Model.Name)
		}
	case OpUpdate, OpPatch:
		if x.ID == nil {
			return autoquery.NewValidationError(keyName(meta), autoquery.ErrPrimaryKeyRequired, "%s requires the primary key", x.Operation)
		}
	case OpDelete:
		if meta.Model.SoftDelete != nil && x.ID == nil {
			return autoquery.NewValidationError(keyName(meta), autoquery.ErrPrimaryKeyRequired, "soft delete requires the primary key")
		}
		if x.ID != nil {
			x.filter(pk.Column, x.ID)
		}
	}
	return nil
}

// resetValues sets each field named by the request's Reset list to its empty
// value: NULL for nullable columns, the zero value otherwise.
func resetValues(x *Execution, dto reflect.Value) error {
	meta := x.Metadata
	fv, ok := reflection.FieldValue(dto, meta.Reset.Index)
	if !ok {
		return nil
	}
	names, _ := fv.Interface().([]string)
	for _, name := range names {
		f, ok := meta.Model.Field(name)
		if !ok {
			return autoquery.NewValidationError(name, autoquery.ErrInvalidValue, "unknown reset field")
		}
		if meta.ResetDenied(f.Name) || f == meta.Model.PrimaryKey || f == meta.Model.RowVersion {
			return autoquery.NewValidationError(name, autoquery.ErrResetDenied, "%s may not be reset", f.Name)
		}
		if f.Nullable {
			x.set(f.Column, nil)
		} else {
			x.set(f.Column, reflect.Zero(f.Type).Interface())
		}
	}
	return nil
}

func newAutoID(f *reflection.FieldMetadata) any {
	if reflection.Indirect(f.Type) == uuidType {
		return uuid.New()
	}
	return uuid.NewString()
}

func keyName(meta *autoquery.RequestMetadata) string {
	if meta.Model.PrimaryKey != nil {
		return meta.Model.PrimaryKey.Name
	}
	return meta.Name
}

func toInt64(v any) (int64, error) {
	rv := reflect.ValueOf(reflection.Deref(v))
	switch {
	case rv.CanInt():
		return rv.Int(), nil
	case rv.CanUint():
		return int64(rv.Uint()), nil
	}
	return 0, fmt.Errorf("row version must be an integer, got %T", v)
}
