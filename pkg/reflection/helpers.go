package reflection

import "reflect"

// Indirect strips pointer levels from a type.
func Indirect(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// StructValue dereferences v until it reaches a struct, returning false if it cannot.
func StructValue(v any) (reflect.Value, bool) {
	val, ok := v.(reflect.Value)
	if !ok {
		val = reflect.ValueOf(v)
	}
	for val.Kind() == reflect.Ptr || val.Kind() == reflect.Interface {
		if val.IsNil() {
			return reflect.Value{}, false
		}
		val = val.Elem()
	}
	return val, val.Kind() == reflect.Struct
}

// IsNil reports whether v is nil or a nil pointer/interface/map/slice.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	val := reflect.ValueOf(v)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return val.IsNil()
	}
	return false
}

// IsZero reports whether v is nil or the zero value of its type.
func IsZero(v any) bool {
	if IsNil(v) {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}

// IsCollection reports whether v is a slice or array, excluding []byte.
func IsCollection(v any) bool {
	if v == nil {
		return false
	}
	val := reflect.Indirect(reflect.ValueOf(v))
	switch val.Kind() {
	case reflect.Slice:
		return val.Type().Elem().Kind() != reflect.Uint8
	case reflect.Array:
		return true
	}
	return false
}

// CollectionValues flattens a slice or array into []any.
func CollectionValues(v any) []any {
	val := reflect.Indirect(reflect.ValueOf(v))
	out := make([]any, 0, val.Len())
	for i := 0; i < val.Len(); i++ {
		out = append(out, val.Index(i).Interface())
	}
	return out
}

// Deref returns the value a non-nil pointer points to; nil pointers become nil.
func Deref(v any) any {
	val := reflect.ValueOf(v)
	for val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}
	if !val.IsValid() {
		return nil
	}
	return val.Interface()
}

// FieldValue reads the field at index from a struct value, stopping at nil embedded pointers.
func FieldValue(v reflect.Value, index []int) (reflect.Value, bool) {
	for i, x := range index {
		if i > 0 {
			if v.Kind() == reflect.Ptr {
				if v.IsNil() {
					return reflect.Value{}, false
				}
				v = v.Elem()
			}
		}
		v = v.Field(x)
	}
	return v, true
}

// FieldValueFor reads a field's value as an interface from a struct-ish value.
func FieldValueFor(obj any, f *FieldMetadata) (any, bool) {
	sv, ok := StructValue(obj)
	if !ok {
		return nil, false
	}
	fv, ok := FieldValue(sv, f.Index)
	if !ok {
		return nil, false
	}
	return fv.Interface(), true
}
