package reflection

import (
	"encoding"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

// ConvertString converts a raw string into a value of type t (pointers are unwrapped).
func ConvertString(value string, t reflect.Type) (any, error) {
	t = Indirect(t)
	if reflect.PointerTo(t).Implements(textUnmarshalerType) && t != timeType {
		ptr := reflect.New(t)
		if err := ptr.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(value)); err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", t, value, err)
		}
		return ptr.Elem().Interface(), nil
	}

	switch {
	case t == timeType:
		return ParseTime(value)
	case t.Kind() == reflect.String:
		return reflect.ValueOf(value).Convert(t).Interface(), nil
	case t.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid boolean value: %w", err)
		}
		return b, nil
	case IsNumericType(t.Kind()):
		v, err := ConvertToNumericType(value, t.Kind())
		if err != nil {
			return nil, err
		}
		return reflect.ValueOf(v).Convert(t).Interface(), nil
	}
	return value, nil
}

// ParseTime accepts the common textual timestamp layouts.
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time value %q", value)
}

// ConvertToNumericType converts a string value to the appropriate numeric type
func ConvertToNumericType(value string, kind reflect.Kind) (any, error) {
	value = strings.TrimSpace(value)

	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intVal, err := strconv.ParseInt(value, 10, bitSize(kind))
		if err != nil {
			return nil, fmt.Errorf("invalid integer value: %w", err)
		}
		return reflect.ValueOf(intVal).Convert(kindTypes[kind]).Interface(), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		uintVal, err := strconv.ParseUint(value, 10, bitSize(kind))
		if err != nil {
			return nil, fmt.Errorf("invalid unsigned integer value: %w", err)
		}
		return reflect.ValueOf(uintVal).Convert(kindTypes[kind]).Interface(), nil

	case reflect.Float32, reflect.Float64:
		floatVal, err := strconv.ParseFloat(value, bitSize(kind))
		if err != nil {
			return nil, fmt.Errorf("invalid float value: %w", err)
		}
		return reflect.ValueOf(floatVal).Convert(kindTypes[kind]).Interface(), nil
	}

	return nil, fmt.Errorf("unsupported numeric type: %v", kind)
}

var kindTypes = map[reflect.Kind]reflect.Type{
	reflect.Int:     reflect.TypeOf(int(0)),
	reflect.Int8:    reflect.TypeOf(int8(0)),
	reflect.Int16:   reflect.TypeOf(int16(0)),
	reflect.Int32:   reflect.TypeOf(int32(0)),
	reflect.Int64:   reflect.TypeOf(int64(0)),
	reflect.Uint:    reflect.TypeOf(uint(0)),
	reflect.Uint8:   reflect.TypeOf(uint8(0)),
	reflect.Uint16:  reflect.TypeOf(uint16(0)),
	reflect.Uint32:  reflect.TypeOf(uint32(0)),
	reflect.Uint64:  reflect.TypeOf(uint64(0)),
	reflect.Float32: reflect.TypeOf(float32(0)),
	reflect.Float64: reflect.TypeOf(float64(0)),
}

func bitSize(kind reflect.Kind) int {
	switch kind {
	case reflect.Int8, reflect.Uint8:
		return 8
	case reflect.Int16, reflect.Uint16:
		return 16
	case reflect.Int32, reflect.Uint32, reflect.Float32:
		return 32
	}
	return 64
}

// SetValue assigns value to dst, converting strings and numeric kinds where needed.
// A nil value stores the zero value.
func SetValue(dst reflect.Value, value any) error {
	if !dst.CanSet() {
		return fmt.Errorf("field of type %s is not settable", dst.Type())
	}
	if value == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	src := reflect.ValueOf(value)
	if src.Kind() == reflect.Ptr && dst.Kind() != reflect.Ptr {
		if src.IsNil() {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		src = src.Elem()
	}

	switch {
	case src.Type().AssignableTo(dst.Type()):
		dst.Set(src)
		return nil
	case dst.Kind() == reflect.Ptr:
		elem := reflect.New(dst.Type().Elem())
		if err := SetValue(elem.Elem(), src.Interface()); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	case src.Kind() == reflect.String:
		converted, err := ConvertString(src.String(), dst.Type())
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(converted).Convert(dst.Type()))
		return nil
	case src.Kind() == reflect.Slice && src.Type().Elem().Kind() == reflect.Uint8 && dst.Kind() == reflect.String:
		dst.SetString(string(src.Bytes()))
		return nil
	case dst.Kind() == reflect.String:
		dst.SetString(fmt.Sprint(src.Interface()))
		return nil
	case src.Type().ConvertibleTo(dst.Type()) && (IsNumericType(src.Kind()) || src.Kind() == dst.Kind()):
		dst.Set(src.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %s to %s", src.Type(), dst.Type())
}
