package reflection

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/jinzhu/inflection"
)

// TableNameProvider lets a model override the table name derived from its type.
type TableNameProvider interface {
	TableName() string
}

// SchemaProvider lets a model declare the schema its table lives in.
type SchemaProvider interface {
	SchemaName() string
}

// FieldMetadata describes one persisted (or request) field of a struct.
type FieldMetadata struct {
	Name          string // Go field name
	Column        string // physical column name
	Index         []int
	Type          reflect.Type
	Nullable      bool
	PrimaryKey    bool
	AutoIncrement bool
	AutoID        bool
	RowVersion    bool
	SoftDelete    bool
	ScanOnly      bool
	Default       string
	HasDefault    bool
	Tag           reflect.StructTag
}

// Kind returns the kind of the field with pointers removed.
func (f *FieldMetadata) Kind() reflect.Kind {
	return Indirect(f.Type).Kind()
}

// Writable reports whether the field may be used in INSERT/UPDATE column lists.
func (f *FieldMetadata) Writable() bool {
	return !f.ScanOnly
}

// ModelMetadata is the immutable description of a struct type.
type ModelMetadata struct {
	Type       reflect.Type
	Name       string
	Table      string
	Schema     string
	Alias      string
	Fields     []*FieldMetadata
	PrimaryKey *FieldMetadata
	RowVersion *FieldMetadata
	SoftDelete *FieldMetadata

	byName   map[string]*FieldMetadata
	byColumn map[string]*FieldMetadata
}

// Field finds a field by Go name or column name, case-insensitively.
func (m *ModelMetadata) Field(name string) (*FieldMetadata, bool) {
	key := strings.ToLower(name)
	if f, ok := m.byName[key]; ok {
		return f, true
	}
	f, ok := m.byColumn[key]
	return f, ok
}

// New allocates a pointer to a zero value of the model type.
func (m *ModelMetadata) New() reflect.Value {
	return reflect.New(m.Type)
}

var modelCache Cache[reflect.Type, *ModelMetadata]

// GetModelMetadata returns the cached metadata for the struct type of model.
// model may be a struct, a pointer to one, or a reflect.Type.
func GetModelMetadata(model any) (*ModelMetadata, error) {
	var typ reflect.Type
	switch m := model.(type) {
	case nil:
		return nil, fmt.Errorf("model is nil")
	case reflect.Type:
		typ = m
	default:
		typ = reflect.TypeOf(model)
	}
	typ = Indirect(typ)
	if typ.Kind() == reflect.Slice {
		typ = Indirect(typ.Elem())
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model must be a struct, got %s", typ.Kind())
	}

	return modelCache.GetOrAdd(typ, func() (*ModelMetadata, error) {
		return buildModelMetadata(typ), nil
	})
}

func buildModelMetadata(typ reflect.Type) *ModelMetadata {
	meta := &ModelMetadata{
		Type:     typ,
		Name:     typ.Name(),
		Table:    inflection.Plural(ToSnakeCase(typ.Name())),
		Alias:    ToSnakeCase(typ.Name()),
		byName:   make(map[string]*FieldMetadata),
		byColumn: make(map[string]*FieldMetadata),
	}

	collectFields(typ, nil, meta)

	zero := reflect.New(typ).Interface()
	if p, ok := zero.(TableNameProvider); ok && p.TableName() != "" {
		meta.Table = p.TableName()
	}
	if p, ok := zero.(SchemaProvider); ok {
		meta.Schema = p.SchemaName()
	}
	if schema, table, found := strings.Cut(meta.Table, "."); found {
		meta.Schema, meta.Table = schema, table
	}

	for _, f := range meta.Fields {
		if f.PrimaryKey && meta.PrimaryKey == nil {
			meta.PrimaryKey = f
		}
		if f.RowVersion && meta.RowVersion == nil {
			meta.RowVersion = f
		}
		if f.SoftDelete && meta.SoftDelete == nil {
			meta.SoftDelete = f
		}
	}
	if meta.PrimaryKey == nil {
		// Fall back to the conventional Id field.
		if f, ok := meta.byName["id"]; ok {
			f.PrimaryKey = true
			meta.PrimaryKey = f
		}
	}
	return meta
}

func collectFields(typ reflect.Type, parent []int, meta *ModelMetadata) {
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		index := append(append([]int{}, parent...), i)

		bunTag := sf.Tag.Get("bun")
		if sf.Anonymous {
			if sf.Type.Name() == "BaseModel" {
				applyTableTag(bunTag, meta)
				continue
			}
			if Indirect(sf.Type).Kind() == reflect.Struct && bunTag == "" {
				collectFields(Indirect(sf.Type), index, meta)
				continue
			}
		}
		if !sf.IsExported() || bunTag == "-" || isRelationTag(bunTag) {
			continue
		}

		f := &FieldMetadata{
			Name:   sf.Name,
			Column: ExtractColumnFromBunTag(bunTag),
			Index:  index,
			Type:   sf.Type,
			Tag:    sf.Tag,
		}
		if f.Column == "" {
			f.Column = ExtractColumnFromGormTag(sf.Tag.Get("gorm"))
		}
		if f.Column == "" {
			f.Column = ToSnakeCase(sf.Name)
		}
		f.Nullable = isNullableType(sf.Type)

		applyBunOptions(bunTag, f)
		applyGormOptions(sf.Tag.Get("gorm"), f)
		for _, opt := range TagFlags(sf.Tag.Get("autoquery")) {
			switch opt {
			case "autoid":
				f.AutoID = true
			case "rowversion":
				f.RowVersion = true
			case "softdelete":
				f.SoftDelete = true
				f.Nullable = true
			}
		}

		meta.Fields = append(meta.Fields, f)
		meta.byName[strings.ToLower(f.Name)] = f
		meta.byColumn[strings.ToLower(f.Column)] = f
	}
}

// TagFlags returns the lower-cased bare flags of an autoquery tag, i.e. the
// ';' or ',' separated entries that carry no "key:value".
func TagFlags(tag string) []string {
	var flags []string
	for _, part := range strings.FieldsFunc(tag, func(r rune) bool { return r == ';' || r == ',' }) {
		part = strings.TrimSpace(part)
		if part != "" && !strings.Contains(part, ":") {
			flags = append(flags, strings.ToLower(part))
		}
	}
	return flags
}

func applyTableTag(tag string, meta *ModelMetadata) {
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if table, ok := strings.CutPrefix(part, "table:"); ok {
			meta.Table = table
		} else if alias, ok := strings.CutPrefix(part, "alias:"); ok {
			meta.Alias = alias
		}
	}
}

func applyBunOptions(tag string, f *FieldMetadata) {
	parts := strings.Split(tag, ",")
	for _, part := range parts[min(1, len(parts)):] {
		part = strings.TrimSpace(part)
		switch {
		case part == "pk":
			f.PrimaryKey = true
		case part == "autoincrement":
			f.AutoIncrement = true
		case part == "nullzero":
			f.Nullable = true
		case part == "notnull":
			f.Nullable = false
		case part == "scanonly":
			f.ScanOnly = true
		case strings.HasPrefix(part, "default:"):
			f.HasDefault = true
			f.Default = strings.TrimPrefix(part, "default:")
		}
	}
}

func applyGormOptions(tag string, f *FieldMetadata) {
	for _, part := range strings.Split(tag, ";") {
		part = strings.TrimSpace(part)
		switch {
		case strings.EqualFold(part, "primaryKey"):
			f.PrimaryKey = true
		case strings.EqualFold(part, "autoIncrement"):
			f.AutoIncrement = true
		case strings.EqualFold(part, "not null"):
			f.Nullable = false
		case strings.HasPrefix(part, "->"):
			f.ScanOnly = true
		case strings.HasPrefix(strings.ToLower(part), "default:"):
			f.HasDefault = true
			f.Default = part[len("default:"):]
		}
	}
}

func isRelationTag(tag string) bool {
	lower := strings.ToLower(tag)
	return strings.Contains(lower, "rel:") || strings.Contains(lower, "m2m:") || strings.Contains(lower, "join:")
}

var valuerType = reflect.TypeOf((*driver.Valuer)(nil)).Elem()

func isNullableType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return true
	}
	return strings.HasPrefix(t.Name(), "Null") && t.Implements(valuerType)
}

// ExtractColumnFromGormTag extracts the column name from a gorm tag
// Example: "column:id;primaryKey" -> "id"
func ExtractColumnFromGormTag(tag string) string {
	for _, part := range strings.Split(tag, ";") {
		if colName, found := strings.CutPrefix(strings.TrimSpace(part), "column:"); found {
			return colName
		}
	}
	return ""
}

// ExtractColumnFromBunTag extracts the column name from a bun tag
// Example: "id,pk" -> "id"
// Example: ",pk" -> ""
func ExtractColumnFromBunTag(tag string) string {
	lower := strings.ToLower(tag)
	if strings.HasPrefix(lower, "table:") || strings.HasPrefix(lower, "rel:") || strings.HasPrefix(lower, "join:") {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	return strings.TrimSpace(name)
}

// ToSnakeCase converts a string from CamelCase to snake_case.
// Runs of capitals are kept together: "PersonID" -> "person_id".
func ToSnakeCase(s string) string {
	runes := []rune(s)
	var result strings.Builder
	for i, r := range runes {
		if i > 0 && isUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && !isUpper(runes[i+1]) && runes[i+1] != '_'
			if prev != '_' && (!isUpper(prev) || nextLower) {
				result.WriteRune('_')
			}
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}

func isUpper(r rune) bool {
	return r >= 'A' && r <= 'Z'
}

// IsNumericType checks if a reflect.Kind is a numeric type
func IsNumericType(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

var timeType = reflect.TypeOf(time.Time{})

// IsTimeType reports whether t is time.Time or a pointer to it.
func IsTimeType(t reflect.Type) bool {
	return Indirect(t) == timeType
}

// ModelCacheLen is the number of model types described so far.
func ModelCacheLen() int {
	return modelCache.Len()
}
