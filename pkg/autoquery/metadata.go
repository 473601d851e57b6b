package autoquery

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/bitechdev/autoquery/pkg/logger"
	"github.com/bitechdev/autoquery/pkg/metrics"
	"github.com/bitechdev/autoquery/pkg/reflection"
)

// UpdateStyle controls whether a patch writes a field holding its zero value.
type UpdateStyle int

const (
	// UpdateDefault follows the operation: updates write it, patches skip it.
	UpdateDefault UpdateStyle = iota
	// UpdateNonDefaults skips zero values on every operation.
	UpdateNonDefaults
	// UpdateAlways writes the field even when it is zero.
	UpdateAlways
)

// PropertyMetadata is a request field and what it resolves to.
type PropertyMetadata struct {
	Field *reflection.FieldMetadata
	// Target is nil when the field maps to no model field.
	Target *MatchedField
	// Template is declared on the field or implied by a naming convention.
	Template    *Template
	Term        Term
	UpdateStyle UpdateStyle
	Ignore      bool
	// Persisted fields are written by mutations.
	Persisted bool
}

// Name is the request field name.
func (p *PropertyMetadata) Name() string { return p.Field.Name }

// FilterRule is a resolved AutoFilter.
type FilterRule struct {
	Field    *reflection.FieldMetadata
	Template *Template
	Value    any
	Eval     string
}

// ValueRuleMetadata is a resolved Populate or Defaults entry.
type ValueRuleMetadata struct {
	Property *reflection.FieldMetadata
	Value    any
	Eval     string
}

// JoinMetadata joins Model onto the chain on Left.LeftField = Right.RightField.
type JoinMetadata struct {
	Model      *reflection.ModelMetadata
	Type       JoinType
	Left       *reflection.ModelMetadata
	LeftField  *reflection.FieldMetadata
	Right      *reflection.ModelMetadata
	RightField *reflection.FieldMetadata
}

// RequestMetadata is everything derived from a request type and its rules.
// It is built once and never changes afterwards.
type RequestMetadata struct {
	Name        string
	RequestType reflect.Type
	Request     *reflection.ModelMetadata
	Model       *reflection.ModelMetadata
	Rules       Rules
	DefaultTerm Term

	Properties []*PropertyMetadata
	PrimaryKey *PropertyMetadata
	RowVersion *PropertyMetadata
	Reset      *reflection.FieldMetadata

	AutoFilters []*FilterRule
	Populate    []*ValueRuleMetadata
	Defaults    []*ValueRuleMetadata
	Joins       []*JoinMetadata
	// Aliases maps lower-cased request names onto model field names.
	Aliases map[string]string
	// DenyReset holds lower-cased model field names.
	DenyReset map[string]bool

	models []*reflection.ModelMetadata
}

// Models returns the primary model followed by the joined ones.
func (m *RequestMetadata) Models() []*reflection.ModelMetadata { return m.models }

// Property finds a request property by name, case-insensitively.
func (m *RequestMetadata) Property(name string) (*PropertyMetadata, bool) {
	for _, p := range m.Properties {
		if strings.EqualFold(p.Field.Name, name) {
			return p, true
		}
	}
	return nil, false
}

// ResetDenied reports whether the model field may not be reset.
func (m *RequestMetadata) ResetDenied(field string) bool {
	return m.DenyReset[strings.ToLower(field)]
}

// Register binds a request type to its model and rules, resolving the
// metadata immediately so mistakes surface at startup.
func (e *Engine) Register(req, model any, rules Rules) (*RequestMetadata, error) {
	typ := requestType(req)
	if typ == nil {
		return nil, configErrorf(fmt.Sprint(req), "request must be a struct")
	}
	meta, err := e.buildMetadata(typ, model, rules)
	if err != nil {
		return nil, err
	}
	stored, err := e.requests.GetOrAdd(typ, func() (*RequestMetadata, error) { return meta, nil })
	if err != nil {
		return nil, err
	}
	if stored != meta {
		return nil, configErrorf(typ.Name(), "request type is already registered")
	}
	e.opts.Metrics.UpdateCacheSize(metrics.CacheRequestMetadata, int64(e.requests.Len()))
	logger.Info("Registered request %s for table %s (%d properties, %d auto filters)",
		meta.Name, meta.Model.Table, len(meta.Properties), len(meta.AutoFilters))
	return meta, nil
}

// MustRegister is Register for package-level setup; it panics on error.
func (e *Engine) MustRegister(req, model any, rules Rules) *RequestMetadata {
	meta, err := e.Register(req, model, rules)
	if err != nil {
		panic(err)
	}
	return meta
}

// Resolve returns the metadata of req's type. A type that was never
// registered resolves through ModelProvider and RulesProvider on first use.
func (e *Engine) Resolve(req any) (*RequestMetadata, error) {
	typ := requestType(req)
	if typ == nil {
		return nil, configErrorf(fmt.Sprint(req), "request must be a struct")
	}
	if meta, ok := e.requests.Load(typ); ok {
		e.opts.Metrics.RecordCacheHit(metrics.CacheRequestMetadata)
		return meta, nil
	}
	e.opts.Metrics.RecordCacheMiss(metrics.CacheRequestMetadata)

	zero := reflect.New(typ).Interface()
	mp, ok := zero.(ModelProvider)
	if !ok {
		return nil, configErrorf(typ.Name(), "no model registered for request")
	}
	var rules Rules
	if rp, ok := zero.(RulesProvider); ok {
		rules = rp.AutoQueryRules()
	}
	meta, err := e.requests.GetOrAdd(typ, func() (*RequestMetadata, error) {
		return e.buildMetadata(typ, mp.AutoQueryModel(), rules)
	})
	if err != nil {
		return nil, err
	}
	e.opts.Metrics.UpdateCacheSize(metrics.CacheRequestMetadata, int64(e.requests.Len()))
	return meta, nil
}

func requestType(req any) reflect.Type {
	var typ reflect.Type
	switch r := req.(type) {
	case nil:
		return nil
	case reflect.Type:
		typ = r
	default:
		typ = reflect.TypeOf(req)
	}
	typ = reflection.Indirect(typ)
	if typ.Kind() != reflect.Struct {
		return nil
	}
	return typ
}

func (e *Engine) buildMetadata(typ reflect.Type, model any, rules Rules) (*RequestMetadata, error) {
	name := typ.Name()
	if model == nil {
		return nil, configErrorf(name, "model is nil")
	}
	modelMeta, err := reflection.GetModelMetadata(model)
	if err != nil {
		return nil, configErrorf(name, "%v", err)
	}
	e.opts.Metrics.UpdateCacheSize(metrics.CacheModelMetadata, int64(reflection.ModelCacheLen()))
	reqMeta, err := reflection.GetModelMetadata(typ)
	if err != nil {
		return nil, configErrorf(name, "%v", err)
	}

	meta := &RequestMetadata{
		Name:        name,
		RequestType: typ,
		Request:     reqMeta,
		Model:       modelMeta,
		Rules:       rules,
		DefaultTerm: rules.DefaultTerm,
		Aliases:     make(map[string]string),
		DenyReset:   make(map[string]bool),
		models:      []*reflection.ModelMetadata{modelMeta},
	}
	if meta.DefaultTerm != TermOr {
		meta.DefaultTerm = TermAnd
	}

	if err := e.resolveJoins(meta); err != nil {
		return nil, err
	}

	for from, to := range rules.Map {
		if _, ok := e.matcher.lookup(to, meta.models); !ok {
			return nil, configErrorf(name, "map target %q is not a field of %s", to, modelMeta.Name)
		}
		meta.Aliases[strings.ToLower(from)] = to
	}

	_, isQuery := reflect.New(typ).Interface().(Query)
	for _, f := range reqMeta.Fields {
		if isQuery && isBaseProperty(f.Name) {
			continue
		}
		if f.Name == ResetProperty && f.Type == reflect.TypeOf([]string(nil)) {
			meta.Reset = f
			continue
		}
		prop, err := e.resolveProperty(meta, f)
		if err != nil {
			return nil, err
		}
		meta.Properties = append(meta.Properties, prop)
	}

	if meta.RowVersion != nil {
		if modelMeta.RowVersion == nil {
			return nil, configErrorf(name, "request declares a row version but %s has none", modelMeta.Name)
		}
		if modelMeta.PrimaryKey == nil {
			return nil, configErrorf(name, "row version on %s requires a primary key", modelMeta.Name)
		}
	}

	for _, af := range rules.AutoFilters {
		f, ok := modelMeta.Field(af.Field)
		if !ok {
			return nil, configErrorf(name, "auto filter field %q is not a field of %s", af.Field, modelMeta.Name)
		}
		rule := &FilterRule{Field: f, Value: af.Value, Eval: af.Eval}
		if af.Template != "" {
			rule.Template = NewTemplate(af.Template).WithValueFormat(af.ValueFormat)
		}
		meta.AutoFilters = append(meta.AutoFilters, rule)
	}

	if meta.Populate, err = resolveValueRules(meta, "populate", rules.Populate); err != nil {
		return nil, err
	}
	if meta.Defaults, err = resolveValueRules(meta, "default", rules.Defaults); err != nil {
		return nil, err
	}

	for _, field := range rules.DenyReset {
		target, ok := modelMeta.Field(field)
		if !ok {
			if p, found := meta.Property(field); found && p.Persisted {
				target, ok = p.Target.Field, true
			}
		}
		if !ok {
			return nil, configErrorf(name, "deny reset field %q is not a field of %s", field, modelMeta.Name)
		}
		meta.DenyReset[strings.ToLower(target.Name)] = true
	}

	for _, filter := range e.opts.MetadataFilters {
		filter(meta)
	}
	return meta, nil
}

func (e *Engine) resolveProperty(meta *RequestMetadata, f *reflection.FieldMetadata) (*PropertyMetadata, error) {
	tag, err := parseFieldTag(f.Tag.Get("autoquery"))
	if err != nil {
		return nil, configErrorf(meta.Name, "field %s: %v", f.Name, err)
	}
	prop := &PropertyMetadata{Field: f, Term: tag.term, UpdateStyle: tag.update, Ignore: tag.ignore}
	if prop.Ignore {
		return prop, nil
	}

	switch {
	case tag.field != "":
		mf, ok := e.matcher.lookup(tag.field, meta.models)
		if !ok {
			return nil, configErrorf(meta.Name, "field %s maps to unknown field %q", f.Name, tag.field)
		}
		prop.Target = mf
	default:
		if to, ok := meta.Aliases[strings.ToLower(f.Name)]; ok {
			prop.Target, _ = e.matcher.lookup(to, meta.models)
		} else if mf, ok := e.matcher.Match(f.Name, meta.models, nil); ok {
			prop.Target = mf
		}
	}

	if prop.Target != nil {
		prop.Template = prop.Target.Template
	}
	if tag.template != "" {
		prop.Template = NewTemplate(tag.template)
	}
	if prop.Template != nil && tag.format != "" {
		prop.Template = prop.Template.WithValueFormat(tag.format)
	}

	target := prop.Target
	onModel := target != nil && target.Model == meta.Model
	if tag.rowVersion || (onModel && prop.Template == nil && target.Field == meta.Model.RowVersion) {
		meta.RowVersion = prop
		return prop, nil
	}
	prop.Persisted = onModel && prop.Template == nil && target.Field.Writable()
	if prop.Persisted && target.Field == meta.Model.PrimaryKey && meta.PrimaryKey == nil {
		meta.PrimaryKey = prop
	}
	return prop, nil
}

func resolveValueRules(meta *RequestMetadata, kind string, rules []ValueRule) ([]*ValueRuleMetadata, error) {
	var out []*ValueRuleMetadata
	for _, r := range rules {
		f, ok := meta.Request.Field(r.Field)
		if !ok {
			return nil, configErrorf(meta.Name, "%s field %q is not a field of the request", kind, r.Field)
		}
		out = append(out, &ValueRuleMetadata{Property: f, Value: r.Value, Eval: r.Eval})
	}
	return out, nil
}

// resolveJoins pairs each adjacent model of the chain on a <Name>Id field
// of either side.
func (e *Engine) resolveJoins(meta *RequestMetadata) error {
	prev := meta.Model
	for _, m := range meta.Rules.Joins {
		next, err := reflection.GetModelMetadata(m)
		if err != nil {
			return configErrorf(meta.Name, "join: %v", err)
		}
		join := &JoinMetadata{Model: next, Type: meta.Rules.JoinType}
		if fk, ok := next.Field(prev.Name + "Id"); ok && prev.PrimaryKey != nil {
			join.Left, join.LeftField = next, fk
			join.Right, join.RightField = prev, prev.PrimaryKey
		} else if fk, ok := prev.Field(next.Name + "Id"); ok && next.PrimaryKey != nil {
			join.Left, join.LeftField = prev, fk
			join.Right, join.RightField = next, next.PrimaryKey
		} else {
			return configErrorf(meta.Name, "cannot join %s to %s: no %sId or %sId field",
				next.Name, prev.Name, prev.Name, next.Name)
		}
		meta.Joins = append(meta.Joins, join)
		meta.models = append(meta.models, next)
		prev = next
	}
	return nil
}

func isBaseProperty(name string) bool {
	for _, p := range baseProperties {
		if p == name {
			return true
		}
	}
	return false
}

type fieldTag struct {
	template   string
	field      string
	format     string
	term       Term
	update     UpdateStyle
	ignore     bool
	rowVersion bool
}

// parseFieldTag reads `autoquery:"template:{Field} > {Value};term:or;field:Age"`.
// Entries are ';' separated; bare flags are ignore and rowversion.
func parseFieldTag(tag string) (fieldTag, error) {
	var ft fieldTag
	if tag == "" {
		return ft, nil
	}
	for _, part := range strings.Split(tag, ";") {
		part = strings.TrimSpace(part)
		key, value, hasValue := strings.Cut(part, ":")
		if !hasValue {
			for _, flag := range reflection.TagFlags(part) {
				switch flag {
				case "ignore":
					ft.ignore = true
				case "rowversion":
					ft.rowVersion = true
				}
			}
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "template":
			ft.template = value
		case "field":
			ft.field = value
		case "format":
			ft.format = value
		case "term":
			term, err := ParseTerm(value)
			if err != nil {
				return ft, err
			}
			ft.term = term
		case "update":
			switch strings.ToLower(value) {
			case "always":
				ft.update = UpdateAlways
			case "nondefaults":
				ft.update = UpdateNonDefaults
			default:
				return ft, fmt.Errorf("unknown update style %q", value)
			}
		}
	}
	return ft, nil
}
