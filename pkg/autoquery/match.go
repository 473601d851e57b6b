package autoquery

import (
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/bitechdev/autoquery/pkg/reflection"
)

// MatchedField is the result of resolving a name against a set of models.
type MatchedField struct {
	Model    *reflection.ModelMetadata
	Field    *reflection.FieldMetadata
	Template *Template // implied by a naming convention, may be nil
}

// FieldMatcher resolves parameter names onto model fields.
type FieldMatcher struct {
	opts *Options
}

// NewFieldMatcher creates a matcher using the conventions in opts.
func NewFieldMatcher(opts *Options) *FieldMatcher {
	return &FieldMatcher{opts: opts}
}

// Match resolves name against models, first model first. aliases maps
// lower-cased alternative names onto field names. The steps, first hit wins:
// exact match, singular of a plural, prefix conventions, suffix conventions,
// aliases, then a snake_case retry.
func (m *FieldMatcher) Match(name string, models []*reflection.ModelMetadata, aliases map[string]string) (*MatchedField, bool) {
	if name == "" || m.opts.ignored(name) {
		return nil, false
	}

	if mf, ok := m.exact(name, models); ok {
		return mf, true
	}

	for _, c := range m.opts.StartsWithConventions {
		if len(name) > len(c.Name) && strings.EqualFold(name[:len(c.Name)], c.Name) {
			if mf, ok := m.exact(name[len(c.Name):], models); ok {
				mf.Template = c.Template
				return mf, true
			}
		}
	}

	for _, c := range m.opts.EndsWithConventions {
		if len(name) > len(c.Name) && strings.EqualFold(name[len(name)-len(c.Name):], c.Name) {
			if mf, ok := m.exact(name[:len(name)-len(c.Name)], models); ok {
				mf.Template = c.Template
				return mf, true
			}
		}
	}

	if target, ok := aliases[strings.ToLower(name)]; ok {
		if mf, ok := m.lookup(target, models); ok {
			return mf, true
		}
	}

	if m.opts.UseSnakeCase {
		snake := reflection.ToSnakeCase(name)
		if mf, ok := m.lookup(snake, models); ok {
			return mf, true
		}
		squashed := strings.ReplaceAll(strings.ToLower(name), "_", "")
		for _, model := range models {
			for _, f := range model.Fields {
				if strings.ReplaceAll(strings.ToLower(f.Name), "_", "") == squashed {
					return &MatchedField{Model: model, Field: f}, true
				}
			}
		}
	}

	return nil, false
}

// MatchExact resolves name by exact or singular match only, no conventions.
func (m *FieldMatcher) MatchExact(name string, models []*reflection.ModelMetadata) (*MatchedField, bool) {
	if name == "" {
		return nil, false
	}
	return m.exact(name, models)
}

// exact is a case-insensitive match, retried in singular form for plural names.
func (m *FieldMatcher) exact(name string, models []*reflection.ModelMetadata) (*MatchedField, bool) {
	if mf, ok := m.lookup(name, models); ok {
		return mf, true
	}
	if len(name) > 1 && strings.HasSuffix(strings.ToLower(name), "s") {
		if singular := inflection.Singular(name); singular != name {
			if mf, ok := m.lookup(singular, models); ok {
				return mf, true
			}
		}
		if mf, ok := m.lookup(name[:len(name)-1], models); ok {
			return mf, true
		}
	}
	return nil, false
}

func (m *FieldMatcher) lookup(name string, models []*reflection.ModelMetadata) (*MatchedField, bool) {
	for _, model := range models {
		if f, ok := model.Field(name); ok {
			return &MatchedField{Model: model, Field: f}, true
		}
	}
	return nil, false
}
