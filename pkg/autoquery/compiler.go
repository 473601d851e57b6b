package autoquery

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/bitechdev/autoquery/pkg/common"
	"github.com/bitechdev/autoquery/pkg/logger"
	"github.com/bitechdev/autoquery/pkg/reflection"
)

// Compile builds the SELECT for req and the caller's raw parameters using the
// dialect of the engine's default database.
func (e *Engine) Compile(ctx context.Context, req any, params map[string]string) (*SqlExpression, error) {
	meta, err := e.Resolve(req)
	if err != nil {
		return nil, err
	}
	return e.compile(ctx, e.dialect(), meta, req, params)
}

// CompileFor is Compile against an explicit dialect.
func (e *Engine) CompileFor(ctx context.Context, d common.Dialect, req any, params map[string]string) (*SqlExpression, error) {
	meta, err := e.Resolve(req)
	if err != nil {
		return nil, err
	}
	return e.compile(ctx, d, meta, req, params)
}

func (e *Engine) compile(ctx context.Context, d common.Dialect, meta *RequestMetadata, req any, params map[string]string) (*SqlExpression, error) {
	q := newSqlExpression(d, meta)

	dto, err := e.populate(ctx, meta, req)
	if err != nil {
		return nil, err
	}
	q.Request = dto.Addr().Interface()

	raw, params := rawFragments(params)
	if err := e.applyRawFragments(q, raw); err != nil {
		return nil, err
	}

	for _, j := range meta.Joins {
		q.Joins = append(q.Joins, fmt.Sprintf("%s %s ON %s = %s",
			j.Type.keyword(),
			d.QuoteTable(j.Model.Schema, j.Model.Table),
			columnOf(d, j.Left, j.LeftField),
			columnOf(d, j.Right, j.RightField),
		))
	}

	base := baseOf(q.Request)
	e.applyPaging(q, base)

	var added int
	for _, rule := range meta.AutoFilters {
		value, err := e.evalValue(ctx, rule.Value, rule.Eval)
		if err != nil {
			return nil, fmt.Errorf("auto filter %s: %w", rule.Field.Name, err)
		}
		cond, err := BuildCondition(TermEnsure, q.Column(rule.Field.Column), value, rule.Template)
		if err != nil {
			return nil, err
		}
		if cond != nil {
			cond.Term = TermEnsure
			q.AddCondition(cond)
			added++
		}
	}

	consumed := make(map[string]bool)
	for _, prop := range meta.Properties {
		if prop.Ignore || prop.Target == nil {
			continue
		}
		fv, ok := reflection.FieldValue(dto, prop.Field.Index)
		if !ok || fv.IsZero() {
			continue
		}
		consumed[strings.ToLower(prop.Field.Name)] = true
		cond, err := BuildCondition(prop.Term, columnOf(d, prop.Target.Model, prop.Target.Field), fv.Interface(), prop.Template)
		if err != nil {
			return nil, err
		}
		if cond != nil {
			q.AddCondition(cond)
			added++
		}
	}

	if e.opts.EnableUntypedQueries {
		n, err := e.applyUntyped(q, meta, params, consumed)
		if err != nil {
			return nil, err
		}
		added += n
	}

	if meta.DefaultTerm == TermOr && added == 0 {
		q.matchNone = true
	}

	if base != nil && base.Fields != "" && len(q.Select) == 0 {
		e.applyFields(q, meta, base.Fields)
	}
	return q, nil
}

func (e *Engine) dialect() common.Dialect {
	if e.db == nil {
		return common.DialectPostgres
	}
	return common.DialectOf(e.db)
}

func columnOf(d common.Dialect, model *reflection.ModelMetadata, f *reflection.FieldMetadata) string {
	return d.QuoteColumn(d.QuoteTable(model.Schema, model.Table), f.Column)
}

// populate copies the request and applies the Populate rules to the copy, so
// the caller's value is left as it was.
func (e *Engine) populate(ctx context.Context, meta *RequestMetadata, req any) (reflect.Value, error) {
	dto := reflect.New(meta.RequestType).Elem()
	if sv, ok := reflection.StructValue(req); ok {
		dto.Set(sv)
	}
	for _, rule := range meta.Populate {
		if err := e.assign(ctx, dto, rule); err != nil {
			return dto, err
		}
	}
	return dto, nil
}

func (e *Engine) assign(ctx context.Context, dto reflect.Value, rule *ValueRuleMetadata) error {
	value, err := e.evalValue(ctx, rule.Value, rule.Eval)
	if err != nil {
		return fmt.Errorf("populate %s: %w", rule.Property.Name, err)
	}
	fv, ok := reflection.FieldValue(dto, rule.Property.Index)
	if !ok {
		return nil
	}
	if err := reflection.SetValue(fv, value); err != nil {
		return NewValidationError(rule.Property.Name, ErrInvalidValue, "%v", err)
	}
	return nil
}

func (e *Engine) evalValue(ctx context.Context, value any, eval string) (any, error) {
	if eval == "" {
		return value, nil
	}
	return e.opts.Evaluator.Eval(ctx, eval)
}

func (e *Engine) applyRawFragments(q *SqlExpression, raw map[string]string) error {
	if len(raw) == 0 {
		return nil
	}
	if !e.opts.EnableRawSQLFilters {
		logger.Debug("Raw sql fragments are disabled, ignoring %d fragment(s)", len(raw))
		return nil
	}
	for _, name := range []string{RawSelect, RawFrom, RawWhere} {
		frag, ok := raw[name]
		if !ok || strings.TrimSpace(frag) == "" {
			continue
		}
		if err := ValidateSQLFragment(name, frag, e.opts.IllegalSQLFragmentTokens); err != nil {
			return err
		}
		switch name {
		case RawSelect:
			q.Select = []string{frag}
		case RawFrom:
			q.From = frag
		case RawWhere:
			q.Ensure(frag)
		}
	}
	return nil
}

func (e *Engine) applyPaging(q *SqlExpression, base *QueryBase) {
	take := -1
	if e.opts.MaxLimit > 0 {
		take = e.opts.MaxLimit
	}
	if base != nil {
		if base.Take != nil && *base.Take >= 0 {
			take = *base.Take
			if e.opts.MaxLimit > 0 && take > e.opts.MaxLimit {
				take = e.opts.MaxLimit
			}
		}
		if base.Skip != nil && *base.Skip > 0 {
			q.Offset = *base.Skip
		}
		q.OrderBy = append(q.OrderBy, e.orderTerms(q, base.OrderBy, false)...)
		q.OrderBy = append(q.OrderBy, e.orderTerms(q, base.OrderByDesc, true)...)
	}
	q.Limit = take

	pk := q.Metadata.Model.PrimaryKey
	if (q.Limit >= 0 || q.Offset > 0) && !q.HasOrderBy() && e.opts.OrderByPrimaryKeyOnLimit && pk != nil {
		q.OrderBy = append(q.OrderBy, q.Column(pk.Column))
	}
}

// orderTerms reads "Name,-Age"; a leading '-' sorts descending. Unknown
// names are dropped.
func (e *Engine) orderTerms(q *SqlExpression, list string, desc bool) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		name := strings.TrimSpace(part)
		descending := desc
		if strings.HasPrefix(name, "-") {
			name = strings.TrimSpace(name[1:])
			descending = !desc
		}
		mf, ok := e.matcher.MatchExact(name, q.Metadata.models)
		if !ok {
			continue
		}
		col := columnOf(q.Dialect, mf.Model, mf.Field)
		if descending {
			col += " DESC"
		}
		out = append(out, col)
	}
	return out
}

func (e *Engine) applyFields(q *SqlExpression, meta *RequestMetadata, fields string) {
	fields = strings.TrimSpace(fields)
	if len(fields) > len("DISTINCT ") && strings.EqualFold(fields[:len("DISTINCT ")], "DISTINCT ") {
		q.Distinct = true
		fields = fields[len("DISTINCT "):]
	}
	for _, part := range strings.Split(fields, ",") {
		mf, ok := e.matcher.MatchExact(strings.TrimSpace(part), meta.models)
		if !ok {
			continue
		}
		q.Select = append(q.Select, columnOf(q.Dialect, mf.Model, mf.Field))
	}
}

// applyUntyped adds a condition per raw parameter that no typed property
// consumed, returning how many were added. Parameters are visited in name
// order so the generated SQL is stable.
func (e *Engine) applyUntyped(q *SqlExpression, meta *RequestMetadata, params map[string]string, consumed map[string]bool) (int, error) {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var added int
	for _, name := range names {
		if consumed[strings.ToLower(name)] {
			continue
		}
		if _, typed := meta.Property(name); typed {
			continue
		}
		mf, ok := e.matcher.Match(name, meta.models, meta.Aliases)
		if !ok {
			logger.Debug("Dropping unmatched parameter %s on %s", name, meta.Name)
			continue
		}
		value, skip, err := untypedValue(name, params[name], mf)
		if err != nil {
			return added, err
		}
		if skip {
			continue
		}
		cond, err := BuildCondition(meta.DefaultTerm, columnOf(q.Dialect, mf.Model, mf.Field), value, mf.Template)
		if err != nil {
			return added, err
		}
		if cond != nil {
			q.AddCondition(cond)
			added++
		}
	}
	return added, nil
}

// untypedValue converts a raw string for the matched column. Lists are split
// on commas where the template takes several values, or for a non-string
// column without a template.
func untypedValue(name, raw string, mf *MatchedField) (any, bool, error) {
	t := mf.Field.Type
	if mf.Template != nil && mf.Template.Style() == ValueNone {
		// a bare ?DeletedDateIsNull switches the condition on
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil, false, nil
		}
		on, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, false, NewValidationError(name, ErrInvalidValue, "expected a boolean, got %q", raw)
		}
		return nil, !on, nil
	}

	if strings.TrimSpace(raw) == "" && mf.Field.Kind() != reflect.String {
		return nil, true, nil
	}

	split := false
	if mf.Template != nil {
		style := mf.Template.Style()
		split = style == ValueList || style == ValueMultiple
	} else {
		split = mf.Field.Kind() != reflect.String && strings.Contains(raw, ",")
	}
	if mf.Template != nil && mf.Template.ValueFormat != "" {
		t = reflect.TypeOf("")
	}

	if !split {
		v, err := reflection.ConvertString(raw, t)
		if err != nil {
			return nil, false, NewValidationError(name, ErrInvalidValue, "%v", err)
		}
		return v, false, nil
	}

	var values []any
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := reflection.ConvertString(part, t)
		if err != nil {
			return nil, false, NewValidationError(name, ErrInvalidValue, "%v", err)
		}
		values = append(values, v)
	}
	return values, false, nil
}
