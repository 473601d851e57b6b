package autoquery

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bitechdev/autoquery/pkg/cache"
	"github.com/bitechdev/autoquery/pkg/common"
	"github.com/bitechdev/autoquery/pkg/logger"
	"github.com/bitechdev/autoquery/pkg/metrics"
	"github.com/bitechdev/autoquery/pkg/reflection"
)

// aggregateFuncs maps the recognized functions onto the SQL they render as.
// FIRST and LAST have no SQL function; they read the first or last filtered
// row in primary key order.
var aggregateFuncs = map[string]string{
	"AVG":   "AVG",
	"COUNT": "COUNT",
	"FIRST": "FIRST",
	"LAST":  "LAST",
	"MAX":   "MAX",
	"MIN":   "MIN",
	"SUM":   "SUM",
}

var (
	aggregatePattern = regexp.MustCompile(`(?i)^([a-z_][a-z0-9_]*)\s*\((.*)\)\s*(?:as\s+([a-z_][a-z0-9_]*))?$`)
	literalPattern   = regexp.MustCompile(`^(-?[0-9]+(\.[0-9]+)?|'[^']*')$`)
)

// AggregateTarget receives aggregate results. QueryResponse implements it.
type AggregateTarget interface {
	SetTotal(total int)
	SetMeta(key, value string)
}

// SetTotal implements AggregateTarget.
func (r *QueryResponse[T]) SetTotal(total int) { r.Total = total }

// SetMeta implements AggregateTarget.
func (r *QueryResponse[T]) SetMeta(key, value string) {
	if r.Meta == nil {
		r.Meta = make(map[string]string)
	}
	r.Meta[key] = value
}

// Aggregate is one recognized function call of an Include directive.
type Aggregate struct {
	// Key is the metadata key: the AS alias, or the call as written.
	Key string
	SQL string
	// Args bind the placeholders of SQL.
	Args  []interface{}
	Alias string
	// Total populates the response total.
	Total bool
	// Hidden aggregates are not exposed in metadata.
	Hidden bool

	// fromRow marks FIRST and LAST, which read one row instead of folding the set.
	fromRow bool
}

// ParseAggregates extracts the aggregate calls of include. Tokens that are not
// aggregates, or whose argument matches no column, are skipped.
func (e *Engine) ParseAggregates(q *SqlExpression, include string) []Aggregate {
	var out []Aggregate
	for _, tok := range splitTopLevel(include) {
		if strings.EqualFold(tok, "Total") {
			out = append(out, Aggregate{Key: tok, SQL: "COUNT(*)", Total: true, Hidden: true})
			continue
		}
		m := aggregatePattern.FindStringSubmatch(tok)
		if m == nil {
			continue
		}
		fn, ok := aggregateFuncs[strings.ToUpper(m[1])]
		if !ok {
			continue
		}
		arg, ok := e.aggregateArg(q, strings.TrimSpace(m[2]))
		if !ok {
			logger.Debug("Skipping aggregate %s: unknown argument", tok)
			continue
		}
		agg := Aggregate{Key: tok, SQL: fn + "(" + arg + ")"}
		if fn == "FIRST" || fn == "LAST" {
			agg.fromRow = true
			if agg.SQL, agg.Args, ok = rowValue(q, arg, fn == "LAST"); !ok {
				logger.Debug("Skipping aggregate %s: %s has no primary key", tok, q.Metadata.Model.Table)
				continue
			}
		}
		if m[3] != "" {
			agg.Key = m[3]
		}
		agg.Total = fn == "COUNT" && arg == "*"
		out = append(out, agg)
	}
	for i := range out {
		out[i].Alias = "aq_agg_" + strconv.Itoa(i)
	}
	return out
}

func (e *Engine) aggregateArg(q *SqlExpression, arg string) (string, bool) {
	switch {
	case arg == "*":
		return arg, true
	case literalPattern.MatchString(arg):
		return arg, true
	}
	distinct := ""
	if len(arg) > len("DISTINCT ") && strings.EqualFold(arg[:len("DISTINCT ")], "DISTINCT ") {
		distinct = "DISTINCT "
		arg = strings.TrimSpace(arg[len("DISTINCT "):])
	}
	mf, ok := e.matcher.MatchExact(arg, q.Metadata.models)
	if !ok {
		return "", false
	}
	return distinct + columnOf(q.Dialect, mf.Model, mf.Field), true
}

// rowValue selects arg from the first filtered row in primary key order, or
// from the last one when last is set.
func rowValue(q *SqlExpression, arg string, last bool) (string, []interface{}, bool) {
	pk := q.Metadata.Model.PrimaryKey
	if pk == nil {
		return "", nil, false
	}
	dir := " ASC"
	if last {
		dir = " DESC"
	}
	sub := q.Clone()
	sub.Distinct = false
	sub.Select = []string{strings.TrimPrefix(arg, "DISTINCT ")}
	sub.OrderBy = []string{q.Column(pk.Column) + dir}
	sub.Offset = 0
	sub.Limit = 1
	sql, args := sub.ToSelect()
	return "(" + sql + ")", args, true
}

// ApplyAggregates runs the aggregates of include in one query over the
// filtered set, ignoring its paging and ordering, and merges the results into
// resp. It reports whether the total was populated.
func (e *Engine) ApplyAggregates(ctx context.Context, db common.Database, resp AggregateTarget, q *SqlExpression, include string) (bool, error) {
	aggs := e.ParseAggregates(q, include)
	if len(aggs) == 0 {
		return false, nil
	}

	agg := q.Clone()
	agg.Distinct = false
	agg.OrderBy = nil
	agg.Offset = 0
	agg.Limit = -1
	agg.Select = agg.Select[:0]
	var selectArgs []interface{}
	rowsOnly := true
	for _, a := range aggs {
		agg.Select = append(agg.Select, a.SQL+" AS "+a.Alias)
		selectArgs = append(selectArgs, a.Args...)
		rowsOnly = rowsOnly && a.fromRow
	}
	if rowsOnly {
		// without an aggregate function every filtered row would repeat the values
		agg.Limit = 1
	}

	sql, whereArgs := agg.ToSelect()
	args := append(selectArgs, whereArgs...)
	values, err := e.aggregateValues(ctx, db, q.Metadata, sql, args, aggs)
	if err != nil || values == nil {
		return false, err
	}

	var totalSet bool
	for _, a := range aggs {
		value := values[a.Alias]
		if a.Total {
			if n, err := strconv.ParseFloat(value, 64); err == nil {
				resp.SetTotal(int(n))
				totalSet = true
			}
		}
		if !a.Hidden {
			resp.SetMeta(a.Key, value)
		}
	}
	return totalSet, nil
}

// aggregateValues runs the aggregate query, or answers it from the aggregate
// cache when one is configured. A nil map means the query returned no row.
func (e *Engine) aggregateValues(ctx context.Context, db common.Database, meta *RequestMetadata, sql string, args []interface{}, aggs []Aggregate) (map[string]string, error) {
	load := func() (cache.CachedAggregates, error) {
		var rows []map[string]interface{}
		if err := e.query(ctx, db, "aggregate", meta, &rows, sql, args); err != nil {
			return cache.CachedAggregates{}, err
		}
		if len(rows) == 0 {
			return cache.CachedAggregates{}, nil
		}
		values := make(map[string]string, len(aggs))
		for _, a := range aggs {
			values[a.Alias] = formatAggregate(rows[0][a.Alias])
		}
		return cache.CachedAggregates{Values: values}, nil
	}

	c := e.opts.AggregateCache
	if c == nil {
		res, err := load()
		return res.Values, err
	}
	key := cache.GetQueryAggregateCacheKey(cache.BuildQueryCacheKey(meta.Rules.Connection, sql, args))
	res, hit, err := cache.Remember(ctx, c, key, cacheTags(meta), load)
	if err != nil {
		return nil, err
	}
	if hit {
		e.opts.Metrics.RecordCacheHit(metrics.CacheAggregates)
	} else {
		e.opts.Metrics.RecordCacheMiss(metrics.CacheAggregates)
	}
	return res.Values, nil
}

// cacheTags lists the table tags of every model the request reads.
func cacheTags(meta *RequestMetadata) []string {
	tags := make([]string, 0, len(meta.Models()))
	for _, m := range meta.Models() {
		tags = append(tags, cache.TableTag(qualifiedTable(m)))
	}
	return tags
}

func qualifiedTable(m *reflection.ModelMetadata) string {
	if m.Schema != "" {
		return m.Schema + "." + m.Table
	}
	return m.Table
}

// InvalidateCache drops the cached aggregates read from the model table of
// meta. The crud executor calls it after every committed mutation.
func (e *Engine) InvalidateCache(ctx context.Context, meta *RequestMetadata) {
	if err := cache.InvalidateCacheForTable(ctx, e.opts.AggregateCache, qualifiedTable(meta.Model)); err != nil {
		logger.Warn("Failed to invalidate cached aggregates of %s: %v", meta.Model.Table, err)
	}
}

func formatAggregate(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// splitTopLevel splits on commas outside parentheses and quotes.
func splitTopLevel(s string) []string {
	var out []string
	depth, start := 0, 0
	inQuote := false
	for i, r := range s {
		switch {
		case r == '\'':
			inQuote = !inQuote
		case inQuote:
		case r == '(':
			depth++
		case r == ')':
			depth--
		case r == ',' && depth == 0:
			if tok := strings.TrimSpace(s[start:i]); tok != "" {
				out = append(out, tok)
			}
			start = i + 1
		}
	}
	if tok := strings.TrimSpace(s[start:]); tok != "" {
		out = append(out, tok)
	}
	return out
}
