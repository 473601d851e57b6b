package autoquery

import (
	"strings"

	"github.com/bitechdev/autoquery/pkg/cache"
	"github.com/bitechdev/autoquery/pkg/common"
	"github.com/bitechdev/autoquery/pkg/config"
	"github.com/bitechdev/autoquery/pkg/metrics"
	"github.com/bitechdev/autoquery/pkg/script"
)

// Convention maps a name prefix or suffix onto an operator template,
// e.g. "GreaterThan" -> "{Field} > {Value}".
type Convention struct {
	Name     string
	Template *Template
}

// MetadataFilter may adjust a RequestMetadata once, when it is first built.
type MetadataFilter func(*RequestMetadata)

// Options is the engine configuration. It is copied into the Engine at
// construction and never read from a global.
type Options struct {
	// MaxLimit caps Take. Zero disables the cap.
	MaxLimit int
	// EnableUntypedQueries applies raw parameters that are not typed request fields.
	EnableUntypedQueries bool
	// EnableRawSQLFilters allows the _select, _from and _where parameters.
	EnableRawSQLFilters bool
	// OrderByPrimaryKeyOnLimit orders paged queries without an explicit order by the key.
	OrderByPrimaryKeyOnLimit bool
	// UseSnakeCase retries unmatched names in snake_case.
	UseSnakeCase bool

	// IgnoreProperties are never matched as filters, on top of the QueryBase fields.
	IgnoreProperties []string
	// IllegalSQLFragmentTokens reject a raw fragment when present.
	IllegalSQLFragmentTokens []string

	// StartsWithConventions are tried in order against name prefixes.
	StartsWithConventions []Convention
	// EndsWithConventions are tried in order against name suffixes.
	EndsWithConventions []Convention

	MetadataFilters []MetadataFilter

	Evaluator   script.Evaluator
	Connections common.ConnectionFactory
	Metrics     metrics.Provider

	// AggregateCache stores Include aggregate results per compiled query.
	// Nil disables caching.
	AggregateCache *cache.Cache
}

// DefaultOptions returns the default engine configuration.
func DefaultOptions() Options {
	return Options{
		MaxLimit:                 100,
		EnableUntypedQueries:     true,
		OrderByPrimaryKeyOnLimit: true,
		UseSnakeCase:             true,
		IllegalSQLFragmentTokens: DefaultIllegalSQLFragmentTokens(),
		StartsWithConventions:    DefaultStartsWithConventions(),
		EndsWithConventions:      DefaultEndsWithConventions(),
	}
}

// OptionsFromConfig builds Options from the autoquery config section.
func OptionsFromConfig(cfg config.AutoQueryConfig) Options {
	opts := DefaultOptions()
	opts.MaxLimit = cfg.MaxLimit
	opts.EnableUntypedQueries = cfg.EnableUntypedQueries
	opts.EnableRawSQLFilters = cfg.EnableRawSQLFilters
	opts.OrderByPrimaryKeyOnLimit = cfg.OrderByPrimaryKeyOnLimit
	opts.UseSnakeCase = cfg.UseSnakeCase
	opts.IgnoreProperties = append(opts.IgnoreProperties, cfg.IgnoreProperties...)
	if len(cfg.IllegalSQLFragmentTokens) > 0 {
		opts.IllegalSQLFragmentTokens = cfg.IllegalSQLFragmentTokens
	}
	return opts
}

func (o *Options) withDefaults() {
	if o.Evaluator == nil {
		o.Evaluator = script.NewEvaluator()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.GetProvider()
	}
	if o.IllegalSQLFragmentTokens == nil {
		o.IllegalSQLFragmentTokens = DefaultIllegalSQLFragmentTokens()
	}
}

var baseProperties = []string{"Skip", "Take", "OrderBy", "OrderByDesc", "Include", "Fields", "Meta"}

func (o *Options) ignored(name string) bool {
	for _, p := range baseProperties {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	for _, p := range o.IgnoreProperties {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	return false
}

const (
	gteTemplate = "{Field} >= {Value}"
	gtTemplate  = "{Field} > {Value}"
	lteTemplate = "{Field} <= {Value}"
	ltTemplate  = "{Field} < {Value}"
	neTemplate  = "{Field} <> {Value}"
	likeCI      = "UPPER({Field}) LIKE UPPER({Value})"
)

func conv(name, text string) Convention {
	return Convention{Name: name, Template: NewTemplate(text)}
}

// DefaultStartsWithConventions are the prefix conventions, longest first where
// one name is a prefix of another.
func DefaultStartsWithConventions() []Convention {
	return []Convention{
		conv("GreaterThanOrEqualTo", gteTemplate),
		conv("GreaterThan", gtTemplate),
		conv("LessThanOrEqualTo", lteTemplate),
		conv("LessThan", ltTemplate),
		conv("NotEqualTo", neTemplate),
		conv("OnOrAfter", gteTemplate),
		conv("OnOrBefore", lteTemplate),
		conv("After", gtTemplate),
		conv("Before", ltTemplate),
		conv("From", gteTemplate),
		conv("Since", gteTemplate),
		conv("Above", gtTemplate),
		conv("Below", ltTemplate),
	}
}

// DefaultEndsWithConventions are the suffix conventions.
func DefaultEndsWithConventions() []Convention {
	return []Convention{
		{Name: "StartsWith", Template: NewTemplate(likeCI).WithValueFormat("{0}%")},
		{Name: "Contains", Template: NewTemplate(likeCI).WithValueFormat("%{0}%")},
		{Name: "EndsWith", Template: NewTemplate(likeCI).WithValueFormat("%{0}")},
		conv("Like", likeCI),
		conv("GreaterThanOrEqualTo", gteTemplate),
		conv("GreaterThan", gtTemplate),
		conv("LessThanOrEqualTo", lteTemplate),
		conv("LessThan", ltTemplate),
		conv("NotEqualTo", neTemplate),
		conv("OnOrAfter", gteTemplate),
		conv("OnOrBefore", lteTemplate),
		conv("Above", gtTemplate),
		conv("Below", ltTemplate),
		conv("Over", gtTemplate),
		conv("Under", ltTemplate),
		conv("After", gtTemplate),
		conv("Before", ltTemplate),
		conv("Between", "{Field} BETWEEN {Value1} AND {Value2}"),
		conv("IsNotNull", "{Field} IS NOT NULL"),
		conv("IsNull", "{Field} IS NULL"),
		conv("In", "{Field} IN ({Values})"),
	}
}

// DefaultIllegalSQLFragmentTokens lists tokens rejected in raw fragments.
// Word tokens match whole words case-insensitively; the rest match anywhere.
func DefaultIllegalSQLFragmentTokens() []string {
	return []string{
		"--", ";--", ";", "%", "/*", "*/", "@@", "@",
		"char", "nchar", "varchar", "nvarchar",
		"alter", "begin", "cast", "create", "cursor", "declare", "delete",
		"drop", "end", "exec", "execute", "fetch", "insert", "kill", "open",
		"select", "sys", "sysobjects", "syscolumns", "table", "update",
		"truncate", "grant", "revoke", "union", "waitfor", "pg_sleep",
	}
}
