package autoquery

import (
	"strings"
	"unicode"

	"github.com/bitechdev/autoquery/pkg/logger"
)

// Raw fragment parameter names.
const (
	RawSelect = "_select"
	RawFrom   = "_from"
	RawWhere  = "_where"
)

// ValidateSQLFragment rejects a hand-written fragment containing any illegal
// token. Alphanumeric tokens must appear as whole words; symbolic tokens are
// rejected wherever they occur. Quoted string literals are checked too.
func ValidateSQLFragment(name, fragment string, illegal []string) error {
	lower := strings.ToLower(fragment)
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	}) {
		words[w] = true
	}

	for _, tok := range illegal {
		t := strings.ToLower(tok)
		if t == "" {
			continue
		}
		var found bool
		if isWordToken(t) {
			found = words[t]
		} else {
			found = strings.Contains(lower, t)
		}
		if found {
			logger.Warn("Illegal token %q detected in %s fragment", tok, name)
			return NewValidationError(name, ErrIllegalSQLFragment, "token %q is not allowed", tok)
		}
	}
	return nil
}

func isWordToken(t string) bool {
	for _, r := range t {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return false
		}
	}
	return true
}

// rawFragments pulls the raw fragment parameters out of params, returning the
// remaining parameters untouched.
func rawFragments(params map[string]string) (map[string]string, map[string]string) {
	raw := make(map[string]string)
	rest := make(map[string]string, len(params))
	for k, v := range params {
		switch strings.ToLower(k) {
		case RawSelect, RawFrom, RawWhere:
			raw[strings.ToLower(k)] = v
		default:
			rest[k] = v
		}
	}
	return raw, rest
}
