package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// QueryCacheKey is what identifies a compiled query: the connection it runs
// on, its SQL text and its bound arguments.
type QueryCacheKey struct {
	Connection string        `json:"connection,omitempty"`
	SQL        string        `json:"sql"`
	Args       []interface{} `json:"args,omitempty"`
}

// BuildQueryCacheKey hashes a compiled query into a stable key suffix.
func BuildQueryCacheKey(connection, sql string, args []interface{}) string {
	data, err := json.Marshal(QueryCacheKey{Connection: connection, SQL: sql, Args: args})
	if err != nil {
		data = []byte(fmt.Sprintf("%s|%s|%v", connection, sql, args))
	}
	return hashString(string(data))
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// GetQueryAggregateCacheKey returns the key the aggregates of a query are
// stored under.
func GetQueryAggregateCacheKey(hash string) string {
	return "query_aggregate:" + hash
}

// TableTag is the tag every result read from table is stored under.
func TableTag(table string) string {
	return "table:" + strings.ToLower(table)
}

// CachedAggregates holds the formatted values of one aggregate query keyed by
// column alias.
type CachedAggregates struct {
	Values map[string]string `json:"values"`
}

// InvalidateCacheForTable removes every cached result read from table. A nil
// cache is a no-op.
func InvalidateCacheForTable(ctx context.Context, c *Cache, table string) error {
	if c == nil {
		return nil
	}
	return c.DeleteByTag(ctx, TableTag(table))
}
