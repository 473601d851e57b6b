package crud

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitechdev/autoquery/pkg/autoquery"
	"github.com/bitechdev/autoquery/pkg/cache"
)

type QueryPeople struct {
	autoquery.QueryBase
}

func TestMutationsInvalidateCachedAggregates(t *testing.T) {
	ctx := context.Background()
	db := newSQLite(t)

	opts := autoquery.DefaultOptions()
	opts.AggregateCache = cache.NewCache(cache.NewMemoryProvider(nil), 0)
	engine := autoquery.NewEngine(db, opts)
	engine.MustRegister(&CreatePerson{}, Person{}, autoquery.Rules{})
	engine.MustRegister(&QueryPeople{}, Person{}, autoquery.Rules{})
	e := NewExecutor(engine)

	createPerson(t, e, "Ann", 30)
	createPerson(t, e, "Bob", 40)

	take := 1
	total := func() (int, string) {
		resp, err := autoquery.Execute[Person](ctx, engine, &QueryPeople{
			QueryBase: autoquery.QueryBase{Take: &take, Include: "Total, Sum(Age)"},
		}, nil)
		require.NoError(t, err)
		return resp.Total, resp.Meta["Sum(Age)"]
	}

	n, sum := total()
	assert.Equal(t, 2, n)
	assert.Equal(t, "70", sum)

	// Writes that bypass the executor are not seen until the next mutation
	_, err := db.Exec(ctx, "INSERT INTO people (name, age) VALUES (?, ?)", "Cid", 50)
	require.NoError(t, err)
	n, _ = total()
	assert.Equal(t, 2, n)

	createPerson(t, e, "Dee", 60)
	n, sum = total()
	assert.Equal(t, 4, n)
	assert.Equal(t, "180", sum)

	stats, err := opts.AggregateCache.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
}
