package client_test

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/restdb/client"
	"github.com/stevemurr/restdb/query"
)

func seed(t *testing.T, c *client.Client, path string, data any) {
	t.Helper()
	_, err := c.Put(context.Background(), path, data)
	require.NoError(t, err)
}

func TestQueryFiltersCollection(t *testing.T) {
	c, _ := newEmulator(t, "")
	seed(t, c, "items", map[string]any{
		"a": map[string]any{"x": 3},
		"b": map[string]any{"x": 7},
		"c": map[string]any{"x": 5},
	})

	got, err := c.Query("items").Where("x", ">=", 5).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"b": map[string]any{"x": float64(7)},
		"c": map[string]any{"x": float64(5)},
	}, got)
}

func TestQueryWithoutPredicatesReturnsEverything(t *testing.T) {
	c, _ := newEmulator(t, "")
	data := map[string]any{
		"a": map[string]any{"x": float64(1)},
		"b": "scalar entry",
	}
	seed(t, c, "items", data)

	got, err := c.Query("items").Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestQueryConjunction(t *testing.T) {
	c, _ := newEmulator(t, "")
	seed(t, c, "users", map[string]any{
		"u1": map[string]any{"age": 30, "role": "admin"},
		"u2": map[string]any{"age": 30, "role": "dev"},
		"u3": map[string]any{"age": 17, "role": "admin"},
		"u4": map[string]any{"role": "admin"},
	})
	ctx := context.Background()

	got, err := c.Query("users").Where("age", ">", 18).Where("role", "==", "admin").Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, keys(got))

	got, err = c.Query("users").Where("age", "~=", 30).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u3", "u4"}, keys(got), "a missing field is never equal")
}

func TestQueryLastWhereWins(t *testing.T) {
	c, _ := newEmulator(t, "")
	seed(t, c, "items", map[string]any{
		"a": map[string]any{"x": 3},
		"b": map[string]any{"x": 7},
	})

	q := c.Query("items").Where("x", ">", 100).Where("x", "<", 5)
	require.Len(t, q.Predicates(), 1)
	assert.Equal(t, query.Lt, q.Predicates()[0].Op)

	got, err := q.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys(got))
}

func TestQueryScalarPassesThrough(t *testing.T) {
	c, _ := newEmulator(t, "")
	seed(t, c, "answer", 42)

	got, err := c.Query("answer").Where("x", "==", 1).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(42), got)
}

func TestQueryMissingCollection(t *testing.T) {
	c, _ := newEmulator(t, "")

	got, err := c.Query("nothing").Where("x", "==", 1).Execute(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQueryArrayIsKeyedByIndex(t *testing.T) {
	c, _ := newEmulator(t, "")
	seed(t, c, "list", []any{
		map[string]any{"n": 1},
		map[string]any{"n": 2},
		map[string]any{"n": 3},
	})

	got, err := c.Query("list").Where("n", ">=", 2).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"1": map[string]any{"n": float64(2)},
		"2": map[string]any{"n": float64(3)},
	}, got)
}

func TestQueryUnknownOperator(t *testing.T) {
	tr := newStub(stubResponse{status: 200, body: "{}"})
	c := newTestClient(t, client.DefaultConfig(), client.WithTransport(tr))

	_, err := c.Query("items").Where("x", "=>", 1).Where("y", "==", 2).Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, query.ErrUnknownOperator)
	assert.Zero(t, tr.callCount())
}

func TestQueryPropagatesRequestErrors(t *testing.T) {
	tr := newStub(stubResponse{status: 403, body: "denied"})
	c := newTestClient(t, client.DefaultConfig(), client.WithTransport(tr))

	_, err := c.Query("items").Execute(context.Background())
	assert.Equal(t, 403, client.StatusCode(err))

	_, err = c.Query("a//b").Execute(context.Background())
	assert.ErrorIs(t, err, client.ErrEmptySegment)
}

func TestQueryPredicatesAreSorted(t *testing.T) {
	c := newTestClient(t, client.DefaultConfig())

	q := c.Query("items").Where("name", "==", "x").Where("age", ">=", 1).Where("city", "~=", "Oslo")
	var fields []string
	for _, p := range q.Predicates() {
		fields = append(fields, p.Field)
	}
	assert.Equal(t, []string{"age", "city", "name"}, fields)
}

func keys(v any) []string {
	m, _ := v.(map[string]any)
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
