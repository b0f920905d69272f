package client

import (
	"context"

	"github.com/stevemurr/restdb/query"
)

// Query filters the children of a path in memory after fetching it.
// It is a mutable builder and is not safe for concurrent use.
type Query struct {
	c       *Client
	path    string
	filters query.Filters
	err     error
}

// Query starts a query over the collection at path.
func (c *Client) Query(path string) *Query {
	return &Query{c: c, path: path, filters: query.Filters{}}
}

// Where registers a predicate on field, replacing any earlier one on the
// same field. An unknown operator is reported by Execute.
func (q *Query) Where(field, op string, value any) *Query {
	o, err := query.ParseOperator(op)
	if err != nil {
		if q.err == nil {
			q.err = err
		}
		return q
	}
	q.filters[field] = query.Predicate{Field: field, Op: o, Value: value}
	return q
}

// Predicates returns the registered predicates ordered by field.
func (q *Query) Predicates() []query.Predicate {
	return q.filters.Sorted()
}

// Execute fetches the path and keeps the entries matching every
// predicate, keyed by their original id. A result that is not a
// collection is returned as is.
func (q *Query) Execute(ctx context.Context) (any, error) {
	if q.err != nil {
		return nil, q.err
	}
	data, err := q.c.Get(ctx, q.path)
	if err != nil {
		return nil, err
	}
	return query.Apply(data, q.filters), nil
}
