// Package query filters a fetched JSON collection by a conjunction of
// field predicates.
package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Operator compares a record field with a predicate value.
type Operator string

const (
	Eq  Operator = "=="
	Ne  Operator = "~="
	Gt  Operator = ">"
	Gte Operator = ">="
	Lt  Operator = "<"
	Lte Operator = "<="
)

// ErrUnknownOperator is returned for an operator outside the supported set.
var ErrUnknownOperator = errors.New("unknown operator")

// operators lists two-character operators first so ParseExpr never splits
// ">=" as ">".
var operators = []Operator{Gte, Lte, Ne, Eq, Gt, Lt}

// ParseOperator validates s as an Operator.
func ParseOperator(s string) (Operator, error) {
	for _, op := range operators {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperator, s)
}

// Predicate is a single field condition.
type Predicate struct {
	Field string
	Op    Operator
	Value any
}

func (p Predicate) String() string {
	b, _ := json.Marshal(p.Value)
	return p.Field + string(p.Op) + string(b)
}

// Match reports whether record satisfies the predicate. A record that is
// not an object has no fields.
func (p Predicate) Match(record any) bool {
	var (
		v       any
		present bool
	)
	if obj, ok := record.(map[string]any); ok {
		v, present = obj[p.Field]
	}

	switch p.Op {
	case Eq:
		return present && equal(v, p.Value)
	case Ne:
		return !(present && equal(v, p.Value))
	case Gt, Gte, Lt, Lte:
		if !present {
			return false
		}
		c, ok := compare(v, p.Value)
		if !ok {
			return false
		}
		switch p.Op {
		case Gt:
			return c > 0
		case Gte:
			return c >= 0
		case Lt:
			return c < 0
		default:
			return c <= 0
		}
	}
	return false
}

// Filters holds at most one predicate per field.
type Filters map[string]Predicate

// Apply returns the entries of data whose record satisfies every filter.
// Values that are not collections are returned unchanged. Arrays are keyed
// by their decimal index.
func Apply(data any, filters Filters) any {
	switch coll := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(coll))
		for id, record := range coll {
			if filters.match(record) {
				out[id] = record
			}
		}
		return out
	case []any:
		out := make(map[string]any, len(coll))
		for i, record := range coll {
			if filters.match(record) {
				out[strconv.Itoa(i)] = record
			}
		}
		return out
	default:
		return data
	}
}

func (f Filters) match(record any) bool {
	for _, p := range f {
		if !p.Match(record) {
			return false
		}
	}
	return true
}

// Sorted returns the predicates ordered by field name.
func (f Filters) Sorted() []Predicate {
	out := make([]Predicate, 0, len(f))
	for _, p := range f {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// ParseExpr parses "field<op>value", e.g. `age>=18` or `name=="bob"`. The
// value is decoded as JSON and falls back to the raw text.
func ParseExpr(expr string) (Predicate, error) {
	for i := 0; i < len(expr); i++ {
		for _, op := range operators {
			if !strings.HasPrefix(expr[i:], string(op)) {
				continue
			}
			field := strings.TrimSpace(expr[:i])
			if field == "" {
				return Predicate{}, fmt.Errorf("missing field in %q", expr)
			}
			raw := strings.TrimSpace(expr[i+len(op):])
			var value any
			if err := json.Unmarshal([]byte(raw), &value); err != nil {
				value = raw
			}
			return Predicate{Field: field, Op: op, Value: value}, nil
		}
	}
	return Predicate{}, fmt.Errorf("%w in %q", ErrUnknownOperator, expr)
}
