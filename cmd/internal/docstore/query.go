package docstore

import (
	"fmt"
	"sort"
	"strings"
)

// Op is a predicate operator.
type Op string

const (
	// OpEqual matches documents whose field equals the value.
	OpEqual Op = "=="
	// OpArrayContains matches documents whose array field contains the value.
	OpArrayContains Op = "array-contains"
)

// Direction is a sort direction.
type Direction uint8

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// Predicate is one conjunctive filter term.
type Predicate struct {
	Field string
	Op    Op
	Value any
}

// Order sorts results by one field; ties fall back to insertion order.
type Order struct {
	Field     string
	Direction Direction
}

// Query selects documents of one collection. Build with From and the chained helpers;
// the helpers return copies, so a base query can be shared.
type Query struct {
	Collection string
	Predicates []Predicate
	Order      *Order
}

// From starts a query over collection.
func From(collection string) Query {
	return Query{Collection: collection}
}

// Where adds a predicate.
func (q Query) Where(field string, op Op, value any) Query {
	preds := make([]Predicate, 0, len(q.Predicates)+1)
	preds = append(preds, q.Predicates...)
	preds = append(preds, Predicate{Field: field, Op: op, Value: value})
	q.Predicates = preds
	return q
}

// OrderBy sets the result ordering.
func (q Query) OrderBy(field string, dir Direction) Query {
	q.Order = &Order{Field: field, Direction: dir}
	return q
}

// Validate checks the query shape before it reaches a backend.
func (q Query) Validate() error {
	if !validCollection(q.Collection) {
		return opErr("docstore.Query", ErrInvalidQuery, fmt.Sprintf("bad collection %q", q.Collection))
	}
	for _, p := range q.Predicates {
		if strings.TrimSpace(p.Field) == "" {
			return opErr("docstore.Query", ErrInvalidQuery, "empty predicate field")
		}
		switch p.Op {
		case OpEqual, OpArrayContains:
		default:
			return opErr("docstore.Query", ErrInvalidQuery, fmt.Sprintf("unsupported op %q", p.Op))
		}
		if !isScalar(p.Value) {
			return opErr("docstore.Query", ErrInvalidQuery, fmt.Sprintf("non-scalar value for %q", p.Field))
		}
	}
	if q.Order != nil && strings.TrimSpace(q.Order.Field) == "" {
		return opErr("docstore.Query", ErrInvalidQuery, "empty order field")
	}
	return nil
}

// String renders the query for logs.
func (q Query) String() string {
	var b strings.Builder
	b.WriteString(q.Collection)
	for _, p := range q.Predicates {
		fmt.Fprintf(&b, " where %s %s %v", p.Field, p.Op, p.Value)
	}
	if q.Order != nil {
		fmt.Fprintf(&b, " order by %s %s", q.Order.Field, q.Order.Direction)
	}
	return b.String()
}

// Matches reports whether doc satisfies every predicate.
func (q Query) Matches(doc Document) bool {
	for _, p := range q.Predicates {
		v, ok := doc.Data[p.Field]
		if !ok {
			return false
		}
		switch p.Op {
		case OpEqual:
			if compareValues(v, p.Value) != 0 || kindRank(v) != kindRank(p.Value) {
				return false
			}
		case OpArrayContains:
			if !arrayContains(v, p.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// sortDocuments orders docs per q.Order, falling back to insertion order.
func sortDocuments(docs []Document, order *Order) {
	sort.SliceStable(docs, func(i, j int) bool {
		if order != nil {
			c := compareValues(docs[i].Data[order.Field], docs[j].Data[order.Field])
			if order.Direction == Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return docs[i].Seq < docs[j].Seq
	})
}

func arrayContains(arr, want any) bool {
	switch a := arr.(type) {
	case []any:
		for _, e := range a {
			if kindRank(e) == kindRank(want) && compareValues(e, want) == 0 {
				return true
			}
		}
	case []string:
		s, ok := want.(string)
		if !ok {
			return false
		}
		for _, e := range a {
			if e == s {
				return true
			}
		}
	}
	return false
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, int, int32, int64, float32, float64, uint, uint32, uint64:
		return true
	default:
		return false
	}
}

// kindRank orders values of different kinds: missing < bool < number < string < other.
func kindRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int, int32, int64, float32, float64, uint, uint32, uint64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

// compareValues returns -1/0/+1. Missing values sort before everything else.
func compareValues(a, b any) int {
	ra, rb := kindRank(a), kindRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 0:
		return 0
	case 1:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case 2:
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	case 3:
		return strings.Compare(a.(string), b.(string))
	default:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}
