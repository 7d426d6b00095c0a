package contract

import (
	"errors"
	"strings"
	"time"
)

var ErrDocumentNotFound = errors.New("document not found")

// Fields is the content of a document. Supported values are nil, string,
// bool, int, int64, float64, time.Time, []string, []any, map[string]any,
// Fields and ServerTime.
type Fields map[string]any

// Document is one stored record addressed by a slash separated path,
// e.g. "rooms/r1/messages/m1".
type Document struct {
	ID     string
	Path   string
	Fields Fields
}

// Path joins segments into a document or collection path.
func Path(segments ...string) string {
	return strings.Join(segments, "/")
}

// ServerTime is a placeholder resolved by the store to its own clock when
// the write commits, so ordering does not depend on client clocks.
type ServerTime struct {
	Offset time.Duration
}

func ServerTimestamp() ServerTime { return ServerTime{} }

// ServerTimestampAfter resolves to the store clock plus d.
func ServerTimestampAfter(d time.Duration) ServerTime { return ServerTime{Offset: d} }

type Op string

const (
	OpEqual         Op = "=="
	OpGreater       Op = ">"
	OpGreaterEqual  Op = ">="
	OpLess          Op = "<"
	OpLessEqual     Op = "<="
	OpArrayContains Op = "array-contains"
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

type Direction int

const (
	Asc Direction = iota
	Desc
)

type Order struct {
	Field     string
	Direction Direction
}

// Query selects the direct children of a collection. Results are ordered by
// Orders then by document id ascending.
type Query struct {
	Collection string
	Filters    []Filter
	Orders     []Order
	Limit      int
}

func NewQuery(collection string) Query {
	return Query{Collection: collection}
}

func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

func (q Query) OrderBy(field string, direction Direction) Query {
	q.Orders = append(append([]Order(nil), q.Orders...), Order{Field: field, Direction: direction})
	return q
}

func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}
