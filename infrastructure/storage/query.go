package storage

import (
	"cmp"
	"roomsync/contract"
	"slices"
	"strings"
	"time"
)

// lookup resolves a dotted field path inside a document.
func lookup(fields map[string]any, path string) (any, bool) {
	var current any = fields
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case contract.Fields:
		return m, true
	default:
		return nil, false
	}
}

// assign sets a dotted field path, creating intermediate maps.
func assign(fields map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := fields
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(current[part])
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// merge applies a partial write on top of existing fields.
// Nested maps are merged key by key, every other value is replaced.
func merge(existing, partial map[string]any) map[string]any {
	out := cloneMap(existing)
	for k, v := range partial {
		if strings.Contains(k, ".") {
			assign(out, k, v)
			continue
		}
		incoming, isMap := asMap(v)
		current, wasMap := asMap(out[k])
		if isMap && wasMap {
			out[k] = merge(current, incoming)
			continue
		}
		out[k] = v
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := asMap(v); ok {
			out[k] = cloneMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// typeRank orders values of different kinds: null < bool < number < string < time < others.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	case time.Time:
		return 4
	default:
		return 5
	}
}

func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		return cmp.Compare(av, b.(float64))
	case string:
		return strings.Compare(av, b.(string))
	case time.Time:
		return av.Compare(b.(time.Time))
	default:
		return 0
	}
}

func matches(fields map[string]any, filters []contract.Filter) bool {
	for _, f := range filters {
		value, found := lookup(fields, f.Field)
		if !found {
			return false
		}
		if !matchFilter(value, f) {
			return false
		}
	}
	return true
}

func matchFilter(value any, f contract.Filter) bool {
	if f.Op == contract.OpArrayContains {
		items, ok := value.([]any)
		if !ok {
			return false
		}
		return slices.ContainsFunc(items, func(item any) bool {
			return typeRank(item) == typeRank(f.Value) && compareValues(item, f.Value) == 0
		})
	}
	if typeRank(value) != typeRank(f.Value) {
		return false
	}
	c := compareValues(value, f.Value)
	switch f.Op {
	case contract.OpEqual:
		return c == 0
	case contract.OpGreater:
		return c > 0
	case contract.OpGreaterEqual:
		return c >= 0
	case contract.OpLess:
		return c < 0
	case contract.OpLessEqual:
		return c <= 0
	default:
		return false
	}
}

// sortDocuments orders by the query orders, then by id ascending.
func sortDocuments(docs []contract.Document, orders []contract.Order) {
	slices.SortStableFunc(docs, func(a, b contract.Document) int {
		for _, o := range orders {
			va, _ := lookup(a.Fields, o.Field)
			vb, _ := lookup(b.Fields, o.Field)
			c := compareValues(va, vb)
			if o.Direction == contract.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return strings.Compare(a.ID, b.ID)
	})
}
