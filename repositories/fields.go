package repositories

import (
	"roomsync/contract"
	"roomsync/domain"
	"time"

	"github.com/samber/lo"
)

// Decoded documents carry float64 numbers, []any lists and map[string]any
// maps. Missing or mistyped fields read as zero values.

func str(f contract.Fields, key string) string {
	s, _ := f[key].(string)
	return s
}

func boolean(f contract.Fields, key string) bool {
	b, _ := f[key].(bool)
	return b
}

func integer(f contract.Fields, key string) int {
	n, _ := f[key].(float64)
	return int(n)
}

func timestamp(f contract.Fields, key string) time.Time {
	t, _ := f[key].(time.Time)
	return t
}

func userIDs(f contract.Fields, key string) []domain.UserID {
	items, _ := f[key].([]any)
	return lo.FilterMap(items, func(item any, _ int) (domain.UserID, bool) {
		s, ok := item.(string)
		return domain.UserID(s), ok
	})
}

func userTimes(f contract.Fields, key string) map[domain.UserID]time.Time {
	raw, _ := f[key].(map[string]any)
	out := make(map[domain.UserID]time.Time, len(raw))
	for k, v := range raw {
		if t, ok := v.(time.Time); ok {
			out[domain.UserID(k)] = t
		}
	}
	return out
}

func toStrings[T ~string](ids []T) []string {
	return lo.Map(ids, func(id T, _ int) string { return string(id) })
}

// timeOrNull stores a zero time as null.
func timeOrNull(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
