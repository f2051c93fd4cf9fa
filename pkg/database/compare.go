package database

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

// CompareKeys orders child keys: keys that parse as 32-bit integers come
// first in numeric order, then the remaining keys lexicographically.
func CompareKeys(a, b string) int {
	ai, aok := intKey(a)
	bi, bok := intKey(b)
	switch {
	case aok && bok:
		return cmpInt64(ai, bi)
	case aok:
		return -1
	case bok:
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// SortedKeys returns the keys of m in CompareKeys order.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return CompareKeys(keys[i], keys[j]) < 0 })
	return keys
}

func intKey(k string) (int64, bool) {
	n, err := strconv.ParseInt(k, 10, 32)
	if err != nil {
		return 0, false
	}
	// Reject forms like "01" or "+1" that would not round trip.
	if strconv.FormatInt(n, 10) != k {
		return 0, false
	}
	return n, true
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// type ranks used by CompareValues
const (
	rankNull = iota
	rankFalse
	rankTrue
	rankNumber
	rankString
	rankObject
)

func rank(v any) int {
	switch x := v.(type) {
	case nil:
		return rankNull
	case bool:
		if x {
			return rankTrue
		}
		return rankFalse
	case string:
		return rankString
	case map[string]any, []any:
		return rankObject
	}
	if _, ok := toFloat(v); ok {
		return rankNumber
	}
	return rankObject
}

// CompareValues orders values the way the store orders them:
// null, false, true, numbers ascending, strings lexicographically, then
// objects, which compare equal to each other.
func CompareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmpInt64(int64(ra), int64(rb))
	}
	switch ra {
	case rankNumber:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
	case rankString:
		sa, sb := a.(string), b.(string)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		}
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil && !math.IsNaN(f)
	}
	return 0, false
}
