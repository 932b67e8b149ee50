package model

import "strings"

// Relative ordering of value types for cross-type comparisons, matching
// the server's index ordering: null < bool < number < string < list.
const (
	typeOrderNull = iota
	typeOrderBool
	typeOrderNumber
	typeOrderString
	typeOrderList
	typeOrderObject
)

func typeOrder(v interface{}) int {
	switch v.(type) {
	case nil:
		return typeOrderNull
	case bool:
		return typeOrderBool
	case int, int32, int64, float32, float64:
		return typeOrderNumber
	case string:
		return typeOrderString
	case []interface{}:
		return typeOrderList
	default:
		return typeOrderObject
	}
}

func numericValue(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

// CompareValues orders two field values. Values of different types order
// by type; values of the same type order naturally. Unknown types compare
// equal, which keeps the ordering stable even if it is not meaningful.
func CompareValues(a, b interface{}) int {
	ta, tb := typeOrder(a), typeOrder(b)
	if ta != tb {
		if ta < tb {
			return -1
		}
		return 1
	}
	switch ta {
	case typeOrderNull:
		return 0
	case typeOrderBool:
		av, bv := a.(bool), b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	case typeOrderNumber:
		av, bv := numericValue(a), numericValue(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case typeOrderString:
		return strings.Compare(a.(string), b.(string))
	case typeOrderList:
		av, bv := a.([]interface{}), b.([]interface{})
		for i := 0; i < len(av) && i < len(bv); i++ {
			if c := CompareValues(av[i], bv[i]); c != 0 {
				return c
			}
		}
		switch {
		case len(av) < len(bv):
			return -1
		case len(av) > len(bv):
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

// ValuesEqual reports whether two field values compare equal.
func ValuesEqual(a, b interface{}) bool {
	return typeOrder(a) == typeOrder(b) && CompareValues(a, b) == 0
}
