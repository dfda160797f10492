package watcher

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
)

type Comparator string

const (
	CompareEquals            Comparator = "equals"
	CompareNotEquals         Comparator = "notEquals"
	CompareTruthy            Comparator = "truthy"
	CompareFalsy             Comparator = "falsy"
	CompareContains          Comparator = "contains"
	CompareGreaterThan       Comparator = "greaterThan"
	CompareLessThan          Comparator = "lessThan"
	CompareLengthEquals      Comparator = "lengthEquals"
	CompareLengthGreaterThan Comparator = "lengthGreaterThan"
)

type compareFunc func(actual, expected any) bool

var comparators = map[Comparator]compareFunc{
	CompareEquals:    looseEqual,
	CompareNotEquals: func(a, e any) bool { return !looseEqual(a, e) },
	CompareTruthy:    func(a, _ any) bool { return truthy(a) },
	CompareFalsy:     func(a, _ any) bool { return !truthy(a) },
	CompareContains:  contains,
	CompareGreaterThan: func(a, e any) bool {
		x, okA := number(a)
		y, okE := number(e)

		return okA && okE && x > y
	},
	CompareLessThan: func(a, e any) bool {
		x, okA := number(a)
		y, okE := number(e)

		return okA && okE && x < y
	},
	CompareLengthEquals: func(a, e any) bool {
		n, okA := length(a)
		y, okE := number(e)

		return okA && okE && float64(n) == y
	},
	CompareLengthGreaterThan: func(a, e any) bool {
		n, okA := length(a)
		y, okE := number(e)

		return okA && okE && float64(n) > y
	},
}

// Compare evaluates actual against expected with the named comparator.
func Compare(c Comparator, actual, expected any) (bool, error) {
	fn, ok := comparators[c]
	if !ok {
		return false, fmt.Errorf("unknown comparator %q", c)
	}

	return fn(actual, expected), nil
}

// number normalizes the numeric types a store or a JSON file can produce.
func number(v any) (float64, bool) {
	switch n := v.(type) {
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
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()

		return f, err == nil
	}

	return 0, false
}

func looseEqual(a, b any) bool {
	x, okA := number(a)
	y, okB := number(b)
	if okA && okB {
		return x == y
	}

	return reflect.DeepEqual(a, b)
}

// truthy follows the page's scripting rules: nil, false, 0, NaN and "" are falsy.
func truthy(v any) bool {
	if v == nil {
		return false
	}

	if n, ok := number(v); ok {
		return n != 0 && !math.IsNaN(n)
	}

	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	}

	return true
}

func contains(actual, expected any) bool {
	switch a := actual.(type) {
	case string:
		s, ok := expected.(string)

		return ok && strings.Contains(a, s)
	case []any:
		for _, item := range a {
			if looseEqual(item, expected) {
				return true
			}
		}

		return false
	case map[string]any:
		key, ok := expected.(string)
		if !ok {
			return false
		}
		_, found := a[key]

		return found
	}

	return false
}

func length(v any) (int, bool) {
	switch t := v.(type) {
	case string:
		return len([]rune(t)), true
	case []any:
		return len(t), true
	case map[string]any:
		return len(t), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), true
	}

	return 0, false
}
