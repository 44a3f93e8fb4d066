package match

import (
	"math"
	"reflect"
)

// undefined marks a path that does not exist in the entry. It is distinct
// from an explicit null so that {"$exists": false} and {"$eq": nil} don't
// collapse into each other.
type undefined struct{}

func isUndefined(v interface{}) bool {
	_, ok := v.(undefined)
	return ok
}

// isSequence reports whether v is a list-like value. Strings and byte
// slices are scalars as far as queries are concerned.
func isSequence(v interface{}) bool {
	switch v.(type) {
	case nil, string, []byte:
		return false
	case []interface{}:
		return true
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// asSequence returns v as a []interface{}, converting other slice kinds
// through reflection when needed.
func asSequence(v interface{}) ([]interface{}, bool) {
	if s, ok := v.([]interface{}); ok {
		return s, true
	}
	if !isSequence(v) {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func isMapping(v interface{}) bool {
	_, ok := v.(map[string]interface{})
	return ok
}

// asFloat coerces any numeric type to float64 so that values decoded from
// JSON (float64), YAML (int) and Go literals compare consistently.
func asFloat(v interface{}) (float64, bool) {
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
	}
	return 0, false
}

func asInt(v interface{}) (int, bool) {
	f, ok := asFloat(v)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// equals compares two values the way a query does: numbers by value
// regardless of their Go type, sequences element by element, mappings key
// by key. Mismatched kinds are simply unequal, never an error.
func equals(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if isUndefined(a) || isUndefined(b) {
		return isUndefined(a) && isUndefined(b)
	}
	if af, ok := asFloat(a); ok {
		bf, ok := asFloat(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, present := bv[k]
			if !present || !equals(v, w) {
				return false
			}
		}
		return true
	}
	as, aok := asSequence(a)
	bs, bok := asSequence(b)
	if aok || bok {
		if !aok || !bok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !equals(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two values. ok is false when they aren't mutually
// orderable, which matchers treat as "does not match" rather than an error.
func compare(a, b interface{}) (int, bool) {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		if !bok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// sequenceContains reports whether seq has an element equal to v.
func sequenceContains(seq []interface{}, v interface{}) bool {
	for _, elem := range seq {
		if equals(elem, v) {
			return true
		}
	}
	return false
}

// truthy applies the loose boolean coercion queries expect for arguments
// like the $exists flag. nil, false, zero, empty strings and empty
// containers are false; everything else is true.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case map[string]interface{}:
		return len(t) > 0
	}
	if f, ok := asFloat(v); ok {
		return f != 0
	}
	if seq, ok := asSequence(v); ok {
		return len(seq) > 0
	}
	return true
}

// floorMod is the floored modulo: the result takes the divisor's sign,
// so floorMod(-7, 3) is 2 rather than -1.
func floorMod(a, b float64) float64 {
	m := math.Mod(a, b)
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}
