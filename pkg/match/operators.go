package match

import (
	"regexp"
	"strings"
)

func (q *Query) dispatch(operator string, condition, entry interface{}) (bool, error) {
	switch operator {
	case "$eq":
		return equals(condition, entry), nil
	case "$ne":
		return !equals(condition, entry), nil
	case "$gt":
		c, ok := compare(entry, condition)
		return ok && c > 0, nil
	case "$gte":
		c, ok := compare(entry, condition)
		return ok && c >= 0, nil
	case "$lt":
		c, ok := compare(entry, condition)
		return ok && c < 0, nil
	case "$lte":
		c, ok := compare(entry, condition)
		return ok && c <= 0, nil
	case "$in":
		return q.opIn(condition, entry)
	case "$nin":
		matched, err := q.opIn(condition, entry)
		return !matched && err == nil, err
	case "$and":
		return q.opAnd(condition, entry)
	case "$or":
		return q.opOr(condition, entry)
	case "$nor":
		return q.opNor(condition, entry)
	case "$not":
		matched, err := q.match(condition, entry)
		if err != nil {
			return false, err
		}
		return !matched, nil
	case "$exists", "$comment":
		return true, nil
	case "$type":
		return q.opType(condition, entry)
	case "$mod":
		return q.opMod(condition, entry)
	case "$regex":
		return q.opRegex(condition, entry)
	case "$all":
		return q.opAll(condition, entry)
	case "$elemMatch":
		return q.opElemMatch(condition, entry)
	case "$size":
		return q.opSize(condition, entry)
	case "$expr":
		return q.opExpr(condition, entry)
	case "$where", "$text", "$options":
		return false, queryErrorf("%q operator isn't implemented", operator)
	}
	return false, queryErrorf("%q operator isn't supported", operator)
}

func (q *Query) opIn(condition, entry interface{}) (bool, error) {
	seq, ok := asSequence(condition)
	if !ok {
		return false, queryErrorf("$in condition must be a list, got %v", condition)
	}
	entrySeq, entryIsSeq := asSequence(entry)
	for _, elem := range seq {
		if entryIsSeq {
			if sequenceContains(entrySeq, elem) {
				return true, nil
			}
		} else if equals(elem, entry) {
			return true, nil
		}
	}
	return false, nil
}

func (q *Query) opAnd(condition, entry interface{}) (bool, error) {
	seq, ok := asSequence(condition)
	if !ok {
		return false, queryErrorf("$and has been attributed incorrect argument %v", condition)
	}
	for _, sub := range seq {
		matched, err := q.match(sub, entry)
		if err != nil || !matched {
			return false, err
		}
	}
	return true, nil
}

func (q *Query) opOr(condition, entry interface{}) (bool, error) {
	seq, ok := asSequence(condition)
	if !ok {
		return false, queryErrorf("$or has been attributed incorrect argument %v", condition)
	}
	for _, sub := range seq {
		matched, err := q.match(sub, entry)
		if err != nil {
			return false, err
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

func (q *Query) opNor(condition, entry interface{}) (bool, error) {
	seq, ok := asSequence(condition)
	if !ok {
		return false, queryErrorf("$nor has been attributed incorrect argument %v", condition)
	}
	for _, sub := range seq {
		matched, err := q.match(sub, entry)
		if err != nil || matched {
			return false, err
		}
	}
	return true, nil
}

// BSON type codes, resolved from their string aliases. Entries decoded
// from JSON carry float64 for every number, so "number" is the reliable
// way to match numerics there.
var bsonAliases = map[string]int{
	"double":              1,
	"string":              2,
	"object":              3,
	"array":               4,
	"binData":             5,
	"objectId":            7,
	"bool":                8,
	"date":                9,
	"null":                10,
	"regex":               11,
	"javascript":          13,
	"javascriptWithScope": 15,
	"int":                 16,
	"timestamp":           17,
	"long":                18,
}

func (q *Query) opType(condition, entry interface{}) (bool, error) {
	if alias, ok := condition.(string); ok {
		if alias == "number" {
			_, isNumber := asFloat(entry)
			return isNumber, nil
		}
		code, known := bsonAliases[alias]
		if !known {
			return false, queryErrorf("$type has been used with unknown type %q", alias)
		}
		matched, _ := typeMatches(code, entry)
		return matched, nil
	}
	code, ok := asInt(condition)
	if !ok {
		return false, queryErrorf("$type has been used with unknown type %v", condition)
	}
	matched, known := typeMatches(code, entry)
	if !known {
		return false, queryErrorf("$type has been used with unknown type %v", condition)
	}
	return matched, nil
}

func typeMatches(code int, entry interface{}) (matched, known bool) {
	switch code {
	case 1: // double
		switch entry.(type) {
		case float32, float64:
			return true, true
		}
		return false, true
	case 2, 7, 9, 13, 15: // string-backed types
		_, ok := entry.(string)
		return ok, true
	case 3: // object
		return isMapping(entry), true
	case 4: // array
		return isSequence(entry), true
	case 5: // binData
		_, ok := entry.([]byte)
		return ok, true
	case 8: // bool
		_, ok := entry.(bool)
		return ok, true
	case 10: // null
		return entry == nil, true
	case 11: // regex
		_, ok := entry.(*regexp.Regexp)
		return ok, true
	case 16, 17, 18: // int, timestamp, long
		switch entry.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true, true
		}
		return false, true
	}
	return false, false
}

func (q *Query) opMod(condition, entry interface{}) (bool, error) {
	seq, ok := asSequence(condition)
	if !ok || len(seq) < 2 {
		return false, queryErrorf("$mod has been attributed incorrect argument %v", condition)
	}
	divisor, dok := asFloat(seq[0])
	remainder, rok := asFloat(seq[1])
	if !dok || !rok || divisor == 0 {
		return false, queryErrorf("$mod has been attributed incorrect argument %v", condition)
	}
	value, ok := asFloat(entry)
	if !ok {
		return false, nil
	}
	return floorMod(value, divisor) == remainder, nil
}

// regexOptions recognizes the /pattern/opts query form. The pattern part
// is greedy so the last slash splits pattern from options.
var regexOptions = regexp.MustCompile(`(?s)\A/(.+)/([imsx]{0,4})\z`)

func (q *Query) opRegex(condition, entry interface{}) (bool, error) {
	s, ok := entry.(string)
	if !ok {
		return false, nil
	}
	if re, ok := condition.(*regexp.Regexp); ok {
		return re.MatchString(s), nil
	}
	pattern, ok := condition.(string)
	if !ok {
		return false, queryErrorf("%v is not a regular expression and should be a string", condition)
	}
	re, err := compileRegexCondition(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(s), nil
}

func compileRegexCondition(pattern string) (*regexp.Regexp, error) {
	expr := pattern
	if m := regexOptions.FindStringSubmatch(pattern); m != nil {
		expr = m[1]
		if flags := m[2]; flags != "" {
			if strings.Contains(flags, "x") {
				return nil, queryErrorf("%q uses the x regex option, which isn't supported", pattern)
			}
			expr = "(?" + flags + ")" + expr
		}
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, queryErrorf("%q failed to compile: %v", pattern, err)
	}
	return re, nil
}

func (q *Query) opAll(condition, entry interface{}) (bool, error) {
	seq, ok := asSequence(condition)
	if !ok {
		return false, queryErrorf("$all has been attributed incorrect argument %v", condition)
	}
	for _, item := range seq {
		matched, err := q.match(item, entry)
		if err != nil || !matched {
			return false, err
		}
	}
	return true, nil
}

func (q *Query) opElemMatch(condition, entry interface{}) (bool, error) {
	cm, ok := condition.(map[string]interface{})
	if !ok {
		return false, queryErrorf("$elemMatch has been attributed incorrect argument %v", condition)
	}
	seq, ok := asSequence(entry)
	if !ok {
		return false, nil
	}
	for _, element := range seq {
		all := true
		for operator, sub := range cm {
			matched, err := q.processCondition(operator, sub, element)
			if err != nil {
				return false, err
			}
			if !matched {
				all = false
				break
			}
		}
		if all {
			return true, nil
		}
	}
	return false, nil
}

func (q *Query) opSize(condition, entry interface{}) (bool, error) {
	want, ok := asInt(condition)
	if !ok {
		return false, queryErrorf("$size has been attributed incorrect argument %v", condition)
	}
	seq, ok := asSequence(entry)
	if !ok {
		return false, nil
	}
	return len(seq) == want, nil
}
