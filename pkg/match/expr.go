package match

import "strings"

// opExpr implements $expr. Arguments are aggregation expressions: a
// "$field" string resolves to the value at that path, literals stand for
// themselves, and single-operator mappings compute derived values.
func (q *Query) opExpr(condition, entry interface{}) (bool, error) {
	cm, ok := condition.(map[string]interface{})
	if !ok {
		return false, queryErrorf("$expr has been attributed incorrect argument %v", condition)
	}
	for operator, sub := range cm {
		matched, err := q.processExprCondition(operator, sub, entry)
		if err != nil || !matched {
			return false, err
		}
	}
	return true, nil
}

func (q *Query) processExprCondition(operator string, condition, entry interface{}) (bool, error) {
	if !strings.HasPrefix(operator, "$") {
		return false, queryErrorf("%q operator in $expr isn't supported", operator)
	}
	seq, ok := asSequence(condition)
	if !ok {
		return false, queryErrorf("%q in $expr has been attributed incorrect argument %v", operator, condition)
	}
	switch operator {
	case "$eq", "$gt", "$gte", "$in", "$lt", "$lte", "$ne", "$nin":
		if len(seq) != 2 {
			return false, queryErrorf("%q in $expr takes exactly two arguments", operator)
		}
		left, err := q.resolveExpr(seq[0], entry)
		if err != nil {
			return false, err
		}
		right, err := q.resolveExpr(seq[1], entry)
		if err != nil {
			return false, err
		}
		// Resolved left-hand side plays the entry, right-hand side the
		// condition, so {"$gt": ["$qty", 250]} asks qty > 250.
		return q.dispatch(operator, right, left)
	}
	result, err := q.evalExprOperator(operator, condition, entry)
	if err != nil {
		return false, err
	}
	return truthy(result), nil
}

func (q *Query) evalExprOperator(operator string, condition, entry interface{}) (interface{}, error) {
	switch operator {
	case "$concat":
		return q.exprConcat(condition, entry)
	}
	return nil, queryErrorf("%q operator in $expr isn't supported", operator)
}

func (q *Query) exprConcat(condition, entry interface{}) (interface{}, error) {
	seq, ok := asSequence(condition)
	if !ok {
		return nil, queryErrorf("$concat has been attributed incorrect argument %v", condition)
	}
	var sb strings.Builder
	for _, sub := range seq {
		resolved, err := q.resolveExpr(sub, entry)
		if err != nil {
			return nil, err
		}
		s, ok := resolved.(string)
		if !ok {
			return nil, queryErrorf("$concat with non-string references")
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}

func (q *Query) resolveExpr(condition, entry interface{}) (interface{}, error) {
	if cm, ok := condition.(map[string]interface{}); ok {
		if len(cm) != 1 {
			return nil, queryErrorf("expression %v must hold a single operator", condition)
		}
		for operator, sub := range cm {
			return q.evalExprOperator(operator, sub, entry)
		}
	}
	if seq, ok := asSequence(condition); ok {
		out := make([]interface{}, len(seq))
		for i, sub := range seq {
			resolved, err := q.resolveExpr(sub, entry)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	}
	if s, ok := condition.(string); ok && strings.HasPrefix(s, "$") {
		value, err := q.extract(entry, strings.Split(s[1:], "."))
		if err != nil {
			return undefined{}, nil
		}
		return value, nil
	}
	return condition, nil
}
