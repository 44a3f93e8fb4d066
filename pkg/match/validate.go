package match

import (
	"regexp"
	"strings"
)

// Validate checks that the query document is well formed without matching
// it against anything: every $-operator must be supported and carry an
// argument of the right shape. Configuration loading calls this so that a
// broken filter fails at load time instead of on the first event.
func (q *Query) Validate() error {
	return validateCondition(q.definition)
}

func validateCondition(condition interface{}) error {
	cm, ok := condition.(map[string]interface{})
	if !ok {
		return nil
	}
	for operator, arg := range cm {
		if !strings.HasPrefix(operator, "$") {
			if err := validateCondition(arg); err != nil {
				return err
			}
			continue
		}
		if err := validateOperator(operator, arg); err != nil {
			return err
		}
	}
	return nil
}

func validateOperator(operator string, arg interface{}) error {
	switch operator {
	case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte", "$exists", "$comment":
		return nil
	case "$in", "$nin":
		if _, ok := asSequence(arg); !ok {
			return queryErrorf("%s condition must be a list, got %v", operator, arg)
		}
		return nil
	case "$and", "$or", "$nor":
		seq, ok := asSequence(arg)
		if !ok {
			return queryErrorf("%s has been attributed incorrect argument %v", operator, arg)
		}
		for _, sub := range seq {
			if err := validateCondition(sub); err != nil {
				return err
			}
		}
		return nil
	case "$not":
		return validateCondition(arg)
	case "$all":
		seq, ok := asSequence(arg)
		if !ok {
			return queryErrorf("$all has been attributed incorrect argument %v", arg)
		}
		for _, sub := range seq {
			if err := validateCondition(sub); err != nil {
				return err
			}
		}
		return nil
	case "$elemMatch":
		if _, ok := arg.(map[string]interface{}); !ok {
			return queryErrorf("$elemMatch has been attributed incorrect argument %v", arg)
		}
		return validateCondition(arg)
	case "$size":
		if _, ok := asInt(arg); !ok {
			return queryErrorf("$size has been attributed incorrect argument %v", arg)
		}
		return nil
	case "$type":
		if alias, ok := arg.(string); ok {
			if alias == "number" {
				return nil
			}
			if _, known := bsonAliases[alias]; !known {
				return queryErrorf("$type has been used with unknown type %q", alias)
			}
			return nil
		}
		code, ok := asInt(arg)
		if !ok {
			return queryErrorf("$type has been used with unknown type %v", arg)
		}
		if _, known := typeMatches(code, nil); !known {
			return queryErrorf("$type has been used with unknown type %v", arg)
		}
		return nil
	case "$mod":
		seq, ok := asSequence(arg)
		if !ok || len(seq) < 2 {
			return queryErrorf("$mod has been attributed incorrect argument %v", arg)
		}
		divisor, dok := asFloat(seq[0])
		_, rok := asFloat(seq[1])
		if !dok || !rok || divisor == 0 {
			return queryErrorf("$mod has been attributed incorrect argument %v", arg)
		}
		return nil
	case "$regex":
		if _, ok := arg.(*regexp.Regexp); ok {
			return nil
		}
		pattern, ok := arg.(string)
		if !ok {
			return queryErrorf("%v is not a regular expression and should be a string", arg)
		}
		_, err := compileRegexCondition(pattern)
		return err
	case "$expr":
		return validateExpr(arg)
	case "$where", "$text", "$options":
		return queryErrorf("%q operator isn't implemented", operator)
	}
	return queryErrorf("%q operator isn't supported", operator)
}

func validateExpr(arg interface{}) error {
	cm, ok := arg.(map[string]interface{})
	if !ok {
		return queryErrorf("$expr has been attributed incorrect argument %v", arg)
	}
	for operator, sub := range cm {
		if !strings.HasPrefix(operator, "$") {
			return queryErrorf("%q operator in $expr isn't supported", operator)
		}
		seq, ok := asSequence(sub)
		if !ok {
			return queryErrorf("%q in $expr has been attributed incorrect argument %v", operator, sub)
		}
		switch operator {
		case "$eq", "$gt", "$gte", "$in", "$lt", "$lte", "$ne", "$nin":
			if len(seq) != 2 {
				return queryErrorf("%q in $expr takes exactly two arguments", operator)
			}
		case "$concat":
		default:
			return queryErrorf("%q operator in $expr isn't supported", operator)
		}
	}
	return nil
}
