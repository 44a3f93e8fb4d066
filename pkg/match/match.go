// Package match evaluates MongoDB-style query documents against plain Go
// values, such as decoded JSON event payloads. A query is itself a plain
// document, so filters written in YAML or JSON can be compiled once and
// matched many times.
package match

import (
	"errors"
	"strconv"
	"strings"
)

// errIndexRange aborts an extraction whose path indexes past the end of a
// list. The caller treats the whole path as undefined.
var errIndexRange = errors.New("list index out of range")

// Query matches entries against the query document given to NewQuery.
type Query struct {
	definition interface{}
}

// NewQuery compiles a query document. The document may come straight from
// a YAML or JSON decoder; map keys are normalized to strings.
func NewQuery(definition interface{}) *Query {
	return &Query{definition: Normalize(definition)}
}

// Match reports whether entry satisfies the query. It only returns an
// error when the query document itself is malformed or uses an
// unsupported operator.
func (q *Query) Match(entry interface{}) (bool, error) {
	return q.match(q.definition, Normalize(entry))
}

func (q *Query) match(condition, entry interface{}) (bool, error) {
	if cm, ok := condition.(map[string]interface{}); ok {
		for operator, sub := range cm {
			matched, err := q.processCondition(operator, sub, entry)
			if err != nil || !matched {
				return false, err
			}
		}
		return true, nil
	}
	if seq, ok := asSequence(entry); ok {
		return sequenceContains(seq, condition), nil
	}
	return equals(condition, entry), nil
}

func (q *Query) processCondition(operator string, condition, entry interface{}) (bool, error) {
	if cm, ok := condition.(map[string]interface{}); ok {
		if existsArg, has := cm["$exists"]; has {
			want := truthy(existsArg)
			if strings.Contains(operator, ".") {
				return q.pathExists(operator, want, entry), nil
			}
			if want != keyExists(operator, entry) {
				return false, nil
			}
			if len(cm) == 1 {
				return true, nil
			}
		}
	}
	if strings.HasPrefix(operator, "$") {
		return q.dispatch(operator, condition, entry)
	}
	extracted, err := q.extract(entry, strings.Split(operator, "."))
	if err != nil {
		extracted = undefined{}
	}
	return q.match(condition, extracted)
}

// extract walks a dotted path into entry. Path segments index into
// mappings by key and into lists by integer position; a non-numeric
// segment applied to a list fans out over its elements and collects the
// results. Missing keys yield the undefined sentinel.
func (q *Query) extract(entry interface{}, path []string) (interface{}, error) {
	if len(path) == 0 {
		return entry, nil
	}
	if entry == nil {
		return nil, nil
	}
	if seq, ok := asSequence(entry); ok {
		index, err := strconv.Atoi(path[0])
		if err != nil {
			out := make([]interface{}, len(seq))
			for i, item := range seq {
				value, err := q.extract(item, path)
				if err != nil {
					return nil, err
				}
				out[i] = value
			}
			return out, nil
		}
		if index < 0 {
			index += len(seq)
		}
		if index < 0 || index >= len(seq) {
			return nil, errIndexRange
		}
		return q.extract(seq[index], path[1:])
	}
	if m, ok := entry.(map[string]interface{}); ok {
		if value, present := m[path[0]]; present {
			return q.extract(value, path[1:])
		}
	}
	return undefined{}, nil
}

// pathExists implements $exists for dotted paths. want is the coerced
// $exists argument; lists fan out, and the first element whose subtree
// answers want settles the question.
func (q *Query) pathExists(path string, want bool, entry interface{}) bool {
	keys := strings.Split(path, ".")
	for i, key := range keys {
		if seq, ok := asSequence(entry); ok {
			if !isDigits(key) {
				rest := strings.Join(keys[i:], ".")
				for _, elem := range seq {
					if q.pathExists(rest, want, elem) == want {
						return want
					}
				}
				return !want
			}
			index, _ := strconv.Atoi(key)
			if index >= len(seq) {
				return !want
			}
			entry = seq[index]
			continue
		}
		m, ok := entry.(map[string]interface{})
		if !ok {
			return !want
		}
		value, present := m[key]
		if !present {
			return !want
		}
		entry = value
	}
	return want
}

// keyExists reports whether a top-level key is present in entry: a key
// for mappings, an element for lists, a substring for strings.
func keyExists(key string, entry interface{}) bool {
	switch t := entry.(type) {
	case map[string]interface{}:
		_, present := t[key]
		return present
	case string:
		return strings.Contains(t, key)
	}
	if seq, ok := asSequence(entry); ok {
		return sequenceContains(seq, key)
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
