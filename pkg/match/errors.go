package match

import "fmt"

// QueryError reports a malformed or unsupported query document. Matching a
// well-formed query never produces an error, whatever the entry looks like.
type QueryError struct {
	Message string
}

func (e *QueryError) Error() string {
	return e.Message
}

func queryErrorf(format string, v ...interface{}) *QueryError {
	return &QueryError{Message: fmt.Sprintf(format, v...)}
}
