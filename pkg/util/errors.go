package util

import "fmt"

// WrapError annotates err with message, preserving the chain for errors.Is/As.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
