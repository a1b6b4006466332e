package helper

import "fmt"

// NewError wraps err with the operation that failed.
// The returned error unwraps to err, so errors.Is and errors.As keep working.
func NewError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("error %s: %w", operation, err)
}
