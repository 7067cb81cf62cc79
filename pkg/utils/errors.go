package utils

import (
	"fmt"
)

// MakeError wraps a sentinel error with formatted detail. The result matches
// the sentinel under errors.Is.
func MakeError(err error, detailsBody string, args ...any) error {
	return fmt.Errorf("%w: "+detailsBody, append([]any{err}, args...)...)
}
