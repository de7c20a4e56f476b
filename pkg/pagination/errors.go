package pagination

import "fmt"

// PageError reports a failed NextPage call with the cursor position it was
// attempted at. Err holds the cause; match it with errors.Is against the
// apierr sentinels.
type PageError struct {
	Entity string
	Offset int64
	Limit  int
	Err    error
}

// Error implements the error interface.
func (e *PageError) Error() string {
	return fmt.Sprintf("fetch %s page (offset=%d limit=%d): %v", e.Entity, e.Offset, e.Limit, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PageError) Unwrap() error {
	return e.Err
}
