package queryspec

import "fmt"

// ValidationError is a user-facing rejection of a draft. The draft must
// not be executed.
type ValidationError struct {
	// Query is the name of the rejected draft, when known.
	Query string

	Reason string
}

func (e *ValidationError) Error() string {
	if e.Query == "" {
		return e.Reason
	}
	return fmt.Sprintf("query %s: %s", e.Query, e.Reason)
}

func rejectf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
