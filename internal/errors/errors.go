// Package errors classifies a concrete error without changing its message.
package errors

// With returns an error that reads as cause and matches both kind and cause's chain
// under errors.Is and errors.As. kind is consulted first.
func With(cause, kind error) error {
	switch {
	case kind == nil:
		return cause
	case cause == nil:
		return kind
	}
	return &classified{cause: cause, kind: kind}
}

type classified struct {
	cause error
	kind  error
}

func (c *classified) Error() string {
	return c.cause.Error()
}

func (c *classified) Unwrap() []error {
	return []error{c.kind, c.cause}
}
