package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

var errBackend = fmt.Errorf("backend invocation failed")

type codedError struct {
	code string
}

func (c *codedError) Error() string {
	return c.code
}

func TestWith(t *testing.T) {
	cause := errors.New("rpc error: ratings service unavailable")
	require.NotErrorIs(t, cause, errBackend)

	err := With(cause, errBackend)
	require.ErrorIs(t, err, errBackend)
	require.ErrorIs(t, err, cause)
	require.EqualError(t, err, "rpc error: ratings service unavailable")

	wrapped := fmt.Errorf("get rating: %w", errBackend)
	err = With(cause, wrapped)
	require.ErrorIs(t, err, errBackend)
	require.ErrorIs(t, err, cause)
}

func TestWithAs(t *testing.T) {
	kind := &codedError{code: "backend_error"}
	err := With(errors.New("boom"), kind)

	var target *codedError
	require.ErrorAs(t, err, &target)
	require.Equal(t, "backend_error", target.code)
}

func TestWithPrefersKind(t *testing.T) {
	cause := &codedError{code: "invalid_identifier"}
	err := With(fmt.Errorf("lookup: %w", cause), &codedError{code: "backend_error"})

	var target *codedError
	require.ErrorAs(t, err, &target)
	require.Equal(t, "backend_error", target.code)
	require.ErrorIs(t, err, cause)
	require.EqualError(t, err, "lookup: invalid_identifier")
}

func TestWithNil(t *testing.T) {
	cause := errors.New("boom")

	require.NoError(t, With(nil, nil))
	require.Equal(t, cause, With(cause, nil))
	require.Equal(t, errBackend, With(nil, errBackend))
}

func ExampleWith() {
	cause := fmt.Errorf("connection refused")

	if !errors.Is(cause, errBackend) {
		fmt.Println("1")
	}

	err := With(cause, errBackend)
	if errors.Is(err, errBackend) {
		fmt.Println(err)
	}

	// Output: 1
	// connection refused
}
