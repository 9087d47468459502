package router

import (
	"fmt"

	"github.com/HadesArchitect/killrvideo-web/pkg/jsongraph"
)

// ErrPathNotFound is placed at every requested path no route claims.
var ErrPathNotFound error = &jsongraph.ErrorAtom{Message: "path not found", Code: jsongraph.CodeNotFound}

// ConfigurationError reports a malformed route pattern or an invalid route table.
type ConfigurationError struct {
	Route  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("invalid route '%s': %s", e.Route, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// TooManyPathsError rejects a get request whose path sets expand to more paths than
// the router accepts.
type TooManyPathsError struct {
	Paths int
	Limit int
}

func (e *TooManyPathsError) Error() string {
	return fmt.Sprintf("request expands to %d paths, exceeding the limit of %d", e.Paths, e.Limit)
}

// UnimplementedRouteError is returned for a call on a route that has no call handler.
type UnimplementedRouteError struct {
	Route string
}

func (e *UnimplementedRouteError) Error() string {
	return fmt.Sprintf("call on route '%s' is not implemented", e.Route)
}

func (e *UnimplementedRouteError) ErrorCode() string {
	return jsongraph.CodeNotImplemented
}
