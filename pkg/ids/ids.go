// Package ids converts entity identifiers between their path-key string form and the
// representation used by backend services.
package ids

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/HadesArchitect/killrvideo-web/pkg/jsongraph"
)

// UUID is the wire representation of an identifier expected by backend services.
type UUID struct {
	Value string `json:"value"`
}

// ConversionError is returned when a path key is not a well formed identifier.
type ConversionError struct {
	Input string
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("invalid identifier '%s': %v", e.Input, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

func (e *ConversionError) ErrorCode() string {
	return jsongraph.CodeInvalidIdentifier
}

// StringToUUID parses s (in any form accepted by uuid.Parse) into its canonical wire form.
func StringToUUID(s string) (UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return UUID{}, &ConversionError{Input: s, Err: err}
	}
	return UUID{Value: id.String()}, nil
}

// StringToTimeUUID is like StringToUUID but only accepts version 1 (time based) identifiers.
func StringToTimeUUID(s string) (UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return UUID{}, &ConversionError{Input: s, Err: err}
	}
	if id.Version() != 1 {
		return UUID{}, &ConversionError{Input: s, Err: fmt.Errorf("expected a time based uuid, got version %d", id.Version())}
	}
	return UUID{Value: id.String()}, nil
}

// KeyToUUID converts a string path key. Integer keys are rejected.
func KeyToUUID(k jsongraph.Key) (UUID, error) {
	if k.IsInteger() {
		return UUID{}, &ConversionError{Input: k.String(), Err: fmt.Errorf("integer keys are not identifiers")}
	}
	return StringToUUID(k.String())
}

// UUIDToString returns the path-key form of id.
func UUIDToString(id UUID) string {
	return id.Value
}
