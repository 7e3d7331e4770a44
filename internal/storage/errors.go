package storage

import (
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("listing not found")

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every violated field so the presentation layer can
// highlight all of them at once.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from terminal state %q to %q", e.From, e.To)
}

// AlreadyUnavailableError reports a claim attempt on a non-open listing. The
// observed state is part of the contract: callers must be able to tell
// "someone else claimed this" apart from "this expired".
type AlreadyUnavailableError struct {
	State State
}

func (e *AlreadyUnavailableError) Error() string {
	switch e.State {
	case StateClaimed:
		return "listing already claimed"
	case StateExpired:
		return "listing expired"
	case StateWithdrawn:
		return "listing withdrawn"
	}
	return fmt.Sprintf("listing unavailable (state %q)", e.State)
}

type InvalidCoordinateError struct {
	Lat float64
	Lon float64
}

func (e *InvalidCoordinateError) Error() string {
	return fmt.Sprintf("invalid coordinate: lat=%.6f lon=%.6f", e.Lat, e.Lon)
}
