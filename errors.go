package minicfg

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	// ErrCycle is matched (errors.Is) by every *CycleError.
	ErrCycle = errors.New("cyclic file reference")
	// ErrNoReader is returned when a sub-config holds a file pointer but no Reader was supplied.
	ErrNoReader = errors.New("no reader configured to follow file pointer")
	// ErrUnsupportedFormat is returned for file extensions and formats that have no decoder.
	ErrUnsupportedFormat = errors.New("unsupported config format")
)

// CycleError reports a file that was reached a second time while resolving one config.
type CycleError struct {
	Path    string
	History History
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic file reference detected while attempting to create sub-config from previously visited file %q, file history: %q",
		e.Path, []string(e.History))
}

func (e *CycleError) Is(target error) bool {
	return target == ErrCycle
}

// ShapeError reports a sub-config field whose raw value is neither a mapping, a
// file pointer, nor a value of the sub-config type.
type ShapeError struct {
	Field    string
	Expected reflect.Type
	Given    reflect.Type
}

func (e *ShapeError) Error() string {
	given := "nil"
	if e.Given != nil {
		given = e.Given.String()
	}
	return fmt.Sprintf("can't convert %s to %s if value is not a mapping or string, given: %s", e.Field, e.Expected, given)
}

// ParseError is returned by converters that cannot turn a raw value into their target type.
type ParseError struct {
	Value  any
	Target reflect.Type
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot parse %q as %s: %s", fmt.Sprint(e.Value), e.Target, e.Err)
	}
	return fmt.Sprintf("cannot convert %T to %s", e.Value, e.Target)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ConstructionError reports a dictionary that does not fit the shape of the
// config type: missing required keys, undeclared keys, or a value that cannot
// be bound to its field.
type ConstructionError struct {
	Type    reflect.Type
	Field   string
	Missing []string
	Unknown []string
	Err     error
}

func (e *ConstructionError) Error() string {
	var problems []string
	if len(e.Missing) > 0 {
		problems = append(problems, "missing required keys "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		problems = append(problems, "unknown keys "+strings.Join(e.Unknown, ", "))
	}
	if e.Field != "" {
		problems = append(problems, fmt.Sprintf("field %s: %s", e.Field, e.Err))
	} else if e.Err != nil {
		problems = append(problems, e.Err.Error())
	}
	return fmt.Sprintf("cannot construct %s: %s", e.Type, strings.Join(problems, "; "))
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}

// CascadeError annotates any failure with the cascade and config type that were
// being built when it happened. Nested file pointers produce nested CascadeErrors.
type CascadeError struct {
	Paths []string
	Type  reflect.Type
	Err   error
}

func (e *CascadeError) Error() string {
	if len(e.Paths) == 0 {
		return fmt.Sprintf("error creating config type %s from dictionary: %s", e.Type, e.Err)
	}
	return fmt.Sprintf("error creating config type %s from cascade %q: %s", e.Type, e.Paths, e.Err)
}

func (e *CascadeError) Unwrap() error {
	return e.Err
}

func annotate(err *error, paths []string, t reflect.Type) {
	if *err == nil {
		return
	}
	*err = &CascadeError{Paths: paths, Type: t, Err: *err}
}
