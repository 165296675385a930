package entity

import (
	"errors"
	"fmt"
)

// Error kinds shared by the import, export and linking paths.
var (
	ErrParse               = errors.New("parse error")
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrNotReady            = errors.New("not ready")
	ErrLinkingFailed       = errors.New("linking failed")
	ErrInvalidID           = errors.New("invalid id")
	ErrInvalidLanguage     = errors.New("invalid language tag")
	ErrUnknownPartOfSpeech = errors.New("unknown part of speech")
	ErrJobFinished         = errors.New("linking job already finished")
)

var (
	ErrDictionaryNotFound = fmt.Errorf("dictionary %w", ErrNotFound)
	ErrEntryNotFound      = fmt.Errorf("entry %w", ErrNotFound)
	ErrJobNotFound        = fmt.Errorf("linking job %w", ErrNotFound)
)

// ParseError reports a malformed input document. Location is format specific:
// an RDF subject/predicate, an XML element path or a JSON path.
type ParseError struct {
	Format   string
	Location string
	Msg      string
	Err      error
}

func (e *ParseError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg += ": " + e.Err.Error()
		}
	}
	if e.Location != "" {
		return fmt.Sprintf("%s: %s at %s: %s", ErrParse, e.Format, e.Location, msg)
	}
	return fmt.Sprintf("%s: %s: %s", ErrParse, e.Format, msg)
}

func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrParse, e.Err}
	}
	return []error{ErrParse}
}

// ValidationError reports a parseable document that still misses a required
// field after request metadata has been applied.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// LinkingFailure is recorded on a job when the engine or a remote side fails.
type LinkingFailure struct {
	Msg string
	Err error
}

func (e *LinkingFailure) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *LinkingFailure) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrLinkingFailed, e.Err}
	}
	return []error{ErrLinkingFailed}
}
