package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrNotFound is returned when a tenant, workspace or connection descriptor is unknown.
	ErrNotFound = errors.New("not found")

	// ErrUnreadableFile is returned by the parser when a file cannot be read at all.
	ErrUnreadableFile = errors.New("unreadable file")

	// ErrEntryTerminal is returned when finishing a log entry that already has a terminal status.
	ErrEntryTerminal = errors.New("log entry already terminal")

	// ErrEntryNotFinalized is returned when the ledger rejects every attempt to
	// move an entry to its terminal status.
	ErrEntryNotFinalized = errors.New("log entry not finalized")
)

// ValidationError reports malformed request input.
type ValidationError struct {
	Fields []string // "field: rule" pairs
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

// newValidationError converts validator output into a ValidationError.
func newValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: []string{err.Error()}}
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
	}
	return &ValidationError{Fields: fields}
}

// ExternalCallError wraps a failure raised by a database or storage collaborator.
type ExternalCallError struct {
	Op  string // collaborator call, e.g. "createSchema"
	Err error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("external call %s failed: %v", e.Op, e.Err)
}

func (e *ExternalCallError) Unwrap() error {
	return e.Err
}

func externalCall(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalCallError{Op: op, Err: err}
}

// IsNotFound reports whether err is in the NotFound class.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsExternalCall reports whether err came from a collaborator call.
func IsExternalCall(err error) bool {
	var ee *ExternalCallError
	return errors.As(err, &ee)
}
