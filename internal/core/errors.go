package core

// errors.go defines the error taxonomy shared by every core operation.
//
// Bulk paths capture row-level errors into BulkImportResult and never return
// them. Single-entity paths return them directly. Only InfrastructureError
// aborts a unit of work.

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for transport mapping and result reporting.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindAuth           Kind = "auth"
	KindInfrastructure Kind = "infrastructure"
	KindUnknown        Kind = "unknown"
)

// ErrTooManyImports is returned when all bulk import slots are occupied and
// the wait timeout expires. Clients should retry after a short delay.
var ErrTooManyImports = errors.New("too many concurrent imports, please try again later")

// ValidationError represents a malformed row or request.
type ValidationError struct {
	Field   string // Field/variable name
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string // "province", "connection", ...
	Ref    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %q", e.Entity, e.Ref)
}

// NoDataError is the NotFound outcome of composing a map for a year without
// data. AvailableYears lists the distinct years that do hold data, ascending.
type NoDataError struct {
	Dataset        string
	Year           int
	AvailableYears []int
}

func (e *NoDataError) Error() string {
	if len(e.AvailableYears) == 0 {
		return fmt.Sprintf("no %s data found for %d", e.Dataset, e.Year)
	}
	years := make([]string, len(e.AvailableYears))
	for i, y := range e.AvailableYears {
		years[i] = fmt.Sprint(y)
	}
	return fmt.Sprintf("no %s data found for %d (available years: %s)",
		e.Dataset, e.Year, strings.Join(years, ", "))
}

// ConflictError reports a natural-key collision on create.
type ConflictError struct {
	Entity string
	Key    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Entity, e.Key)
}

// AuthError reports a missing principal or a role without write access.
type AuthError struct {
	Principal Principal
	Message   string
}

func (e *AuthError) Error() string {
	if e.Principal.Name == "" {
		return "unauthorized: " + e.Message
	}
	return fmt.Sprintf("forbidden: %s (principal %q, role %q)", e.Message, e.Principal.Name, e.Principal.Role)
}

// InfrastructureError wraps a storage or transaction failure.
// It is fatal to the unit of work it occurs in.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// Infra wraps err as an InfrastructureError unless it is already classified.
// Returns nil if err is nil.
func Infra(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return err
	}
	return &InfrastructureError{Op: op, Err: err}
}

// KindOf classifies any (possibly wrapped) error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var (
		ve *ValidationError
		nf *NotFoundError
		nd *NoDataError
		ce *ConflictError
		ae *AuthError
		ie *InfrastructureError
	)

	switch {
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &nf), errors.As(err, &nd):
		return KindNotFound
	case errors.As(err, &ce):
		return KindConflict
	case errors.As(err, &ae):
		return KindAuth
	case errors.As(err, &ie):
		return KindInfrastructure
	default:
		return KindUnknown
	}
}

// isSoft reports whether err is a row-level failure that a bulk call tallies
// instead of aborting.
func isSoft(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindConflict:
		return true
	default:
		return false
	}
}
