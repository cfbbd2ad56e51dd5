/*
errors.go - Centralized error types for the portal

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Validation errors - Bad input at a boundary (form, CSV row)
  2. Not-found errors - Referenced document absent (expected miss)
  3. Store errors - Collaborator rejected a read or write
  4. Access errors - Permission or credential failures

USAGE:
  Missing-index failures need operator action, so callers check them
  before falling back to a generic message:

    if generic.IsMissingIndex(err) {
        // show index guidance
    }

SEE ALSO:
  - store.go: Uses these errors
  - api/handlers.go: Maps these errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced document doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned by insert-only writes on an existing path.
	ErrAlreadyExists = errors.New("document already exists")

	// ErrMissingIndex is returned by collection-group queries over a field
	// that has no declared index.
	ErrMissingIndex = errors.New("query requires an index")

	// ErrBatchTooLarge is returned when a batch exceeds MaxBatchOps.
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")

	// ErrPermissionDenied is returned when the acting user may not perform an action.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidInput is returned for malformed requests.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCredentials is returned when email/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned for expired, revoked or forged tokens.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MissingIndexError names the group query that could not run.
type MissingIndexError struct {
	Group  string
	Fields []string
}

func (e *MissingIndexError) Error() string {
	return fmt.Sprintf("collection group query on %q requires an index on (%s)",
		e.Group, strings.Join(e.Fields, ", "))
}

func (e *MissingIndexError) Unwrap() error {
	return ErrMissingIndex
}

// ValidationError describes a single rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing document.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists returns true if an insert-only write hit an existing document.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsMissingIndex returns true for collection-group queries lacking an index.
func IsMissingIndex(err error) bool {
	return errors.Is(err, ErrMissingIndex)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrBatchTooLarge)
}
