package domain

import "errors"

var (
	// ErrOperatorNotFound is returned when a name was never registered.
	// Inactive operators are still found: only the fundable/active views
	// filter on the active flag.
	ErrOperatorNotFound = errors.New("operator not found")

	// ErrOperatorNotFoundAtIndex is returned for out-of-range index lookups.
	ErrOperatorNotFoundAtIndex = errors.New("no operator at index")

	// ErrInvalidArgument is returned for parameters outside their valid
	// range, e.g. fee fractions above FeeBase.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnauthorized is returned when an administrative action is attempted
	// by a caller the access control service does not recognize as admin.
	ErrUnauthorized = errors.New("unauthorized")
)
