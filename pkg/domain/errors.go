package domain

import "errors"

// Sentinel errors returned by stores and the registry service. Callers match
// them with errors.Is; implementations wrap them with the offending id.
var (
	// ErrNotFound reports an unknown test-case id.
	ErrNotFound = errors.New("test case not found")
	// ErrDuplicateID reports an id collision on create.
	ErrDuplicateID = errors.New("duplicate test case id")
	// ErrInvalidTransition reports an inconsistent status/testedBy/dateExecuted combination.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrInvalidStatus reports a status outside the enumeration.
	ErrInvalidStatus = errors.New("invalid status")
)
