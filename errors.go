package authlimit

import "errors"

var (
	// ErrInvalidOperation indicates an empty or malformed operation name was
	// passed to Check or Reset. This is a caller programming error.
	ErrInvalidOperation = errors.New("invalid operation name")
	// ErrInvalidIdentifier indicates an empty or malformed identifier was
	// passed to Check or Reset. This is a caller programming error.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrInvalidIdentifierType indicates an identifier type other than
	// IdentifierIP or IdentifierUser.
	ErrInvalidIdentifierType = errors.New("invalid identifier type")
	// ErrLimiterClosed indicates use after Close.
	ErrLimiterClosed = errors.New("limiter closed")
	// ErrStoreRequired indicates Build was called without a persistent store.
	ErrStoreRequired = errors.New("persistent store required")
	// ErrAlreadyBuilt indicates Build was called twice on the same builder.
	ErrAlreadyBuilt = errors.New("builder already used")
)
