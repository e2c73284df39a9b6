package store

import "errors"

var (
	// ErrNotFound is returned when an entity doesn't exist or has expired.
	ErrNotFound = errors.New("prune: entity not found")

	// ErrAlreadyExists is returned when attempting to put an entity with an existing ID.
	ErrAlreadyExists = errors.New("prune: entity already exists")

	// ErrNoKeySchema is returned when a table's key schema has no hash key.
	ErrNoKeySchema = errors.New("prune: table has no hash key")

	// ErrUnprocessed is returned when DynamoDB keeps rejecting part of a batch delete.
	ErrUnprocessed = errors.New("prune: batch delete left unprocessed items")

	// ErrTransactionTooLarge is returned when a session holds more writes than one transaction accepts.
	ErrTransactionTooLarge = errors.New("prune: transaction exceeds 100 items")

	// ErrSessionClosed is returned when staging into or committing a finished session.
	ErrSessionClosed = errors.New("prune: session already committed or aborted")

	// ErrEmptyFilter is returned when a filter names no attributes.
	ErrEmptyFilter = errors.New("prune: filter has no attributes")
)
