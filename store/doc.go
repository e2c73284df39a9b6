// Package store provides a DynamoDB data access layer for entities that are
// linked through relationship tables and, for binary-backed entities, chunk tables.
//
// # Tables
//
// Every entity kind has its own table keyed by [Config.IDAttribute].
// Relationships live in join tables named after both related tables:
//
//	authors~books     ParentID (hash), ChildID (range)
//
// The separator ([Config.JoinSeparator], "~" by default) never appears in an
// entity table name, so join tables can be found by listing the catalog.
// Binary-backed kinds implement [ChunkOwner]; their payload is split into
// [Chunk] documents keyed by FileID (hash) and N (range).
//
// # Entity Interfaces
//
// Kinds implement [Kind]:
//
//	type Kind interface {
//	    EntityType() string
//	    TableName() string
//	}
//
// Binary-backed kinds also implement [ChunkOwner]. [Collection] and
// [FileCollection] define kinds from configuration.
//
// # Deleting
//
// [Store.DeleteMany] removes every document matching a [Filter] from one
// table. It is the building block the cascade package fans out over the
// primary, join and chunk tables. Passing a [Session] stages the deletes
// instead; [Session.Commit] applies them in one transaction.
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ErrNotFound] - entity doesn't exist or has expired
//   - [ErrAlreadyExists] - entity with ID already exists
//   - [ErrNoKeySchema] - table description has no hash key
//   - [ErrUnprocessed] - DynamoDB kept rejecting batch deletes
//   - [ErrTransactionTooLarge] - session exceeds the transaction item limit
//   - [ErrSessionClosed] - session already committed or aborted
//   - [ErrEmptyFilter] - filter names no attributes
package store
