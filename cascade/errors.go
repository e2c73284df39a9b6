package cascade

import (
	"errors"
	"fmt"
)

// ErrNoFinder is returned by predicate deletes when the Deleter has no IDFinder.
var ErrNoFinder = errors.New("prune: no id finder configured")

// Role names the part a table plays in a cascading delete.
type Role string

const (
	RolePrimary Role = "primary"
	RoleJoin    Role = "join"
	RoleChunk   Role = "chunk"
)

// DiscoveryError is returned when relationship tables could not be listed.
// Nothing has been deleted when it is returned.
type DiscoveryError struct {
	EntityType string
	Err        error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("prune: discover relationship tables for %s: %v", e.EntityType, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// DeleteError is returned when one of the dispatched deletes failed.
// The other deletes of the same call have run to completion.
type DeleteError struct {
	Collection string
	Role       Role
	Err        error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("prune: delete from %s table %s: %v", e.Role, e.Collection, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }
