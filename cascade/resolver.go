package cascade

import (
	"context"
	"strings"

	"github.com/jacentio/prune/store"
)

// Catalog lists table names.
type Catalog interface {
	ListCollectionNames(ctx context.Context, match func(name string) bool) ([]string, error)
}

// Resolver discovers the relationship tables that may reference a kind.
type Resolver struct {
	catalog   Catalog
	separator string
}

// NewResolver creates a Resolver matching join tables by separator.
func NewResolver(catalog Catalog, separator string) *Resolver {
	return &Resolver{catalog: catalog, separator: separator}
}

// ResolveJoinCollections returns every table whose name contains both the
// join separator and the kind's table name. The catalog is read on every call.
func (r *Resolver) ResolveJoinCollections(ctx context.Context, kind store.Kind) ([]string, error) {
	table := kind.TableName()
	names, err := r.catalog.ListCollectionNames(ctx, func(name string) bool {
		return IsJoinCollection(name, table, r.separator)
	})
	if err != nil {
		return nil, &DiscoveryError{EntityType: kind.EntityType(), Err: err}
	}
	return names, nil
}

// IsJoinCollection reports whether name is a relationship table for table.
//
// The match is by substring, so a table name contained in another table's
// name also matches join tables of the longer one ("user" matches
// "superuser~group").
func IsJoinCollection(name, table, separator string) bool {
	if separator == "" || table == "" {
		return false
	}
	return strings.Contains(name, separator) && strings.Contains(name, table)
}
