package cascade

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/prune/internal/batch"
	"github.com/jacentio/prune/store"
)

// Collections is the store surface a cascading delete needs.
type Collections interface {
	Catalog
	DeleteMany(ctx context.Context, table string, filter store.Filter, session *store.Session) (store.DeleteResult, error)
}

// IDFinder resolves a condition over a kind to the matching entity IDs.
type IDFinder interface {
	FindIDs(ctx context.Context, kind store.Kind, cond expression.ConditionBuilder) ([]string, error)
}

// Options configures a cascading delete.
type Options struct {
	// Session, when set, receives every delete of the call.
	// Nothing is applied until the caller commits it.
	Session *store.Session
}

// Deleter removes entities together with their join records and chunks.
type Deleter struct {
	collections Collections
	finder      IDFinder
	resolver    *Resolver
	idAttr      string
	logger      *slog.Logger
}

// New creates a Deleter. finder may be nil when predicate deletes are not used.
func New(collections Collections, finder IDFinder, cfg store.Config, logger *slog.Logger) *Deleter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.JoinSeparator == "" || cfg.IDAttribute == "" {
		def := store.DefaultConfig()
		if cfg.JoinSeparator == "" {
			cfg.JoinSeparator = def.JoinSeparator
		}
		if cfg.IDAttribute == "" {
			cfg.IDAttribute = def.IDAttribute
		}
	}
	return &Deleter{
		collections: collections,
		finder:      finder,
		resolver:    NewResolver(collections, cfg.JoinSeparator),
		idAttr:      cfg.IDAttribute,
		logger:      logger,
	}
}

// NewFromStore creates a Deleter backed by a DynamoDB store.
func NewFromStore(s *store.Store, logger *slog.Logger) *Deleter {
	return New(s, s, s.Config(), logger)
}

// Resolver returns the relationship table resolver.
func (d *Deleter) Resolver() *Resolver {
	return d.resolver
}

// DeleteID deletes one entity and everything referencing it.
func (d *Deleter) DeleteID(ctx context.Context, kind store.Kind, id string, opts Options) (store.DeleteResult, error) {
	return d.DeleteIDAsync(ctx, kind, id, opts).Wait()
}

// DeleteIDs deletes a set of entities and everything referencing them.
func (d *Deleter) DeleteIDs(ctx context.Context, kind store.Kind, ids []string, opts Options) (store.DeleteResult, error) {
	return d.DeleteIDsAsync(ctx, kind, ids, opts).Wait()
}

// DeleteWhere deletes every entity of kind matching cond.
func (d *Deleter) DeleteWhere(ctx context.Context, kind store.Kind, cond expression.ConditionBuilder, opts Options) (store.DeleteResult, error) {
	return d.DeleteWhereAsync(ctx, kind, cond, opts).Wait()
}

// DeleteIDAsync starts deleting one entity.
func (d *Deleter) DeleteIDAsync(ctx context.Context, kind store.Kind, id string, opts Options) *Pending {
	return d.DeleteIDsAsync(ctx, kind, []string{id}, opts)
}

// DeleteWhereAsync resolves cond to IDs and starts deleting them.
//
// ID resolution stops when ctx is cancelled. Once the deletes are
// dispatched they run to completion regardless of ctx.
func (d *Deleter) DeleteWhereAsync(ctx context.Context, kind store.Kind, cond expression.ConditionBuilder, opts Options) *Pending {
	if d.finder == nil {
		return resolved(store.DeleteResult{}, ErrNoFinder)
	}
	return run(func() (store.DeleteResult, error) {
		ids, err := d.finder.FindIDs(ctx, kind, cond)
		if err != nil {
			return store.DeleteResult{}, fmt.Errorf("resolve %s ids: %w", kind.EntityType(), err)
		}
		return d.DeleteIDsAsync(ctx, kind, ids, opts).Wait()
	})
}

// DeleteIDsAsync starts deleting a set of entities.
//
// The primary table, every relationship table of the kind and, for
// binary-backed kinds, the chunk table are deleted from concurrently. The
// returned Pending finishes only when all of them have; its result is the
// primary table's. Cancelling ctx does not abort dispatched deletes.
func (d *Deleter) DeleteIDsAsync(ctx context.Context, kind store.Kind, ids []string, opts Options) *Pending {
	ids = batch.Unique(ids)
	if len(ids) == 0 {
		return resolved(store.DeleteResult{Acknowledged: true}, nil)
	}
	ctx = context.WithoutCancel(ctx)
	return run(func() (store.DeleteResult, error) {
		return d.cascade(ctx, kind, ids, opts)
	})
}

// cascade resolves the relationship tables, fans out one delete per table
// and waits for all of them.
func (d *Deleter) cascade(ctx context.Context, kind store.Kind, ids []string, opts Options) (store.DeleteResult, error) {
	joins, err := d.resolver.ResolveJoinCollections(ctx, kind)
	if err != nil {
		d.logger.Error("relationship discovery failed",
			"entityType", kind.EntityType(),
			"error", err,
		)
		return store.DeleteResult{}, err
	}

	d.logger.Debug("dispatching cascade delete",
		"entityType", kind.EntityType(),
		"ids", len(ids),
		"joinTables", joins,
	)

	var (
		g       errgroup.Group
		primary store.DeleteResult
	)
	dispatch := func(table string, role Role, filter store.Filter, out *store.DeleteResult) {
		g.Go(func() error {
			res, err := d.collections.DeleteMany(ctx, table, filter, opts.Session)
			if err != nil {
				d.logger.Error("cascade delete failed",
					"entityType", kind.EntityType(),
					"table", table,
					"role", string(role),
					"error", err,
				)
				return &DeleteError{Collection: table, Role: role, Err: err}
			}
			if out != nil {
				*out = res
			}
			return nil
		})
	}

	for _, table := range joins {
		dispatch(table, RoleJoin, store.In(ids, store.ParentIDAttr, store.ChildIDAttr), nil)
	}
	dispatch(kind.TableName(), RolePrimary, store.In(ids, d.idAttr), &primary)
	if owner, ok := kind.(store.ChunkOwner); ok {
		dispatch(owner.ChunkTableName(), RoleChunk, store.In(ids, store.FileIDAttr), nil)
	}

	if err := g.Wait(); err != nil {
		return store.DeleteResult{}, err
	}

	d.logger.Info("cascade delete completed",
		"entityType", kind.EntityType(),
		"ids", len(ids),
		"joinTables", len(joins),
		"deleted", primary.DeletedCount,
	)
	return primary, nil
}
