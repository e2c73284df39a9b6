// Package cascade deletes entities together with every join record and
// chunk that references them.
//
// Relationship tables are not registered anywhere: a [Resolver] finds them
// by listing the catalog for names containing the join separator and the
// entity's table name. A [Deleter] then issues one delete-many per table
// concurrently and waits for all of them:
//
//	d := cascade.NewFromStore(st, logger)
//	res, err := d.DeleteIDs(ctx, authors, []string{"a1", "a2"}, cascade.Options{})
//
// Every entry point has an Async form returning a [Pending]; the blocking
// form is the Async form followed by [Pending.Wait].
//
// Dispatched deletes are never cancelled, and a failure is reported only
// after every delete of the call has finished. Without a
// [store.Session] deletes that succeeded stay applied; with one, nothing is
// applied until the caller commits.
package cascade
