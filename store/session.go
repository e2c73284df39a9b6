package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/prune/internal/batch"
)

// Session groups deletes into a single TransactWriteItems call.
//
// Deletes staged into a session are not visible until Commit. A Session is
// safe for concurrent use: several DeleteMany calls may stage into it at once.
type Session struct {
	client API
	token  string

	mu    sync.Mutex
	items []types.TransactWriteItem
	done  bool
}

// NewSession starts a session bound to this store's client.
func (s *Store) NewSession() *Session {
	return &Session{
		client: s.client,
		token:  uuid.NewString(),
	}
}

// WithTransaction runs fn inside a new session and commits it when fn succeeds.
// The session is aborted when fn returns an error.
func (s *Store) WithTransaction(ctx context.Context, fn func(*Session) error) error {
	session := s.NewSession()
	if err := fn(session); err != nil {
		session.Abort()
		return err
	}
	return session.Commit(ctx)
}

// stage records deletes of keys in table.
func (se *Session) stage(table string, keys []PK) error {
	se.mu.Lock()
	defer se.mu.Unlock()
	if se.done {
		return ErrSessionClosed
	}
	for _, key := range keys {
		se.items = append(se.items, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(table),
				Key:       key,
			},
		})
	}
	return nil
}

// Len returns the number of staged writes.
func (se *Session) Len() int {
	se.mu.Lock()
	defer se.mu.Unlock()
	return len(se.items)
}

// Commit applies every staged write in one transaction.
// Either all staged deletes are applied or none are.
func (se *Session) Commit(ctx context.Context) error {
	se.mu.Lock()
	if se.done {
		se.mu.Unlock()
		return ErrSessionClosed
	}
	se.done = true
	items := se.items
	se.items = nil
	se.mu.Unlock()

	if len(items) == 0 {
		return nil
	}
	if len(items) > batch.MaxTransactItems {
		return fmt.Errorf("%d staged writes: %w", len(items), ErrTransactionTooLarge)
	}

	_, err := se.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems:      items,
		ClientRequestToken: aws.String(se.token),
	})
	if err != nil {
		var txErr *types.TransactionCanceledException
		if errors.As(err, &txErr) {
			return fmt.Errorf("transaction cancelled: %w", err)
		}
		return err
	}
	return nil
}

// Abort discards every staged write.
func (se *Session) Abort() {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.done = true
	se.items = nil
}
