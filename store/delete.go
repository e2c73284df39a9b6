package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cenkalti/backoff/v4"

	"github.com/jacentio/prune/internal/batch"
)

// DeleteMany removes every document in table matched by filter.
//
// With a nil session the matched documents are deleted with BatchWriteItem
// and the result is acknowledged. With a session the deletes are staged and
// only applied when the session commits.
func (s *Store) DeleteMany(ctx context.Context, table string, filter Filter, session *Session) (DeleteResult, error) {
	if len(filter.Attributes) == 0 {
		return DeleteResult{}, ErrEmptyFilter
	}
	values := batch.Unique(filter.Values)
	if len(values) == 0 {
		return DeleteResult{Acknowledged: session == nil}, nil
	}

	schema, err := s.keySchema(ctx, table)
	if err != nil {
		return DeleteResult{}, err
	}

	keys, err := s.matchKeys(ctx, table, schema, Filter{Attributes: filter.Attributes, Values: values})
	if err != nil {
		return DeleteResult{}, err
	}

	if session != nil {
		if err := session.stage(table, keys); err != nil {
			return DeleteResult{}, err
		}
		return DeleteResult{DeletedCount: int64(len(keys))}, nil
	}

	if len(keys) > 0 {
		requests := make([]types.WriteRequest, len(keys))
		for i, key := range keys {
			requests[i] = types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: key}}
		}
		if err := s.writeBatch(ctx, table, requests); err != nil {
			return DeleteResult{}, err
		}
	}
	return DeleteResult{DeletedCount: int64(len(keys)), Acknowledged: true}, nil
}

// matchKeys returns the de-duplicated primary keys of documents matching filter.
// A single-attribute filter on the hash key is served by Query, anything else by Scan.
func (s *Store) matchKeys(ctx context.Context, table string, schema keySchema, filter Filter) ([]PK, error) {
	seen := make(map[string]struct{})
	var keys []PK
	collect := func(items []map[string]types.AttributeValue) {
		for _, item := range items {
			key, ok := schema.extract(item)
			if !ok {
				continue
			}
			sig := schema.signature(key)
			if _, dup := seen[sig]; dup {
				continue
			}
			seen[sig] = struct{}{}
			keys = append(keys, key)
		}
	}

	if len(filter.Attributes) == 1 && filter.Attributes[0] == schema.hash {
		for _, value := range filter.Values {
			if err := s.queryKeys(ctx, table, schema, value, collect); err != nil {
				return nil, err
			}
		}
		return keys, nil
	}

	for _, group := range batch.Split(filter.Values, batch.MaxInOperands) {
		if err := s.scanKeys(ctx, table, schema, filter.Attributes, group, collect); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// queryKeys reads the keys of every document whose hash key equals value.
func (s *Store) queryKeys(ctx context.Context, table string, schema keySchema, value string, collect func([]map[string]types.AttributeValue)) error {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key(schema.hash).Equal(expression.Value(value))).
		WithProjection(schema.projection()).
		Build()
	if err != nil {
		return fmt.Errorf("build query for %s: %w", table, err)
	}

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		KeyConditionExpression:    expr.KeyCondition(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("query %s: %w", table, err)
		}
		collect(page.Items)
	}
	return nil
}

// scanKeys reads the keys of every document where any of attrs holds one of values.
func (s *Store) scanKeys(ctx context.Context, table string, schema keySchema, attrs, values []string, collect func([]map[string]types.AttributeValue)) error {
	expr, err := expression.NewBuilder().
		WithFilter(inCondition(attrs, values)).
		WithProjection(schema.projection()).
		Build()
	if err != nil {
		return fmt.Errorf("build scan for %s: %w", table, err)
	}

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                 aws.String(table),
		FilterExpression:          expr.Filter(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}
		collect(page.Items)
	}
	return nil
}

// inCondition builds "attr IN (values)" for each attribute, ORed together.
func inCondition(attrs, values []string) expression.ConditionBuilder {
	operands := make([]expression.OperandBuilder, len(values))
	for i, v := range values {
		operands[i] = expression.Value(v)
	}

	conds := make([]expression.ConditionBuilder, len(attrs))
	for i, attr := range attrs {
		conds[i] = expression.Name(attr).In(operands[0], operands[1:]...)
	}
	if len(conds) == 1 {
		return conds[0]
	}
	return expression.Or(conds[0], conds[1], conds[2:]...)
}

// writeBatch submits write requests in BatchWriteItem-sized groups,
// resubmitting unprocessed items with capped exponential backoff.
func (s *Store) writeBatch(ctx context.Context, table string, requests []types.WriteRequest) error {
	for _, group := range batch.Split(requests, batch.MaxWriteItems) {
		pending := map[string][]types.WriteRequest{table: group}
		retry := s.retryBackoff()
		for {
			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: pending,
			})
			if err != nil {
				return fmt.Errorf("batch write %s: %w", table, err)
			}
			if countRequests(out.UnprocessedItems) == 0 {
				break
			}
			delay := retry.NextBackOff()
			if delay == backoff.Stop {
				return fmt.Errorf("batch write %s: %w", table, ErrUnprocessed)
			}
			pending = out.UnprocessedItems
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	return nil
}

// retryBackoff returns the delay schedule for resubmitting unprocessed items.
// It yields at most MaxRetries delays, none longer than MaxRetryDelay.
func (s *Store) retryBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.config.RetryBaseDelay
	b.MaxInterval = s.config.MaxRetryDelay
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	retry := backoff.WithMaxRetries(&cappedBackOff{BackOff: b, max: s.config.MaxRetryDelay}, uint64(s.config.MaxRetries))
	retry.Reset()
	return retry
}

// cappedBackOff clamps jittered delays to max.
type cappedBackOff struct {
	backoff.BackOff
	max time.Duration
}

func (c *cappedBackOff) NextBackOff() time.Duration {
	d := c.BackOff.NextBackOff()
	if d != backoff.Stop && d > c.max {
		return c.max
	}
	return d
}

func countRequests(items map[string][]types.WriteRequest) int {
	n := 0
	for _, reqs := range items {
		n += len(reqs)
	}
	return n
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
