package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// keySchema holds the primary key attribute names of a table.
type keySchema struct {
	hash string
	rng  string // empty for hash-only tables
}

// projection returns a projection of the key attributes.
func (k keySchema) projection() expression.ProjectionBuilder {
	if k.rng == "" {
		return expression.NamesList(expression.Name(k.hash))
	}
	return expression.NamesList(expression.Name(k.hash), expression.Name(k.rng))
}

// extract copies the key attributes out of an item.
// It returns false when the item lacks a key attribute.
func (k keySchema) extract(item map[string]types.AttributeValue) (PK, bool) {
	hv, ok := item[k.hash]
	if !ok {
		return nil, false
	}
	key := PK{k.hash: hv}
	if k.rng != "" {
		rv, ok := item[k.rng]
		if !ok {
			return nil, false
		}
		key[k.rng] = rv
	}
	return key, true
}

// signature returns a comparable form of a key for de-duplication.
func (k keySchema) signature(key PK) string {
	if k.rng == "" {
		return attrString(key[k.hash])
	}
	return attrString(key[k.hash]) + "\x00" + attrString(key[k.rng])
}

// keySchema returns the cached key schema of a table, describing it on first use.
func (s *Store) keySchema(ctx context.Context, table string) (keySchema, error) {
	s.mu.Lock()
	ks, ok := s.schemas[table]
	s.mu.Unlock()
	if ok {
		return ks, nil
	}

	out, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	})
	if err != nil {
		return keySchema{}, fmt.Errorf("describe %s: %w", table, err)
	}
	if out.Table == nil {
		return keySchema{}, fmt.Errorf("describe %s: %w", table, ErrNoKeySchema)
	}
	for _, el := range out.Table.KeySchema {
		switch el.KeyType {
		case types.KeyTypeHash:
			ks.hash = aws.ToString(el.AttributeName)
		case types.KeyTypeRange:
			ks.rng = aws.ToString(el.AttributeName)
		}
	}
	if ks.hash == "" {
		return keySchema{}, fmt.Errorf("describe %s: %w", table, ErrNoKeySchema)
	}

	s.mu.Lock()
	s.schemas[table] = ks
	s.mu.Unlock()
	return ks, nil
}

// attrString renders scalar attribute values for comparison.
func attrString(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return "S:" + v.Value
	case *types.AttributeValueMemberN:
		return "N:" + v.Value
	case *types.AttributeValueMemberB:
		var b strings.Builder
		b.WriteString("B:")
		b.Write(v.Value)
		return b.String()
	default:
		return fmt.Sprintf("%T", av)
	}
}
