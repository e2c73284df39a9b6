package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TTLAttribute is the attribute DynamoDB TTL must be configured on.
const TTLAttribute = "ttl"

// IsExpired checks if an item has a TTL at or before now.
func IsExpired(item map[string]types.AttributeValue) bool {
	ttl := ttlOf(item)
	return ttl != 0 && ttl <= time.Now().Unix()
}

// ttlOf returns the item's TTL epoch second, or 0 when it has none.
func ttlOf(item map[string]types.AttributeValue) int64 {
	ttlNum, ok := item[TTLAttribute].(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	ttl, err := strconv.ParseInt(ttlNum.Value, 10, 64)
	if err != nil {
		return 0
	}
	return ttl
}

// Expire schedules an entity for removal by setting its TTL.
//
// The entity reads as deleted from at onwards. DynamoDB removes it later;
// the removal reaches the table's stream, where the stream handler cascades
// it to relationship and chunk tables.
func (s *Store) Expire(ctx context.Context, kind Kind, id string, at time.Time) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(kind.TableName()),
		Key:                 s.idKey(id),
		UpdateExpression:    aws.String("SET #ttl = :ttl"),
		ConditionExpression: aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": TTLAttribute,
			"#id":  s.config.IDAttribute,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ttl": &types.AttributeValueMemberN{
				Value: strconv.FormatInt(at.Unix(), 10),
			},
		},
	})

	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return ErrNotFound
	}
	return err
}
