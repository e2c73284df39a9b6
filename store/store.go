package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// API is the subset of the DynamoDB client used by Store.
// *dynamodb.Client satisfies it.
type API interface {
	ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

// Store provides DynamoDB operations over entity, relationship and chunk tables.
type Store struct {
	client API
	config Config

	mu      sync.Mutex
	schemas map[string]keySchema
}

// New creates a new Store instance.
func New(client API, config Config) *Store {
	config.validate()
	return &Store{
		client:  client,
		config:  config,
		schemas: make(map[string]keySchema),
	}
}

// Config returns the validated configuration.
func (s *Store) Config() Config {
	return s.config
}

// JoinTableName returns the relationship table name linking parent to child.
func (s *Store) JoinTableName(parent, child Kind) string {
	return parent.TableName() + s.config.JoinSeparator + child.TableName()
}

// Put creates an entity document. The ID attribute is set from the entity.
func (s *Store) Put(ctx context.Context, entity Entity, item map[string]types.AttributeValue) error {
	if item == nil {
		item = make(map[string]types.AttributeValue)
	}
	item[s.config.IDAttribute] = &types.AttributeValueMemberS{Value: entity.ID()}

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(entity.TableName()),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": s.config.IDAttribute},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Get retrieves an entity by ID, returning ErrNotFound if missing or expired.
func (s *Store) Get(ctx context.Context, kind Kind, id string) (*Item, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(kind.TableName()),
		Key:            s.idKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil || IsExpired(result.Item) {
		return nil, ErrNotFound
	}
	return s.unmarshalItem(result.Item), nil
}

// Relate records a relationship between parent and child in their join table.
func (s *Store) Relate(ctx context.Context, parent, child Entity) error {
	item, err := attributevalue.MarshalMap(JoinRecord{ParentID: parent.ID(), ChildID: child.ID()})
	if err != nil {
		return fmt.Errorf("marshal join record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.JoinTableName(parent, child)),
		Item:      item,
	})
	return err
}

// Unrelate removes a single relationship between parent and child.
func (s *Store) Unrelate(ctx context.Context, parent, child Entity) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.JoinTableName(parent, child)),
		Key: PK{
			ParentIDAttr: &types.AttributeValueMemberS{Value: parent.ID()},
			ChildIDAttr:  &types.AttributeValueMemberS{Value: child.ID()},
		},
	})
	return err
}

// idKey builds the primary key of an entity document.
func (s *Store) idKey(id string) PK {
	return PK{s.config.IDAttribute: &types.AttributeValueMemberS{Value: id}}
}

// unmarshalItem converts a DynamoDB item to an Item struct.
func (s *Store) unmarshalItem(raw map[string]types.AttributeValue) *Item {
	item := &Item{Raw: raw}
	if v, ok := raw[s.config.IDAttribute].(*types.AttributeValueMemberS); ok {
		item.ID = v.Value
	}
	item.ExpiresAt = ttlOf(raw)
	return item
}
