package store

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// PK represents a DynamoDB primary key.
type PK map[string]types.AttributeValue

// Kind identifies an entity type and the table that holds its documents.
type Kind interface {
	// EntityType returns the entity type name (e.g., "author").
	EntityType() string

	// TableName returns the DynamoDB table name for this entity type.
	TableName() string
}

// ChunkOwner is implemented by binary-backed kinds whose payload is split
// into chunks stored in a separate table.
type ChunkOwner interface {
	Kind

	// ChunkTableName returns the table holding this kind's chunks.
	ChunkTableName() string
}

// Entity is a single stored instance of a Kind.
type Entity interface {
	Kind

	// ID returns the entity's identifier, unique within its table.
	ID() string
}

// File is a single stored instance of a binary-backed Kind.
type File interface {
	ChunkOwner

	// ID returns the file's identifier, referenced by its chunks.
	ID() string
}

// Collection is a Kind defined by configuration rather than a Go type.
type Collection struct {
	Type  string
	Table string
}

func (c Collection) EntityType() string { return c.Type }
func (c Collection) TableName() string  { return c.Table }

// FileCollection is a binary-backed Kind defined by configuration.
type FileCollection struct {
	Collection
	Chunks string
}

func (f FileCollection) ChunkTableName() string { return f.Chunks }

// Ref is an Entity built from a Kind and an ID.
type Ref struct {
	Kind
	EntityID string
}

func (r Ref) ID() string { return r.EntityID }

// FileRef is an Entity of a binary-backed Kind.
type FileRef struct {
	ChunkOwner
	EntityID string
}

func (r FileRef) ID() string { return r.EntityID }

// Attribute names of relationship and chunk documents.
const (
	ParentIDAttr = "ParentID"
	ChildIDAttr  = "ChildID"
	FileIDAttr   = "FileID"
	ChunkSeqAttr = "N"
)

// JoinRecord is one edge between two entities, stored in a relationship table.
type JoinRecord struct {
	ParentID string `dynamodbav:"ParentID"`
	ChildID  string `dynamodbav:"ChildID"`
}

// Chunk is one fragment of a binary-backed entity's payload.
type Chunk struct {
	FileID string `dynamodbav:"FileID"`
	N      int    `dynamodbav:"N"`
	Data   []byte `dynamodbav:"Data"`
}

// Item represents a retrieved DynamoDB item.
type Item struct {
	// Raw is the raw DynamoDB item.
	Raw map[string]types.AttributeValue

	// ID is the entity identifier.
	ID string

	// ExpiresAt is the TTL epoch second, 0 when the item never expires.
	ExpiresAt int64
}

// DeleteResult reports the outcome of a delete-many operation.
type DeleteResult struct {
	// DeletedCount is the number of documents removed, or staged for
	// removal when the delete ran inside a session.
	DeletedCount int64

	// Acknowledged is true once DynamoDB has applied the deletes.
	// Deletes staged in a session stay unacknowledged until Commit.
	Acknowledged bool
}

// Filter matches documents where any of Attributes equals any of Values.
type Filter struct {
	Attributes []string
	Values     []string
}

// In returns a filter matching documents whose attrs hold one of values.
func In(values []string, attrs ...string) Filter {
	return Filter{Attributes: attrs, Values: values}
}
