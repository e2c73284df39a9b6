package store

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DefaultChunkSize keeps each chunk well below the 400KB item limit.
const DefaultChunkSize = 256 * 1024

// UploadChunks splits data into chunks of chunkSize bytes and writes them
// to the file's chunk table. It returns the number of chunks written.
func (s *Store) UploadChunks(ctx context.Context, file File, data []byte, chunkSize int) (int, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var requests []types.WriteRequest
	for n, start := 0, 0; start < len(data); n, start = n+1, start+chunkSize {
		end := min(start+chunkSize, len(data))
		item, err := attributevalue.MarshalMap(Chunk{
			FileID: file.ID(),
			N:      n,
			Data:   data[start:end],
		})
		if err != nil {
			return 0, fmt.Errorf("marshal chunk %d: %w", n, err)
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}

	if len(requests) == 0 {
		return 0, nil
	}
	if err := s.writeBatch(ctx, file.ChunkTableName(), requests); err != nil {
		return 0, err
	}
	return len(requests), nil
}

// ReadChunks reassembles the file's payload from its chunks.
func (s *Store) ReadChunks(ctx context.Context, file File) ([]byte, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key(FileIDAttr).Equal(expression.Value(file.ID()))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build chunk query: %w", err)
	}

	var chunks []Chunk
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(file.ChunkTableName()),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var part []Chunk
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &part); err != nil {
			return nil, fmt.Errorf("unmarshal chunks: %w", err)
		}
		chunks = append(chunks, part...)
	}
	if len(chunks) == 0 {
		return nil, ErrNotFound
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].N < chunks[j].N })
	var buf bytes.Buffer
	for _, c := range chunks {
		buf.Write(c.Data)
	}
	return buf.Bytes(), nil
}
