package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// FindIDs returns the IDs of every document of kind matching cond.
// Expired documents are excluded.
func (s *Store) FindIDs(ctx context.Context, kind Kind, cond expression.ConditionBuilder) ([]string, error) {
	expr, err := expression.NewBuilder().
		WithFilter(cond).
		WithProjection(expression.NamesList(expression.Name(s.config.IDAttribute), expression.Name(TTLAttribute))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build id query: %w", err)
	}

	var ids []string
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                 aws.String(kind.TableName()),
		FilterExpression:          expr.Filter(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind.TableName(), err)
		}
		for _, item := range page.Items {
			if IsExpired(item) {
				continue
			}
			if v, ok := item[s.config.IDAttribute].(*types.AttributeValueMemberS); ok {
				ids = append(ids, v.Value)
			}
		}
	}
	return ids, nil
}
