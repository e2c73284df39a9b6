package store

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// ListCollectionNames returns the names of all tables accepted by match.
// A nil match accepts every table.
func (s *Store) ListCollectionNames(ctx context.Context, match func(name string) bool) ([]string, error) {
	var names []string
	paginator := dynamodb.NewListTablesPaginator(s.client, &dynamodb.ListTablesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, name := range page.TableNames {
			if match == nil || match(name) {
				names = append(names, name)
			}
		}
	}
	return names, nil
}
