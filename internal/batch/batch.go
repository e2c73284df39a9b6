// Package batch splits work into groups that respect DynamoDB request limits.
package batch

// DynamoDB request limits.
const (
	// MaxWriteItems is the BatchWriteItem request limit.
	MaxWriteItems = 25

	// MaxInOperands is the operand limit of an IN comparison.
	MaxInOperands = 100

	// MaxTransactItems is the TransactWriteItems request limit.
	MaxTransactItems = 100
)

// Split partitions items into consecutive groups of at most size elements.
// A size below 1 yields a single group.
func Split[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size < 1 || len(items) <= size {
		return [][]T{items}
	}
	groups := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		groups = append(groups, items[start:end:end])
	}
	return groups
}

// Unique returns values without duplicates or empty strings, keeping first-seen order.
func Unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
