// Package dynamotest provides an in-memory DynamoDB stand-in for tests.
//
// Fake implements the calls used by the store package. Condition, filter
// and key expressions are evaluated by [Match]; projections are ignored and
// every page holds the full result, except for ListTables which honours
// PageSize so paginators are exercised.
package dynamotest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Call records one request made to the fake.
type Call struct {
	Op    string
	Table string

	// ConsistentRead is set for GetItem, Query and Scan requests.
	ConsistentRead bool
}

type table struct {
	hash  string
	rng   string
	items map[string]map[string]types.AttributeValue
}

func (t *table) key(item map[string]types.AttributeValue) (string, error) {
	hv, ok := item[t.hash]
	if !ok {
		return "", fmt.Errorf("dynamotest: item missing hash key %q", t.hash)
	}
	if t.rng == "" {
		return scalar(hv), nil
	}
	rv, ok := item[t.rng]
	if !ok {
		return "", fmt.Errorf("dynamotest: item missing range key %q", t.rng)
	}
	return scalar(hv) + "\x00" + scalar(rv), nil
}

// Fake is an in-memory DynamoDB.
type Fake struct {
	// PageSize limits table names per ListTables page. Zero means 100.
	PageSize int

	// UnprocessedRounds makes that many BatchWriteItem calls return
	// every request unprocessed without applying it.
	UnprocessedRounds int

	// Hook, when set, runs before every request, outside the fake's lock.
	Hook func(op, table string)

	mu       sync.Mutex
	tables   map[string]*table
	failures map[string]error
	calls    []Call
	tokens   []string
}

// New creates an empty Fake.
func New() *Fake {
	return &Fake{
		tables:   make(map[string]*table),
		failures: make(map[string]error),
	}
}

// CreateTable adds a table. rng may be empty for hash-only tables.
func (f *Fake) CreateTable(name, hash, rng string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[name] = &table{hash: hash, rng: rng, items: make(map[string]map[string]types.AttributeValue)}
}

// Seed writes items directly into a table.
func (f *Fake) Seed(name string, items ...map[string]types.AttributeValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tables[name]
	for _, item := range items {
		k, err := t.key(item)
		if err != nil {
			panic(err)
		}
		t.items[k] = item
	}
}

// Items returns a table's items ordered by key.
func (f *Fake) Items(name string) []map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[name]
	if !ok {
		return nil
	}
	return sorted(t.items)
}

// FailOn makes every op request against table return err.
// An empty table fails the op for every table.
func (f *Fake) FailOn(op, table string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op+"/"+table] = err
}

// Calls returns the requests made so far.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount returns how many op requests were made, optionally restricted to table.
func (f *Fake) CallCount(op, table string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Op == op && (table == "" || c.Table == table) {
			n++
		}
	}
	return n
}

// Tokens returns the client request tokens of committed transactions.
func (f *Fake) Tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

// begin records a call, runs the hook and returns any injected failure.
func (f *Fake) begin(op, name string) error {
	return f.record(Call{Op: op, Table: name})
}

func (f *Fake) record(call Call) error {
	op, name := call.Op, call.Table
	if f.Hook != nil {
		f.Hook(op, name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if err, ok := f.failures[op+"/"+name]; ok {
		return err
	}
	if err, ok := f.failures[op+"/"]; ok {
		return err
	}
	return nil
}

// lookup returns a table; the caller holds f.mu.
func (f *Fake) lookup(name string) (*table, error) {
	t, ok := f.tables[name]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found: " + name)}
	}
	return t, nil
}

func (f *Fake) ListTables(ctx context.Context, params *dynamodb.ListTablesInput, _ ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error) {
	if err := f.begin("ListTables", ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.tables))
	for name := range f.tables {
		names = append(names, name)
	}
	sort.Strings(names)

	start := 0
	if params.ExclusiveStartTableName != nil {
		start = sort.SearchStrings(names, *params.ExclusiveStartTableName)
		if start < len(names) && names[start] == *params.ExclusiveStartTableName {
			start++
		}
	}
	size := f.PageSize
	if params.Limit != nil && int(*params.Limit) < size {
		size = int(*params.Limit)
	}
	if size <= 0 {
		size = 100
	}
	end := min(start+size, len(names))

	out := &dynamodb.ListTablesOutput{TableNames: names[start:end]}
	if end < len(names) {
		out.LastEvaluatedTableName = aws.String(names[end-1])
	}
	return out, nil
}

func (f *Fake) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	name := aws.ToString(params.TableName)
	if err := f.begin("DescribeTable", name); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.lookup(name)
	if err != nil {
		return nil, err
	}
	schema := []types.KeySchemaElement{{AttributeName: aws.String(t.hash), KeyType: types.KeyTypeHash}}
	if t.rng != "" {
		schema = append(schema, types.KeySchemaElement{AttributeName: aws.String(t.rng), KeyType: types.KeyTypeRange})
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{TableName: aws.String(name), KeySchema: schema},
	}, nil
}

func (f *Fake) GetItem(ctx context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	name := aws.ToString(params.TableName)
	if err := f.record(Call{Op: "GetItem", Table: name, ConsistentRead: aws.ToBool(params.ConsistentRead)}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.lookup(name)
	if err != nil {
		return nil, err
	}
	k, err := t.key(params.Key)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: t.items[k]}, nil
}

func (f *Fake) PutItem(ctx context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	name := aws.ToString(params.TableName)
	if err := f.begin("PutItem", name); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.lookup(name)
	if err != nil {
		return nil, err
	}
	k, err := t.key(params.Item)
	if err != nil {
		return nil, err
	}
	if err := checkCondition(params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, t.items[k]); err != nil {
		return nil, err
	}
	t.items[k] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *Fake) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	name := aws.ToString(params.TableName)
	if err := f.begin("UpdateItem", name); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.lookup(name)
	if err != nil {
		return nil, err
	}
	k, err := t.key(params.Key)
	if err != nil {
		return nil, err
	}
	current := t.items[k]
	if err := checkCondition(params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, current); err != nil {
		return nil, err
	}

	updated := make(map[string]types.AttributeValue, len(current)+len(params.Key))
	for a, v := range params.Key {
		updated[a] = v
	}
	for a, v := range current {
		updated[a] = v
	}
	update := strings.TrimSpace(aws.ToString(params.UpdateExpression))
	if !strings.HasPrefix(strings.ToUpper(update), "SET ") {
		return nil, fmt.Errorf("dynamotest: unsupported update %q", update)
	}
	for _, clause := range strings.Split(update[4:], ",") {
		lhs, rhs, ok := strings.Cut(clause, "=")
		if !ok {
			return nil, fmt.Errorf("dynamotest: unsupported update clause %q", clause)
		}
		attr := strings.TrimSpace(lhs)
		if strings.HasPrefix(attr, "#") {
			attr = params.ExpressionAttributeNames[attr]
		}
		v, ok := params.ExpressionAttributeValues[strings.TrimSpace(rhs)]
		if !ok {
			return nil, fmt.Errorf("dynamotest: unsupported update value %q", rhs)
		}
		updated[attr] = v
	}
	t.items[k] = updated
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *Fake) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	name := aws.ToString(params.TableName)
	if err := f.begin("DeleteItem", name); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.lookup(name)
	if err != nil {
		return nil, err
	}
	k, err := t.key(params.Key)
	if err != nil {
		return nil, err
	}
	delete(t.items, k)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *Fake) Query(ctx context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	name := aws.ToString(params.TableName)
	if err := f.record(Call{Op: "Query", Table: name, ConsistentRead: aws.ToBool(params.ConsistentRead)}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.lookup(name)
	if err != nil {
		return nil, err
	}
	var out []map[string]types.AttributeValue
	for _, item := range sorted(t.items) {
		ok, err := Match(aws.ToString(params.KeyConditionExpression), params.ExpressionAttributeNames, params.ExpressionAttributeValues, item)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		ok, err = Match(aws.ToString(params.FilterExpression), params.ExpressionAttributeNames, params.ExpressionAttributeValues, item)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, item)
		}
	}
	return &dynamodb.QueryOutput{Items: out, Count: int32(len(out))}, nil
}

func (f *Fake) Scan(ctx context.Context, params *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	name := aws.ToString(params.TableName)
	if err := f.record(Call{Op: "Scan", Table: name, ConsistentRead: aws.ToBool(params.ConsistentRead)}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.lookup(name)
	if err != nil {
		return nil, err
	}
	var out []map[string]types.AttributeValue
	for _, item := range sorted(t.items) {
		ok, err := Match(aws.ToString(params.FilterExpression), params.ExpressionAttributeNames, params.ExpressionAttributeValues, item)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, item)
		}
	}
	return &dynamodb.ScanOutput{Items: out, Count: int32(len(out))}, nil
}

func (f *Fake) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	var names []string
	for name := range params.RequestItems {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := f.begin("BatchWriteItem", name); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, reqs := range params.RequestItems {
		if len(reqs) > 25 {
			return nil, fmt.Errorf("dynamotest: batch of %d exceeds 25 requests", len(reqs))
		}
	}
	if f.UnprocessedRounds > 0 {
		f.UnprocessedRounds--
		return &dynamodb.BatchWriteItemOutput{UnprocessedItems: params.RequestItems}, nil
	}
	for _, name := range names {
		t, err := f.lookup(name)
		if err != nil {
			return nil, err
		}
		for _, req := range params.RequestItems[name] {
			switch {
			case req.PutRequest != nil:
				k, err := t.key(req.PutRequest.Item)
				if err != nil {
					return nil, err
				}
				t.items[k] = req.PutRequest.Item
			case req.DeleteRequest != nil:
				k, err := t.key(req.DeleteRequest.Key)
				if err != nil {
					return nil, err
				}
				delete(t.items, k)
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func (f *Fake) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if err := f.begin("TransactWriteItems", ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(params.TransactItems) > 100 {
		return nil, fmt.Errorf("dynamotest: transaction of %d exceeds 100 items", len(params.TransactItems))
	}

	// Validate everything before applying anything.
	type op struct {
		t *table
		k string
	}
	var deletes []op
	for _, item := range params.TransactItems {
		if item.Delete == nil {
			return nil, fmt.Errorf("dynamotest: only Delete transact items are supported")
		}
		t, err := f.lookup(aws.ToString(item.Delete.TableName))
		if err != nil {
			return nil, err
		}
		k, err := t.key(item.Delete.Key)
		if err != nil {
			return nil, err
		}
		deletes = append(deletes, op{t: t, k: k})
	}
	for _, d := range deletes {
		delete(d.t.items, d.k)
	}
	f.tokens = append(f.tokens, aws.ToString(params.ClientRequestToken))
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func checkCondition(expr *string, names map[string]string, values map[string]types.AttributeValue, current map[string]types.AttributeValue) error {
	if expr == nil {
		return nil
	}
	ok, err := Match(*expr, names, values, current)
	if err != nil {
		return err
	}
	if !ok {
		return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	return nil
}

func sorted(items map[string]map[string]types.AttributeValue) []map[string]types.AttributeValue {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]map[string]types.AttributeValue, len(keys))
	for i, k := range keys {
		out[i] = items[k]
	}
	return out
}
