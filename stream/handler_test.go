package stream_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/prune/cascade"
	"github.com/jacentio/prune/internal/dynamotest"
	"github.com/jacentio/prune/store"
	"github.com/jacentio/prune/stream"
)

var (
	author = store.Collection{Type: "author", Table: "Author"}
	book   = store.Collection{Type: "book", Table: "Book"}
	image  = store.FileCollection{
		Collection: store.Collection{Type: "image", Table: "Image"},
		Chunks:     "ImageChunks",
	}
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func arn(table string) string {
	return "arn:aws:dynamodb:us-east-1:123456789012:table/" + table + "/stream/2024-01-01T00:00:00.000"
}

func removeRecord(table, id string) events.DynamoDBEventRecord {
	return events.DynamoDBEventRecord{
		EventID:        table + "-" + id,
		EventName:      "REMOVE",
		EventSourceArn: arn(table),
		Change: events.DynamoDBStreamRecord{
			Keys: map[string]events.DynamoDBAttributeValue{
				"id": events.NewStringAttribute(id),
			},
		},
	}
}

func registry() *store.Registry {
	r := store.NewRegistry()
	r.Register(author)
	r.Register(book)
	r.Register(image)
	return r
}

type deleteCall struct {
	Kind store.Kind
	IDs  []string
}

type fakeDeleter struct {
	calls    []deleteCall
	failures map[string]error
}

func (f *fakeDeleter) DeleteIDs(ctx context.Context, kind store.Kind, ids []string, opts cascade.Options) (store.DeleteResult, error) {
	f.calls = append(f.calls, deleteCall{Kind: kind, IDs: ids})
	if err := f.failures[kind.TableName()]; err != nil {
		return store.DeleteResult{}, err
	}
	return store.DeleteResult{Acknowledged: true}, nil
}

func TestNewHandler(t *testing.T) {
	// Nil registry and logger should not panic
	h := stream.NewHandler(&fakeDeleter{}, nil, "", nil)
	if h == nil {
		t.Fatal("expected non-nil Handler")
	}
	if err := h.HandleRemove(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{removeRecord("Author", "a1")},
	}); err != nil {
		t.Errorf("expected unregistered table to be skipped, got %v", err)
	}
}

func TestHandleRemove_GroupsByTable(t *testing.T) {
	d := &fakeDeleter{}
	h := stream.NewHandler(d, registry(), "id", quiet)

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		removeRecord("Author", "a1"),
		removeRecord("Image", "f1"),
		removeRecord("Author", "a2"),
	}}
	if err := h.HandleRemove(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []deleteCall{
		{Kind: author, IDs: []string{"a1", "a2"}},
		{Kind: image, IDs: []string{"f1"}},
	}
	if !reflect.DeepEqual(d.calls, expected) {
		t.Errorf("expected %+v, got %+v", expected, d.calls)
	}
}

func TestHandleRemove_SkipsOtherEvents(t *testing.T) {
	d := &fakeDeleter{}
	h := stream.NewHandler(d, registry(), "id", quiet)

	insert := removeRecord("Author", "a1")
	insert.EventName = "INSERT"
	modify := removeRecord("Author", "a2")
	modify.EventName = "MODIFY"
	noID := removeRecord("Author", "")
	noID.Change.Keys = nil
	badARN := removeRecord("Author", "a3")
	badARN.EventSourceArn = "arn:aws:sqs:us-east-1:123456789012:queue"

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{insert, modify, noID, badARN}}
	if err := h.HandleRemove(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.calls) != 0 {
		t.Errorf("expected no deletes, got %+v", d.calls)
	}
}

func TestHandleRemove_SkipsRelationshipAndChunkTables(t *testing.T) {
	d := &fakeDeleter{}
	h := stream.NewHandler(d, registry(), "id", quiet)

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		removeRecord("Author~Book", "a1"),
		removeRecord("ImageChunks", "f1"),
		removeRecord("Unknown", "x1"),
	}}
	if err := h.HandleRemove(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.calls) != 0 {
		t.Errorf("expected no deletes, got %+v", d.calls)
	}
}

func TestHandleRemove_TTLExpiry(t *testing.T) {
	d := &fakeDeleter{}
	h := stream.NewHandler(d, registry(), "id", quiet)

	record := removeRecord("Book", "b1")
	record.UserIdentity = &events.DynamoDBUserIdentity{Type: "Service", PrincipalID: "dynamodb.amazonaws.com"}
	record.Change.OldImage = map[string]events.DynamoDBAttributeValue{
		"id":  events.NewStringAttribute("b1"),
		"ttl": events.NewNumberAttribute("1700000000"),
	}
	if err := h.HandleRemove(context.Background(), events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{record}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.calls) != 1 || d.calls[0].Kind != book {
		t.Errorf("expected one book delete, got %+v", d.calls)
	}
}

func TestHandleRemove_ReturnsError(t *testing.T) {
	boom := errors.New("throttled")
	d := &fakeDeleter{failures: map[string]error{"Author": boom}}
	h := stream.NewHandler(d, registry(), "id", quiet)

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		removeRecord("Author", "a1"),
		removeRecord("Book", "b1"),
	}}
	err := h.HandleRemove(context.Background(), event)
	if !errors.Is(err, boom) {
		t.Fatalf("expected deleter error, got %v", err)
	}
	if len(d.calls) != 1 {
		t.Errorf("expected processing to stop at the failing table, got %+v", d.calls)
	}
}

func TestHandleRemove_CustomIDAttribute(t *testing.T) {
	d := &fakeDeleter{}
	h := stream.NewHandler(d, registry(), "pk", quiet)

	record := removeRecord("Author", "")
	record.Change.Keys = map[string]events.DynamoDBAttributeValue{
		"pk": events.NewStringAttribute("a9"),
	}
	if err := h.HandleRemove(context.Background(), events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{record}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.calls) != 1 || !reflect.DeepEqual(d.calls[0].IDs, []string{"a9"}) {
		t.Errorf("expected a9 delete, got %+v", d.calls)
	}
}

func TestHandleRemove_SkipsNonStringIDs(t *testing.T) {
	d := &fakeDeleter{}
	h := stream.NewHandler(d, registry(), "id", quiet)

	numeric := removeRecord("Author", "")
	numeric.Change.Keys = map[string]events.DynamoDBAttributeValue{
		"id": events.NewNumberAttribute("42"),
	}
	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		numeric,
		removeRecord("Author", "a1"),
	}}
	if err := h.HandleRemove(context.Background(), event); err != nil {
		t.Fatalf("expected numeric id to be skipped, got %v", err)
	}
	if len(d.calls) != 1 || !reflect.DeepEqual(d.calls[0].IDs, []string{"a1"}) {
		t.Errorf("expected only a1 to be deleted, got %+v", d.calls)
	}
}

func TestHandleRemove_CascadesThroughStore(t *testing.T) {
	fake := dynamotest.New()
	fake.CreateTable("Author", "id", "")
	fake.CreateTable("Author~Book", "ParentID", "ChildID")
	fake.Seed("Author", map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: "a2"}})
	fake.Seed("Author~Book",
		map[string]types.AttributeValue{
			"ParentID": &types.AttributeValueMemberS{Value: "a1"},
			"ChildID":  &types.AttributeValueMemberS{Value: "b1"},
		},
		map[string]types.AttributeValue{
			"ParentID": &types.AttributeValueMemberS{Value: "a2"},
			"ChildID":  &types.AttributeValueMemberS{Value: "b2"},
		},
	)

	cfg := store.DefaultConfig()
	cfg.RetryBaseDelay = time.Millisecond
	d := cascade.NewFromStore(store.New(fake, cfg), quiet)
	h := stream.NewHandler(d, registry(), cfg.IDAttribute, quiet)

	// a1 was already removed from Author; only its relationship remains.
	if err := h.HandleRemove(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{removeRecord("Author", "a1")},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	links := fake.Items("Author~Book")
	if len(links) != 1 {
		t.Fatalf("expected 1 relationship left, got %d", len(links))
	}
	if v := links[0]["ParentID"].(*types.AttributeValueMemberS).Value; v != "a2" {
		t.Errorf("expected a2's relationship to remain, got %s", v)
	}
	if got := len(fake.Items("Author")); got != 1 {
		t.Errorf("expected a2 to remain, got %d authors", got)
	}
}
