package cascade_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/prune/cascade"
	"github.com/jacentio/prune/internal/dynamotest"
	"github.com/jacentio/prune/store"
)

var (
	book   = store.Collection{Type: "book", Table: "Book"}
	review = store.Collection{Type: "review", Table: "Review"}
)

func newLibrary(t *testing.T) (*store.Store, *dynamotest.Fake) {
	t.Helper()
	fake := dynamotest.New()
	fake.CreateTable("Author", "id", "")
	fake.CreateTable("Book", "id", "")
	fake.CreateTable("Review", "id", "")
	fake.CreateTable("Image", "id", "")
	fake.CreateTable("ImageChunks", "FileID", "N")
	fake.CreateTable("Author~Book", "ParentID", "ChildID")
	fake.CreateTable("Author~Review", "ParentID", "ChildID")

	cfg := store.DefaultConfig()
	cfg.RetryBaseDelay = time.Millisecond
	s := store.New(fake, cfg)

	ctx := context.Background()
	put := func(kind store.Kind, id string, attrs map[string]types.AttributeValue) {
		if err := s.Put(ctx, store.Ref{Kind: kind, EntityID: id}, attrs); err != nil {
			t.Fatalf("put %s/%s: %v", kind.TableName(), id, err)
		}
	}
	relate := func(parentKind store.Kind, parent string, childKind store.Kind, child string) {
		if err := s.Relate(ctx, store.Ref{Kind: parentKind, EntityID: parent}, store.Ref{Kind: childKind, EntityID: child}); err != nil {
			t.Fatalf("relate %s/%s: %v", parent, child, err)
		}
	}
	genre := func(g string) map[string]types.AttributeValue {
		return map[string]types.AttributeValue{"genre": &types.AttributeValueMemberS{Value: g}}
	}

	put(author, "a1", genre("scifi"))
	put(author, "a2", genre("scifi"))
	put(author, "a3", genre("poetry"))
	for _, id := range []string{"b1", "b2", "b3"} {
		put(book, id, nil)
	}
	put(review, "r1", nil)
	relate(author, "a1", book, "b1")
	relate(author, "a2", book, "b2")
	relate(author, "a3", book, "b3")
	relate(author, "a1", review, "r1")
	relate(author, "a2", review, "r1")
	return s, fake
}

func referencing(fake *dynamotest.Fake, table string, ids ...string) int {
	want := make(map[string]bool)
	for _, id := range ids {
		want[id] = true
	}
	n := 0
	for _, item := range fake.Items(table) {
		for _, attr := range []string{store.ParentIDAttr, store.ChildIDAttr, store.FileIDAttr, "id"} {
			if v, ok := item[attr].(*types.AttributeValueMemberS); ok && want[v.Value] {
				n++
				break
			}
		}
	}
	return n
}

func TestStore_DeleteIDsLeavesNoDanglingRecords(t *testing.T) {
	s, fake := newLibrary(t)
	d := cascade.NewFromStore(s, quiet)

	result, err := d.DeleteIDs(context.Background(), author, []string{"a1", "a2"}, cascade.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DeletedCount != 2 || !result.Acknowledged {
		t.Errorf("expected 2 acknowledged deletes, got %+v", result)
	}

	for _, table := range []string{"Author", "Author~Book", "Author~Review"} {
		if n := referencing(fake, table, "a1", "a2"); n != 0 {
			t.Errorf("%s: expected no records for a1/a2, found %d", table, n)
		}
	}
	if n := referencing(fake, "Author", "a3"); n != 1 {
		t.Errorf("expected a3 to survive, found %d", n)
	}
	if n := referencing(fake, "Author~Book", "a3"); n != 1 {
		t.Errorf("expected a3's join record to survive, found %d", n)
	}
	// Related entities are not deleted, only the links to them.
	if got := len(fake.Items("Book")); got != 3 {
		t.Errorf("expected 3 books to remain, got %d", got)
	}
	if got := len(fake.Items("Review")); got != 1 {
		t.Errorf("expected review to remain, got %d", got)
	}
}

func TestStore_DeleteIDRemovesChunks(t *testing.T) {
	s, fake := newLibrary(t)
	ctx := context.Background()
	d := cascade.NewFromStore(s, quiet)

	for _, id := range []string{"f1", "f2"} {
		if err := s.Put(ctx, store.Ref{Kind: image, EntityID: id}, nil); err != nil {
			t.Fatalf("put image: %v", err)
		}
		if _, err := s.UploadChunks(ctx, store.FileRef{ChunkOwner: image, EntityID: id}, bytes.Repeat([]byte(id), 10), 4); err != nil {
			t.Fatalf("upload chunks: %v", err)
		}
	}

	result, err := d.DeleteID(ctx, image, "f1", cascade.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DeletedCount != 1 {
		t.Errorf("expected 1 deleted, got %d", result.DeletedCount)
	}

	if n := referencing(fake, "ImageChunks", "f1"); n != 0 {
		t.Errorf("expected no chunks for f1, found %d", n)
	}
	if _, err := s.ReadChunks(ctx, store.FileRef{ChunkOwner: image, EntityID: "f1"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound reading f1, got %v", err)
	}
	data, err := s.ReadChunks(ctx, store.FileRef{ChunkOwner: image, EntityID: "f2"})
	if err != nil {
		t.Fatalf("read f2: %v", err)
	}
	if !bytes.Equal(data, bytes.Repeat([]byte("f2"), 10)) {
		t.Errorf("expected f2 payload intact, got %q", data)
	}
	if n := fake.CallCount("ListTables", ""); n != 1 {
		t.Errorf("expected one catalog read, got %d", n)
	}
}

func TestStore_DeleteIDsInSession(t *testing.T) {
	s, fake := newLibrary(t)
	ctx := context.Background()
	d := cascade.NewFromStore(s, quiet)

	session := s.NewSession()
	result, err := d.DeleteIDs(ctx, author, []string{"a1"}, cascade.Options{Session: session})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Acknowledged {
		t.Error("expected staged result to be unacknowledged")
	}
	if n := referencing(fake, "Author~Book", "a1"); n != 1 {
		t.Fatalf("expected nothing applied before commit, found %d join records", n)
	}

	if err := session.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	for _, table := range []string{"Author", "Author~Book", "Author~Review"} {
		if n := referencing(fake, table, "a1"); n != 0 {
			t.Errorf("%s: expected a1 records gone after commit, found %d", table, n)
		}
	}
	if n := fake.CallCount("BatchWriteItem", ""); n != 0 {
		t.Errorf("expected no batch writes in a session, got %d", n)
	}
}

func TestStore_DeleteWhere(t *testing.T) {
	s, fake := newLibrary(t)
	d := cascade.NewFromStore(s, quiet)

	result, err := d.DeleteWhere(context.Background(), author,
		expression.Name("genre").Equal(expression.Value("scifi")), cascade.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DeletedCount != 2 {
		t.Errorf("expected 2 deleted, got %d", result.DeletedCount)
	}
	if got := len(fake.Items("Author")); got != 1 {
		t.Errorf("expected 1 author left, got %d", got)
	}
	if got := len(fake.Items("Author~Review")); got != 0 {
		t.Errorf("expected no review links left, got %d", got)
	}
}

func TestStore_JoinFailureReportsTable(t *testing.T) {
	s, fake := newLibrary(t)
	fake.FailOn("Scan", "Author~Book", errors.New("throttled"))
	d := cascade.NewFromStore(s, quiet)

	_, err := d.DeleteIDs(context.Background(), author, []string{"a1"}, cascade.Options{})
	var delErr *cascade.DeleteError
	if !errors.As(err, &delErr) || delErr.Collection != "Author~Book" {
		t.Fatalf("expected DeleteError on Author~Book, got %v", err)
	}
	// The sibling deletes still ran.
	if n := referencing(fake, "Author~Review", "a1"); n != 0 {
		t.Errorf("expected a1 review links gone, found %d", n)
	}
	if n := referencing(fake, "Author", "a1"); n != 0 {
		t.Errorf("expected a1 gone, found %d", n)
	}
}
