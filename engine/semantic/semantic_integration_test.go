//go:build integration

package semantic

import (
	"context"
	"os"
	"testing"
	"time"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/DocentAI/docent-mvp/engine/domain"
)

func qdrantAddr() string {
	if v := os.Getenv("QDRANT_ADDR"); v != "" {
		return v
	}
	return "localhost:6334"
}

func connectQdrant(t *testing.T) *VectorStore {
	t.Helper()
	vs, err := New(qdrantAddr(), "itest_", 4)
	if err != nil {
		t.Fatalf("qdrant connect: %v", err)
	}
	t.Cleanup(func() { vs.Close() })
	return vs
}

func dropCollection(t *testing.T, vs *VectorStore, scopeKey string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = vs.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: vs.collection(scopeKey)})
}

func TestQdrant_DeleteByDocIDRemovesOnlyThatDocument(t *testing.T) {
	vs := connectQdrant(t)
	const scopeKey = "user_delete-test"
	dropCollection(t, vs, scopeKey)
	t.Cleanup(func() { dropCollection(t, vs, scopeKey) })

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	vecs := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
	}
	chunks := []domain.Chunk{
		{Text: "stale one", DocID: "doc-stale", DocTitle: "Stale"},
		{Text: "stale two", DocID: "doc-stale", DocTitle: "Stale"},
		{Text: "kept", DocID: "doc-kept", DocTitle: "Kept"},
	}
	if err := vs.Upsert(ctx, scopeKey, vecs, chunks); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	hits, err := vs.Search(ctx, scopeKey, []float32{1, 1, 1, 0}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits before delete, got %d", len(hits))
	}

	if err := vs.DeleteByDocID(ctx, scopeKey, "doc-stale"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	hits, err = vs.Search(ctx, scopeKey, []float32{1, 1, 1, 0}, 10)
	if err != nil {
		t.Fatalf("search after delete: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit after delete, got %d", len(hits))
	}
	if hits[0].DocID != "doc-kept" {
		t.Fatalf("surviving hit = %q, want doc-kept", hits[0].DocID)
	}
}
