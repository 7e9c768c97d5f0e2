package semantic

import (
	"testing"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/DocentAI/docent-mvp/engine/domain"
)

func TestPointID_Deterministic(t *testing.T) {
	a := pointID("doc-1", 0)
	b := pointID("doc-1", 0)
	c := pointID("doc-1", 1)
	if a != b {
		t.Errorf("same inputs produced different IDs: %s vs %s", a, b)
	}
	if a == c {
		t.Error("different positions produced the same ID")
	}
}

func TestChunkPayload_RoundTrip(t *testing.T) {
	chunk := domain.Chunk{Text: "body", DocID: "doc-1", DocTitle: "Annual Report"}
	point := &pb.ScoredPoint{Score: 0.5, Payload: chunkPayload(chunk)}

	res := resultFromPoint(point)
	if res.Text != "body" || res.DocID != "doc-1" || res.DocTitle != "Annual Report" {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Score != 0.5 {
		t.Errorf("score = %f, want 0.5", res.Score)
	}
}

func TestCollectionNaming(t *testing.T) {
	v := &VectorStore{prefix: "docent_"}
	if got := v.collection("org_o1"); got != "docent_org_o1" {
		t.Errorf("collection = %q", got)
	}
}
