package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/DocentAI/docent-mvp/engine/domain"
	"github.com/DocentAI/docent-mvp/engine/scope"
)

type stubEmbedder struct {
	calls int
	fail  error
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.fail != nil {
		return nil, s.fail
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type stubIndex struct {
	hits     map[string][]domain.RetrievalResult
	searched []string
}

func (s *stubIndex) Search(_ context.Context, scopeKey string, _ []float32, k int) ([]domain.RetrievalResult, error) {
	s.searched = append(s.searched, scopeKey)
	hits := s.hits[scopeKey]
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *stubIndex) ListScopes(_ context.Context) ([]string, error) {
	keys := make([]string, 0, len(s.hits))
	for k := range s.hits {
		keys = append(keys, k)
	}
	return keys, nil
}

type stubResolver struct {
	set scope.Set
	err error
}

func (s *stubResolver) Resolve(_ context.Context, _ domain.User) (scope.Set, error) {
	return s.set, s.err
}

type stubFolders struct {
	docs map[string][]domain.Document
}

func (s *stubFolders) DocumentsInFolder(_ context.Context, folderID string) ([]domain.Document, error) {
	return s.docs[folderID], nil
}

func hit(doc string, score float32) domain.RetrievalResult {
	return domain.RetrievalResult{Text: "chunk of " + doc, DocID: doc, DocTitle: doc, Score: score}
}

func newTestRetriever(idx *stubIndex, set scope.Set) (*Retriever, *stubEmbedder) {
	emb := &stubEmbedder{}
	r := NewRetriever(emb, idx, &stubResolver{set: set}, nil, DefaultRetrieverOptions(), nil)
	return r, emb
}

func TestRetrieve_MergesAcrossScopesAscending(t *testing.T) {
	idx := &stubIndex{hits: map[string][]domain.RetrievalResult{
		"user_u1": {hit("a", 0.5), hit("b", 0.9)},
		"public":  {hit("c", 0.1)},
	}}
	r, emb := newTestRetriever(idx, scope.Set{Keys: []string{"user_u1", "public"}})

	results, err := r.Retrieve(context.Background(), domain.User{ID: "u1"}, "what is the deadline", 5, Filters{})
	if err != nil {
		t.Fatal(err)
	}
	if emb.calls != 1 {
		t.Errorf("embed calls = %d, want exactly one", emb.calls)
	}
	want := []string{"c", "a", "b"}
	if len(results) != len(want) {
		t.Fatalf("got %d results", len(results))
	}
	for i, w := range want {
		if results[i].DocID != w {
			t.Errorf("results[%d] = %s, want %s", i, results[i].DocID, w)
		}
	}
}

func TestRetrieve_NeverReturnsOutOfScopeDocs(t *testing.T) {
	// The org index holds the juicy document, but the resolver does not
	// grant the org scope. A caller-supplied filter naming that document
	// must not widen access.
	idx := &stubIndex{hits: map[string][]domain.RetrievalResult{
		"user_u1":   {hit("mine", 0.3)},
		"org_other": {hit("secret", 0.01)},
	}}
	r, _ := newTestRetriever(idx, scope.Set{Keys: []string{"user_u1", "public"}})

	results, err := r.Retrieve(context.Background(), domain.User{ID: "u1"}, "tell me everything", 5,
		Filters{DocumentIDs: []string{"secret", "mine"}})
	if err != nil {
		t.Fatal(err)
	}
	for _, res := range results {
		if res.DocID == "secret" {
			t.Fatal("out-of-scope document leaked through a filter")
		}
	}
	for _, key := range idx.searched {
		if key == "org_other" {
			t.Fatal("searched an index outside the resolved scope")
		}
	}
	if len(results) != 1 || results[0].DocID != "mine" {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestRetrieve_DocumentFilterNarrows(t *testing.T) {
	idx := &stubIndex{hits: map[string][]domain.RetrievalResult{
		"user_u1": {hit("a", 0.1), hit("b", 0.2)},
	}}
	r, _ := newTestRetriever(idx, scope.Set{Keys: []string{"user_u1"}})

	results, err := r.Retrieve(context.Background(), domain.User{ID: "u1"}, "question here", 5,
		Filters{DocumentIDs: []string{"b"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].DocID != "b" {
		t.Errorf("filter not applied: %+v", results)
	}
}

func TestRetrieve_FolderFilterExpandsToDocs(t *testing.T) {
	idx := &stubIndex{hits: map[string][]domain.RetrievalResult{
		"user_u1": {hit("a", 0.1), hit("b", 0.2)},
	}}
	folders := &stubFolders{docs: map[string][]domain.Document{
		"f1": {{ID: "b"}},
	}}
	r := NewRetriever(&stubEmbedder{}, idx, &stubResolver{set: scope.Set{Keys: []string{"user_u1"}}},
		folders, DefaultRetrieverOptions(), nil)

	results, err := r.Retrieve(context.Background(), domain.User{ID: "u1"}, "question here", 5,
		Filters{FolderIDs: []string{"f1"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].DocID != "b" {
		t.Errorf("folder filter not applied: %+v", results)
	}
}

func TestRetrieve_EmptyScopeIsEmptyResultNotError(t *testing.T) {
	r, _ := newTestRetriever(&stubIndex{}, scope.Set{Keys: nil})

	results, err := r.Retrieve(context.Background(), domain.User{ID: "u1"}, "anything at all", 5, Filters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty result, got %+v", results)
	}
}

func TestRetrieve_UnrestrictedSearchesEveryScope(t *testing.T) {
	idx := &stubIndex{hits: map[string][]domain.RetrievalResult{
		"user_u1": {hit("a", 0.2)},
		"org_x":   {hit("b", 0.1)},
		"public":  {hit("c", 0.3)},
	}}
	r, _ := newTestRetriever(idx, scope.Set{Unrestricted: true})

	results, err := r.Retrieve(context.Background(), domain.User{ID: "admin", Superuser: true}, "audit query", 5, Filters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want hits from all scopes", len(results))
	}
	if len(idx.searched) != 3 {
		t.Errorf("searched %d scopes, want 3", len(idx.searched))
	}
}

func TestRetrieve_RejectsShortQuestion(t *testing.T) {
	r, emb := newTestRetriever(&stubIndex{}, scope.Set{Keys: []string{"public"}})

	if _, err := r.Retrieve(context.Background(), domain.User{ID: "u1"}, "hi", 5, Filters{}); err == nil {
		t.Fatal("expected validation error")
	}
	if emb.calls != 0 {
		t.Errorf("embedded an invalid question")
	}
}

func TestRetrieve_EmbedFailurePropagates(t *testing.T) {
	boom := errors.New("provider down")
	idx := &stubIndex{}
	r := NewRetriever(&stubEmbedder{fail: boom}, idx, &stubResolver{set: scope.Set{Keys: []string{"public"}}},
		nil, DefaultRetrieverOptions(), nil)

	if _, err := r.Retrieve(context.Background(), domain.User{ID: "u1"}, "valid question", 5, Filters{}); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	if len(idx.searched) != 0 {
		t.Error("searched indexes after embed failure")
	}
}

func TestDiversify_OneDocCannotMonopolize(t *testing.T) {
	sorted := []domain.RetrievalResult{
		hit("a", 0.1), hit("a", 0.2), hit("a", 0.3), hit("b", 0.4), hit("c", 0.5),
	}
	out := diversify(sorted, 3)
	if len(out) != 3 {
		t.Fatalf("got %d results", len(out))
	}
	docs := map[string]int{}
	for _, r := range out {
		docs[r.DocID]++
	}
	if len(docs) != 3 {
		t.Errorf("expected three distinct documents, got %v", docs)
	}
}

func TestDiversify_BackfillsWhenFewDocs(t *testing.T) {
	sorted := []domain.RetrievalResult{
		hit("a", 0.1), hit("a", 0.2), hit("b", 0.3), hit("a", 0.4),
	}
	out := diversify(sorted, 3)
	if len(out) != 3 {
		t.Fatalf("got %d results", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i-1].Score > out[i].Score {
			t.Errorf("results not in ascending score order: %+v", out)
		}
	}
}
