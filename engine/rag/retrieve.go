// Package rag orchestrates the retrieval-augmented chat pipeline. The
// Retriever embeds a question once, fans the search out across the caller's
// resolved scope indexes, and merges the hits under a diversity cap. The
// Synthesizer turns the retrieved chunks into a grounded Markdown answer,
// gated by the organization's token quota.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/DocentAI/docent-mvp/engine/domain"
	"github.com/DocentAI/docent-mvp/engine/provider"
	"github.com/DocentAI/docent-mvp/engine/scope"
	"github.com/DocentAI/docent-mvp/pkg/fn"
)

// SearchIndex is the read side of a scope-keyed vector index. Both the file
// backend and the qdrant backend satisfy it.
type SearchIndex interface {
	Search(ctx context.Context, scopeKey string, query []float32, k int) ([]domain.RetrievalResult, error)
	ListScopes(ctx context.Context) ([]string, error)
}

// ScopeResolver computes the caller's readable scope set.
type ScopeResolver interface {
	Resolve(ctx context.Context, user domain.User) (scope.Set, error)
}

// FolderLookup expands folder filters into document IDs.
type FolderLookup interface {
	DocumentsInFolder(ctx context.Context, folderID string) ([]domain.Document, error)
}

// Filters narrow retrieval to specific documents or folders. Filters only
// ever restrict within the resolved scope; an out-of-scope ID in a filter is
// silently unreachable rather than an access grant.
type Filters struct {
	DocumentIDs []string
	FolderIDs   []string
}

func (f Filters) empty() bool {
	return len(f.DocumentIDs) == 0 && len(f.FolderIDs) == 0
}

// RetrieverOptions configures retrieval behaviour.
type RetrieverOptions struct {
	TopK          int
	SearchTimeout time.Duration
}

// DefaultRetrieverOptions returns sensible defaults.
func DefaultRetrieverOptions() RetrieverOptions {
	return RetrieverOptions{
		TopK:          5,
		SearchTimeout: 5 * time.Second,
	}
}

// Retriever runs scoped nearest-neighbor retrieval.
type Retriever struct {
	embed    provider.Embedder
	index    SearchIndex
	resolver ScopeResolver
	folders  FolderLookup
	opts     RetrieverOptions
	logger   *slog.Logger
}

// NewRetriever creates a Retriever. folders may be nil when folder filters
// are not used.
func NewRetriever(embed provider.Embedder, index SearchIndex, resolver ScopeResolver, folders FolderLookup, opts RetrieverOptions, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultRetrieverOptions().TopK
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = DefaultRetrieverOptions().SearchTimeout
	}
	return &Retriever{embed: embed, index: index, resolver: resolver, folders: folders, opts: opts, logger: logger}
}

// Retrieve embeds the question once and searches every index the user may
// read, returning up to k merged hits ranked by ascending distance. A user
// with no accessible content gets an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, user domain.User, question string, k int, filters Filters) ([]domain.RetrievalResult, error) {
	if err := domain.ValidateQuestion(question); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = r.opts.TopK
	}

	vectors, err := r.embed.EmbedBatch(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("rag: embed question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for one question", domain.ErrEmbeddingProvider, len(vectors))
	}
	query := vectors[0]

	set, err := r.resolver.Resolve(ctx, user)
	if err != nil {
		return nil, err
	}

	keys := set.Keys
	if set.Unrestricted {
		keys, err = r.index.ListScopes(ctx)
		if err != nil {
			return nil, fmt.Errorf("rag: list scopes: %w", err)
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}

	allowedDocs, err := r.allowedDocs(ctx, filters)
	if err != nil {
		return nil, err
	}

	searchCtx, cancel := context.WithTimeout(ctx, r.opts.SearchTimeout)
	defer cancel()

	searches := make([]func() fn.Result[[]domain.RetrievalResult], len(keys))
	for i, key := range keys {
		key := key
		searches[i] = func() fn.Result[[]domain.RetrievalResult] {
			return fn.FromPair(r.index.Search(searchCtx, key, query, k))
		}
	}
	fanned := fn.FanOutResult(searches...)
	perIndex, err := fanned.Unwrap()
	if err != nil {
		return nil, fmt.Errorf("rag: scope search: %w", err)
	}

	var candidates []domain.RetrievalResult
	for _, hits := range perIndex {
		candidates = append(candidates, hits...)
	}
	if allowedDocs != nil {
		filtered := candidates[:0]
		for _, c := range candidates {
			if allowedDocs[c.DocID] {
				filtered = append(filtered, c)
			}
		}
		candidates = filtered
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score < candidates[j].Score
	})

	results := diversify(candidates, k)
	r.logger.Info("rag retrieve done",
		"user_id", user.ID,
		"scopes", len(keys),
		"candidates", len(candidates),
		"results", len(results),
	)
	return results, nil
}

// allowedDocs returns the set of document IDs the caller's filters permit,
// or nil when no filter applies.
func (r *Retriever) allowedDocs(ctx context.Context, filters Filters) (map[string]bool, error) {
	if filters.empty() {
		return nil, nil
	}
	allowed := make(map[string]bool, len(filters.DocumentIDs))
	for _, id := range filters.DocumentIDs {
		allowed[id] = true
	}
	for _, folderID := range filters.FolderIDs {
		if r.folders == nil {
			continue
		}
		docs, err := r.folders.DocumentsInFolder(ctx, folderID)
		if err != nil {
			return nil, fmt.Errorf("rag: folder %s: %w", folderID, err)
		}
		for _, d := range docs {
			allowed[d.ID] = true
		}
	}
	return allowed, nil
}

// diversify walks the distance-sorted candidate list, always accepting the
// first hit from each document, then backfills remaining slots with repeat
// hits while fewer than k results have been collected. One verbose document
// cannot crowd out every other source. The final list is re-ranked by
// ascending distance.
func diversify(sorted []domain.RetrievalResult, k int) []domain.RetrievalResult {
	seen := make(map[string]bool)
	var firsts, repeats []domain.RetrievalResult
	for _, hit := range sorted {
		if !seen[hit.DocID] {
			seen[hit.DocID] = true
			firsts = append(firsts, hit)
		} else {
			repeats = append(repeats, hit)
		}
	}
	if len(firsts) >= k {
		return firsts[:k]
	}

	out := firsts
	for _, hit := range repeats {
		if len(out) == k {
			break
		}
		out = append(out, hit)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}
