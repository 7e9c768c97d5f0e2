// Package semantic is the server-backed variant of the vector index: one
// Qdrant collection per scope key, same search contract as the file-backed
// flat index. Deployments pick a backend via configuration; retrieval is
// oblivious to which one it talks to.
package semantic

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/DocentAI/docent-mvp/engine/domain"
)

// VectorStore owns all Qdrant operations.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	prefix      string
	dims        int
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
// Collections are named prefix + scope key.
func New(addr, prefix string, dims int) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		prefix:      prefix,
		dims:        dims,
	}, nil
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	return v.conn.Close()
}

func (v *VectorStore) collection(scopeKey string) string {
	return v.prefix + scopeKey
}

// ensureCollection creates the scope's collection if it doesn't exist.
// Euclidean distance keeps score polarity aligned with the flat index.
func (v *VectorStore) ensureCollection(ctx context.Context, scopeKey string) error {
	name := v.collection(scopeKey)
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == name {
			return nil
		}
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(v.dims),
					Distance: pb.Distance_Euclid,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", name, err)
	}
	return nil
}

// Upsert appends a document's chunk vectors to its scope's collection.
// Point IDs are deterministic per (doc, position) so a re-ingestion of the
// same document overwrites rather than duplicates.
func (v *VectorStore) Upsert(ctx context.Context, scopeKey string, vectors [][]float32, chunks []domain.Chunk) error {
	if len(vectors) != len(chunks) {
		return fmt.Errorf("semantic: upsert %d vectors with %d chunks", len(vectors), len(chunks))
	}
	if len(vectors) == 0 {
		return nil
	}
	if err := v.ensureCollection(ctx, scopeKey); err != nil {
		return err
	}

	points := make([]*pb.PointStruct, len(vectors))
	for i, vec := range vectors {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(chunks[i].DocID, i)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vec},
				},
			},
			Payload: chunkPayload(chunks[i]),
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection(scopeKey),
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points into %s: %w", len(points), scopeKey, err)
	}
	return nil
}

// DeleteByDocID removes a document's points from its scope collection.
func (v *VectorStore) DeleteByDocID(ctx context.Context, scopeKey, docID string) error {
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection(scopeKey),
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{fieldMatch("doc_id", docID)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete doc %s from %s: %w", docID, scopeKey, err)
	}
	return nil
}

// Search performs k-NN search within one scope's collection. A scope whose
// collection does not exist yet yields no results.
func (v *VectorStore) Search(ctx context.Context, scopeKey string, query []float32, k int) ([]domain.RetrievalResult, error) {
	req := &pb.SearchPoints{
		CollectionName: v.collection(scopeKey),
		Vector:         query,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		if strings.Contains(err.Error(), "doesn't exist") || strings.Contains(err.Error(), "not found") {
			return nil, nil
		}
		return nil, fmt.Errorf("semantic: search %s: %w", scopeKey, err)
	}

	results := make([]domain.RetrievalResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		results[i] = resultFromPoint(r)
	}
	return results, nil
}

// ListScopes returns every scope key with a collection under this prefix.
func (v *VectorStore) ListScopes(ctx context.Context) ([]string, error) {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return nil, fmt.Errorf("semantic: list collections: %w", err)
	}
	var keys []string
	for _, c := range list.GetCollections() {
		if strings.HasPrefix(c.GetName(), v.prefix) {
			keys = append(keys, strings.TrimPrefix(c.GetName(), v.prefix))
		}
	}
	return keys, nil
}

// --- mapping helpers ---

// pointID derives a deterministic UUID from doc ID and chunk position.
func pointID(docID string, pos int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s-%d", docID, pos))).String()
}

func chunkPayload(c domain.Chunk) map[string]*pb.Value {
	return map[string]*pb.Value{
		"content":   {Kind: &pb.Value_StringValue{StringValue: c.Text}},
		"doc_id":    {Kind: &pb.Value_StringValue{StringValue: c.DocID}},
		"doc_title": {Kind: &pb.Value_StringValue{StringValue: c.DocTitle}},
	}
}

func resultFromPoint(p *pb.ScoredPoint) domain.RetrievalResult {
	res := domain.RetrievalResult{Score: p.GetScore()}
	for k, val := range p.GetPayload() {
		s := val.GetStringValue()
		switch k {
		case "content":
			res.Text = s
		case "doc_id":
			res.DocID = s
		case "doc_title":
			res.DocTitle = s
		}
	}
	return res
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
