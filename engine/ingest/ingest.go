// Package ingest provides the ingestion pipeline that processes uploaded
// documents through validation, chunking, embedding, and indexing stages.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/DocentAI/docent-mvp/engine/chunk"
	"github.com/DocentAI/docent-mvp/engine/domain"
	"github.com/DocentAI/docent-mvp/engine/index"
	"github.com/DocentAI/docent-mvp/engine/provider"
	"github.com/DocentAI/docent-mvp/pkg/fn"
	"github.com/DocentAI/docent-mvp/pkg/resilience"
	"github.com/nats-io/nats.go"
)

const (
	// IngestSubject is the NATS subject for incoming document jobs.
	IngestSubject = "engine.ingest"
	// DLQSubject is the dead letter queue subject for failed messages.
	DLQSubject = "engine.ingest.dlq"
	// MaxRetries before sending to DLQ.
	MaxRetries = 3
	// EmbedBatchSize is the max chunks per embedding request.
	EmbedBatchSize = 100
)

// Indexer is the write side of a scope-keyed vector index. Both the file
// backend and the qdrant backend satisfy it.
type Indexer interface {
	Upsert(ctx context.Context, scopeKey string, vectors [][]float32, chunks []domain.Chunk) error
}

// Cataloger records document metadata in the tenancy directory.
type Cataloger interface {
	SaveDocument(ctx context.Context, doc domain.Document, folderID string) error
}

// Deps holds the external dependencies for the ingestion pipeline.
type Deps struct {
	Embedder     provider.Embedder
	Index        Indexer
	Catalog      Cataloger                                             // optional
	EmbedLimiter *resilience.Limiter                                   // optional, throttles embed batches
	DeduplicateF func(ctx context.Context, docID string) (bool, error) // returns true if already ingested
	Logger       *slog.Logger
}

// --- Pipeline Stages ---

// Validate checks the document fields ingestion depends on.
var Validate fn.Stage[Job, Job] = func(_ context.Context, job Job) fn.Result[Job] {
	if err := domain.ValidateDocument(job.Document); err != nil {
		return fn.Err[Job](err)
	}
	return fn.Ok(job)
}

// ChunkDoc splits the document text into chunk metadata. A document with no
// extractable text produces zero chunks and the later stages pass it through
// untouched.
var ChunkDoc fn.Stage[Job, ChunkedJob] = func(_ context.Context, job Job) fn.Result[ChunkedJob] {
	size, overlap := job.ChunkSize, job.ChunkOverlap
	if size == 0 {
		size, overlap = chunk.DefaultSize, chunk.DefaultOverlap
	}
	texts, err := chunk.Split(job.Document.ExtractedText, size, overlap)
	if err != nil {
		return fn.Err[ChunkedJob](err)
	}
	chunks := make([]domain.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = domain.Chunk{Text: t, DocID: job.Document.ID, DocTitle: job.Document.Title}
	}
	return fn.Ok(ChunkedJob{Job: job, Chunks: chunks})
}

// NewEmbed creates an Embed stage backed by the given provider. Chunks are
// batched in groups of EmbedBatchSize; a failed batch aborts the pipeline
// before anything touches the index.
func NewEmbed(embedder provider.Embedder) fn.Stage[ChunkedJob, EmbeddedJob] {
	return func(ctx context.Context, job ChunkedJob) fn.Result[EmbeddedJob] {
		vectors := make([][]float32, 0, len(job.Chunks))

		for i := 0; i < len(job.Chunks); i += EmbedBatchSize {
			end := i + EmbedBatchSize
			if end > len(job.Chunks) {
				end = len(job.Chunks)
			}

			texts := make([]string, end-i)
			for j, c := range job.Chunks[i:end] {
				texts[j] = c.Text
			}

			batch, err := embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return fn.Err[EmbeddedJob](fmt.Errorf("embed batch: %w", err))
			}
			vectors = append(vectors, batch...)
		}

		return fn.Ok(EmbeddedJob{ChunkedJob: job, Vectors: vectors})
	}
}

// NewStore creates a Store stage that catalogs the document and upserts its
// vectors under the document's scope key. An empty chunk set is a successful
// no-op against the index.
func NewStore(idx Indexer, catalog Cataloger) fn.Stage[EmbeddedJob, string] {
	return func(ctx context.Context, job EmbeddedJob) fn.Result[string] {
		if catalog != nil {
			if err := catalog.SaveDocument(ctx, job.Document, job.FolderID); err != nil {
				return fn.Err[string](fmt.Errorf("catalog save: %w", err))
			}
		}

		if len(job.Chunks) == 0 {
			return fn.Ok(job.Document.ID)
		}

		scopeKey := index.ScopeForDocument(job.Document)
		if err := idx.Upsert(ctx, scopeKey, job.Vectors, job.Chunks); err != nil {
			return fn.Err[string](fmt.Errorf("index upsert: %w", err))
		}
		return fn.Ok(job.Document.ID)
	}
}

// LoggedTap returns a stage that logs entry/exit with duration.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(ctx context.Context, t T) fn.Result[T] {
		log.Info("stage.enter", "stage", name)
		start := time.Now()
		defer func() {
			log.Info("stage.exit", "stage", name, "duration", time.Since(start))
		}()
		return fn.Ok(t)
	}
}

// NewPipeline constructs the full ingestion pipeline with all stages wired.
func NewPipeline(deps Deps) fn.Stage[Job, string] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	embedStage := NewEmbed(deps.Embedder)
	if deps.EmbedLimiter != nil {
		embedStage = resilience.LimiterStageWait(deps.EmbedLimiter, embedStage)
	}

	// Compose: Validate → Chunk → Embed → Store, with logging taps between
	// and a span around each stage.
	validated := fn.Then(LoggedTap[Job]("validate", log), fn.TracedStage("ingest.validate", Validate))
	chunked := fn.Then(validated, fn.Then(LoggedTap[Job]("chunk", log), fn.TracedStage("ingest.chunk", ChunkDoc)))
	counted := fn.Then(chunked, fn.TapStage(func(_ context.Context, j ChunkedJob) {
		log.Info("document chunked", "doc_id", j.Document.ID, "chunks", len(j.Chunks))
	}))
	embedded := fn.Then(counted, fn.Then(LoggedTap[ChunkedJob]("embed", log), fn.TracedStage("ingest.embed", embedStage)))
	stored := fn.Then(embedded, fn.Then(LoggedTap[EmbeddedJob]("store", log), fn.TracedStage("ingest.store", NewStore(deps.Index, deps.Catalog))))

	return stored
}

// DLQMessage is published to the DLQ after MaxRetries failures. Operators
// drain or replay the DLQ out of band.
type DLQMessage struct {
	Job     Job    `json:"job"`
	Error   string `json:"error"`
	Retries int    `json:"retries"`
}

// publisher is the subset of nats.Conn the consumer needs for retry
// re-publishes and dead letters.
type publisher interface {
	Publish(subj string, data []byte) error
	PublishMsg(m *nats.Msg) error
}

// StartConsumer starts a NATS consumer that runs document jobs through the
// ingestion pipeline with retry and DLQ support.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	return nc.Subscribe(IngestSubject, newMsgHandler(nc, deps))
}

// newMsgHandler builds the per-message consumer logic: unmarshal, dedup,
// run the pipeline, and on failure either re-publish with an incremented
// retry header or dead-letter the job.
func newMsgHandler(pub publisher, deps Deps) nats.MsgHandler {
	pipeline := NewPipeline(deps)
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return func(msg *nats.Msg) {
		var job Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			log.Error("ingest: unmarshal failed", "error", err)
			return
		}

		ctx := context.Background()

		// Deduplication check.
		if deps.DeduplicateF != nil {
			exists, err := deps.DeduplicateF(ctx, job.Document.ID)
			if err != nil {
				log.Warn("ingest: dedup check failed", "error", err)
			} else if exists {
				log.Info("ingest: skipping duplicate", "doc_id", job.Document.ID)
				if msg.Reply != "" {
					_ = msg.Ack()
				}
				return
			}
		}

		// Get retry count from header.
		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get("X-Retry-Count"); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		result := pipeline(ctx, job)
		if result.IsErr() {
			_, pipeErr := result.Unwrap()
			retries++
			log.Error("ingest: pipeline failed",
				"error", pipeErr,
				"doc_id", job.Document.ID,
				"retry", retries,
			)

			if retries >= MaxRetries {
				// Send to DLQ.
				dlq := DLQMessage{
					Job:     job,
					Error:   pipeErr.Error(),
					Retries: retries,
				}
				data, _ := json.Marshal(dlq)
				if err := pub.Publish(DLQSubject, data); err != nil {
					log.Error("ingest: DLQ publish failed", "error", err)
				}
			} else {
				// Re-publish with incremented retry count.
				retryMsg := nats.NewMsg(IngestSubject)
				retryMsg.Data = msg.Data
				retryMsg.Header = nats.Header{}
				retryMsg.Header.Set("X-Retry-Count", fmt.Sprintf("%d", retries))
				if err := pub.PublishMsg(retryMsg); err != nil {
					log.Error("ingest: retry publish failed", "error", err)
				}
			}
		} else {
			docID, _ := result.Unwrap()
			log.Info("ingest: success", "doc_id", docID)
		}

		// Ack if JetStream.
		if msg.Reply != "" {
			_ = msg.Ack()
		}
	}
}
