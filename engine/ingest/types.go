package ingest

import "github.com/DocentAI/docent-mvp/engine/domain"

// Job is the message a producer publishes to enqueue a document for
// ingestion. Chunking parameters are optional; zero values fall back to the
// package defaults.
type Job struct {
	Document     domain.Document `json:"document"`
	FolderID     string          `json:"folder_id,omitempty"`
	ChunkSize    int             `json:"chunk_size,omitempty"`
	ChunkOverlap int             `json:"chunk_overlap,omitempty"`
}

// ChunkedJob is a Job whose text has been split into chunk metadata.
type ChunkedJob struct {
	Job
	Chunks []domain.Chunk
}

// EmbeddedJob is a ChunkedJob with one vector per chunk, in order.
type EmbeddedJob struct {
	ChunkedJob
	Vectors [][]float32
}
