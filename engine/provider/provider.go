// Package provider defines the embedding and generation provider contracts
// and an OpenAI-compatible HTTP client implementing both. Providers are
// injected as explicit dependencies; nothing here is a package-level
// singleton, which keeps tests on stub implementations trivial.
package provider

import "context"

// Embedder turns text into fixed-dimension vectors, one per input,
// preserving order. An empty input must return an empty result without a
// provider round trip.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// GenRequest is one synthesis call to the generation provider.
type GenRequest struct {
	System      string
	User        string
	Temperature float32
}

// Generator synthesizes text from a system/user prompt pair.
type Generator interface {
	Generate(ctx context.Context, req GenRequest) (string, error)
}
