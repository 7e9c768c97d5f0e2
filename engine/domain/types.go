// Package domain defines core domain types, sentinel errors, and validation
// for the Docent engine. It acts as the validation gate at pipeline entry points.
package domain

import "time"

// Document is the engine's view of a stored document. Document CRUD, file
// storage, and text extraction belong to the document service; the engine
// only consumes the extracted text and attribution fields.
type Document struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	OwnerID       string    `json:"owner_id"`
	OrgID         string    `json:"org_id,omitempty"`
	IsPublic      bool      `json:"is_public"`
	ExtractedText string    `json:"extracted_text"`
	UploadedAt    time.Time `json:"uploaded_at"`
}

// User identifies a caller for scope resolution. Authentication happens
// upstream; by the time a User reaches the engine it is trusted.
type User struct {
	ID        string `json:"id"`
	Superuser bool   `json:"superuser"`
}

// Organization is a tenant with a token budget.
type Organization struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Active     bool   `json:"active"`
	TokenLimit int64  `json:"token_limit"`
	TokensUsed int64  `json:"tokens_used"`
}

// Membership links a user to an organization. Both the membership and the
// organization must be active for the org's documents to be visible.
type Membership struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
	Active bool   `json:"active"`
}

// Chunk is a bounded window of a document's text, the unit of embedding
// and retrieval. Immutable once written to an index.
type Chunk struct {
	Text     string `json:"text"`
	DocID    string `json:"doc_id"`
	DocTitle string `json:"doc_title"`
}

// RetrievalResult is one ranked hit from the retrieval engine. Score is an
// L2 distance for the flat index (lower = better) but rank-based backends
// may invert the polarity; callers must not assume one.
type RetrievalResult struct {
	Text     string  `json:"text"`
	DocID    string  `json:"document_id"`
	DocTitle string  `json:"document_title"`
	Score    float32 `json:"score"`
}
