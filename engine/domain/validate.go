package domain

import "strings"

const minQuestionLength = 3

// ValidateQuestion checks a chat question before retrieval.
func ValidateQuestion(q string) error {
	trimmed := strings.TrimSpace(q)
	if trimmed == "" {
		return NewValidationError("question", q, ErrEmptyQuestion)
	}
	if len(trimmed) < minQuestionLength {
		return NewValidationError("question", q, ErrQuestionTooShort)
	}
	return nil
}

// ValidateDocument checks the fields ingestion depends on. An empty
// ExtractedText is not a validation error; ingestion treats it as a no-op.
func ValidateDocument(doc Document) error {
	if doc.ID == "" {
		return NewValidationError("id", doc.ID, ErrDocumentNotFound)
	}
	if doc.OwnerID == "" && !doc.IsPublic {
		return NewValidationError("owner_id", doc.OwnerID, ErrDocumentNotFound)
	}
	return nil
}
