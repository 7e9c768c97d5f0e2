package index

import "github.com/DocentAI/docent-mvp/engine/domain"

// PublicScope is the shared index for globally public documents.
const PublicScope = "public"

// UserScope returns the private index key for a user.
func UserScope(userID string) string { return "user_" + userID }

// OrgScope returns the shared index key for an organization.
func OrgScope(orgID string) string { return "org_" + orgID }

// ScopeForDocument is the single canonical scope-key rule, shared by
// ingestion and retrieval. A document contributes to exactly one index:
// public documents to the public index, organization documents to the org
// index, everything else to the uploader's private index.
func ScopeForDocument(doc domain.Document) string {
	switch {
	case doc.IsPublic:
		return PublicScope
	case doc.OrgID != "":
		return OrgScope(doc.OrgID)
	default:
		return UserScope(doc.OwnerID)
	}
}
