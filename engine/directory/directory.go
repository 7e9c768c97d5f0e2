// Package directory is the Neo4j-backed tenancy store: organizations,
// memberships, document attribution, and the transactional quota ledger.
// It serves the scope resolver's lookups and the retrieval engine's
// document filters; it is the system of record for who may see what.
package directory

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/DocentAI/docent-mvp/engine/domain"
)

// Store provides directory operations over a Neo4j driver.
type Store struct {
	driver neo4j.DriverWithContext
}

// New creates a directory Store.
func New(driver neo4j.DriverWithContext) *Store {
	return &Store{driver: driver}
}

// SaveOrganization creates or updates an organization node.
func (s *Store) SaveOrganization(ctx context.Context, org domain.Organization) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MERGE (o:Organization {id: $id})
		SET o.name = $name, o.active = $active,
		    o.token_limit = $limit,
		    o.tokens_used = coalesce(o.tokens_used, $used)`
	_, err := sess.Run(ctx, cypher, map[string]any{
		"id":     org.ID,
		"name":   org.Name,
		"active": org.Active,
		"limit":  org.TokenLimit,
		"used":   org.TokensUsed,
	})
	if err != nil {
		return fmt.Errorf("directory: save organization %s: %w", org.ID, err)
	}
	return nil
}

// SaveMembership links a user to an organization.
func (s *Store) SaveMembership(ctx context.Context, m domain.Membership) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MERGE (u:User {id: $user})
		WITH u
		MATCH (o:Organization {id: $org})
		MERGE (u)-[r:MEMBER_OF]->(o)
		SET r.active = $active`
	_, err := sess.Run(ctx, cypher, map[string]any{
		"user":   m.UserID,
		"org":    m.OrgID,
		"active": m.Active,
	})
	if err != nil {
		return fmt.Errorf("directory: save membership %s->%s: %w", m.UserID, m.OrgID, err)
	}
	return nil
}

// SaveDocument records a document's attribution (owner, org, visibility,
// folder). The document body lives in the document service; only the fields
// access control depends on are mirrored here.
func (s *Store) SaveDocument(ctx context.Context, doc domain.Document, folderID string) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MERGE (d:Document {id: $id})
		SET d.title = $title, d.owner_id = $owner, d.org_id = $org,
		    d.is_public = $public, d.folder_id = $folder`
	_, err := sess.Run(ctx, cypher, map[string]any{
		"id":     doc.ID,
		"title":  doc.Title,
		"owner":  doc.OwnerID,
		"org":    doc.OrgID,
		"public": doc.IsPublic,
		"folder": folderID,
	})
	if err != nil {
		return fmt.Errorf("directory: save document %s: %w", doc.ID, err)
	}
	return nil
}

// MembershipOf returns the user's membership, or nil if none exists.
func (s *Store) MembershipOf(ctx context.Context, userID string) (*domain.Membership, error) {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (u:User {id: $user})-[r:MEMBER_OF]->(o:Organization)
		RETURN o.id AS org, r.active AS active LIMIT 1`
	result, err := sess.Run(ctx, cypher, map[string]any{"user": userID})
	if err != nil {
		return nil, fmt.Errorf("directory: membership of %s: %w", userID, err)
	}
	if !result.Next(ctx) {
		return nil, nil
	}
	rec := result.Record()
	m := &domain.Membership{UserID: userID}
	if v, ok := rec.Get("org"); ok {
		m.OrgID, _ = v.(string)
	}
	if v, ok := rec.Get("active"); ok {
		m.Active, _ = v.(bool)
	}
	return m, nil
}

// Organization returns the organization, or nil if it does not exist.
func (s *Store) Organization(ctx context.Context, orgID string) (*domain.Organization, error) {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (o:Organization {id: $id}) RETURN o`
	result, err := sess.Run(ctx, cypher, map[string]any{"id": orgID})
	if err != nil {
		return nil, fmt.Errorf("directory: organization %s: %w", orgID, err)
	}
	if !result.Next(ctx) {
		return nil, nil
	}
	node, ok := nodeValue(result.Record(), "o")
	if !ok {
		return nil, fmt.Errorf("directory: organization %s: malformed record", orgID)
	}
	org := orgFromNode(node)
	return &org, nil
}

// Document returns a document's attribution, or nil if unknown.
func (s *Store) Document(ctx context.Context, docID string) (*domain.Document, error) {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (d:Document {id: $id}) RETURN d`
	result, err := sess.Run(ctx, cypher, map[string]any{"id": docID})
	if err != nil {
		return nil, fmt.Errorf("directory: document %s: %w", docID, err)
	}
	if !result.Next(ctx) {
		return nil, nil
	}
	node, ok := nodeValue(result.Record(), "d")
	if !ok {
		return nil, fmt.Errorf("directory: document %s: malformed record", docID)
	}
	doc := docFromNode(node)
	return &doc, nil
}

// DocumentsInFolder returns the attribution of every document in a folder.
func (s *Store) DocumentsInFolder(ctx context.Context, folderID string) ([]domain.Document, error) {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (d:Document {folder_id: $folder}) RETURN d`
	result, err := sess.Run(ctx, cypher, map[string]any{"folder": folderID})
	if err != nil {
		return nil, fmt.Errorf("directory: documents in folder %s: %w", folderID, err)
	}
	var docs []domain.Document
	for result.Next(ctx) {
		if node, ok := nodeValue(result.Record(), "d"); ok {
			docs = append(docs, docFromNode(node))
		}
	}
	return docs, nil
}

// AllDocuments lists every document's attribution, for backfill runs.
func (s *Store) AllDocuments(ctx context.Context) ([]domain.Document, error) {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, `MATCH (d:Document) RETURN d`, nil)
	if err != nil {
		return nil, fmt.Errorf("directory: all documents: %w", err)
	}
	var docs []domain.Document
	for result.Next(ctx) {
		if node, ok := nodeValue(result.Record(), "d"); ok {
			docs = append(docs, docFromNode(node))
		}
	}
	return docs, nil
}

// --- record mapping ---

func nodeValue(rec *neo4j.Record, key string) (dbtype.Node, bool) {
	v, ok := rec.Get(key)
	if !ok {
		return dbtype.Node{}, false
	}
	node, ok := v.(dbtype.Node)
	return node, ok
}

func stringProp(n dbtype.Node, key string) string {
	if v, ok := n.Props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func boolProp(n dbtype.Node, key string) bool {
	if v, ok := n.Props[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func intProp(n dbtype.Node, key string) int64 {
	if v, ok := n.Props[key]; ok {
		if i, ok := v.(int64); ok {
			return i
		}
	}
	return 0
}

func orgFromNode(n dbtype.Node) domain.Organization {
	return domain.Organization{
		ID:         stringProp(n, "id"),
		Name:       stringProp(n, "name"),
		Active:     boolProp(n, "active"),
		TokenLimit: intProp(n, "token_limit"),
		TokensUsed: intProp(n, "tokens_used"),
	}
}

func docFromNode(n dbtype.Node) domain.Document {
	return domain.Document{
		ID:       stringProp(n, "id"),
		Title:    stringProp(n, "title"),
		OwnerID:  stringProp(n, "owner_id"),
		OrgID:    stringProp(n, "org_id"),
		IsPublic: boolProp(n, "is_public"),
	}
}
