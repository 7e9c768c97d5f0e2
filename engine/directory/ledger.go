package directory

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/DocentAI/docent-mvp/engine/domain"
	"github.com/DocentAI/docent-mvp/engine/quota"
)

// Consume implements quota.Ledger. The read-check-increment runs inside one
// write transaction against the organization node; two concurrent consumes
// serialize on the node lock, so a pair whose combined cost busts the limit
// can never both succeed. A rejected consume deducts nothing.
func (s *Store) Consume(ctx context.Context, orgID string, tokens int64) error {
	if orgID == "" {
		return nil // global / superuser usage is unmetered
	}

	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx,
			`MATCH (o:Organization {id: $id})
			 RETURN o.token_limit AS lim, o.tokens_used AS used`,
			map[string]any{"id": orgID})
		if err != nil {
			return nil, err
		}
		if !result.Next(ctx) {
			return nil, fmt.Errorf("quota: %w: %s", domain.ErrOrgNotFound, orgID)
		}

		rec := result.Record()
		limit := recordInt(rec, "lim")
		used := recordInt(rec, "used")
		if used+tokens > limit {
			return nil, &quota.ExceededError{OrgID: orgID, Limit: limit, Used: used, Requested: tokens}
		}

		_, err = tx.Run(ctx,
			`MATCH (o:Organization {id: $id}) SET o.tokens_used = o.tokens_used + $n`,
			map[string]any{"id": orgID, "n": tokens})
		return nil, err
	})
	return err
}

// compile-time check: the directory store is a quota ledger.
var _ quota.Ledger = (*Store)(nil)

func recordInt(rec *neo4j.Record, key string) int64 {
	if v, ok := rec.Get(key); ok {
		if i, ok := v.(int64); ok {
			return i
		}
	}
	return 0
}
