package quota

import (
	"context"
	"fmt"
	"sync"

	"github.com/DocentAI/docent-mvp/engine/domain"
)

// MemoryLedger is an in-process Ledger guarded by a single mutex. Suitable
// for tests and single-node deployments; multi-node deployments use the
// transactional directory-backed ledger instead.
type MemoryLedger struct {
	mu   sync.Mutex
	orgs map[string]*entry
}

type entry struct {
	limit int64
	used  int64
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{orgs: make(map[string]*entry)}
}

// SetBudget creates or resets an organization's budget.
func (l *MemoryLedger) SetBudget(orgID string, limit, used int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orgs[orgID] = &entry{limit: limit, used: used}
}

// Usage returns the current limit and used counters.
func (l *MemoryLedger) Usage(orgID string) (limit, used int64, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.orgs[orgID]
	if !ok {
		return 0, 0, false
	}
	return e.limit, e.used, true
}

// Consume implements Ledger. The whole read-check-increment runs under the
// ledger mutex; a rejected consume deducts nothing.
func (l *MemoryLedger) Consume(_ context.Context, orgID string, tokens int64) error {
	if orgID == "" {
		return nil // global / superuser usage is unmetered
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.orgs[orgID]
	if !ok {
		return fmt.Errorf("quota: %w: %s", domain.ErrOrgNotFound, orgID)
	}
	if e.used+tokens > e.limit {
		return &ExceededError{OrgID: orgID, Limit: e.limit, Used: e.used, Requested: tokens}
	}
	e.used += tokens
	return nil
}
