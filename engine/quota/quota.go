// Package quota meters paid provider usage against per-organization token
// budgets. Consumption is charge-before-call: tokens are deducted before the
// generation request, so a provider failure after a successful consume
// over-charges by one turn's estimate. Call-then-charge would let concurrent
// turns exceed the budget instead.
package quota

import (
	"context"
	"fmt"
)

// Ledger deducts tokens from an organization's budget as one atomic unit:
// read, check used+n <= limit, increment. Two concurrent consumes for the
// same organization must never both succeed when their combined cost busts
// the limit. An empty orgID means global/superuser usage and is unmetered.
type Ledger interface {
	Consume(ctx context.Context, orgID string, tokens int64) error
}

// ExceededError reports a rejected consume. Nothing is deducted on rejection.
type ExceededError struct {
	OrgID     string
	Limit     int64
	Used      int64
	Requested int64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota: API quota exceeded for %s: limit=%d used=%d requested=%d",
		e.OrgID, e.Limit, e.Used, e.Requested)
}

// EstimateTokens approximates token count as len(text)/4, minimum 1 for
// non-empty text. It is a heuristic, not a tokenizer; budgets enforced with
// it are approximate.
func EstimateTokens(text string) int64 {
	if text == "" {
		return 0
	}
	n := int64(len(text)) / 4
	if n < 1 {
		n = 1
	}
	return n
}
