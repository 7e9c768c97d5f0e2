package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int64
	}{
		{"", 0},
		{"ab", 1},   // shorter than 4 chars still costs 1
		{"abcd", 1},
		{"abcdefgh", 2},
	}
	for _, c := range cases {
		if got := EstimateTokens(c.text); got != c.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", c.text, got, c.want)
		}
	}
}

func TestConsume_RejectsWithoutPartialDeduction(t *testing.T) {
	l := NewMemoryLedger()
	l.SetBudget("org-1", 1000, 950)

	err := l.Consume(context.Background(), "org-1", 100)
	var exceeded *ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected ExceededError, got %v", err)
	}
	if _, used, _ := l.Usage("org-1"); used != 950 {
		t.Errorf("partial deduction: used=%d, want 950", used)
	}

	if err := l.Consume(context.Background(), "org-1", 50); err != nil {
		t.Fatalf("consume within budget failed: %v", err)
	}
	if _, used, _ := l.Usage("org-1"); used != 1000 {
		t.Errorf("used=%d, want 1000", used)
	}
}

func TestConsume_UnmeteredWithoutOrg(t *testing.T) {
	l := NewMemoryLedger()
	if err := l.Consume(context.Background(), "", 1_000_000); err != nil {
		t.Fatalf("global usage must be unmetered, got %v", err)
	}
}

func TestConsume_UnknownOrg(t *testing.T) {
	l := NewMemoryLedger()
	if err := l.Consume(context.Background(), "ghost", 1); err == nil {
		t.Fatal("expected error for unknown org")
	}
}

func TestConsume_ConcurrentExactlyOneSucceeds(t *testing.T) {
	// limit=100, used=20: two consumes of 60; only the first fits.
	l := NewMemoryLedger()
	l.SetBudget("org-1", 100, 20)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = l.Consume(context.Background(), "org-1", 60)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			var exceeded *ExceededError
			if !errors.As(err, &exceeded) {
				t.Errorf("unexpected error type: %v", err)
			}
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one success, got %d", successes)
	}
	if _, used, _ := l.Usage("org-1"); used != 80 {
		t.Errorf("used=%d, want 80 (no lost update)", used)
	}
}
