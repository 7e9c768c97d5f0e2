package fn

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestThen_ShortCircuits(t *testing.T) {
	boom := errors.New("boom")
	first := func(_ context.Context, n int) Result[int] { return Err[int](boom) }
	secondCalled := false
	second := func(_ context.Context, n int) Result[string] {
		secondCalled = true
		return Ok("never")
	}

	r := Then(first, second)(context.Background(), 1)
	if !r.IsErr() {
		t.Fatal("expected error")
	}
	if _, err := r.Unwrap(); !errors.Is(err, boom) {
		t.Errorf("unexpected error: %v", err)
	}
	if secondCalled {
		t.Error("second stage ran after first failed")
	}
}

func TestThen_PassesValue(t *testing.T) {
	double := func(_ context.Context, n int) Result[int] { return Ok(n * 2) }
	toStr := func(_ context.Context, n int) Result[int] { return Ok(n + 1) }
	r := Then(double, toStr)(context.Background(), 5)
	v, err := r.Unwrap()
	if err != nil || v != 11 {
		t.Errorf("got %d, %v", v, err)
	}
}

func TestRetry_EventualSuccess(t *testing.T) {
	attempts := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond},
		func(_ context.Context) Result[int] {
			attempts++
			if attempts < 3 {
				return Err[int](errors.New("transient"))
			}
			return Ok(attempts)
		})
	v, err := r.Unwrap()
	if err != nil || v != 3 {
		t.Errorf("got %d, %v", v, err)
	}
}

func TestRetry_GivesUp(t *testing.T) {
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond},
		func(_ context.Context) Result[int] { return Err[int](errors.New("permanent")) })
	if !r.IsErr() {
		t.Fatal("expected error after exhausted attempts")
	}
}

func TestFanOutResult(t *testing.T) {
	r := FanOutResult(
		func() Result[int] { return Ok(1) },
		func() Result[int] { return Ok(2) },
	)
	vals, err := r.Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 2 || vals[0] != 1 || vals[1] != 2 {
		t.Errorf("order not preserved: %v", vals)
	}
}

func TestUniqueBy(t *testing.T) {
	type doc struct{ id string }
	docs := []doc{{"a"}, {"b"}, {"a"}}
	out := UniqueBy(docs, func(d doc) string { return d.id })
	if len(out) != 2 || out[0].id != "a" || out[1].id != "b" {
		t.Errorf("unexpected: %v", out)
	}
}
