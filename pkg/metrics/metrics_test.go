package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounterSharedByName(t *testing.T) {
	r := New()
	c := r.Counter("jobs_total", "Jobs processed")
	c.Inc()
	c.Inc()
	c.Add(5)
	if c.Value() != 7 {
		t.Fatalf("expected 7, got %d", c.Value())
	}
	if r.Counter("jobs_total", "") != c {
		t.Fatal("re-registration must return the same counter")
	}
}

func TestHistogramBuckets(t *testing.T) {
	r := New()
	h := r.Histogram("turn_seconds", "Chat turn latency", []float64{0.1, 0.5, 1.0})
	h.Observe(0.05)
	h.Observe(0.3)
	h.Observe(0.8)
	h.Observe(2.0)

	buckets, counts, sum, count := h.snapshot()
	if count != 4 {
		t.Fatalf("expected count 4, got %d", count)
	}
	if len(buckets) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(buckets))
	}
	for i, want := range []uint64{1, 1, 1} {
		if counts[i] != want {
			t.Fatalf("bucket %g: expected %d, got %d", buckets[i], want, counts[i])
		}
	}
	if want := 0.05 + 0.3 + 0.8 + 2.0; sum != want {
		t.Fatalf("expected sum %f, got %f", want, sum)
	}
}

func TestHistogramSince(t *testing.T) {
	r := New()
	h := r.Histogram("latency", "", nil)
	h.Since(time.Now().Add(-100 * time.Millisecond))
	_, _, sum, count := h.snapshot()
	if count != 1 || sum <= 0 {
		t.Fatalf("expected one positive observation, got count=%d sum=%f", count, sum)
	}
}

func TestRenderExpositionFormat(t *testing.T) {
	r := New()
	r.Counter("chat_requests_total", "Chat turns served").Add(10)
	h := r.Histogram("chat_seconds", "Chat latency", []float64{0.1, 0.5, 1.0})
	h.Observe(0.05)
	h.Observe(0.3)

	out := r.Render()

	for _, want := range []string{
		"# HELP chat_requests_total Chat turns served",
		"# TYPE chat_requests_total counter",
		"chat_requests_total 10",
		"# TYPE chat_seconds histogram",
		`chat_seconds_bucket{le="0.1"} 1`,
		`chat_seconds_bucket{le="0.5"} 2`,
		`chat_seconds_bucket{le="+Inf"} 2`,
		"chat_seconds_count 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderPreservesRegistrationOrder(t *testing.T) {
	r := New()
	r.Counter("b_total", "")
	r.Counter("a_total", "")

	out := r.Render()
	if strings.Index(out, "b_total") > strings.Index(out, "a_total") {
		t.Fatal("metrics must render in registration order")
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("up_total", "up").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "up_total 1") {
		t.Error("metric missing from handler output")
	}
}
