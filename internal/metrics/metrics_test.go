package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if outcomesTotal == nil || heuristicMatchesTotal == nil || remainingCandidates == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveOutcome(t *testing.T) {
	Init()
	counter := outcomesTotal.WithLabelValues("not_found", "no_match")
	before := testutil.ToFloat64(counter)
	ObserveOutcome("not_found", "no_match")
	ObserveOutcome("not_found", "no_match")
	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("expected 2 new not_found outcomes, got %f", got)
	}
}

func TestObserveBatchSetsRemaining(t *testing.T) {
	ObserveBatch(42)
	if got := testutil.ToFloat64(remainingCandidates); got != 42 {
		t.Errorf("expected remaining gauge 42, got %f", got)
	}
	ObserveBatch(-1)
	if got := testutil.ToFloat64(remainingCandidates); got != 42 {
		t.Errorf("unknown remaining must not reset the gauge, got %f", got)
	}
}

func TestObserveFetchAndDelays(t *testing.T) {
	Init()
	ObserveFetch("https://www.archanaskitchen.com/dal", "content", 120*time.Millisecond)
	ObserveRateLimitDelay("www.archanaskitchen.com", time.Second)
	ObserveHeuristicMatch("og:image")
	ObservePersistError()
	ObserveArchiveError()

	if n := testutil.CollectAndCount(fetchDurationSeconds); n == 0 {
		t.Error("expected fetch duration to be observed")
	}
	if n := testutil.CollectAndCount(rateLimitDelaySeconds); n == 0 {
		t.Error("expected rate limit delay to be observed")
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
