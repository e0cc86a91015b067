package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/recipe-image-enricher/internal/enrichment"
	"github.com/JakeFAU/recipe-image-enricher/internal/report"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func do(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil, zap.NewNop())
	rec := do(t, s.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyzReflectsStore(t *testing.T) {
	t.Parallel()

	ok := NewServer(fakePinger{}, nil, nil, nil)
	rec := do(t, ok.Handler(), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	down := NewServer(fakePinger{err: errors.New("ping postgres: connection refused")}, nil, nil, nil)
	rec = do(t, down.Handler(), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestStatusReportsTrackerSnapshot(t *testing.T) {
	t.Parallel()

	tracker := report.NewTracker()
	tracker.BatchCompleted(context.Background(), enrichment.BatchReport{RunID: "run-1", Updated: 4, Failed: 1, Remaining: 12})

	s := NewServer(nil, tracker, func() string { return "running_batch" }, nil)
	rec := do(t, s.Handler(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		State     string `json:"state"`
		Batches   int    `json:"batches"`
		Updated   int    `json:"updated"`
		LastBatch struct {
			RunID     string `json:"run_id"`
			Remaining int64  `json:"remaining"`
		} `json:"last_batch"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "running_batch", body.State)
	assert.Equal(t, 1, body.Batches)
	assert.Equal(t, 4, body.Updated)
	assert.Equal(t, "run-1", body.LastBatch.RunID)
	assert.Equal(t, int64(12), body.LastBatch.Remaining)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil, nil)
	_ = do(t, s.Handler(), "/healthz")
	rec := do(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRequestIDPropagated(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil, nil)
	h := s.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := do(t, h, "/")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := NewServer(nil, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServeListenError(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil, nil)
	err := s.Serve(context.Background(), "256.0.0.1:bad")
	assert.Error(t, err)
}
