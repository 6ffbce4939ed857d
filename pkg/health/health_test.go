package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error {
		return errors.New(msg)
	}
}

func callEndpoint(t *testing.T, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec
}

func runTimes(c *check, n int) {
	for range n {
		c.run(context.Background())
	}
}

func TestLiveEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		checks   map[string]CheckFunc
		runs     int
		wantCode int
		wantBody string
	}{
		{
			name:     "no checks",
			wantCode: http.StatusOK,
			wantBody: `{"status":"ok"}`,
		},
		{
			name:     "all passing",
			checks:   map[string]CheckFunc{"a": passing, "b": passing},
			runs:     1,
			wantCode: http.StatusOK,
			wantBody: `{"status":"ok"}`,
		},
		{
			name:     "failure below threshold",
			checks:   map[string]CheckFunc{"db": failing("refused")},
			runs:     FailureThreshold - 1,
			wantCode: http.StatusOK,
			wantBody: `{"status":"ok"}`,
		},
		{
			name:     "failure at threshold",
			checks:   map[string]CheckFunc{"db": failing("refused"), "ok": passing},
			runs:     FailureThreshold,
			wantCode: http.StatusServiceUnavailable,
			wantBody: `{"status":"unhealthy","checks":{"db":"refused"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			for name, fn := range tt.checks {
				h.AddLivenessCheck(name, time.Second, fn)
			}
			for _, c := range h.liveness {
				runTimes(c, tt.runs)
			}

			rec := callEndpoint(t, h.LiveEndpoint)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, passing)

	rec := callEndpoint(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"_readiness":"service is not ready"}}`, rec.Body.String())
	assert.False(t, h.IsReady())

	h.SetReady(true)
	rec = callEndpoint(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, h.IsReady())

	h.SetReady(false)
	assert.Equal(t, http.StatusServiceUnavailable, callEndpoint(t, h.ReadyEndpoint).Code)
}

func TestReadyEndpoint_FailingCheck(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, failing("connection refused"))
	h.AddReadinessCheck("cache", time.Second, passing)
	h.SetReady(true)
	runTimes(h.readiness[0], FailureThreshold)

	rec := callEndpoint(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"postgres":"connection refused"}}`, rec.Body.String())
	assert.False(t, h.IsReady())
}

func TestCheck_Recovers(t *testing.T) {
	var down atomic.Bool
	down.Store(true)
	c := newCheck("liveness", "flaky", time.Second, func(context.Context) error {
		if down.Load() {
			return errors.New("down")
		}
		return nil
	})

	runTimes(c, FailureThreshold)
	ok, msg := c.status()
	assert.False(t, ok)
	assert.Equal(t, "down", msg)

	down.Store(false)
	runTimes(c, 1)
	ok, _ = c.status()
	assert.True(t, ok)
}

func TestCheck_Timeout(t *testing.T) {
	c := newCheck("readiness", "slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	runTimes(c, FailureThreshold)
	ok, msg := c.status()
	assert.False(t, ok)
	assert.Equal(t, context.DeadlineExceeded.Error(), msg)
}

func TestStartStop(t *testing.T) {
	var calls atomic.Int32
	h := New()
	h.AddReadinessCheck("counter", time.Second, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	h.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)

	h.Stop()
	stopped := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load())

	h.Stop()
}

func TestConcurrentAccess(t *testing.T) {
	h := New()
	h.AddLivenessCheck("live", time.Second, failing("err"))
	h.AddReadinessCheck("ready", time.Second, passing)
	h.SetReady(true)
	h.Start(context.Background(), time.Millisecond)
	defer h.Stop()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				h.IsReady()
				h.LiveEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
				h.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, PingCheck(stubPinger{})(ctx))
	assert.ErrorContains(t, PingCheck(stubPinger{err: errors.New("refused")})(ctx), "refused")

	assert.NoError(t, GoroutineCountCheck(100000)(ctx))
	assert.ErrorContains(t, GoroutineCountCheck(0)(ctx), "exceeds threshold")

	assert.NoError(t, GCMaxPauseCheck(time.Hour)(ctx))
}
