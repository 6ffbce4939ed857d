package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remoteAddr string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())

	for i := range 5 {
		rec := hit(h, "192.168.1.1:12345", nil)
		require.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(4-i), rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec := hit(h, "192.168.1.1:12345", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Positive(t, retry)
	assert.LessOrEqual(t, retry, 12)
	assert.JSONEq(t, `{"code":429,"message":"rate limit exceeded"}`, rec.Body.String())
}

func TestRateLimit_RejectedRequestsDoNotConsume(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: 50 * time.Millisecond})(okHandler())

	require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", nil).Code)
	for range 10 {
		require.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1", nil).Code)
	}

	assert.Eventually(t, func() bool {
		return hit(h, "10.0.0.1:1", nil).Code == http.StatusOK
	}, time.Second, 10*time.Millisecond)
}

func TestRateLimit_Keys(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RateLimitConfig
		first   http.Header
		second  http.Header
		shared  bool
		remotes [2]string
	}{
		{
			name:    "different IPs",
			remotes: [2]string{"10.0.0.1:1", "10.0.0.2:1"},
		},
		{
			name:    "same IP different ports",
			remotes: [2]string{"10.0.0.1:1", "10.0.0.1:2"},
			shared:  true,
		},
		{
			name:    "forwarded for uses first hop",
			remotes: [2]string{"10.0.0.1:1", "10.0.0.2:1"},
			first:   http.Header{"X-Forwarded-For": {"203.0.113.7, 10.0.0.1"}},
			second:  http.Header{"X-Forwarded-For": {"203.0.113.7"}},
			shared:  true,
		},
		{
			name: "custom key",
			cfg: RateLimitConfig{KeyFunc: func(r *http.Request) string {
				return r.Header.Get("Api_key")
			}},
			remotes: [2]string{"10.0.0.1:1", "10.0.0.1:1"},
			first:   http.Header{"Api_key": {"a"}},
			second:  http.Header{"Api_key": {"b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.Max, cfg.Window = 1, time.Minute
			h := RateLimit(cfg)(okHandler())

			require.Equal(t, http.StatusOK, hit(h, tt.remotes[0], tt.first).Code)
			want := http.StatusOK
			if tt.shared {
				want = http.StatusTooManyRequests
			}
			assert.Equal(t, want, hit(h, tt.remotes[1], tt.second).Code)
		})
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimit(RateLimitConfig{})(okHandler())
	for range 100 {
		require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", nil).Code)
	}
}
