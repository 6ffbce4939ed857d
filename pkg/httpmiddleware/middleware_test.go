package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrap_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Wrap(okHandler(), mark("outer"), mark("middle"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "middle", "inner"}, order)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	tests := []struct {
		name     string
		incoming string
		reuse    bool
	}{
		{name: "generated", incoming: ""},
		{name: "reused", incoming: "req-123", reuse: true},
		{name: "control characters", incoming: "bad\x01id"},
		{name: "too long", incoming: strings.Repeat("a", maxRequestIDLen+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			assert.Equal(t, got, seen)
			if tt.reuse {
				assert.Equal(t, tt.incoming, got)
				return
			}
			_, err := uuid.Parse(got)
			assert.NoError(t, err)
		})
	}
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h := Wrap(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
		InjectLogger(zap.New(core)),
		Recovery(),
	)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"code":500,"message":"internal server error"}`, rec.Body.String())
	require.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
}

func TestRecovery_AbortHandler(t *testing.T) {
	h := Recovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestLogRequests(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	r := chi.NewRouter()
	r.Use(LogRequests())
	r.Get("/orders/{orderID}", func(w http.ResponseWriter, r *http.Request) {
		zctx.From(r.Context()).Info("Handler ran")
		w.WriteHeader(http.StatusAccepted)
	})
	r.Get("/fail", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	h := Wrap(r, RequestID(), InjectLogger(zap.New(core)))

	req := httptest.NewRequest(http.MethodGet, "/orders/o1", nil)
	req.Header.Set(RequestIDHeader, "rid-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	handlerLogs := logs.FilterMessage("Handler ran").All()
	require.Len(t, handlerLogs, 1)
	assert.Equal(t, "rid-1", handlerLogs[0].ContextMap()["request_id"])

	served := logs.FilterMessage("Request served").All()
	require.Len(t, served, 1)
	fields := served[0].ContextMap()
	assert.Equal(t, "/orders/{orderID}", fields["route"])
	assert.Equal(t, int64(http.StatusAccepted), fields["status"])
	assert.Equal(t, zapcore.InfoLevel, served[0].Level)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))
	failed := logs.FilterMessage("Request served").FilterField(zap.Int("status", http.StatusServiceUnavailable)).All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.WarnLevel, failed[0].Level)
}

func TestRoutePattern_Unmatched(t *testing.T) {
	assert.Equal(t, "unmatched", routePattern(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		cfg         CORSConfig
		method      string
		origin      string
		preflight   bool
		wantCode    int
		wantOrigin  string
		wantCreds   bool
		wantMaxAge  string
		wantHeaders string
	}{
		{
			name:       "wildcard",
			cfg:        CORSConfig{AllowOrigins: []string{"*"}},
			method:     http.MethodGet,
			origin:     "https://shop.test",
			wantCode:   http.StatusOK,
			wantOrigin: "*",
		},
		{
			name:       "listed origin keeps configured case",
			cfg:        CORSConfig{AllowOrigins: []string{"https://Shop.test"}},
			method:     http.MethodGet,
			origin:     "https://shop.test",
			wantCode:   http.StatusOK,
			wantOrigin: "https://Shop.test",
		},
		{
			name:     "unlisted origin",
			cfg:      CORSConfig{AllowOrigins: []string{"https://shop.test"}},
			method:   http.MethodGet,
			origin:   "https://evil.test",
			wantCode: http.StatusOK,
		},
		{
			name:       "credentials echo origin",
			cfg:        CORSConfig{AllowOrigins: []string{"*"}, AllowCredentials: true},
			method:     http.MethodGet,
			origin:     "https://shop.test",
			wantCode:   http.StatusOK,
			wantOrigin: "https://shop.test",
			wantCreds:  true,
		},
		{
			name:        "preflight",
			cfg:         CORSConfig{AllowHeaders: []string{"Content-Type", "api_key"}, MaxAge: 24 * time.Hour},
			method:      http.MethodOptions,
			origin:      "https://shop.test",
			preflight:   true,
			wantCode:    http.StatusNoContent,
			wantOrigin:  "*",
			wantMaxAge:  "86400",
			wantHeaders: "Content-Type, api_key",
		},
		{
			name:      "preflight rejected",
			cfg:       CORSConfig{AllowOrigins: []string{"https://shop.test"}},
			method:    http.MethodOptions,
			origin:    "https://evil.test",
			preflight: true,
			wantCode:  http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := CORS(tt.cfg)(okHandler())
			req := httptest.NewRequest(tt.method, "/api/products", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCreds, rec.Header().Get("Access-Control-Allow-Credentials") == "true")
			assert.Equal(t, tt.wantMaxAge, rec.Header().Get("Access-Control-Max-Age"))
			assert.Equal(t, tt.wantHeaders, rec.Header().Get("Access-Control-Allow-Headers"))
		})
	}
}
