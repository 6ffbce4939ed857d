package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-store/internal/handler"
	"github.com/xenking/kart-store/pkg/health"
)

func TestNewRouter(t *testing.T) {
	hc := health.New()
	hc.SetReady(true)
	h := handler.NewHandler(handler.Config{}, nil, nil, nil)
	authn := handler.NewAuthenticator(nil, []byte("pepper"))

	srv := httptest.NewServer(newRouter(h, authn, hc))
	t.Cleanup(srv.Close)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{name: "liveness", path: "/livez", status: http.StatusOK},
		{name: "readiness", path: "/readyz", status: http.StatusOK},
		{name: "cart requires api key", path: "/api/cart", status: http.StatusUnauthorized},
		{name: "unknown api route", path: "/api/nope", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}
