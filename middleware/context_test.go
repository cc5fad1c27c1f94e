package middleware

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestIDFromContext(ctx))
	assert.Empty(t, GetClientIPFromContext(ctx))

	ctx = WithRequestID(ctx, "req-123")
	ctx = WithClientIP(ctx, "203.0.113.7")
	assert.Equal(t, "req-123", GetRequestIDFromContext(ctx))
	assert.Equal(t, "203.0.113.7", GetClientIPFromContext(ctx))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"203.0.113.7:51234", "203.0.113.7"},
		{"203.0.113.7", "203.0.113.7"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"2001:db8::1", "2001:db8::1"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.remoteAddr, func(t *testing.T) {
			assert.Equal(t, tt.want, clientIP(tt.remoteAddr))
		})
	}
}

func mustCIDRs(t *testing.T, cidrs ...string) []*net.IPNet {
	t.Helper()
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		require.NoError(t, err)
		nets = append(nets, n)
	}
	return nets
}

func newContextRouter(trusted []*net.IPNet, gotID, gotIP *string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(RequestContext(trusted))
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		*gotID = GetRequestIDFromContext(r.Context())
		*gotIP = GetClientIPFromContext(r.Context())
	})
	return r
}

func TestRequestContext(t *testing.T) {
	var gotID, gotIP string
	r := newContextRouter(nil, &gotID, &gotIP)

	t.Run("remote address", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "198.51.100.4:6000"
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		assert.NotEmpty(t, gotID)
		assert.Equal(t, gotID, w.Header().Get(chimiddleware.RequestIDHeader))
		assert.Equal(t, "198.51.100.4", gotIP)
	})

	t.Run("forwarding headers ignored without trusted proxies", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "198.51.100.4:6000"
		req.Header.Set("X-Forwarded-For", "6.6.6.6")
		req.Header.Set("X-Real-IP", "6.6.6.7")
		req.Header.Set("True-Client-IP", "6.6.6.8")
		req.Header.Set(chimiddleware.RequestIDHeader, "upstream-id")

		r.ServeHTTP(httptest.NewRecorder(), req)

		require.Equal(t, "198.51.100.4", gotIP)
		assert.Equal(t, "upstream-id", gotID)
	})
}

func TestRequestContext_TrustedProxies(t *testing.T) {
	var gotID, gotIP string
	r := newContextRouter(mustCIDRs(t, "10.0.0.0/8", "2001:db8::/32"), &gotID, &gotIP)

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "untrusted peer cannot forge forwarded for",
			remoteAddr: "198.51.100.4:6000",
			headers:    map[string]string{"X-Forwarded-For": "6.6.6.6"},
			want:       "198.51.100.4",
		},
		{
			name:       "untrusted peer cannot forge real ip",
			remoteAddr: "198.51.100.4:6000",
			headers:    map[string]string{"X-Real-IP": "6.6.6.6"},
			want:       "198.51.100.4",
		},
		{
			name:       "trusted peer without headers",
			remoteAddr: "10.0.0.1:6000",
			want:       "10.0.0.1",
		},
		{
			name:       "trusted peer real ip",
			remoteAddr: "10.0.0.1:6000",
			headers:    map[string]string{"X-Real-IP": "203.0.113.9"},
			want:       "203.0.113.9",
		},
		{
			name:       "trusted peer true client ip wins",
			remoteAddr: "10.0.0.1:6000",
			headers:    map[string]string{"True-Client-IP": "203.0.113.1", "X-Real-IP": "203.0.113.9"},
			want:       "203.0.113.1",
		},
		{
			name:       "right-most untrusted forwarded hop",
			remoteAddr: "10.0.0.1:6000",
			headers:    map[string]string{"X-Forwarded-For": "6.6.6.6, 203.0.113.9, 10.0.0.2"},
			want:       "203.0.113.9",
		},
		{
			name:       "all forwarded hops trusted",
			remoteAddr: "10.0.0.1:6000",
			headers:    map[string]string{"X-Forwarded-For": "10.0.0.3, 10.0.0.2"},
			want:       "10.0.0.3",
		},
		{
			name:       "malformed forwarded hop stops the walk",
			remoteAddr: "10.0.0.1:6000",
			headers:    map[string]string{"X-Forwarded-For": "6.6.6.6, garbage, 10.0.0.2"},
			want:       "10.0.0.2",
		},
		{
			name:       "malformed real ip falls through to peer",
			remoteAddr: "10.0.0.1:6000",
			headers:    map[string]string{"X-Real-IP": "not-an-ip"},
			want:       "10.0.0.1",
		},
		{
			name:       "ipv6 trusted peer",
			remoteAddr: "[2001:db8::5]:443",
			headers:    map[string]string{"X-Forwarded-For": "2001:0db8:0000::1:2, 203.0.113.9"},
			want:       "203.0.113.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			r.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.want, gotIP)
		})
	}
}
