package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AlexKimmel/admitgate/internal/auth"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		trust   bool
		want    string
	}{
		{name: "remote host", remote: "10.0.0.1:1234", want: "10.0.0.1"},
		{name: "ipv6 remote", remote: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "remote without port", remote: "10.0.0.9", want: "10.0.0.9"},
		{name: "empty remote", remote: "", want: UnknownIdentity},
		{
			name: "xff ignored when untrusted", remote: "10.0.0.1:1",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.7"}, want: "10.0.0.1",
		},
		{
			name: "xff first hop", remote: "10.0.0.1:1", trust: true,
			headers: map[string]string{"X-Forwarded-For": " 198.51.100.7 , 10.0.0.2"}, want: "198.51.100.7",
		},
		{
			name: "x-real-ip", remote: "10.0.0.1:1", trust: true,
			headers: map[string]string{"X-Real-IP": "198.51.100.8"}, want: "198.51.100.8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req, tt.trust); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDefaultKeyFunc_PrefersAPIKey(t *testing.T) {
	fn := DefaultKeyFunc(false)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1"
	if got := fn(req); got != "10.0.0.1" {
		t.Fatalf("expected address identity, got %q", got)
	}

	req = req.WithContext(auth.WithKeyID(req.Context(), "team-a"))
	if got := fn(req); got != "key:team-a" {
		t.Fatalf("expected key identity, got %q", got)
	}
}
