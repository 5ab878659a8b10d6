package gateway

import (
	"net"
	"net/http"
	"strings"

	"github.com/AlexKimmel/admitgate/internal/auth"
)

// UnknownIdentity is the shared bucket for requests with no usable address.
const UnknownIdentity = "unknown"

// KeyFunc maps a request to the client identity the limiter counts against.
// It must never return "".
type KeyFunc func(r *http.Request) string

// DefaultKeyFunc prefers the authenticated API key, then the client address.
func DefaultKeyFunc(trustForwarded bool) KeyFunc {
	return func(r *http.Request) string {
		if id, ok := auth.KeyIDFrom(r.Context()); ok && id != "" {
			return "key:" + id
		}
		return ClientIP(r, trustForwarded)
	}
}

// ClientIP returns the caller's address. Proxy headers are only read when the
// gateway sits behind a proxy that sets them.
func ClientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}

	addr := strings.TrimSpace(r.RemoteAddr)
	host, _, err := net.SplitHostPort(addr)
	if err == nil && host != "" {
		return host
	}
	if addr != "" {
		return addr
	}
	return UnknownIdentity
}
