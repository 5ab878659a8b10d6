package gateway

import (
	"net/http"

	"github.com/AlexKimmel/admitgate/internal/routing"
)

type Middleware func(http.Handler) http.Handler

// Chain wraps h so the first middleware sees the request first.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// RouteID names the matched upstream route, or "unknown" for local endpoints.
func RouteID(r *http.Request) string {
	if rt, ok := routing.RouteFrom(r); ok && rt != nil && rt.ID != "" {
		return rt.ID
	}
	return "unknown"
}

// writeJSON writes the shared error envelope.
func writeJSON(w http.ResponseWriter, code int, errCode, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":{"code":"` + errCode + `","message":"` + msg + `"}}`))
}
