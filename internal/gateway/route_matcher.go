package gateway

import (
	"net/http"

	"github.com/AlexKimmel/admitgate/internal/routing"
)

// RouteMatcher attaches the upstream route for the request, if any. Requests
// without a match continue untouched so local endpoints still resolve.
func RouteMatcher(rr *routing.Router, skip map[string]struct{}) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			if rt, ok := rr.Match(r.Method, r.URL.Path); ok {
				r = routing.WithRoute(r, rt)
			}
			next.ServeHTTP(w, r)
		})
	}
}
