package routing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Route forwards a path prefix to an upstream service.
type Route struct {
	ID      string
	Methods map[string]struct{} // empty = any method
	Prefix  string
	UpURL   *url.URL
	Timeout time.Duration
}

func NewRoute(id, prefix, upstream string, methods []string, timeout time.Duration) (*Route, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("route %q: upstream url: %w", id, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("route %q: upstream url %q needs scheme and host", id, upstream)
	}
	ms := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		ms[strings.ToUpper(strings.TrimSpace(m))] = struct{}{}
	}
	return &Route{
		ID:      id,
		Methods: ms,
		Prefix:  normalizePrefix(prefix),
		UpURL:   u,
		Timeout: timeout,
	}, nil
}

func normalizePrefix(p string) string {
	p = strings.TrimSuffix(strings.TrimSpace(p), "/")
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

type Router struct {
	routes []*Route
}

func New() *Router {
	return &Router{}
}

func (r *Router) Add(rt *Route) {
	r.routes = append(r.routes, rt)
}

func (r *Router) Routes() []*Route {
	return r.routes
}

// Match returns the first route whose method set and prefix fit. Prefixes
// match on segment boundaries: "/api" matches "/api" and "/api/x", not "/apix".
func (r *Router) Match(method string, path string) (*Route, bool) {
	m := strings.ToUpper(method)
	for _, rt := range r.routes {
		if len(rt.Methods) > 0 {
			if _, ok := rt.Methods[m]; !ok {
				continue
			}
		}
		if rt.Prefix == "/" || path == rt.Prefix || strings.HasPrefix(path, rt.Prefix+"/") {
			return rt, true
		}
	}
	return nil, false
}

// --- context helpers ---
type ctxKey int

const keyRoute ctxKey = 0

func WithRoute(r *http.Request, rt *Route) *http.Request {
	ctx := context.WithValue(r.Context(), keyRoute, rt)
	return r.WithContext(ctx)
}

func RouteFrom(r *http.Request) (*Route, bool) {
	v := r.Context().Value(keyRoute)
	if v == nil {
		return nil, false
	}
	rt, ok := v.(*Route)
	return rt, ok
}
