// Package server assembles the gateway: ops endpoints, the admission
// middleware and the upstream proxy behind a chi router.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/AlexKimmel/admitgate/internal/auth"
	"github.com/AlexKimmel/admitgate/internal/clock"
	"github.com/AlexKimmel/admitgate/internal/config"
	"github.com/AlexKimmel/admitgate/internal/gateway"
	"github.com/AlexKimmel/admitgate/internal/obs"
	"github.com/AlexKimmel/admitgate/internal/proxy"
	"github.com/AlexKimmel/admitgate/internal/ratelimit"
	"github.com/AlexKimmel/admitgate/internal/routing"
	"github.com/AlexKimmel/admitgate/internal/stats"
)

const Version = "v0.1.0"

type Deps struct {
	Config  *config.Root
	Logger  zerolog.Logger
	Limiter ratelimit.Limiter
	Clock   clock.Clock // nil = system clock

	Metrics  *obs.Metrics        // optional
	Gatherer prometheus.Gatherer // optional; served on the prometheus path

	Stats    stats.Recorder        // optional
	Snapshot func() stats.Snapshot // optional; served on /stats

	Transport http.RoundTripper // nil = proxy.NewHTTPTransport()
}

func New(d Deps) (http.Handler, error) {
	cfg := d.Config

	rr := routing.New()
	for _, rc := range cfg.Routes {
		rt, err := routing.NewRoute(rc.ID, rc.Match.PathPrefix, rc.Upstream.URL, rc.Match.Methods,
			time.Duration(rc.Upstream.TimeoutMS)*time.Millisecond)
		if err != nil {
			return nil, err
		}
		rr.Add(rt)
	}

	pairs := map[string]string{} // secret -> keyID
	for _, k := range cfg.Auth.Keys {
		if k.Secret != "" && k.ID != "" {
			pairs[k.Secret] = k.ID
		}
	}
	authStore := auth.NewStatic(cfg.Auth.Header, cfg.Auth.Required, pairs)

	skip := map[string]struct{}{
		"/health":  {},
		"/version": {},
	}
	if d.Gatherer != nil {
		skip[cfg.Observability.PrometheusPath] = struct{}{}
	}

	tr := d.Transport
	if tr == nil {
		tr = proxy.NewHTTPTransport()
	}

	rlOpts := gateway.RateLimitOptions{
		Clock:     d.Clock,
		KeyFn:     gateway.DefaultKeyFunc(cfg.Admission.TrustForwardedFor),
		SkipPaths: skip,
		Stats:     d.Stats,
	}
	if d.Metrics != nil {
		rlOpts.OnAdmit = d.Metrics.OnAdmit
		rlOpts.OnLimited = d.Metrics.OnLimited
		rlOpts.OnError = d.Metrics.OnError
	}

	r := chi.NewRouter()
	r.Use(
		obs.Logger(d.Logger),
		gateway.BodyLimit(cfg.Server.MaxBody()),
		authStore.Middleware(skip),
		gateway.RouteMatcher(rr, skip),
	)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware(skip))
	}
	r.Use(gateway.RateLimit(d.Limiter, rlOpts))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/version", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(Version))
	})
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"admitgate running"}`))
	})
	if d.Snapshot != nil {
		r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(d.Snapshot())
		})
	}
	if d.Gatherer != nil {
		r.Method(http.MethodGet, cfg.Observability.PrometheusPath, promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	// everything else belongs to the upstream routes
	upstream := proxy.Handler(tr)
	r.NotFound(upstream.ServeHTTP)
	r.MethodNotAllowed(upstream.ServeHTTP)

	return r, nil
}
