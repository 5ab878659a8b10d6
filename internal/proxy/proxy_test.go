package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AlexKimmel/admitgate/internal/routing"
)

func TestHandler_NoRoute(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler(NewHTTPTransport()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "no_route") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_ForwardsToUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.URL.Path+"|"+r.Header.Get("X-Forwarded-For"))
	}))
	defer upstream.Close()

	rt, err := routing.NewRoute("api", "/jobs", upstream.URL+"/v1", nil, time.Second)
	if err != nil {
		t.Fatalf("route: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/jobs/7", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	rec := httptest.NewRecorder()
	Handler(NewHTTPTransport()).ServeHTTP(rec, routing.WithRoute(req, rt))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "/v1/jobs/7|203.0.113.9" {
		t.Fatalf("unexpected upstream view %q", got)
	}
}

func TestHandler_UpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	addr := upstream.URL
	upstream.Close()

	rt, err := routing.NewRoute("api", "/", addr, nil, time.Second)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	rec := httptest.NewRecorder()
	Handler(NewHTTPTransport()).ServeHTTP(rec, routing.WithRoute(httptest.NewRequest(http.MethodGet, "/x", nil), rt))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}
