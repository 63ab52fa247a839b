package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
)

const robotsBody = `User-agent: *
Disallow: /private/
`

// robotsServer serves /robots.txt and counts how often it is requested.
func robotsServer(t *testing.T, robotsStatus int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	robotsHits := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsHits.Add(1)
			w.WriteHeader(robotsStatus)
			if robotsStatus == http.StatusOK {
				w.Write([]byte(robotsBody))
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, robotsHits
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestRobotsHandler_DisallowedPath(t *testing.T) {
	server, _ := robotsServer(t, http.StatusOK)
	handler := NewRobotsHandler(NewFetcher(testClient(), "test-agent", testLogger()), testLogger())

	if !handler.Allowed(context.Background(), mustParse(t, server.URL+"/public/page"), "test-agent") {
		t.Error("expected /public/page to be allowed")
	}
	if handler.Allowed(context.Background(), mustParse(t, server.URL+"/private/page"), "test-agent") {
		t.Error("expected /private/page to be disallowed")
	}
}

func TestRobotsHandler_CachesPerHost(t *testing.T) {
	server, hits := robotsServer(t, http.StatusOK)
	handler := NewRobotsHandler(NewFetcher(testClient(), "test-agent", testLogger()), testLogger())

	for i := 0; i < 5; i++ {
		handler.Allowed(context.Background(), mustParse(t, server.URL+"/page"), "test-agent")
	}
	if hits.Load() != 1 {
		t.Errorf("expected 1 robots.txt fetch, got %d", hits.Load())
	}
}

func TestRobotsHandler_MissingRobotsAllowsAll(t *testing.T) {
	server, _ := robotsServer(t, http.StatusNotFound)
	handler := NewRobotsHandler(NewFetcher(testClient(), "test-agent", testLogger()), testLogger())

	if !handler.Allowed(context.Background(), mustParse(t, server.URL+"/private/page"), "test-agent") {
		t.Error("fetch failure should default to allow")
	}
}

func TestAllowAllOracle(t *testing.T) {
	oracle := AllowAllOracle()
	if !oracle.Allowed(context.Background(), mustParse(t, "https://example.com/anything"), "any-agent") {
		t.Error("allow-all oracle denied a URL")
	}
}
