package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"websearch/pkg/utils"
)

// testLogger returns a logger entry that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// testClient returns an http.Client suitable for testing
func testClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// mockServer creates an httptest.Server that returns status codes in sequence.
// Returns the server and an atomic counter tracking request attempts.
func mockServer(t *testing.T, statusCodes []int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	attemptCount := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := int(attemptCount.Add(1)) - 1
		if idx >= len(statusCodes) {
			idx = len(statusCodes) - 1 // repeat last status
		}
		w.WriteHeader(statusCodes[idx])
		if body != "" {
			w.Write([]byte(body))
		}
	}))
	t.Cleanup(server.Close)
	return server, attemptCount
}

func TestFetch_Success(t *testing.T) {
	server, attempts := mockServer(t, []int{http.StatusOK}, "hello world")

	fetcher := NewFetcher(testClient(), "test-agent/1.0", testLogger())
	res, err := fetcher.Fetch(context.Background(), server.URL)

	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if string(res.Body) != "hello world" {
		t.Errorf("unexpected body: %q", res.Body)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", res.StatusCode)
	}
	if res.FetchedAt.IsZero() {
		t.Error("expected FetchedAt to be set")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestFetch_SendsUserAgent(t *testing.T) {
	var gotAgent atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent.Store(r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	fetcher := NewFetcher(testClient(), "websearch-test/2.0", testLogger())
	if _, err := fetcher.Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAgent.Load() != "websearch-test/2.0" {
		t.Errorf("expected configured user agent, got %v", gotAgent.Load())
	}
}

func TestFetch_ServerErrorIsTransient(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"500 Internal", http.StatusInternalServerError},
		{"502 BadGateway", http.StatusBadGateway},
		{"503 Unavailable", http.StatusServiceUnavailable},
		{"429 TooManyRequests", http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := mockServer(t, []int{tt.statusCode}, "")
			fetcher := NewFetcher(testClient(), "test-agent", testLogger())

			_, err := fetcher.Fetch(context.Background(), server.URL)
			if !errors.Is(err, utils.ErrTransientFetch) {
				t.Errorf("expected ErrTransientFetch, got: %v", err)
			}
		})
	}
}

func TestFetch_ClientErrorIsPermanent(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"404 NotFound", http.StatusNotFound},
		{"403 Forbidden", http.StatusForbidden},
		{"410 Gone", http.StatusGone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := mockServer(t, []int{tt.statusCode}, "")
			fetcher := NewFetcher(testClient(), "test-agent", testLogger())

			_, err := fetcher.Fetch(context.Background(), server.URL)
			if !errors.Is(err, utils.ErrPermanentFetch) {
				t.Errorf("expected ErrPermanentFetch, got: %v", err)
			}
		})
	}
}

func TestFetch_NetworkErrorIsTransient(t *testing.T) {
	// Point at a server that is already closed
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	fetcher := NewFetcher(testClient(), "test-agent", testLogger())
	_, err := fetcher.Fetch(context.Background(), url)
	if !errors.Is(err, utils.ErrTransientFetch) {
		t.Errorf("expected ErrTransientFetch for connection failure, got: %v", err)
	}
}

func TestFetch_TimeoutIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client := &http.Client{Timeout: 20 * time.Millisecond}
	fetcher := NewFetcher(client, "test-agent", testLogger())

	_, err := fetcher.Fetch(context.Background(), server.URL)
	if !errors.Is(err, utils.ErrTransientFetch) {
		t.Errorf("expected ErrTransientFetch for timeout, got: %v", err)
	}
}

func TestFetch_ContextCancelPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	fetcher := NewFetcher(testClient(), "test-agent", testLogger())
	_, err := fetcher.Fetch(ctx, server.URL)
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got: %v", err)
	}
	if errors.Is(err, utils.ErrTransientFetch) {
		t.Errorf("cancellation must not be classified transient: %v", err)
	}
}

func TestFetch_BadURL(t *testing.T) {
	fetcher := NewFetcher(testClient(), "test-agent", testLogger())
	_, err := fetcher.Fetch(context.Background(), "http://bad url with spaces")
	if !errors.Is(err, utils.ErrRequestCreation) {
		t.Errorf("expected ErrRequestCreation, got: %v", err)
	}
}
