package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"websearch/pkg/utils"
)

// maxBodyBytes caps how much of a response body is read, preventing OOM
// on oversized or hostile pages.
const maxBodyBytes = 10 << 20 // 10MB

// Result is the outcome of a single successful fetch attempt.
type Result struct {
	FinalURL   string // URL after redirects
	StatusCode int
	Body       []byte
	FetchedAt  time.Time
}

// PageFetcher performs a single fetch attempt. Retry scheduling lives in
// the crawl worker's state machine, not here, so backoff timing is
// testable without a network.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Result, error)
}

// Fetcher implements PageFetcher on an http.Client. Errors are
// classified with the utils sentinels: timeouts, connection failures,
// 5xx and 429 wrap ErrTransientFetch; other non-2xx wrap
// ErrPermanentFetch.
type Fetcher struct {
	client    *http.Client
	userAgent string
	log       *logrus.Entry
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client *http.Client, userAgent string, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client:    client,
		userAgent: userAgent,
		log:       log,
	}
}

// Fetch performs one GET attempt for rawURL and classifies the outcome.
// The response body is fully read and closed before returning.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	reqLog := f.log.WithField("url", rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", utils.ErrRequestCreation, rawURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		// Cancellation of the crawl context is not a fetch failure and is
		// propagated as-is; deadline expiry is a transient failure.
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		reqLog.Debugf("Network error: %v", err)
		return nil, fmt.Errorf("%w: %w", utils.ErrTransientFetch, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	statusLog := reqLog.WithFields(logrus.Fields{"status_code": resp.StatusCode, "status": resp.Status})

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if readErr != nil {
			statusLog.Debugf("Body read error: %v", readErr)
			return nil, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, readErr)
		}
		statusLog.Debug("Successfully fetched")
		return &Result{
			FinalURL:   resp.Request.URL.String(),
			StatusCode: resp.StatusCode,
			Body:       body,
			FetchedAt:  time.Now(),
		}, nil

	case resp.StatusCode >= 500:
		statusLog.Debug("Server error")
		return nil, fmt.Errorf("%w: status %d %s", utils.ErrTransientFetch, resp.StatusCode, resp.Status)

	case resp.StatusCode == http.StatusTooManyRequests:
		statusLog.Debug("Rate limited by server")
		return nil, fmt.Errorf("%w: status %d %s", utils.ErrTransientFetch, resp.StatusCode, resp.Status)

	case resp.StatusCode >= 400:
		statusLog.Debug("Client error, not retryable")
		return nil, fmt.Errorf("%w: status %d %s", utils.ErrPermanentFetch, resp.StatusCode, resp.Status)

	default:
		// 3xx only reachable with redirects exhausted, plus anything exotic.
		statusLog.Debug("Unexpected status, not retryable")
		return nil, fmt.Errorf("%w: status %d %s", utils.ErrPermanentFetch, resp.StatusCode, resp.Status)
	}
}
