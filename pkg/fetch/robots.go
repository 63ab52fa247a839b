package fetch

import (
	"context"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RobotsOracle answers allow/deny for a URL and user agent. The crawl
// worker treats it as a black box; a disallow is a skip, never an error.
type RobotsOracle interface {
	Allowed(ctx context.Context, target *url.URL, userAgent string) bool
}

// RobotsHandler implements RobotsOracle by fetching and caching each
// host's robots.txt. A fetch or parse failure is cached as nil and
// treated as allow-all, matching common crawler practice.
type RobotsHandler struct {
	fetcher PageFetcher
	cache   map[string]*robotstxt.RobotsData // hostname -> parsed data (or nil)
	cacheMu sync.Mutex
	log     *logrus.Entry
}

// NewRobotsHandler creates a RobotsHandler
func NewRobotsHandler(fetcher PageFetcher, log *logrus.Entry) *RobotsHandler {
	return &RobotsHandler{
		fetcher: fetcher,
		cache:   make(map[string]*robotstxt.RobotsData),
		log:     log,
	}
}

// Allowed reports whether userAgent may fetch target. Rules are fetched
// once per host and cached for the lifetime of the handler.
func (rh *RobotsHandler) Allowed(ctx context.Context, target *url.URL, userAgent string) bool {
	data := rh.getRobotsData(ctx, target)
	if data == nil {
		// Rules unavailable: assume allowed.
		return true
	}
	return data.TestAgent(target.RequestURI(), userAgent)
}

// getRobotsData retrieves robots.txt data for the target's host, using
// the cache or fetching. Returns nil on any fetch/parse failure.
func (rh *RobotsHandler) getRobotsData(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	host := target.Hostname()

	rh.cacheMu.Lock()
	data, found := rh.cache[host]
	rh.cacheMu.Unlock()
	if found {
		return data // may be nil (cached failure)
	}

	scheme := target.Scheme
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	robotsURL := (&url.URL{Scheme: scheme, Host: target.Host, Path: "/robots.txt"}).String()
	robotsLog := rh.log.WithFields(logrus.Fields{"host": host, "robots_url": robotsURL})
	robotsLog.Info("Fetching robots.txt...")

	parsed := rh.fetchAndParse(ctx, robotsURL, robotsLog)

	rh.cacheMu.Lock()
	rh.cache[host] = parsed
	rh.cacheMu.Unlock()
	return parsed
}

func (rh *RobotsHandler) fetchAndParse(ctx context.Context, robotsURL string, robotsLog *logrus.Entry) *robotstxt.RobotsData {
	res, err := rh.fetcher.Fetch(ctx, robotsURL)
	if err != nil {
		robotsLog.Debugf("Fetching robots.txt failed: %v", err)
		return nil
	}

	data, err := robotstxt.FromBytes(res.Body)
	if err != nil {
		robotsLog.Warnf("Error parsing robots.txt: %v", err)
		return nil
	}

	robotsLog.Info("Successfully fetched and parsed robots.txt")
	return data
}

// allowAll is a RobotsOracle that admits everything, used when
// respect_robots is disabled.
type allowAll struct{}

func (allowAll) Allowed(context.Context, *url.URL, string) bool { return true }

// AllowAllOracle returns an oracle that always answers allow.
func AllowAllOracle() RobotsOracle { return allowAll{} }
