package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// hostState tracks one host's in-flight count and request timing.
// Mutated only under the gate's mutex.
type hostState struct {
	active      int       // fetches currently admitted for this host
	lastRequest time.Time // last admission time; zero if never admitted
	lastRelease time.Time // updated on every release, used by eviction
}

// HostGate enforces per-host politeness: at most maxPerHost concurrent
// fetches to a host, and at least minDelay between consecutive
// admissions. A single gate is shared by all crawl workers so the limits
// hold globally. Denial is not an error; callers retry later or move on
// to another host.
type HostGate struct {
	mu       sync.Mutex
	hosts    map[string]*hostState
	limit    int
	minDelay time.Duration
	now      func() time.Time // injectable clock for tests
	log      *logrus.Entry
}

// NewHostGate creates a gate with the given per-host concurrency ceiling
// and inter-request delay.
func NewHostGate(maxPerHost int, minDelay time.Duration, log *logrus.Entry) *HostGate {
	if maxPerHost <= 0 {
		maxPerHost = 2
		log.Warnf("max_concurrent_per_host invalid or zero, defaulting to %d", maxPerHost)
	}
	return &HostGate{
		hosts:    make(map[string]*hostState),
		limit:    maxPerHost,
		minDelay: minDelay,
		now:      time.Now,
		log:      log,
	}
}

// TryAcquire admits one fetch for host if the host has a free slot and
// its cooldown has elapsed. On success it returns a release handle that
// must be called on every exit path, and true. On denial it returns
// (nil, false).
func (g *HostGate) TryAcquire(host string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, exists := g.hosts[host]
	if !exists {
		st = &hostState{}
		g.hosts[host] = st
		g.log.WithFields(logrus.Fields{"host": host, "limit": g.limit}).Debug("Tracking new host")
	}

	if st.active >= g.limit {
		return nil, false
	}
	now := g.now()
	if !st.lastRequest.IsZero() && now.Sub(st.lastRequest) < g.minDelay {
		return nil, false
	}

	st.active++
	st.lastRequest = now

	var once sync.Once
	return func() {
		once.Do(func() { g.release(host) })
	}, true
}

// release decrements the host's active count unconditionally.
func (g *HostGate) release(host string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, exists := g.hosts[host]
	if !exists {
		g.log.Errorf("gate: release called for unknown host: %s", host)
		return
	}
	st.active--
	st.lastRelease = g.now()
	if st.active < 0 {
		g.log.Errorf("gate: active count for %s went negative", host)
		st.active = 0
	}
}

// NextEligibleAt reports when host may next be admitted, for callers
// that want to sleep instead of spinning. The zero time means "now".
func (g *HostGate) NextEligibleAt(host string) time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, exists := g.hosts[host]
	if !exists || st.lastRequest.IsZero() {
		return time.Time{}
	}
	return st.lastRequest.Add(g.minDelay)
}

// RunEviction periodically removes idle host entries. Should be run in a goroutine.
func (g *HostGate) RunEviction(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.evictIdle(interval)
		case <-ctx.Done():
			g.log.Debug("Stopping host gate eviction")
			return
		}
	}
}

// evictIdle removes entries that have been idle longer than maxIdle.
func (g *HostGate) evictIdle(maxIdle time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	evicted := 0
	for host, st := range g.hosts {
		if st.active == 0 && !st.lastRelease.IsZero() && now.Sub(st.lastRelease) >= maxIdle {
			delete(g.hosts, host)
			evicted++
		}
	}
	if evicted > 0 {
		g.log.Debugf("Evicted %d idle hosts, %d remain", evicted, len(g.hosts))
	}
}

// Len returns the current number of tracked hosts.
func (g *HostGate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.hosts)
}

// Active returns the current in-flight count for host.
func (g *HostGate) Active(host string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, exists := g.hosts[host]; exists {
		return st.active
	}
	return 0
}
