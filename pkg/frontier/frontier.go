package frontier

import (
	"sync"

	"github.com/sirupsen/logrus"

	"websearch/pkg/models"
)

// Frontier is the deduplicated queue of discovered-but-not-yet-fetched
// URLs, grouped by host. Order is FIFO within a host; hosts are served
// round-robin so one host's large fan-out cannot starve the others.
//
// The frontier owns the visited set: a URL is consumed exactly once,
// and once visited it can never be re-enqueued. All state is guarded by
// a single mutex; workers block in Dequeue on a condition variable
// until an item arrives or Close is called.
type Frontier struct {
	mu   sync.Mutex
	cond *sync.Cond

	hostQueues map[string][]*models.WorkItem
	hostRing   []string // hosts that currently have queued items, in arrival order
	cursor     int      // round-robin position in hostRing

	queued  map[string]struct{} // URLs waiting in a host queue
	visited map[string]struct{} // URLs handed to a worker, irreversible

	closed bool
	log    *logrus.Entry
}

// New creates an empty frontier.
func New(log *logrus.Entry) *Frontier {
	f := &Frontier{
		hostQueues: make(map[string][]*models.WorkItem),
		queued:     make(map[string]struct{}),
		visited:    make(map[string]struct{}),
		log:        log,
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Enqueue inserts item unless its URL was already visited or is already
// queued. Returns true if the item was accepted. Idempotent: duplicate
// and post-close enqueues are silent no-ops.
func (f *Frontier) Enqueue(item *models.WorkItem) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		f.log.Debugf("Enqueue on closed frontier dropped: %s", item.URL)
		return false
	}
	if _, seen := f.visited[item.URL]; seen {
		return false
	}
	if _, waiting := f.queued[item.URL]; waiting {
		return false
	}

	if len(f.hostQueues[item.Host]) == 0 {
		f.hostRing = append(f.hostRing, item.Host)
	}
	f.hostQueues[item.Host] = append(f.hostQueues[item.Host], item)
	f.queued[item.URL] = struct{}{}
	f.cond.Signal()
	return true
}

// Dequeue removes and returns the next item, rotating across hosts.
// The returned URL is marked visited before the item is handed out, so
// no two workers can ever hold the same URL. Blocks while the frontier
// is empty; returns (nil, false) once it is closed and drained.
func (f *Frontier) Dequeue() (*models.WorkItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		for len(f.hostRing) == 0 {
			if f.closed {
				return nil, false
			}
			f.cond.Wait()
		}

		if f.cursor >= len(f.hostRing) {
			f.cursor = 0
		}
		host := f.hostRing[f.cursor]
		queue := f.hostQueues[host]
		item := queue[0]

		if len(queue) == 1 {
			delete(f.hostQueues, host)
			f.hostRing = append(f.hostRing[:f.cursor], f.hostRing[f.cursor+1:]...)
			// cursor now points at the next host already; wrap handled above
		} else {
			f.hostQueues[host] = queue[1:]
			f.cursor++
		}

		delete(f.queued, item.URL)
		if _, seen := f.visited[item.URL]; seen {
			// marked visited while queued (state seeded mid-run); drop it
			continue
		}
		f.visited[item.URL] = struct{}{}
		return item, true
	}
}

// MarkVisited records url as visited without queueing it, dropping any
// queued copy. Used when seeding state from a previous run.
func (f *Frontier) MarkVisited(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visited[url] = struct{}{}
	delete(f.queued, url)
}

// IsVisited reports whether url was ever handed to a worker.
func (f *Frontier) IsVisited(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, seen := f.visited[url]
	return seen
}

// Len returns the number of queued items across all hosts.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, q := range f.hostQueues {
		n += len(q)
	}
	return n
}

// VisitedCount returns the size of the visited set.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

// Close signals that no more items will be added. Blocked Dequeue calls
// drain remaining items and then return false.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		f.cond.Broadcast()
	}
}
