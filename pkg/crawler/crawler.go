package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"websearch/pkg/config"
	"websearch/pkg/fetch"
	"websearch/pkg/frontier"
	"websearch/pkg/models"
	"websearch/pkg/parse"
	"websearch/pkg/storage"
	"websearch/pkg/utils"
)

// Coordinator drives one crawl session: it seeds the frontier, runs
// the worker pool, applies per-host politeness and the retry policy,
// and checkpoints successful records to the document store in chunks.
type Coordinator struct {
	log       *logrus.Entry
	cfg       *config.AppConfig
	frontier  *frontier.Frontier
	fetcher   fetch.PageFetcher
	gate      *fetch.HostGate
	robots    fetch.RobotsOracle
	store     storage.VisitedStore
	records   *storage.RecordStore
	extractor *Extractor
	retry     RetryPolicy

	globalSem *semaphore.Weighted
	sessionID string

	// Task accounting: wg counts enqueued-but-unfinished items, the
	// waiter closes the frontier when it drains or the cap trips.
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	fetched    atomic.Int64
	failed     atomic.Int64
	skipped    atomic.Int64
	retries    atomic.Int64
	chunksSent atomic.Int64

	bufMu  sync.Mutex
	buffer []models.CrawlRecord
}

// NewCoordinator wires a Coordinator from its components. The robots
// oracle decides per-URL admission; pass fetch.AllowAllOracle() when
// robots handling is disabled.
func NewCoordinator(
	cfg *config.AppConfig,
	f *frontier.Frontier,
	fetcher fetch.PageFetcher,
	gate *fetch.HostGate,
	robots fetch.RobotsOracle,
	store storage.VisitedStore,
	records *storage.RecordStore,
	baseLogger *logrus.Entry,
) *Coordinator {
	sessionID := uuid.NewString()
	logger := baseLogger.WithField("session_id", sessionID)
	return &Coordinator{
		log:       logger,
		cfg:       cfg,
		frontier:  f,
		fetcher:   fetcher,
		gate:      gate,
		robots:    robots,
		store:     store,
		records:   records,
		extractor: NewExtractor(logger),
		retry: RetryPolicy{
			MaxRetries: cfg.Crawl.MaxRetries,
			Backoff:    cfg.Crawl.RetryBackoff,
		},
		globalSem: semaphore.NewWeighted(int64(cfg.Crawl.MaxGlobalWorkers)),
		sessionID: sessionID,
		stopCh:    make(chan struct{}),
	}
}

// SessionID returns this session's identifier.
func (c *Coordinator) SessionID() string { return c.sessionID }

// Run crawls until the frontier drains, the success cap is reached, or
// ctx is cancelled. It blocks, returns aggregated session stats, and
// always flushes the checkpoint buffer before returning. Because the
// cap stop is cooperative, up to MaxGlobalWorkers in-flight fetches
// may still land after it trips.
func (c *Coordinator) Run(ctx context.Context, resume bool) (*models.CrawlStats, error) {
	start := time.Now()
	runLog := c.log.WithFields(logrus.Fields{"resume": resume, "workers": c.cfg.Crawl.MaxGlobalWorkers})
	runLog.Infof("Crawl starting with %d seed(s), cap %d", len(c.cfg.Crawl.Seeds), c.cfg.Crawl.MaxTotalURLs)

	seeded, err := c.seed(ctx, resume, runLog)
	if err != nil {
		return nil, err
	}
	if seeded == 0 {
		runLog.Error("CRITICAL: no tasks seeded (no valid seeds, nothing to resume). Nothing to do.")
		return c.buildStats(start), nil
	}

	// Workers
	var workerWg sync.WaitGroup
	for i := 1; i <= c.cfg.Crawl.MaxGlobalWorkers; i++ {
		workerWg.Add(1)
		go func(id int) {
			defer workerWg.Done()
			c.worker(ctx, c.log.WithField("worker_id", id))
		}(i)
	}

	// Waiter: close the frontier when all tasks finish, the cap trips,
	// or the context dies. Workers then drain and exit.
	waiterDone := make(chan struct{})
	go func() {
		defer close(waiterDone)
		wgDone := make(chan struct{})
		go func() { c.wg.Wait(); close(wgDone) }()
		select {
		case <-wgDone:
			runLog.Info("Waiter: all tasks finished.")
		case <-c.stopCh:
			runLog.Info("Waiter: success cap reached, stopping enqueue and draining workers.")
		case <-ctx.Done():
			runLog.Warnf("Waiter: context cancelled: %v", ctx.Err())
		}
		c.frontier.Close()
	}()

	<-waiterDone
	workerWg.Wait()

	// Final checkpoint flush
	if err := c.flush(true); err != nil {
		runLog.Errorf("Final checkpoint flush failed: %v", err)
	}

	stats := c.buildStats(start)
	runLog.WithFields(logrus.Fields{
		"fetched": stats.Fetched,
		"failed":  stats.Failed,
		"skipped": stats.Skipped,
		"retries": stats.Retries,
		"chunks":  stats.ChunksSent,
	}).Infof("Crawl finished in %v", stats.Duration)

	if ctx.Err() != nil {
		return stats, ctx.Err()
	}
	return stats, nil
}

// seed fills the frontier from config seeds and, in resume mode, from
// the visited store's non-terminal entries.
func (c *Coordinator) seed(ctx context.Context, resume bool, runLog *logrus.Entry) (int, error) {
	seeded := 0

	if resume {
		if err := c.store.LoadTerminal(ctx, func(u string) { c.frontier.MarkVisited(u) }); err != nil {
			runLog.Errorf("Loading terminal URLs for resume: %v", err)
		}

		requeueChan := make(chan models.WorkItem, 100)
		var requeueWg sync.WaitGroup
		requeueWg.Add(1)
		go func() {
			defer requeueWg.Done()
			for item := range requeueChan {
				item.Host = hostOf(item.URL)
				if c.enqueue(&item) {
					seeded++
				}
			}
		}()
		_, _, scanErr := c.store.RequeueIncomplete(ctx, requeueChan)
		close(requeueChan)
		requeueWg.Wait()
		if scanErr != nil && !errors.Is(scanErr, context.Canceled) {
			runLog.Errorf("Resume scan error: %v", scanErr)
		}
		runLog.Infof("Resume: requeued %d incomplete tasks.", seeded)
	}

	for _, rawSeed := range c.cfg.Crawl.Seeds {
		normalized, parsed, err := parse.ParseAndNormalize(rawSeed)
		if err != nil {
			runLog.Warnf("Skipping invalid seed '%s': %v", rawSeed, err)
			continue
		}
		item := &models.WorkItem{
			URL:          normalized,
			Host:         parsed.Hostname(),
			Depth:        0,
			DiscoveredAt: time.Now().UTC(),
		}
		if c.enqueue(item) {
			seeded++
			runLog.Infof("Seeded '%s' (depth 0).", normalized)
		}
	}
	return seeded, nil
}

// enqueue adds an item to the frontier with wg accounting. Returns
// false for duplicates or after the cap stop.
func (c *Coordinator) enqueue(item *models.WorkItem) bool {
	select {
	case <-c.stopCh:
		return false
	default:
	}
	c.wg.Add(1)
	if !c.frontier.Enqueue(item) {
		c.wg.Done()
		return false
	}
	return true
}

// worker loops over the frontier until it is closed and drained.
func (c *Coordinator) worker(ctx context.Context, workerLog *logrus.Entry) {
	workerLog.Debug("Worker starting")
	defer workerLog.Debug("Worker finished")

	for {
		item, ok := c.frontier.Dequeue()
		if !ok {
			return
		}

		// After a stop (cap or cancel) drain without fetching.
		stopped := ctx.Err() != nil
		select {
		case <-c.stopCh:
			stopped = true
		default:
		}
		if stopped {
			c.skipped.Add(1)
			c.wg.Done()
			continue
		}

		c.processTask(ctx, item, workerLog)
	}
}

// processTask runs the full pipeline for one URL: store state check,
// robots admission, host gate, fetch with retry, extract, checkpoint,
// outlink expansion. The final store state is written in the deferred
// block so panics and every early return leave a consistent record.
func (c *Coordinator) processTask(ctx context.Context, item *models.WorkItem, workerLog *logrus.Entry) {
	taskLog := workerLog.WithFields(logrus.Fields{"url": item.URL, "depth": item.Depth})
	startTime := time.Now()

	var taskErr error
	var finalState models.FetchState
	var attempts int
	var taskSkipped bool

	defer func() {
		if r := recover(); r != nil {
			taskSkipped = false
			taskErr = fmt.Errorf("panic: %v", r)
			finalState = models.StateTransientFail
			taskLog.WithFields(logrus.Fields{
				"panic_info":  r,
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered in processTask")
		}

		logFields := logrus.Fields{"duration": time.Since(startTime).String()}
		switch {
		case taskSkipped:
			c.skipped.Add(1)
			taskLog.WithFields(logFields).Info("Task skipped")
		case taskErr != nil:
			c.failed.Add(1)
			logFields["category"] = utils.CategorizeError(taskErr)
			taskLog.WithFields(logFields).Warnf("Task failed: %v", taskErr)
		default:
			c.fetched.Add(1)
			taskLog.WithFields(logFields).Info("Task completed successfully")
		}

		if finalState != models.StateUnset {
			entry := &models.PageDBEntry{
				State:       finalState,
				Attempts:    attempts,
				Depth:       item.Depth,
				LastAttempt: time.Now().UTC(),
			}
			if taskErr != nil {
				entry.ErrorType = utils.CategorizeError(taskErr)
			}
			if finalState == models.StateSuccess {
				entry.ProcessedAt = entry.LastAttempt
			}
			if dbErr := c.store.UpdateState(item.URL, entry); dbErr != nil {
				taskLog.Errorf("Failed to update store state to '%s': %v", finalState, dbErr)
			}
		}

		c.wg.Done()
	}()

	// Resume check: terminal URLs are never refetched.
	state, _, checkErr := c.store.CheckState(item.URL)
	if checkErr != nil {
		taskLog.Errorf("Store error checking state, proceeding anyway: %v", checkErr)
	} else if state.IsTerminal() {
		taskLog.Debugf("Skipping URL already in terminal state '%s'.", state)
		taskSkipped = true
		return
	}
	if _, err := c.store.MarkPending(item.URL, item.Depth); err != nil {
		taskLog.Warnf("Could not mark pending: %v", err)
	}

	parsed, err := url.Parse(item.URL)
	if err != nil || parsed.Hostname() == "" {
		taskErr = fmt.Errorf("%w: unparseable work item URL '%s'", utils.ErrParsing, item.URL)
		finalState = models.StatePermanentFail
		return
	}

	// Robots admission
	if !c.robots.Allowed(ctx, parsed, c.cfg.UserAgent) {
		taskLog.Infof("%v", fmt.Errorf("%w: '%s'", utils.ErrRobotsDisallowed, item.URL))
		taskSkipped = true
		finalState = models.StateSkipped
		return
	}

	// Fetch with retry
	result, fetchAttempts, fetchState, fetchErr := c.fetchWithRetry(ctx, item, taskLog)
	attempts = fetchAttempts
	if fetchErr != nil {
		taskErr = fetchErr
		finalState = fetchState
		return
	}

	finalURL, err := url.Parse(result.FinalURL)
	if err != nil {
		finalURL = parsed
	}

	page, err := c.extractor.Extract(result.Body, finalURL)
	if err != nil {
		taskErr = err
		finalState = models.StatePermanentFail
		return
	}

	record := models.CrawlRecord{
		URL:          item.URL,
		Title:        page.Title,
		Text:         page.Text,
		Language:     page.Language,
		PublishDate:  page.PublishDate,
		FetchedAt:    result.FetchedAt,
		Outlinks:     page.Outlinks,
		OutlinkCount: len(page.Outlinks),
	}
	if err := c.checkpoint(record); err != nil {
		taskErr = err
		finalState = models.StateTransientFail
		return
	}

	finalState = models.StateSuccess

	// Cap check happens on success only; failed fetches never count.
	if c.fetched.Load()+1 >= int64(c.cfg.Crawl.MaxTotalURLs) {
		c.stopOnce.Do(func() {
			taskLog.Infof("Success cap (%d) reached, initiating cooperative stop.", c.cfg.Crawl.MaxTotalURLs)
			close(c.stopCh)
		})
		return
	}

	// Outlink expansion
	queued := 0
	for _, link := range page.Outlinks {
		next := &models.WorkItem{
			URL:          link,
			Host:         hostOf(link),
			Depth:        item.Depth + 1,
			DiscoveredAt: time.Now().UTC(),
		}
		if c.enqueue(next) {
			queued++
		}
	}
	taskLog.Debugf("Queued %d new outlinks.", queued)
}

// fetchWithRetry runs the attempt loop under the retry policy. Each
// attempt holds a global semaphore slot and a host gate slot for
// exactly the duration of the HTTP exchange.
func (c *Coordinator) fetchWithRetry(ctx context.Context, item *models.WorkItem, taskLog *logrus.Entry) (*fetch.Result, int, models.FetchState, error) {
	for attempt := 1; ; attempt++ {
		result, err := c.attemptOnce(ctx, item, taskLog)
		// Only the crawl context ending stops the loop here. A per-request
		// timeout also matches context.DeadlineExceeded through the error
		// chain, but that is a transient failure Classify must see.
		if err != nil && ctx.Err() != nil {
			return nil, attempt, models.StateTransientFail, err
		}

		decision := c.retry.Classify(attempt, err)
		switch decision.State {
		case models.StateSuccess:
			return result, attempt, models.StateSuccess, nil
		case models.StateBackoffWait:
			c.retries.Add(1)
			taskLog.Warnf("Attempt %d failed (%v), backing off %v.", attempt, err, decision.Wait)
			if !sleepCtx(ctx, decision.Wait) {
				return nil, attempt, models.StateTransientFail, ctx.Err()
			}
		default:
			return nil, attempt, decision.State, decision.Err
		}
	}
}

// attemptOnce performs a single gated fetch.
func (c *Coordinator) attemptOnce(ctx context.Context, item *models.WorkItem, taskLog *logrus.Entry) (*fetch.Result, error) {
	if err := c.globalSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.globalSem.Release(1)

	release, err := c.acquireGate(ctx, item.Host)
	if err != nil {
		return nil, err
	}
	defer release()

	return c.fetcher.Fetch(ctx, item.URL)
}

// acquireGate spins on the host gate until a slot opens, sleeping
// until the host's next eligible time between tries.
func (c *Coordinator) acquireGate(ctx context.Context, host string) (func(), error) {
	for {
		release, ok := c.gate.TryAcquire(host)
		if ok {
			return release, nil
		}
		wait := time.Until(c.gate.NextEligibleAt(host))
		if wait < 50*time.Millisecond {
			wait = 50 * time.Millisecond
		}
		if !sleepCtx(ctx, wait) {
			return nil, ctx.Err()
		}
	}
}

// checkpoint buffers a record, flushing a full chunk to the store.
func (c *Coordinator) checkpoint(record models.CrawlRecord) error {
	c.bufMu.Lock()
	c.buffer = append(c.buffer, record)
	if len(c.buffer) < c.cfg.Crawl.SaveChunkSize {
		c.bufMu.Unlock()
		return nil
	}
	chunk := c.buffer
	c.buffer = nil
	c.bufMu.Unlock()

	if err := c.records.AppendChunk(chunk); err != nil {
		return err
	}
	c.chunksSent.Add(1)
	return nil
}

// flush writes any buffered records out regardless of chunk size.
func (c *Coordinator) flush(final bool) error {
	c.bufMu.Lock()
	chunk := c.buffer
	c.buffer = nil
	c.bufMu.Unlock()

	if len(chunk) == 0 {
		return nil
	}
	if err := c.records.AppendChunk(chunk); err != nil {
		return err
	}
	c.chunksSent.Add(1)
	if final {
		c.log.Infof("Final flush wrote %d buffered record(s).", len(chunk))
	}
	return nil
}

func (c *Coordinator) buildStats(start time.Time) *models.CrawlStats {
	return &models.CrawlStats{
		SessionID:  c.sessionID,
		Fetched:    c.fetched.Load(),
		Failed:     c.failed.Load(),
		Skipped:    c.skipped.Load(),
		Retries:    c.retries.Load(),
		ChunksSent: c.chunksSent.Load(),
		Duration:   time.Since(start),
	}
}

// sleepCtx waits for d, returning false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return u.Hostname()
	}
	return ""
}
