package crawler

import (
	"fmt"
	"time"

	"websearch/pkg/models"
	"websearch/pkg/utils"
)

// RetryPolicy decides what happens after each fetch attempt. It is a
// pure function of (attempt, error), so the transition logic is
// testable without a clock or a live fetcher. Waits grow linearly:
// attempt 1 waits 1x backoff, attempt 2 waits 2x, and so on.
type RetryPolicy struct {
	MaxRetries int           // retries after the first attempt
	Backoff    time.Duration // base wait, multiplied by the attempt number
}

// Decision is the outcome of classifying one completed attempt.
type Decision struct {
	State models.FetchState // BackoffWait means try again after Wait
	Wait  time.Duration     // zero unless State is StateBackoffWait
	Err   error             // terminal error, annotated when the ceiling was hit
}

// Classify maps the result of attempt number `attempt` (1-based) onto
// the next state. A nil error is success. Permanent errors fail
// immediately. Transient errors retry until MaxRetries further
// attempts have been spent, then settle as a terminal permanent
// failure: the URL is dropped, counted, and never re-enqueued.
func (p RetryPolicy) Classify(attempt int, err error) Decision {
	if err == nil {
		return Decision{State: models.StateSuccess}
	}
	if !utils.IsTransient(err) {
		return Decision{State: models.StatePermanentFail, Err: err}
	}
	if attempt > p.MaxRetries {
		return Decision{
			State: models.StatePermanentFail,
			Err:   fmt.Errorf("%w after %d attempts: %w", utils.ErrRetryCeiling, attempt, err),
		}
	}
	return Decision{
		State: models.StateBackoffWait,
		Wait:  time.Duration(attempt) * p.Backoff,
	}
}
