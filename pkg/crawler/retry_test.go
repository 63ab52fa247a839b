package crawler

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"websearch/pkg/models"
	"websearch/pkg/utils"
)

func TestRetryPolicy_Success(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, Backoff: 2 * time.Second}
	d := p.Classify(1, nil)
	if d.State != models.StateSuccess {
		t.Errorf("State = %s, want %s", d.State, models.StateSuccess)
	}
	if d.Wait != 0 || d.Err != nil {
		t.Errorf("success decision carried wait=%v err=%v", d.Wait, d.Err)
	}
}

func TestRetryPolicy_PermanentFailsImmediately(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, Backoff: 2 * time.Second}
	permErr := fmt.Errorf("%w: status 404", utils.ErrPermanentFetch)

	d := p.Classify(1, permErr)
	if d.State != models.StatePermanentFail {
		t.Errorf("State = %s, want %s", d.State, models.StatePermanentFail)
	}
	if !errors.Is(d.Err, utils.ErrPermanentFetch) {
		t.Errorf("Err = %v, want wrapped permanent fetch error", d.Err)
	}
}

func TestRetryPolicy_LinearBackoffProgression(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, Backoff: 2 * time.Second}
	transient := fmt.Errorf("%w: status 503", utils.ErrTransientFetch)

	// Attempts 1..3 wait 2s, 4s, 6s; attempt 4 exhausts the budget.
	wants := []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second}
	for attempt := 1; attempt <= 3; attempt++ {
		d := p.Classify(attempt, transient)
		if d.State != models.StateBackoffWait {
			t.Fatalf("attempt %d: State = %s, want %s", attempt, d.State, models.StateBackoffWait)
		}
		if d.Wait != wants[attempt-1] {
			t.Errorf("attempt %d: Wait = %v, want %v", attempt, d.Wait, wants[attempt-1])
		}
	}

	d := p.Classify(4, transient)
	if d.State != models.StatePermanentFail {
		t.Errorf("attempt 4: State = %s, want %s", d.State, models.StatePermanentFail)
	}
	if !d.State.IsTerminal() {
		t.Errorf("attempt 4: ceiling state %s must be terminal", d.State)
	}
	if !errors.Is(d.Err, utils.ErrRetryCeiling) {
		t.Errorf("attempt 4: Err = %v, want retry ceiling", d.Err)
	}
	if !errors.Is(d.Err, utils.ErrTransientFetch) {
		t.Errorf("attempt 4: Err should keep the underlying cause, got %v", d.Err)
	}
}

func TestRetryPolicy_ZeroRetriesFailsFirstTransient(t *testing.T) {
	p := RetryPolicy{MaxRetries: 0, Backoff: time.Second}
	transient := fmt.Errorf("%w: connection refused", utils.ErrTransientFetch)

	d := p.Classify(1, transient)
	if d.State != models.StatePermanentFail {
		t.Errorf("State = %s, want %s", d.State, models.StatePermanentFail)
	}
	if !errors.Is(d.Err, utils.ErrRetryCeiling) {
		t.Errorf("Err = %v, want retry ceiling", d.Err)
	}
}
