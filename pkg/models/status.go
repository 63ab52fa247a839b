package models

// FetchState is the state of a URL in the fetch/retry state machine.
//
// Transitions:
//
//	Pending → Fetching → Success
//	                   → TransientFail → BackoffWait → Fetching
//	                   → PermanentFail
//	Pending → Skipped (robots disallow)
//
// TransientFail becomes PermanentFail once the attempt count exceeds
// the configured retry ceiling.
type FetchState string

const (
	StateUnset         FetchState = ""               // zero value = unknown
	StatePending       FetchState = "pending"        // queued, not yet attempted
	StateFetching      FetchState = "fetching"       // request in flight
	StateBackoffWait   FetchState = "backoff_wait"   // waiting before a retry
	StateSuccess       FetchState = "success"        // terminal: record produced
	StateTransientFail FetchState = "transient_fail" // retryable failure observed
	StatePermanentFail FetchState = "permanent_fail" // terminal: dropped, counted
	StateSkipped       FetchState = "skipped"        // terminal: robots disallowed
)

// String implements fmt.Stringer for logging
func (s FetchState) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsTerminal reports whether the state machine halts in this state.
func (s FetchState) IsTerminal() bool {
	switch s {
	case StateSuccess, StatePermanentFail, StateSkipped:
		return true
	}
	return false
}

// IsValid returns true if the state is a known operational value
func (s FetchState) IsValid() bool {
	switch s {
	case StatePending, StateFetching, StateBackoffWait,
		StateSuccess, StateTransientFail, StatePermanentFail, StateSkipped:
		return true
	}
	return false
}
