package models

import "testing"

func TestFetchState_String(t *testing.T) {
	tests := []struct {
		state    FetchState
		expected string
	}{
		{StateUnset, "unset"},
		{StatePending, "pending"},
		{StateBackoffWait, "backoff_wait"},
		{StatePermanentFail, "permanent_fail"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("FetchState(%q).String() = %q, want %q", string(tt.state), got, tt.expected)
		}
	}
}

func TestFetchState_IsTerminal(t *testing.T) {
	terminal := []FetchState{StateSuccess, StatePermanentFail, StateSkipped}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	nonTerminal := []FetchState{StateUnset, StatePending, StateFetching, StateBackoffWait, StateTransientFail}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

func TestFetchState_IsValid(t *testing.T) {
	if StateUnset.IsValid() {
		t.Error("unset state should not be valid")
	}
	if FetchState("bogus").IsValid() {
		t.Error("unknown state should not be valid")
	}
	if !StateFetching.IsValid() {
		t.Error("fetching should be valid")
	}
}
