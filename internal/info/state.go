package info

import "strings"

// State is the classification of a migration after reconciling source and
// history.
type State int

const (
	// StatePending is resolved, not applied, and will run next.
	StatePending State = iota
	// StateAboveTarget is resolved and runnable but beyond the target version.
	StateAboveTarget
	// StateBelowBaseline is resolved but older than the baseline.
	StateBelowBaseline
	// StateBaseline is a baseline or schema-creation marker.
	StateBaseline
	// StateIgnored is resolved below the last applied version while
	// out-of-order execution is disabled.
	StateIgnored
	// StateMissingSuccess was applied successfully but is no longer resolved.
	StateMissingSuccess
	// StateMissingFailed failed and is no longer resolved.
	StateMissingFailed
	StateSuccess
	StateFailed
	// StateOutOfOrder is resolved below the last applied version and will run
	// because out-of-order execution is enabled.
	StateOutOfOrder
	// StateFutureSuccess was applied successfully by a newer source.
	StateFutureSuccess
	// StateFutureFailed failed and was applied by a newer source.
	StateFutureFailed
)

type stateTraits struct {
	name     string
	resolved bool
	applied  bool
	failed   bool
}

var traits = map[State]stateTraits{
	StatePending:        {name: "Pending", resolved: true},
	StateAboveTarget:    {name: "Above Target", resolved: true},
	StateBelowBaseline:  {name: "Below Baseline", resolved: true},
	StateBaseline:       {name: "Baseline", resolved: true, applied: true},
	StateIgnored:        {name: "Ignored", resolved: true},
	StateMissingSuccess: {name: "Missing", applied: true},
	StateMissingFailed:  {name: "Failed (Missing)", applied: true, failed: true},
	StateSuccess:        {name: "Success", resolved: true, applied: true},
	StateFailed:         {name: "Failed", resolved: true, applied: true, failed: true},
	StateOutOfOrder:     {name: "Out of Order", resolved: true},
	StateFutureSuccess:  {name: "Future", applied: true},
	StateFutureFailed:   {name: "Failed (Future)", applied: true, failed: true},
}

// AllStates lists every state in declaration order.
var AllStates = []State{
	StatePending, StateAboveTarget, StateBelowBaseline, StateBaseline, StateIgnored,
	StateMissingSuccess, StateMissingFailed, StateSuccess, StateFailed,
	StateOutOfOrder, StateFutureSuccess, StateFutureFailed,
}

// String returns the human-readable name shown in reports.
func (s State) String() string {
	if t, ok := traits[s]; ok {
		return t.name
	}
	return "Unknown"
}

// Code returns the upper-case identifier used in machine-readable output.
func (s State) Code() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateAboveTarget:
		return "ABOVE_TARGET"
	case StateBelowBaseline:
		return "BELOW_BASELINE"
	case StateBaseline:
		return "BASELINE"
	case StateIgnored:
		return "IGNORED"
	case StateMissingSuccess:
		return "MISSING_SUCCESS"
	case StateMissingFailed:
		return "MISSING_FAILED"
	case StateSuccess:
		return "SUCCESS"
	case StateFailed:
		return "FAILED"
	case StateOutOfOrder:
		return "OUT_OF_ORDER"
	case StateFutureSuccess:
		return "FUTURE_SUCCESS"
	case StateFutureFailed:
		return "FUTURE_FAILED"
	}
	return "UNKNOWN"
}

// IsResolved reports whether the migration is known to the source.
func (s State) IsResolved() bool { return traits[s].resolved }

// IsApplied reports whether the state derives from a history record.
func (s State) IsApplied() bool { return traits[s].applied }

// IsFailed reports whether the applied record is unsuccessful.
func (s State) IsFailed() bool { return traits[s].failed }

// IsFuture reports whether the state is FUTURE_SUCCESS or FUTURE_FAILED.
func (s State) IsFuture() bool {
	return s == StateFutureSuccess || s == StateFutureFailed
}

// IsMissing reports whether the state is MISSING_SUCCESS or MISSING_FAILED.
func (s State) IsMissing() bool {
	return s == StateMissingSuccess || s == StateMissingFailed
}

// ParseState looks a state up by its code, ignoring case.
func ParseState(code string) (State, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, s := range AllStates {
		if s.Code() == code {
			return s, true
		}
	}
	return 0, false
}

// SummaryCodes keys a per-state summary by state code.
func SummaryCodes(summary map[State]int) map[string]int {
	out := make(map[string]int, len(summary))
	for s, n := range summary {
		out[s.Code()] = n
	}
	return out
}
