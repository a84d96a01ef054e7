package constants

// ProcessingState is the canonical lifecycle state for an invoice record.
type ProcessingState string

// Stable values (store these exact strings in DB).
const (
	StatePending    ProcessingState = "PENDING"    // created, never claimed
	StateProcessing ProcessingState = "PROCESSING" // claimed by an orchestration pass
	StateExtracted  ProcessingState = "EXTRACTED"  // extraction committed
	StateFailed     ProcessingState = "FAILED"     // terminal extraction failure, retryable
	StateValidated  ProcessingState = "VALIDATED"  // accepted by human review
)

// ClaimFromStates is the set of states a claim may transition out of.
// FAILED is included so an explicit retry reuses the claim primitive.
var ClaimFromStates = []ProcessingState{StatePending, StateFailed}

// ResetFromStates is the set of states an explicit reset may transition out of.
// PROCESSING is excluded: a reset never forcibly cancels an in-flight pass;
// the stale pass's commit fails its own guard instead.
var ResetFromStates = []ProcessingState{StateExtracted, StateFailed, StateValidated}

// transitions maps a target state to the states it may be entered from.
// Guarded writes consult this table; nothing else mutates processing_state.
var transitions = map[ProcessingState][]ProcessingState{
	StateProcessing: {StatePending, StateFailed},
	StateExtracted:  {StateProcessing},
	StateFailed:     {StateProcessing},
	StateValidated:  {StateExtracted},
	StatePending:    ResetFromStates, // explicit reset only
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to ProcessingState) bool {
	for _, f := range transitions[to] {
		if f == from {
			return true
		}
	}
	return false
}

// IsValidState reports whether s is one of the five known states.
func IsValidState(s ProcessingState) bool {
	switch s {
	case StatePending, StateProcessing, StateExtracted, StateFailed, StateValidated:
		return true
	}
	return false
}
