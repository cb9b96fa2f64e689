package workflow

// State represents a workflow state in the bill intake lifecycle
type State string

const (
	StateIdle           State = "IDLE"
	StateExtracting     State = "EXTRACTING"
	StateExtracted      State = "EXTRACTED"
	StatePolicyChecking State = "POLICY_CHECKING"
	StateSaving         State = "SAVING"
	StateAccepted       State = "ACCEPTED"
	StatePolicyRejected State = "POLICY_REJECTED"
	StateFailed         State = "FAILED"
)

var validStates = map[State]bool{
	StateIdle:           true,
	StateExtracting:     true,
	StateExtracted:      true,
	StatePolicyChecking: true,
	StateSaving:         true,
	StateAccepted:       true,
	StatePolicyRejected: true,
	StateFailed:         true,
}

var terminalStates = map[State]bool{
	StateAccepted:       true,
	StatePolicyRejected: true,
	StateFailed:         true,
}

var inFlightStates = map[State]bool{
	StateExtracting:     true,
	StatePolicyChecking: true,
	StateSaving:         true,
}

// IsTerminal returns true if the state ends a submission; only a fresh
// Submit restarts the pipeline from a terminal state.
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// InFlight returns true while a remote call for this submission is
// outstanding; a second Submit is rejected in these states.
func (s State) InFlight() bool {
	return inFlightStates[s]
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	return validStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// Stage names the pipeline stage a failure is attributed to.
type Stage string

const (
	StageExtract Stage = "extract"
	StagePolicy  Stage = "policy"
	StageSave    Stage = "save"
)

// String returns the string representation of the stage
func (s Stage) String() string {
	return string(s)
}
