package workflow

import "fmt"

// Machine tracks the current state of one submission and validates
// transitions against a fixed transition table.
type Machine struct {
	current     State
	transitions map[State]map[Trigger]State
}

// MachineBuilder accumulates the transition table for a Machine.
type MachineBuilder struct {
	transitions map[State]map[Trigger]State
}

// NewBuilder creates a machine builder with an empty transition table.
func NewBuilder() *MachineBuilder {
	return &MachineBuilder{transitions: make(map[State]map[Trigger]State)}
}

// Permit allows a trigger to transition from one state to another.
func (b *MachineBuilder) Permit(from State, trigger Trigger, to State) *MachineBuilder {
	if !from.IsValid() || !to.IsValid() {
		panic(fmt.Sprintf("invalid transition %s -> %s", from, to))
	}
	if b.transitions[from] == nil {
		b.transitions[from] = make(map[Trigger]State)
	}
	b.transitions[from][trigger] = to
	return b
}

// Build creates a machine starting at the given initial state. The transition
// table is copied so machines built from the same builder are independent.
func (b *MachineBuilder) Build(initial State) *Machine {
	if !initial.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initial))
	}
	table := make(map[State]map[Trigger]State, len(b.transitions))
	for from, byTrigger := range b.transitions {
		copied := make(map[Trigger]State, len(byTrigger))
		for trigger, to := range byTrigger {
			copied[trigger] = to
		}
		table[from] = copied
	}
	return &Machine{current: initial, transitions: table}
}

// State returns the current state
func (m *Machine) State() State {
	return m.current
}

// CanFire returns true if the trigger is permitted in the current state
func (m *Machine) CanFire(trigger Trigger) bool {
	_, ok := m.transitions[m.current][trigger]
	return ok
}

// Fire executes the trigger, transitioning to the new state if allowed
func (m *Machine) Fire(trigger Trigger) error {
	to, ok := m.transitions[m.current][trigger]
	if !ok {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.current)
	}
	m.current = to
	return nil
}

// newSubmissionMachine builds the machine for the bill intake pipeline.
// Every in-flight state can fail, and every settled state accepts a fresh
// Submit; only in-flight states refuse one.
func newSubmissionMachine() *Machine {
	b := NewBuilder()

	b.Permit(StateIdle, TriggerSubmit, StateExtracting)
	b.Permit(StateExtracted, TriggerSubmit, StateExtracting)
	b.Permit(StateAccepted, TriggerSubmit, StateExtracting)
	b.Permit(StatePolicyRejected, TriggerSubmit, StateExtracting)
	b.Permit(StateFailed, TriggerSubmit, StateExtracting)

	b.Permit(StateExtracting, TriggerExtracted, StateExtracted)
	b.Permit(StateExtracted, TriggerStartPolicy, StatePolicyChecking)
	b.Permit(StatePolicyChecking, TriggerPass, StateSaving)
	b.Permit(StatePolicyChecking, TriggerReject, StatePolicyRejected)
	b.Permit(StateSaving, TriggerSaved, StateAccepted)

	b.Permit(StateExtracting, TriggerFail, StateFailed)
	b.Permit(StatePolicyChecking, TriggerFail, StateFailed)
	b.Permit(StateSaving, TriggerFail, StateFailed)

	return b.Build(StateIdle)
}
