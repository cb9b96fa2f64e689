package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerSubmit      Trigger = "SUBMIT"
	TriggerExtracted   Trigger = "EXTRACTED"
	TriggerStartPolicy Trigger = "START_POLICY"
	TriggerPass        Trigger = "PASS"
	TriggerReject      Trigger = "REJECT"
	TriggerSaved       Trigger = "SAVED"
	TriggerFail        Trigger = "FAIL"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
