package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNoFile is returned when Submit is called without a file
	ErrNoFile = errors.New("no file selected")

	// ErrPipelineBusy is returned when Submit is called while a pipeline is
	// in flight; the caller must wait for the current submission to finish
	ErrPipelineBusy = errors.New("a submission is already in progress")

	// ErrNotExtracted is returned when RunPolicyCheck is called before a
	// successful extraction
	ErrNotExtracted = errors.New("no extracted bill to check")
)
