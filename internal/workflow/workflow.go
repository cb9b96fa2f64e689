// Package workflow drives a single uploaded bill through the acceptance
// pipeline: extraction, policy evaluation and persistence. One Workflow
// instance exists per active upload; every stage failure is converted to a
// terminal Failed state instead of escaping to the caller, and the caller
// restarts the whole pipeline with a fresh Submit.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/koushikb/bill-intake/internal/bus"
	"github.com/koushikb/bill-intake/internal/client"
	"github.com/koushikb/bill-intake/internal/models"
)

// PassPrefix is the sole pass signal in a policy decision. Anything not
// starting with it, including an empty decision, is a rejection. The prefix
// convention comes from the backend contract and is preserved as-is.
const PassPrefix = "PASS:"

var allowedUploadTypes = []string{"image/png", "image/jpeg", "application/pdf"}

// Upserter receives the accepted bill for optimistic registry insertion.
type Upserter interface {
	Upsert(bill models.Bill)
}

// Failure describes a terminal pipeline failure.
type Failure struct {
	Stage     Stage  `json:"stage"`
	Message   string `json:"message"`
	Duplicate bool   `json:"duplicate"`
}

// Snapshot is the read model the upload view renders.
type Snapshot struct {
	State     State        `json:"state"`
	Extracted *models.Bill `json:"extracted,omitempty"`
	RawOutput string       `json:"raw_output,omitempty"`
	Decision  string       `json:"decision,omitempty"`
	Accepted  *models.Bill `json:"accepted,omitempty"`
	BillID    string       `json:"bill_id,omitempty"`
	Failure   *Failure     `json:"failure,omitempty"`
}

// Workflow is the per-upload orchestrator.
type Workflow struct {
	mu       sync.Mutex
	machine  *Machine
	service  client.BillService
	registry Upserter
	bus      *bus.NotificationBus
	logger   *zap.Logger

	maxUploadBytes int64

	extracted *models.Bill
	rawOutput string
	decision  string
	accepted  *models.Bill
	billID    string
	failure   *Failure
}

// New creates a workflow for one upload widget.
func New(service client.BillService, registry Upserter, notifications *bus.NotificationBus, maxUploadBytes int64, logger *zap.Logger) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{
		machine:        newSubmissionMachine(),
		service:        service,
		registry:       registry,
		bus:            notifications,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

// Submit starts a new pipeline for the uploaded file. It returns ErrNoFile
// when no file content was provided and ErrPipelineBusy while a previous
// submission is still in flight; stage failures do not surface as errors but
// as the Failed terminal state.
func (w *Workflow) Submit(ctx context.Context, up client.Upload) error {
	w.mu.Lock()
	if w.machine.State().InFlight() {
		w.mu.Unlock()
		return ErrPipelineBusy
	}
	if len(up.Content) == 0 {
		w.mu.Unlock()
		return ErrNoFile
	}

	w.reset()
	w.fire(TriggerSubmit)
	w.mu.Unlock()

	if msg := w.validateUpload(up); msg != "" {
		w.fail(StageExtract, msg, false)
		return nil
	}

	result, err := w.service.Extract(ctx, up)
	if err != nil {
		w.fail(StageExtract, humanMessage(err), false)
		return nil
	}

	w.mu.Lock()
	w.extracted = &result.Bill
	w.rawOutput = result.RawOutput
	w.fire(TriggerExtracted)
	w.mu.Unlock()

	w.logger.Info("Bill extracted",
		zap.String("invoice_number", result.Bill.InvoiceNumber),
		zap.String("vendor", result.Bill.Vendor))

	return nil
}

// RunPolicyCheck evaluates the extracted bill against policy and, on a pass,
// saves it. Valid only from the Extracted state.
func (w *Workflow) RunPolicyCheck(ctx context.Context) error {
	w.mu.Lock()
	if w.machine.State() != StateExtracted || w.extracted == nil {
		w.mu.Unlock()
		return ErrNotExtracted
	}
	bill := *w.extracted
	w.fire(TriggerStartPolicy)
	w.mu.Unlock()

	decision, err := w.service.PolicyCheck(ctx, bill)
	if err != nil {
		w.fail(StagePolicy, humanMessage(err), false)
		return nil
	}

	w.mu.Lock()
	w.decision = decision
	w.mu.Unlock()

	if !strings.HasPrefix(decision, PassPrefix) {
		w.mu.Lock()
		w.fire(TriggerReject)
		w.mu.Unlock()
		w.logger.Info("Bill rejected by policy",
			zap.String("invoice_number", bill.InvoiceNumber),
			zap.String("decision", decision))
		return nil
	}

	w.mu.Lock()
	w.fire(TriggerPass)
	w.mu.Unlock()

	saved, err := w.service.Save(ctx, bill)
	if err != nil {
		w.fail(StageSave, humanMessage(err), false)
		return nil
	}
	if saved.Duplicate {
		w.fail(StageSave, "this bill is a duplicate and was not saved", true)
		return nil
	}

	w.mu.Lock()
	w.accepted = &bill
	w.billID = saved.BillID
	w.fire(TriggerSaved)
	w.mu.Unlock()

	if w.registry != nil {
		w.registry.Upsert(bill)
	}
	if w.bus != nil {
		w.bus.Publish(&bus.Notification{
			Topic: bus.TopicBillUploaded,
			Payload: map[string]interface{}{
				"invoice_number": bill.InvoiceNumber,
				"vendor":         bill.Vendor,
				"bill_id":        saved.BillID,
			},
		})
	}

	w.logger.Info("Bill accepted",
		zap.String("invoice_number", bill.InvoiceNumber),
		zap.String("bill_id", saved.BillID))

	return nil
}

// State returns the current pipeline state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.machine.State()
}

// Snapshot returns a copy of the current pipeline result for rendering.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := Snapshot{
		State:     w.machine.State(),
		RawOutput: w.rawOutput,
		Decision:  w.decision,
		BillID:    w.billID,
	}
	if w.extracted != nil {
		b := *w.extracted
		snap.Extracted = &b
	}
	if w.accepted != nil {
		b := *w.accepted
		snap.Accepted = &b
	}
	if w.failure != nil {
		f := *w.failure
		snap.Failure = &f
	}
	return snap
}

// reset clears the previous submission's result. Caller holds the lock.
func (w *Workflow) reset() {
	w.extracted = nil
	w.rawOutput = ""
	w.decision = ""
	w.accepted = nil
	w.billID = ""
	w.failure = nil
}

// fire executes a trigger; transitions are fixed at build time, so a refusal
// here is a programming error worth logging loudly. Caller holds the lock.
func (w *Workflow) fire(trigger Trigger) {
	if err := w.machine.Fire(trigger); err != nil {
		w.logger.Error("State machine refused trigger",
			zap.String("trigger", trigger.String()),
			zap.String("state", w.machine.State().String()),
			zap.Error(err))
	}
}

// fail records a terminal failure for the given stage.
func (w *Workflow) fail(stage Stage, message string, duplicate bool) {
	w.mu.Lock()
	w.failure = &Failure{Stage: stage, Message: message, Duplicate: duplicate}
	w.fire(TriggerFail)
	w.mu.Unlock()

	w.logger.Warn("Pipeline failed",
		zap.String("stage", stage.String()),
		zap.String("message", message),
		zap.Bool("duplicate", duplicate))
}

// validateUpload checks size and content type before paying for a round trip
// to the OCR engine. Returns a human message, or empty when the file is fine.
func (w *Workflow) validateUpload(up client.Upload) string {
	if w.maxUploadBytes > 0 && int64(len(up.Content)) > w.maxUploadBytes {
		return fmt.Sprintf("file exceeds the %d MB upload limit", w.maxUploadBytes/(1024*1024))
	}

	detected := mimetype.Detect(up.Content)
	for _, allowed := range allowedUploadTypes {
		if detected.Is(allowed) {
			return ""
		}
	}
	return fmt.Sprintf("unsupported file type %s; upload a PNG, JPG or PDF", detected.String())
}

// humanMessage converts a client error into the message the view shows.
func humanMessage(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "the request timed out; the backend may be busy"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "the request timed out; the backend may be busy"
	}
	if client.IsNetworkError(err) {
		return "could not reach the backend; check that it is running"
	}
	return err.Error()
}
