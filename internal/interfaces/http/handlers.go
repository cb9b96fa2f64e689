package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/koushikb/bill-intake/internal/client"
	"github.com/koushikb/bill-intake/internal/export"
	"github.com/koushikb/bill-intake/internal/models"
	"github.com/koushikb/bill-intake/internal/registry"
	"github.com/koushikb/bill-intake/internal/workflow"
)

// WorkflowFactory creates a fresh workflow per upload request, so concurrent
// uploads in different requests never share pipeline state.
type WorkflowFactory func() *workflow.Workflow

// Handlers contains all HTTP request handlers
type Handlers struct {
	newWorkflow WorkflowFactory
	registry    *registry.Registry
	exporter    *export.Exporter
	logger      *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(newWorkflow WorkflowFactory, reg *registry.Registry, exporter *export.Exporter, logger *zap.Logger) *Handlers {
	return &Handlers{
		newWorkflow: newWorkflow,
		registry:    reg,
		exporter:    exporter,
		logger:      logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// BillResponse is one bill as the list view renders it: raw wire fields plus
// their display forms.
type BillResponse struct {
	ID            string  `json:"id"`
	InvoiceNumber string  `json:"invoice_number"`
	Vendor        string  `json:"vendor"`
	Amount        string  `json:"amount"`
	AmountDisplay string  `json:"amount_display"`
	Date          string  `json:"date"`
	DateDisplay   string  `json:"date_display"`
	Item          string  `json:"item"`
	Category      string  `json:"category"`
	RiskScore     *int    `json:"risk_score,omitempty"`
	RiskReason    *string `json:"risk_reason,omitempty"`
}

// UploadResponse is the upload view's terminal state for one submission.
type UploadResponse struct {
	Status    string            `json:"status"`
	Extracted *models.Bill      `json:"extracted,omitempty"`
	RawOutput string            `json:"raw_output,omitempty"`
	Decision  string            `json:"decision,omitempty"`
	BillID    string            `json:"bill_id,omitempty"`
	Failure   *workflow.Failure `json:"failure,omitempty"`
}

// ScoreRiskRequest identifies the bill to score by its display key.
type ScoreRiskRequest struct {
	Key string `json:"key" binding:"required"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// UploadBill handles POST /api/upload. It drives a fresh workflow through the
// full pipeline and returns its terminal state; stage failures surface in the
// body, not as HTTP errors.
func (h *Handlers) UploadBill(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "no file uploaded"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "could not read uploaded file"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "could not read uploaded file"})
		return
	}

	wf := h.newWorkflow()
	if err := wf.Submit(c.Request.Context(), client.Upload{Filename: fileHeader.Filename, Content: content}); err != nil {
		if errors.Is(err, workflow.ErrNoFile) {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
			return
		}
		c.JSON(http.StatusConflict, Response{Success: false, Error: err.Error()})
		return
	}

	if wf.State() == workflow.StateExtracted {
		if err := wf.RunPolicyCheck(c.Request.Context()); err != nil {
			h.logger.Error("Policy check refused", zap.Error(err))
		}
	}

	snap := wf.Snapshot()
	c.JSON(http.StatusOK, Response{
		Success: snap.State == workflow.StateAccepted,
		Data: UploadResponse{
			Status:    snap.State.String(),
			Extracted: snap.Extracted,
			RawOutput: snap.RawOutput,
			Decision:  snap.Decision,
			BillID:    snap.BillID,
			Failure:   snap.Failure,
		},
	})
}

// ListBills handles GET /api/bills. The optional q parameter filters by
// vendor, invoice number or item, case-insensitively, without refetching.
func (h *Handlers) ListBills(c *gin.Context) {
	entries := h.registry.Filter(c.Query("q"))
	c.JSON(http.StatusOK, Response{Success: true, Data: toBillResponses(entries)})
}

// RefreshBills handles POST /api/bills/refresh: the list view's mount-time
// re-query.
func (h *Handlers) RefreshBills(c *gin.Context) {
	h.registry.Refresh(c.Request.Context())
	c.JSON(http.StatusOK, Response{Success: true, Data: toBillResponses(h.registry.Snapshot())})
}

// ScoreRisk handles POST /api/bills/risk-score.
func (h *Handlers) ScoreRisk(c *gin.Context) {
	var req ScoreRiskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "key is required"})
		return
	}

	if err := h.registry.ScoreRisk(c.Request.Context(), req.Key); err != nil {
		switch {
		case errors.Is(err, registry.ErrUnknownBill):
			c.JSON(http.StatusNotFound, Response{Success: false, Error: err.Error()})
		case errors.Is(err, registry.ErrScoreInFlight):
			c.JSON(http.StatusConflict, Response{Success: false, Error: err.Error()})
		default:
			h.logger.Error("Risk scoring failed", zap.String("key", req.Key), zap.Error(err))
			c.JSON(http.StatusBadGateway, Response{Success: false, Error: "risk scoring failed"})
		}
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toBillResponses(h.registry.Snapshot())})
}

// ExportBills handles GET /api/bills/export, downloading the current
// (optionally filtered) snapshot as an xlsx workbook.
func (h *Handlers) ExportBills(c *gin.Context) {
	entries := h.registry.Filter(c.Query("q"))

	var buf bytes.Buffer
	if err := h.exporter.Write(&buf, entries); err != nil {
		h.logger.Error("Export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "export failed"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="bills.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func toBillResponses(entries []registry.Entry) []BillResponse {
	out := make([]BillResponse, len(entries))
	for i, e := range entries {
		b := e.Bill
		out[i] = BillResponse{
			ID:            e.Key,
			InvoiceNumber: b.InvoiceNumber,
			Vendor:        b.Vendor,
			Amount:        b.Amount,
			AmountDisplay: models.FormatCurrency(models.ParseAmount(b.Amount)),
			Date:          b.Date,
			DateDisplay:   models.FormatDate(b.Date),
			Item:          b.Item,
			Category:      b.ShortDescription,
			RiskScore:     b.RiskScore,
			RiskReason:    b.RiskReason,
		}
	}
	return out
}
