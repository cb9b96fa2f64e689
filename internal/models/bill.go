package models

import "fmt"

// Field defaults applied to list entries so the view never renders holes.
const (
	DefaultInvoiceNumber = "N/A"
	DefaultVendor        = "Unknown Vendor"
	DefaultAmount        = "0.00"
	DefaultDate          = "N/A"
	DefaultItem          = "No item description"
	DefaultCategory      = "Uncategorized"
)

// Bill is the canonical intake record. Fields mirror the backend wire format:
// amounts are decimal strings (possibly with thousands separators) and dates
// are day-month-year strings. Risk fields are populated lazily by the
// risk-score endpoint and are either both present or both absent.
type Bill struct {
	InvoiceNumber    string  `json:"invoice_number"`
	Vendor           string  `json:"vendor"`
	Amount           string  `json:"amount"`
	Date             string  `json:"date"`
	Item             string  `json:"item"`
	ShortDescription string  `json:"short_description"`
	RiskScore        *int    `json:"risk_score,omitempty"`
	RiskReason       *string `json:"risk_reason,omitempty"`
}

// ApplyDefaults fills missing fields with the display defaults.
func (b *Bill) ApplyDefaults() {
	if b.InvoiceNumber == "" {
		b.InvoiceNumber = DefaultInvoiceNumber
	}
	if b.Vendor == "" {
		b.Vendor = DefaultVendor
	}
	if b.Amount == "" {
		b.Amount = DefaultAmount
	}
	if b.Date == "" {
		b.Date = DefaultDate
	}
	if b.Item == "" {
		b.Item = DefaultItem
	}
	if b.ShortDescription == "" {
		b.ShortDescription = DefaultCategory
	}
}

// HasRisk reports whether the bill carries a risk assessment.
func (b *Bill) HasRisk() bool {
	return b.RiskScore != nil && b.RiskReason != nil
}

// ValidateRisk enforces the risk invariant: score and reason are either both
// present or both absent, and the score is within 0-100.
func (b *Bill) ValidateRisk() error {
	if (b.RiskScore == nil) != (b.RiskReason == nil) {
		return fmt.Errorf("bill %s: risk score and risk reason must be set together", b.InvoiceNumber)
	}
	if b.RiskScore != nil && (*b.RiskScore < 0 || *b.RiskScore > 100) {
		return fmt.Errorf("bill %s: risk score %d out of range", b.InvoiceNumber, *b.RiskScore)
	}
	return nil
}

// NormalizeRisk drops a half-populated or out-of-range risk assessment so
// callers never observe a score without a reason or vice versa.
func (b *Bill) NormalizeRisk() {
	if b.ValidateRisk() != nil {
		b.RiskScore = nil
		b.RiskReason = nil
	}
}

// SaveResult is the backend's answer to a save request. Duplicate detection
// is authoritative on the backend side; the client never computes it.
type SaveResult struct {
	BillID    string
	Duplicate bool
}

// ExtractResult carries the OCR output for one uploaded file.
type ExtractResult struct {
	Bill      Bill
	RawOutput string
}
