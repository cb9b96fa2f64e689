// Package client provides the typed HTTP client for the remote OCR/policy
// backend. Each operation is a single request/response with no retries;
// callers own sequencing and failure handling.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/koushikb/bill-intake/internal/models"
)

// HTTPClient interface for testability
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Upload is a file handed to the extraction endpoint.
type Upload struct {
	Filename string
	Content  []byte
}

// BillService is the contract over the five backend endpoints.
type BillService interface {
	// Extract posts the raw file for OCR extraction.
	Extract(ctx context.Context, up Upload) (*models.ExtractResult, error)

	// PolicyCheck posts extracted fields and returns the decision string.
	// The "PASS:" prefix convention is the caller's concern; any decision
	// string is returned as-is.
	PolicyCheck(ctx context.Context, bill models.Bill) (string, error)

	// Save persists a bill that passed policy. Duplicate detection is
	// authoritative on the backend and reported in the result, not as an
	// error.
	Save(ctx context.Context, bill models.Bill) (*models.SaveResult, error)

	// List fetches the full bill snapshot. A malformed or empty payload
	// yields an empty slice, not an error.
	List(ctx context.Context) ([]models.Bill, error)

	// RiskScore asks the backend to recompute risk for one bill and returns
	// the whole updated list.
	RiskScore(ctx context.Context, bill models.Bill) ([]models.Bill, error)
}

// Service is the HTTP implementation of BillService.
type Service struct {
	baseURL    string
	httpClient HTTPClient
	logger     *zap.Logger
}

// NewService creates a bill service client against the given backend base URL.
func NewService(baseURL string, timeout time.Duration, logger *zap.Logger) *Service {
	return &Service{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// WithHTTPClient replaces the underlying HTTP client, for tests.
func (s *Service) WithHTTPClient(c HTTPClient) *Service {
	s.httpClient = c
	return s
}

type extractResponse struct {
	Success   bool         `json:"success"`
	Data      *models.Bill `json:"data"`
	RawOutput string       `json:"raw_output"`
	Error     string       `json:"error"`
}

// Extract posts the file as multipart form data to /api/process-invoice.
func (s *Service) Extract(ctx context.Context, up Upload) (*models.ExtractResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", up.Filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(up.Content); err != nil {
		return nil, fmt.Errorf("failed to write file content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/process-invoice", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var resp extractResponse
	status, err := s.do(req, "extract", &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &BackendError{Op: "extract", Status: status, Message: firstNonEmpty(resp.Error, "extraction failed")}
	}
	if resp.Data == nil {
		return nil, &ValidationError{Op: "extract", Detail: "missing data field"}
	}

	bill := *resp.Data
	bill.ApplyDefaults()

	s.logger.Debug("Extracted bill fields",
		zap.String("invoice_number", bill.InvoiceNumber),
		zap.String("vendor", bill.Vendor))

	return &models.ExtractResult{Bill: bill, RawOutput: resp.RawOutput}, nil
}

type policyResponse struct {
	Success  bool   `json:"success"`
	Decision string `json:"decision"`
	Error    string `json:"error"`
}

// PolicyCheck posts the extracted fields to /api/policy-check.
func (s *Service) PolicyCheck(ctx context.Context, bill models.Bill) (string, error) {
	req, err := s.jsonRequest(ctx, "/api/policy-check", bill)
	if err != nil {
		return "", err
	}

	var resp policyResponse
	status, err := s.do(req, "policy-check", &resp)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", &BackendError{Op: "policy-check", Status: status, Message: firstNonEmpty(resp.Error, "policy check failed")}
	}

	return resp.Decision, nil
}

type saveResponse struct {
	Success   bool   `json:"success"`
	Duplicate bool   `json:"duplicate"`
	BillID    string `json:"bill_id"`
	Message   string `json:"message"`
	Error     string `json:"error"`
}

// Save posts the bill to /api/save-bill. The backend reports duplicates
// either as an explicit duplicate flag or, in its older form, as
// success:false with a "duplicate" error string; both map to a duplicate
// result rather than an error.
func (s *Service) Save(ctx context.Context, bill models.Bill) (*models.SaveResult, error) {
	req, err := s.jsonRequest(ctx, "/api/save-bill", bill)
	if err != nil {
		return nil, err
	}

	var resp saveResponse
	status, err := s.do(req, "save", &resp)

	// The body is decoded even on an error status, and a duplicate verdict in
	// it wins: a duplicate is an expected outcome whatever status carries it.
	if resp.Duplicate || (!resp.Success && strings.Contains(strings.ToLower(resp.Error), "duplicate")) {
		return &models.SaveResult{BillID: resp.BillID, Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &BackendError{Op: "save", Status: status, Message: firstNonEmpty(resp.Error, "save failed")}
	}

	return &models.SaveResult{BillID: resp.BillID, Duplicate: false}, nil
}

type listResponse struct {
	Success bool          `json:"success"`
	Bills   []models.Bill `json:"bills"`
	Count   int           `json:"count"`
}

// List fetches the full snapshot from /api/bills/json.
func (s *Service) List(ctx context.Context) ([]models.Bill, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/bills/json", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpResp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "list", Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &BackendError{Op: "list", Status: httpResp.StatusCode}
	}

	// A malformed or success:false payload degrades to an empty list; the
	// list view must never fail over payload shape.
	var resp listResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		s.logger.Warn("Malformed list payload, returning empty list", zap.Error(err))
		return []models.Bill{}, nil
	}
	if !resp.Success || resp.Bills == nil {
		return []models.Bill{}, nil
	}

	return normalizeBills(resp.Bills), nil
}

type riskScoreRequest struct {
	Bill models.Bill `json:"bill"`
}

type riskScoreResponse struct {
	Success bool          `json:"success"`
	Bills   []models.Bill `json:"bills"`
	Error   string        `json:"error"`
}

// RiskScore posts the bill to /api/get-risk-score and returns the full
// risk-augmented list.
func (s *Service) RiskScore(ctx context.Context, bill models.Bill) ([]models.Bill, error) {
	req, err := s.jsonRequest(ctx, "/api/get-risk-score", riskScoreRequest{Bill: bill})
	if err != nil {
		return nil, err
	}

	var resp riskScoreResponse
	status, err := s.do(req, "risk-score", &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &BackendError{Op: "risk-score", Status: status, Message: firstNonEmpty(resp.Error, "risk scoring failed")}
	}
	if resp.Bills == nil {
		return nil, &ValidationError{Op: "risk-score", Detail: "missing bills field"}
	}

	return normalizeBills(resp.Bills), nil
}

// jsonRequest builds a POST request with a JSON body.
func (s *Service) jsonRequest(ctx context.Context, path string, payload interface{}) (*http.Request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// do executes the request and decodes the JSON response body into out. The
// backend sends JSON bodies on error statuses too, so the body is decoded
// either way, but a non-2xx status is always a BackendError; a success flag
// in the body cannot override an error status.
func (s *Service) do(req *http.Request, op string, out interface{}) (int, error) {
	httpResp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, &NetworkError{Op: op, Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return httpResp.StatusCode, &NetworkError{Op: op, Err: err}
	}

	statusOK := httpResp.StatusCode >= 200 && httpResp.StatusCode <= 299

	if err := json.Unmarshal(body, out); err != nil {
		if !statusOK {
			return httpResp.StatusCode, &BackendError{Op: op, Status: httpResp.StatusCode}
		}
		return httpResp.StatusCode, &ValidationError{Op: op, Detail: fmt.Sprintf("malformed JSON: %v", err)}
	}

	if !statusOK {
		var envelope struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &envelope)
		return httpResp.StatusCode, &BackendError{Op: op, Status: httpResp.StatusCode, Message: firstNonEmpty(envelope.Error, envelope.Message)}
	}

	return httpResp.StatusCode, nil
}

func normalizeBills(bills []models.Bill) []models.Bill {
	out := make([]models.Bill, len(bills))
	for i := range bills {
		b := bills[i]
		b.ApplyDefaults()
		b.NormalizeRisk()
		out[i] = b
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
