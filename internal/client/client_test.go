package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/koushikb/bill-intake/internal/models"
)

func newTestService(t *testing.T, handler http.HandlerFunc) (*Service, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewService(server.URL, 5*time.Second, zap.NewNop()), server
}

func decodeJSONBody(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func TestExtract_Success(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/process-invoice", r.URL.Path)

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "bill.png", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"success": true,
			"data": {
				"invoice_number": "INV-1",
				"vendor": "Acme",
				"amount": "100.00",
				"date": "15-01-2024",
				"item": "Paper",
				"short_description": "Supplies"
			},
			"raw_output": "{\"invoice_number\":\"INV-1\"}"
		}`))
	})

	result, err := svc.Extract(context.Background(), Upload{Filename: "bill.png", Content: []byte("fake image")})
	require.NoError(t, err)
	assert.Equal(t, "INV-1", result.Bill.InvoiceNumber)
	assert.Equal(t, "Acme", result.Bill.Vendor)
	assert.NotEmpty(t, result.RawOutput)
}

func TestExtract_AppliesDefaults(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": {"invoice_number": "INV-1"}}`))
	})

	result, err := svc.Extract(context.Background(), Upload{Filename: "bill.png", Content: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultVendor, result.Bill.Vendor)
	assert.Equal(t, models.DefaultAmount, result.Bill.Amount)
}

func TestExtract_BackendFailure(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success": false, "error": "OCR failed to extract JSON."}`))
	})

	_, err := svc.Extract(context.Background(), Upload{Filename: "bill.png", Content: []byte("x")})
	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "OCR failed to extract JSON.", backendErr.Message)
}

func TestExtract_MissingData(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true}`))
	})

	_, err := svc.Extract(context.Background(), Upload{Filename: "bill.png", Content: []byte("x")})
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestPolicyCheck_Decision(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/policy-check", r.URL.Path)

		var bill models.Bill
		require.NoError(t, decodeJSONBody(r, &bill))
		assert.Equal(t, "INV-1", bill.InvoiceNumber)

		w.Write([]byte(`{"success": true, "decision": "PASS: within limit"}`))
	})

	decision, err := svc.PolicyCheck(context.Background(), models.Bill{InvoiceNumber: "INV-1"})
	require.NoError(t, err)
	assert.Equal(t, "PASS: within limit", decision)
}

func TestPolicyCheck_ErrorStatusOverridesSuccessBody(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success": true, "decision": "PASS: within limit"}`))
	})

	_, err := svc.PolicyCheck(context.Background(), models.Bill{})
	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr, "a 500 is an error regardless of the body")
	assert.Equal(t, http.StatusInternalServerError, backendErr.Status)
}

func TestSave_ErrorStatusOverridesSuccessBody(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"success": true, "bill_id": "b1", "error": "upstream store unavailable"}`))
	})

	_, err := svc.Save(context.Background(), models.Bill{})
	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, http.StatusBadGateway, backendErr.Status)
	assert.Equal(t, "upstream store unavailable", backendErr.Message)
}

func TestSave_NotDuplicate(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/save-bill", r.URL.Path)
		w.Write([]byte(`{"success": true, "duplicate": false, "bill_id": "b1"}`))
	})

	result, err := svc.Save(context.Background(), models.Bill{InvoiceNumber: "INV-1"})
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, "b1", result.BillID)
}

func TestSave_DuplicateFlag(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "duplicate": true}`))
	})

	result, err := svc.Save(context.Background(), models.Bill{})
	require.NoError(t, err, "a duplicate is an expected outcome, not an error")
	assert.True(t, result.Duplicate)
}

func TestSave_DuplicateOnErrorStatus(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"success": false, "duplicate": true, "error": "This bill is a duplicate and cannot be saved."}`))
	})

	result, err := svc.Save(context.Background(), models.Bill{})
	require.NoError(t, err, "a duplicate stays an expected outcome even on a 409")
	assert.True(t, result.Duplicate)
}

func TestSave_LegacyDuplicateErrorString(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "error": "This bill is a duplicate and cannot be saved."}`))
	})

	result, err := svc.Save(context.Background(), models.Bill{})
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
}

func TestSave_GenuineFailure(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "error": "No invoice data provided"}`))
	})

	_, err := svc.Save(context.Background(), models.Bill{})
	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "No invoice data provided", backendErr.Message)
}

func TestList_Success(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/bills/json", r.URL.Path)
		w.Write([]byte(`{"success": true, "bills": [
			{"invoice_number": "INV-1", "vendor": "Acme", "amount": "100.00", "date": "15-01-2024", "item": "Paper", "short_description": "Supplies"},
			{"invoice_number": "INV-2"}
		], "count": 2}`))
	})

	bills, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, bills, 2)
	assert.Equal(t, "Acme", bills[0].Vendor)
	assert.Equal(t, models.DefaultVendor, bills[1].Vendor, "list entries get display defaults")
}

func TestList_MalformedPayloadYieldsEmpty(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>oops</html>"},
		{"success false", `{"success": false}`},
		{"missing bills", `{"success": true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})

			bills, err := svc.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, bills)
		})
	}
}

func TestList_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	svc := NewService(server.URL, time.Second, zap.NewNop())
	server.Close()

	_, err := svc.List(context.Background())
	assert.True(t, IsNetworkError(err))
}

func TestRiskScore_ReturnsFullList(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/get-risk-score", r.URL.Path)

		var req struct {
			Bill models.Bill `json:"bill"`
		}
		require.NoError(t, decodeJSONBody(r, &req))
		assert.Equal(t, "INV-1", req.Bill.InvoiceNumber)

		w.Write([]byte(`{"success": true, "bills": [
			{"invoice_number": "INV-1", "vendor": "Acme", "risk_score": 72, "risk_reason": "amount above vendor norm"},
			{"invoice_number": "INV-2", "vendor": "Globex", "risk_score": 15}
		]}`))
	})

	bills, err := svc.RiskScore(context.Background(), models.Bill{InvoiceNumber: "INV-1"})
	require.NoError(t, err)
	require.Len(t, bills, 2)

	require.NotNil(t, bills[0].RiskScore)
	assert.Equal(t, 72, *bills[0].RiskScore)

	// A half-populated risk pair is dropped so the invariant holds
	assert.Nil(t, bills[1].RiskScore)
	assert.Nil(t, bills[1].RiskReason)
}

func TestRiskScore_BackendFailure(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "error": "model unavailable"}`))
	})

	_, err := svc.RiskScore(context.Background(), models.Bill{})
	var backendErr *BackendError
	assert.ErrorAs(t, err, &backendErr)
}
