//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel credit decision engine.
//
// These tests verify the COMPLETE decision pipeline:
//
//	Applicant → Features → Score → Decision → Explanation → History
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. APPLICANT: A credit application with income, age, requested amount,
//    and offered collateral (value + liquidity tier).
//
// 2. SCORE: The model's approval probability (0.0 to 1.0). A probability
//    at or above the threshold (default 0.5) approves.
//
// 3. EXPLANATION: Per-feature importance weights computed by permuting
//    each feature against reference samples from the decision history.
//
// 4. HISTORY: Every valid decision is recorded; invalid input is not.
//
// 5. OFFER: A separate commercial flow that matches a registered client
//    against the product catalog (requires seeded data/clients.json).
//
// The tests require a running server with a loaded model:
//
//	go run cmd/kestrel/main.go
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{BaseURL: baseURL}
}

// ============================================================================
// API Request/Response Types (matching Kestrel's API contract)
// ============================================================================

// PredictRequest is the applicant sent to POST /predict
type PredictRequest struct {
	Income              float64 `json:"income"`
	Age                 int     `json:"age"`
	RequestedAmount     float64 `json:"requestedAmount"`
	CollateralValue     float64 `json:"collateralValue"`
	CollateralLiquidity string  `json:"collateralLiquidity"`
}

// PredictResponse is what POST /predict returns
type PredictResponse struct {
	Approved        string           `json:"approved"` // "Sim" or "Não"
	Probability     float64          `json:"approvalProbability"`
	Rationale       *Rationale       `json:"rationale,omitempty"`
	ExplanationHTML string           `json:"explanationHtml,omitempty"`
	Message         string           `json:"message,omitempty"`
	Metadata        ResponseMetadata `json:"metadata"`
}

type Rationale struct {
	Importances []struct {
		Feature string  `json:"feature"`
		Weight  float64 `json:"weight"`
	} `json:"importances"`
	Samples    int  `json:"samples"`
	Degenerate bool `json:"degenerate,omitempty"`
}

type ResponseMetadata struct {
	TraceID string `json:"traceId"`
	TotalMs int64  `json:"totalMs"`
	Version string `json:"version"`
}

type HistoryResponse struct {
	Count   int `json:"count"`
	Records []struct {
		Approved string `json:"approved"`
	} `json:"records"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func predict(t *testing.T, config TestConfig, req PredictRequest) PredictResponse {
	t.Helper()

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	httpReq, err := http.NewRequest("POST", config.BaseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(respBody))
	}

	var result PredictResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
	}

	return result
}

func postJSON(t *testing.T, config TestConfig, path string, payload any) *http.Response {
	t.Helper()

	body, _ := json.Marshal(payload)
	httpReq, _ := http.NewRequest("POST", config.BaseURL+path, bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}

func clearHistory(t *testing.T, config TestConfig) {
	t.Helper()
	resp := postJSON(t, config, "/history/clear", map[string]any{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Failed to clear history: status %d", resp.StatusCode)
	}
}

func getHistory(t *testing.T, config TestConfig) HistoryResponse {
	t.Helper()

	resp, err := http.Get(config.BaseURL + "/history")
	if err != nil {
		t.Fatalf("History request failed: %v", err)
	}
	defer resp.Body.Close()

	var result HistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode history: %v", err)
	}
	return result
}

// ============================================================================
// SCENARIO 1: Strong Applicant (Full Pipeline)
// ============================================================================

func TestStrongApplicant_FullPipeline(t *testing.T) {
	/*
	   SCENARIO: A well-qualified applicant with high income and liquid
	   collateral worth more than the requested credit.

	   WHAT WE'RE TESTING:
	   - The decision is internally consistent: approved == (probability >= 0.5)
	   - A human-readable message accompanies the decision
	   - The decision lands in the history log
	*/
	config := getTestConfig()
	clearHistory(t, config)

	req := PredictRequest{
		Income:              12000,
		Age:                 40,
		RequestedAmount:     50000,
		CollateralValue:     120000,
		CollateralLiquidity: "high",
	}

	result := predict(t, config, req)

	// ASSERTIONS
	if result.Probability < 0 || result.Probability > 1 {
		t.Errorf("Probability out of range: %.4f", result.Probability)
	}

	wantLabel := "Não"
	if result.Probability >= 0.5 {
		wantLabel = "Sim"
	}
	if result.Approved != wantLabel {
		t.Errorf("Decision inconsistent with probability %.4f: got %s, want %s",
			result.Probability, result.Approved, wantLabel)
	}

	if result.Message == "" {
		t.Error("Expected a decision message")
	}

	hist := getHistory(t, config)
	if hist.Count != 1 {
		t.Errorf("Expected 1 history record, got %d", hist.Count)
	}

	t.Logf("✓ Full pipeline: approved=%s, probability=%.4f", result.Approved, result.Probability)
}

// ============================================================================
// SCENARIO 2: Explanation Grows With History
// ============================================================================

func TestExplanation_UsesHistorySamples(t *testing.T) {
	/*
	   SCENARIO: Feature importances are computed by permuting features
	   against reference samples drawn from the decision history. With an
	   empty history there is nothing to permute against; after a few
	   decisions the rationale should carry non-trivial weights.

	   WHAT WE'RE TESTING:
	   - The rationale (when present) is ordered by magnitude
	   - The explanation never breaks the decision itself
	*/
	config := getTestConfig()
	clearHistory(t, config)

	// Seed a handful of varied decisions
	seeds := []PredictRequest{
		{Income: 3000, Age: 25, RequestedAmount: 80000, CollateralValue: 10000, CollateralLiquidity: "low"},
		{Income: 9000, Age: 45, RequestedAmount: 30000, CollateralValue: 90000, CollateralLiquidity: "high"},
		{Income: 5500, Age: 33, RequestedAmount: 60000, CollateralValue: 40000, CollateralLiquidity: "medium"},
		{Income: 15000, Age: 52, RequestedAmount: 20000, CollateralValue: 200000, CollateralLiquidity: "high"},
	}
	for _, s := range seeds {
		predict(t, config, s)
	}

	result := predict(t, config, PredictRequest{
		Income:              7000,
		Age:                 38,
		RequestedAmount:     45000,
		CollateralValue:     60000,
		CollateralLiquidity: "medium",
	})

	if result.Rationale == nil {
		t.Skip("No rationale returned (explanation is best-effort)")
	}

	abs := func(v float64) float64 {
		if v < 0 {
			return -v
		}
		return v
	}
	for i := 1; i < len(result.Rationale.Importances); i++ {
		prev := abs(result.Rationale.Importances[i-1].Weight)
		cur := abs(result.Rationale.Importances[i].Weight)
		if cur > prev+1e-9 {
			t.Errorf("Importances not ordered by magnitude at %d: %.4f after %.4f", i, cur, prev)
		}
	}
	if result.Rationale.Samples < 1 {
		t.Errorf("Expected at least one reference sample, got %d", result.Rationale.Samples)
	}

	t.Logf("✓ Rationale: samples=%d, degenerate=%v, features=%d",
		result.Rationale.Samples, result.Rationale.Degenerate, len(result.Rationale.Importances))
}

// ============================================================================
// SCENARIO 3: Input Validation (Never Logged)
// ============================================================================

func TestInvalidInput_RejectedAndNotLogged(t *testing.T) {
	/*
	   SCENARIO: Out-of-range applicants must be rejected with HTTP 400
	   and must never appear in the decision history.
	*/
	config := getTestConfig()
	clearHistory(t, config)

	cases := []struct {
		name string
		req  PredictRequest
	}{
		{"negative income", PredictRequest{Income: -1, Age: 30, RequestedAmount: 1000, CollateralValue: 10, CollateralLiquidity: "low"}},
		{"age below minimum", PredictRequest{Income: 5000, Age: 17, RequestedAmount: 1000, CollateralValue: 10, CollateralLiquidity: "low"}},
		{"zero requested amount", PredictRequest{Income: 5000, Age: 30, RequestedAmount: 0, CollateralValue: 10, CollateralLiquidity: "low"}},
		{"unknown liquidity", PredictRequest{Income: 5000, Age: 30, RequestedAmount: 1000, CollateralValue: 10, CollateralLiquidity: "frozen"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, config, "/predict", tc.req)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", resp.StatusCode)
			}
		})
	}

	hist := getHistory(t, config)
	if hist.Count != 0 {
		t.Errorf("Invalid input must not be logged, history count = %d", hist.Count)
	}

	t.Logf("✓ Validation: all invalid inputs rejected, history stayed empty")
}

// ============================================================================
// SCENARIO 4: History Lifecycle and Summary
// ============================================================================

func TestHistoryLifecycle_SummaryAndClear(t *testing.T) {
	/*
	   SCENARIO: Record decisions, read the aggregated summary, clear,
	   verify the log is empty. Clearing twice must be idempotent.
	*/
	config := getTestConfig()
	clearHistory(t, config)

	for i := 0; i < 3; i++ {
		predict(t, config, PredictRequest{
			Income:              5000 + float64(i)*1000,
			Age:                 30 + i,
			RequestedAmount:     40000,
			CollateralValue:     50000,
			CollateralLiquidity: "medium",
		})
	}

	resp, err := http.Get(config.BaseURL + "/history/summary")
	if err != nil {
		t.Fatalf("Summary request failed: %v", err)
	}
	defer resp.Body.Close()

	var summary struct {
		TotalDecisions int     `json:"totalDecisions"`
		ApprovalRate   float64 `json:"approvalRate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("Failed to decode summary: %v", err)
	}
	if summary.TotalDecisions != 3 {
		t.Errorf("Expected 3 decisions in summary, got %d", summary.TotalDecisions)
	}
	if summary.ApprovalRate < 0 || summary.ApprovalRate > 100 {
		t.Errorf("Approval rate out of range: %.2f", summary.ApprovalRate)
	}

	clearHistory(t, config)
	clearHistory(t, config) // idempotent

	if hist := getHistory(t, config); hist.Count != 0 {
		t.Errorf("Expected empty history after clear, got %d", hist.Count)
	}

	t.Logf("✓ History lifecycle: 3 recorded, summarized, cleared")
}

// ============================================================================
// SCENARIO 5: XLSX Export
// ============================================================================

func TestExport_ReturnsSpreadsheet(t *testing.T) {
	config := getTestConfig()
	clearHistory(t, config)

	predict(t, config, PredictRequest{
		Income:              8000,
		Age:                 41,
		RequestedAmount:     25000,
		CollateralValue:     70000,
		CollateralLiquidity: "high",
	})

	resp, err := http.Get(config.BaseURL + "/history/export")
	if err != nil {
		t.Fatalf("Export request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from export, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("Unexpected export content type: %s", ct)
	}

	data, _ := io.ReadAll(resp.Body)
	if len(data) == 0 {
		t.Error("Export body is empty")
	}

	t.Logf("✓ Export: %d bytes of XLSX", len(data))
}

// ============================================================================
// SCENARIO 6: Commercial Offer Flow
// ============================================================================

func TestOfferFlow_KnownClient(t *testing.T) {
	/*
	   SCENARIO: Generate an offer for a client from the seeded catalog.

	   Set KESTREL_TEST_CLIENT to a client ID present in data/clients.json.
	   Skipped when unset because the outcome depends on deployment data.
	*/
	config := getTestConfig()

	clientID := os.Getenv("KESTREL_TEST_CLIENT")
	if clientID == "" {
		t.Skip("KESTREL_TEST_CLIENT not set")
	}

	resp := postJSON(t, config, "/offers/generate", map[string]any{
		"clientId":      clientID,
		"financingNeed": 100000,
		"creditPurpose": "working capital for inventory",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected 200 from offer generation, got %d: %s", resp.StatusCode, string(body))
	}

	var offer struct {
		Status        string  `json:"status"`
		TransactionID string  `json:"transactionId"`
		Limit         float64 `json:"limit"`
		ProposalText  string  `json:"proposalText"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&offer); err != nil {
		t.Fatalf("Failed to decode offer: %v", err)
	}

	if offer.Status != "APROVADO" && offer.Status != "NEGADO" {
		t.Errorf("Invalid offer status: %s", offer.Status)
	}
	if offer.TransactionID == "" {
		t.Error("Missing transactionId")
	}
	if offer.ProposalText == "" {
		t.Error("Missing proposalText (fallback template expected even without LLM)")
	}
	if offer.Status == "APROVADO" && offer.Limit <= 0 {
		t.Errorf("Approved offer with non-positive limit: %.2f", offer.Limit)
	}

	t.Logf("✓ Offer flow: client=%s status=%s limit=%.2f", clientID, offer.Status, offer.Limit)
}

func TestOfferFlow_UnknownClient(t *testing.T) {
	config := getTestConfig()

	resp := postJSON(t, config, "/offers/generate", map[string]any{
		"clientId":      fmt.Sprintf("NO-SUCH-CLIENT-%d", time.Now().UnixNano()),
		"financingNeed": 50000,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown client, got %d", resp.StatusCode)
	}

	t.Logf("✓ Unknown client rejected with HTTP %d", resp.StatusCode)
}

// ============================================================================
// SCENARIO 7: Response Metadata Verification
// ============================================================================

func TestResponseMetadata(t *testing.T) {
	/*
	   SCENARIO: Verify response includes all required metadata

	   This ensures the API contract is stable for clients.
	*/
	config := getTestConfig()

	result := predict(t, config, PredictRequest{
		Income:              6000,
		Age:                 35,
		RequestedAmount:     30000,
		CollateralValue:     45000,
		CollateralLiquidity: "medium",
	})

	if result.Approved != "Sim" && result.Approved != "Não" {
		t.Errorf("Invalid approved label: %s (expected Sim or Não)", result.Approved)
	}

	if result.Metadata.TraceID == "" {
		t.Error("Missing metadata.traceId")
	}

	// Note: TotalMs can be 0 for very fast operations (sub-millisecond)
	if result.Metadata.TotalMs < 0 {
		t.Error("Invalid metadata.totalMs (negative)")
	}

	if result.Metadata.Version == "" {
		t.Error("Missing metadata.version")
	}

	t.Logf("✓ Metadata complete: traceId=%s, totalMs=%d, version=%s",
		result.Metadata.TraceID, result.Metadata.TotalMs, result.Metadata.Version)
}
