package offers

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func testProducts() []domain.OfferProduct {
	return []domain.OfferProduct{
		{
			ID:                 "PROD-A",
			Name:               "Working Capital",
			BaseAnnualRate:     8.0,
			MaxTermMonths:      60,
			MaxInitialLimit:    300000,
			MinRiskScore:       600,
			RequiredCollateral: domain.CollateralNone,
		},
		{
			ID:                 "PROD-B",
			Name:               "Rural Credit",
			BaseAnnualRate:     7.5,
			MaxTermMonths:      120,
			MaxInitialLimit:    500000,
			MinRiskScore:       650,
			RequiredCollateral: domain.CollateralRural,
		},
	}
}

func testClient() domain.ClientProfile {
	return domain.ClientProfile{
		ID:                "CLI-001",
		Age:               45,
		RiskScore:         800,
		RelationshipYears: 12,
		InvestmentBalance: 250000,
		OwnsRuralProperty: true,
		FinancingNeed:     100000,
	}
}

func newTestEngine(t *testing.T, products []domain.OfferProduct, clients []domain.ClientProfile) *Engine {
	t.Helper()
	engine, err := NewEngine(NewCatalog(products, clients))
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return engine
}

func TestDeniedWhenScoreBelowAllProducts(t *testing.T) {
	engine := newTestEngine(t, testProducts(), nil)

	client := testClient()
	client.RiskScore = 100

	offer := engine.Generate(client)
	if offer.Status != domain.OfferDenied {
		t.Errorf("expected %s, got %s", domain.OfferDenied, offer.Status)
	}
	if offer.Product != "" || offer.ApprovedLimit != 0 {
		t.Errorf("denied offer should carry no product terms: %+v", offer)
	}
	if len(offer.Rationale) == 0 {
		t.Error("denied offer should explain why")
	}
}

func TestDeniedWhenCollateralMissing(t *testing.T) {
	products := []domain.OfferProduct{
		{
			ID:                 "PROD-R",
			Name:               "Rural Only",
			BaseAnnualRate:     7.0,
			MaxTermMonths:      60,
			MaxInitialLimit:    200000,
			MinRiskScore:       500,
			RequiredCollateral: domain.CollateralRural,
		},
	}
	engine := newTestEngine(t, products, nil)

	client := testClient()
	client.OwnsRuralProperty = false

	offer := engine.Generate(client)
	if offer.Status != domain.OfferDenied {
		t.Errorf("high score without required collateral should deny, got %s", offer.Status)
	}
}

func TestLowestRateWins(t *testing.T) {
	engine := newTestEngine(t, testProducts(), nil)

	offer := engine.Generate(testClient())
	if offer.Status != domain.OfferApproved {
		t.Fatalf("expected approval, got %s: %s", offer.Status, offer.Message)
	}
	if offer.Product != "Rural Credit" {
		t.Errorf("expected 7.5%% product to win over 8.0%%, got %q", offer.Product)
	}
}

func TestRateTieBreakUsesCatalogOrder(t *testing.T) {
	products := testProducts()
	products[1].BaseAnnualRate = 8.0
	engine := newTestEngine(t, products, nil)

	offer := engine.Generate(testClient())
	if offer.Product != "Working Capital" {
		t.Errorf("tie should keep first catalog entry, got %q", offer.Product)
	}
}

func TestBothRateBonusesApply(t *testing.T) {
	engine := newTestEngine(t, testProducts(), nil)

	client := testClient()
	client.RelationshipYears = 10
	client.InvestmentBalance = 200000

	offer := engine.Generate(client)
	if offer.Status != domain.OfferApproved {
		t.Fatalf("expected approval, got %s", offer.Status)
	}

	// Base 7.5 minus 0.5 loyalty minus 0.25 investment.
	if offer.AnnualRate != 6.75 {
		t.Errorf("expected rate 6.75, got %v", offer.AnnualRate)
	}
	if len(offer.Rationale) != 3 {
		t.Errorf("expected base plus two bonus entries, got %v", offer.Rationale)
	}
}

func TestNoBonusBelowThresholds(t *testing.T) {
	engine := newTestEngine(t, testProducts(), nil)

	client := testClient()
	client.RelationshipYears = 9
	client.InvestmentBalance = 199999.99

	offer := engine.Generate(client)
	if offer.AnnualRate != 7.5 {
		t.Errorf("expected base rate 7.5, got %v", offer.AnnualRate)
	}
	if len(offer.Rationale) != 1 {
		t.Errorf("expected only the base product entry, got %v", offer.Rationale)
	}
}

func TestLimitComputation(t *testing.T) {
	engine := newTestEngine(t, testProducts(), nil)

	tests := []struct {
		name      string
		score     int
		need      float64
		wantLimit float64
	}{
		// need*1.05 below both caps.
		{"need bound", 800, 100000, 105000},
		// risk-adjusted cap binds: 500000*0.5 = 250000.
		{"risk adjusted bound", 500, 400000, 250000},
		// negative need clamps to zero.
		{"zero floor", 800, -100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := testClient()
			client.RiskScore = tt.score
			client.FinancingNeed = tt.need

			offer := engine.Generate(client)
			if offer.Status != domain.OfferApproved {
				t.Fatalf("expected approval, got %s", offer.Status)
			}
			if math.Abs(offer.ApprovedLimit-tt.wantLimit) > 0.01 {
				t.Errorf("expected limit %v, got %v", tt.wantLimit, offer.ApprovedLimit)
			}
		})
	}
}

func TestTermComputation(t *testing.T) {
	engine := newTestEngine(t, testProducts(), nil)

	tests := []struct {
		name     string
		need     float64
		wantTerm int
	}{
		{"small need floors at 24", 15000, 24},
		{"mid need", 50000, 60},
		{"capped at product max", 500000, 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := testClient()
			client.FinancingNeed = tt.need

			offer := engine.Generate(client)
			if offer.TermMonths != tt.wantTerm {
				t.Errorf("need %v: expected term %d, got %d", tt.need, tt.wantTerm, offer.TermMonths)
			}
		})
	}
}

func TestGenerateForClient(t *testing.T) {
	base := testClient()
	base.FinancingNeed = 0
	engine := newTestEngine(t, testProducts(), []domain.ClientProfile{base})

	offer, err := engine.GenerateForClient("CLI-001", 100000)
	if err != nil {
		t.Fatalf("GenerateForClient failed: %v", err)
	}
	if offer.Status != domain.OfferApproved {
		t.Errorf("expected approval, got %s", offer.Status)
	}
	if math.Abs(offer.ApprovedLimit-105000) > 0.01 {
		t.Errorf("per-request need not applied, limit %v", offer.ApprovedLimit)
	}

	// The stored base profile is never mutated by a request.
	stored, err := engine.catalog.Client("CLI-001")
	if err != nil {
		t.Fatalf("Client lookup failed: %v", err)
	}
	if stored.FinancingNeed != 0 {
		t.Errorf("per-request need leaked into stored profile: %v", stored.FinancingNeed)
	}
}

func TestClientNotFound(t *testing.T) {
	engine := newTestEngine(t, testProducts(), nil)

	_, err := engine.GenerateForClient("CLI-404", 1000)
	if !errors.Is(err, domain.ErrClientNotFound) {
		t.Errorf("expected ErrClientNotFound, got %v", err)
	}
}

func TestCELEligibilityExpression(t *testing.T) {
	products := []domain.OfferProduct{
		{
			ID:              "PROD-CEL",
			Name:            "Premium Line",
			BaseAnnualRate:  6.0,
			MaxTermMonths:   60,
			MaxInitialLimit: 1000000,
			Eligibility:     "risk_score >= 700 && !delinquency_history && investment_balance >= 100000.0",
		},
	}
	engine := newTestEngine(t, products, nil)

	client := testClient()
	offer := engine.Generate(client)
	if offer.Status != domain.OfferApproved {
		t.Errorf("expression should approve client, got %s: %s", offer.Status, offer.Message)
	}

	client.DelinquencyHistory = true
	offer = engine.Generate(client)
	if offer.Status != domain.OfferDenied {
		t.Errorf("delinquent client should be denied by expression, got %s", offer.Status)
	}
}

func TestInvalidEligibilityRejectedAtLoad(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"syntax error", "risk_score >="},
		{"non-bool result", "risk_score + 1"},
		{"unknown variable", "credit_limit > 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			products := []domain.OfferProduct{{ID: "BAD", Name: "Bad", Eligibility: tt.expr}}
			if _, err := NewEngine(NewCatalog(products, nil)); err == nil {
				t.Error("expected compile error at load time")
			}
		})
	}
}

func TestRationaleMentionsProduct(t *testing.T) {
	engine := newTestEngine(t, testProducts(), nil)

	offer := engine.Generate(testClient())
	if len(offer.Rationale) == 0 || !strings.Contains(offer.Rationale[0], "Rural Credit") {
		t.Errorf("rationale should start with the selected product, got %v", offer.Rationale)
	}
}
