package offers

import (
	"fmt"
	"math"

	"github.com/google/cel-go/cel"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Rate bonus and term constants.
const (
	loyaltyYears     = 10
	loyaltyBonus     = 0.5
	investmentFloor  = 200000.0
	investmentBonus  = 0.25
	needHeadroom     = 1.05
	minTermMonths    = 24
	termBlockAmount  = 10000.0
	termBlockMonths  = 12
	riskScoreCeiling = 1000.0
)

// Engine generates credit offers from the static catalog. Each request is
// evaluated independently; the engine carries no per-request state.
type Engine struct {
	catalog  *Catalog
	programs map[string]cel.Program
}

// NewEngine builds an offer engine, compiling any catalog eligibility
// expressions up front. An invalid expression fails the load rather than
// a request.
func NewEngine(catalog *Catalog) (*Engine, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}

	programs := make(map[string]cel.Program)

	var env *cel.Env
	for _, p := range catalog.Products {
		if p.Eligibility == "" {
			continue
		}
		if env == nil {
			var err error
			env, err = eligibilityEnv()
			if err != nil {
				return nil, fmt.Errorf("failed to create eligibility environment: %w", err)
			}
		}
		program, err := compileEligibility(env, p.ID, p.Eligibility)
		if err != nil {
			return nil, err
		}
		programs[p.ID] = program
	}

	return &Engine{catalog: catalog, programs: programs}, nil
}

// GenerateForClient looks up a profile, applies the per-request financing
// need and generates the best offer.
func (e *Engine) GenerateForClient(clientID string, financingNeed float64) (*domain.Offer, error) {
	base, err := e.catalog.Client(clientID)
	if err != nil {
		return nil, err
	}
	offer := e.Generate(base.WithFinancingNeed(financingNeed))
	return &offer, nil
}

// Client exposes the underlying profile lookup.
func (e *Engine) Client(id string) (domain.ClientProfile, error) {
	return e.catalog.Client(id)
}

// Generate is the pure decision procedure: eligibility filter, minimum-rate
// selection, then limit, rate and term computation.
func (e *Engine) Generate(client domain.ClientProfile) domain.Offer {
	var eligible []domain.OfferProduct
	for _, p := range e.catalog.Products {
		if e.isEligible(client, p) {
			eligible = append(eligible, p)
		}
	}

	if len(eligible) == 0 {
		return domain.Offer{
			Status:    domain.OfferDenied,
			Message:   "client does not meet the score and/or collateral requirements for any product",
			Rationale: []string{"insufficient risk score or missing required collateral"},
		}
	}

	// Lowest base rate wins. Strict less-than keeps the first catalog
	// entry on a tie, which makes the choice deterministic.
	best := eligible[0]
	for _, p := range eligible[1:] {
		if p.BaseAnnualRate < best.BaseAnnualRate {
			best = p
		}
	}

	riskAdjustment := float64(client.RiskScore) / riskScoreCeiling
	limitAdjusted := best.MaxInitialLimit * riskAdjustment
	approvedLimit := math.Min(client.FinancingNeed*needHeadroom,
		math.Min(best.MaxInitialLimit, limitAdjusted))
	approvedLimit = math.Max(0, approvedLimit)

	rate := best.BaseAnnualRate
	rationale := []string{fmt.Sprintf("base product: %s (%.2f%% p.a.)", best.Name, rate)}

	if client.RelationshipYears >= loyaltyYears {
		rate -= loyaltyBonus
		rationale = append(rationale, fmt.Sprintf("loyalty bonus (-%.2f p.p.)", loyaltyBonus))
	}
	if client.InvestmentBalance >= investmentFloor {
		rate -= investmentBonus
		rationale = append(rationale, fmt.Sprintf("investment bonus (-%.2f p.p.)", investmentBonus))
	}

	term := int(client.FinancingNeed/termBlockAmount) * termBlockMonths
	if term > best.MaxTermMonths {
		term = best.MaxTermMonths
	}
	if term < minTermMonths {
		term = minTermMonths
	}

	return domain.Offer{
		Status:        domain.OfferApproved,
		Message:       "optimized offer generated",
		Product:       best.Name,
		AnnualRate:    round2(rate),
		ApprovedLimit: round2(approvedLimit),
		TermMonths:    term,
		Rationale:     rationale,
	}
}

// isEligible applies either the product's compiled eligibility expression
// or the built-in score and collateral check.
func (e *Engine) isEligible(client domain.ClientProfile, p domain.OfferProduct) bool {
	if program, ok := e.programs[p.ID]; ok {
		return evalEligibility(program, client)
	}

	if client.RiskScore < p.MinRiskScore {
		return false
	}
	switch p.RequiredCollateral {
	case domain.CollateralNone:
		return true
	case domain.CollateralRural:
		return client.OwnsRuralProperty
	default:
		return false
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
