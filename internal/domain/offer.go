package domain

// Collateral requirement values used by the product catalog.
const (
	CollateralNone  = "none"
	CollateralRural = "rural property"
)

// OfferProduct is one entry of the static credit product catalog.
// Loaded once at startup and read-only thereafter.
type OfferProduct struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	BaseAnnualRate     float64 `json:"baseAnnualRate"`
	MaxTermMonths      int     `json:"maxTermMonths"`
	MaxInitialLimit    float64 `json:"maxInitialLimit"`
	MinRiskScore       int     `json:"minRiskScoreRequired"`
	RequiredCollateral string  `json:"requiredCollateralType"`

	// Eligibility optionally replaces the built-in score/collateral check
	// with a CEL expression over the client profile. Compiled at load time.
	Eligibility string `json:"eligibility,omitempty"`
}

// ClientProfile is one entry of the simulated client base.
// FinancingNeed is overridden per request via WithFinancingNeed; the stored
// base record is never mutated.
type ClientProfile struct {
	ID                 string  `json:"id"`
	Age                int     `json:"age"`
	RiskScore          int     `json:"internalRiskScore"`
	RelationshipYears  int     `json:"relationshipYears"`
	InvestmentBalance  float64 `json:"totalInvestmentBalance"`
	OwnsRuralProperty  bool    `json:"ownsRuralProperty"`
	DelinquencyHistory bool    `json:"hasDelinquencyHistory"`
	FinancingNeed      float64 `json:"financingNeed"`
}

// WithFinancingNeed returns a copy of the profile with the per-request
// financing need applied.
func (c ClientProfile) WithFinancingNeed(need float64) ClientProfile {
	c.FinancingNeed = need
	return c
}

// Offer statuses.
const (
	OfferApproved = "APROVADO"
	OfferDenied   = "NEGADO"
)

// Offer is the outcome of the rule-based offer engine.
type Offer struct {
	Status        string   `json:"status"`
	Message       string   `json:"message"`
	Product       string   `json:"product,omitempty"`
	AnnualRate    float64  `json:"rate,omitempty"`
	ApprovedLimit float64  `json:"limit,omitempty"`
	TermMonths    int      `json:"term,omitempty"`
	Rationale     []string `json:"rationale,omitempty"`
}
