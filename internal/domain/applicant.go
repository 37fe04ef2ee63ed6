// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"math"
	"time"
)

// Liquidity is the categorical saleability tier of the offered collateral.
type Liquidity string

const (
	LiquidityLow    Liquidity = "low"
	LiquidityMedium Liquidity = "medium"
	LiquidityHigh   Liquidity = "high"
)

// Score maps the liquidity tier to its ordinal score.
// Returns false for values outside the known tiers.
func (l Liquidity) Score() (float64, bool) {
	switch l {
	case LiquidityLow:
		return 1, true
	case LiquidityMedium:
		return 2, true
	case LiquidityHigh:
		return 3, true
	default:
		return 0, false
	}
}

// ApplicantInput holds the raw applicant attributes for a credit simulation.
type ApplicantInput struct {
	Income              float64   `json:"income"`
	Age                 int       `json:"age"`
	RequestedAmount     float64   `json:"requestedAmount"`
	CollateralValue     float64   `json:"collateralValue"`
	CollateralLiquidity Liquidity `json:"collateralLiquidity"`
}

// FeatureVector is the fixed feature set consumed by the scoring model.
// Derived once per request and never mutated afterwards.
type FeatureVector struct {
	MonthlyIncome           float64 `json:"monthlyIncome"`
	Age                     float64 `json:"age"`
	RequestedAmount         float64 `json:"requestedAmount"`
	CollateralValue         float64 `json:"collateralValue"`
	CollateralToCreditRatio float64 `json:"collateralToCreditRatio"`
	LiquidityScore          float64 `json:"liquidityScore"`
	IncomePerAge            float64 `json:"incomePerAge"`
	WeightedCollateral      float64 `json:"weightedCollateral"`
}

// FeatureCount is the number of features in a FeatureVector.
const FeatureCount = 8

// FeatureNames returns the feature names in canonical column order.
func FeatureNames() []string {
	return []string{
		"monthlyIncome",
		"age",
		"requestedAmount",
		"collateralValue",
		"collateralToCreditRatio",
		"liquidityScore",
		"incomePerAge",
		"weightedCollateral",
	}
}

// Values returns the feature values in canonical column order.
func (v FeatureVector) Values() []float64 {
	return []float64{
		v.MonthlyIncome,
		v.Age,
		v.RequestedAmount,
		v.CollateralValue,
		v.CollateralToCreditRatio,
		v.LiquidityScore,
		v.IncomePerAge,
		v.WeightedCollateral,
	}
}

// VectorFromValues rebuilds a FeatureVector from values in canonical order.
// Extra values are ignored; missing values stay zero.
func VectorFromValues(vals []float64) FeatureVector {
	var v FeatureVector
	fields := []*float64{
		&v.MonthlyIncome,
		&v.Age,
		&v.RequestedAmount,
		&v.CollateralValue,
		&v.CollateralToCreditRatio,
		&v.LiquidityScore,
		&v.IncomePerAge,
		&v.WeightedCollateral,
	}
	for i, f := range fields {
		if i < len(vals) {
			*f = vals[i]
		}
	}
	return v
}

// Decision is the outcome of a single credit simulation.
// Assembled once per request; never updated in place.
type Decision struct {
	Probability float64           `json:"approvalProbability"`
	Approved    bool              `json:"approved"`
	Rationale   *ImportanceReport `json:"rationale,omitempty"`
	Message     string            `json:"message,omitempty"`
}

// FeatureImportance is one entry of a permutation-importance report.
type FeatureImportance struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

// ImportanceReport ranks features by their contribution to the decision,
// restricted to the top entries by magnitude, ordered descending.
type ImportanceReport struct {
	Importances []FeatureImportance `json:"importances"`
	Samples     int                 `json:"samples"`
	Degenerate  bool                `json:"degenerate,omitempty"`
}

// Approval labels stored in the history log.
const (
	LabelApproved = "Sim"
	LabelDenied   = "Não"
)

// HistoryRecord is one row of the append-only simulation log.
type HistoryRecord struct {
	ID                  int64     `json:"-"`
	Timestamp           time.Time `json:"timestamp"`
	Income              float64   `json:"income"`
	Age                 int       `json:"age"`
	RequestedAmount     float64   `json:"requestedAmount"`
	CollateralValue     float64   `json:"collateralValue"`
	CollateralLiquidity Liquidity `json:"collateralLiquidity"`

	// Probability is rounded to 4 decimals; nil when the stored value was
	// non-finite, so consumers see null instead of NaN or Inf.
	Probability *float64 `json:"approvalProbability"`
	Approved    string   `json:"approved"`
	Message     string   `json:"message,omitempty"`
}

// NewHistoryRecord builds a log row from an applicant and its decision.
func NewHistoryRecord(in ApplicantInput, d Decision, now time.Time) *HistoryRecord {
	label := LabelDenied
	if d.Approved {
		label = LabelApproved
	}

	rec := &HistoryRecord{
		Timestamp:           now.UTC(),
		Income:              in.Income,
		Age:                 in.Age,
		RequestedAmount:     in.RequestedAmount,
		CollateralValue:     in.CollateralValue,
		CollateralLiquidity: in.CollateralLiquidity,
		Approved:            label,
		Message:             d.Message,
	}

	if !math.IsNaN(d.Probability) && !math.IsInf(d.Probability, 0) {
		p := math.Round(d.Probability*10000) / 10000
		rec.Probability = &p
	}

	return rec
}
