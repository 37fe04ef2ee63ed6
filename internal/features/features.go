// Package features derives the fixed feature vector from raw applicant fields.
package features

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Build derives the feature vector for an applicant. Pure and deterministic;
// the only failure modes are a liquidity value outside the known tiers and
// out-of-range numeric fields.
//
// The +1 bias in the ratio denominators keeps the derivations finite at
// requestedAmount=0 and age=0. It must match the values the model was
// trained on, so it is not a tunable.
func Build(in domain.ApplicantInput) (domain.FeatureVector, error) {
	if err := Validate(in); err != nil {
		return domain.FeatureVector{}, err
	}

	liquidityScore, ok := in.CollateralLiquidity.Score()
	if !ok {
		return domain.FeatureVector{}, fmt.Errorf("%w: %q", domain.ErrInvalidLiquidity, in.CollateralLiquidity)
	}

	ratio := in.CollateralValue / (in.RequestedAmount + 1)

	return domain.FeatureVector{
		MonthlyIncome:           in.Income,
		Age:                     float64(in.Age),
		RequestedAmount:         in.RequestedAmount,
		CollateralValue:         in.CollateralValue,
		CollateralToCreditRatio: ratio,
		LiquidityScore:          liquidityScore,
		IncomePerAge:            in.Income / (float64(in.Age) + 1),
		WeightedCollateral:      ratio * liquidityScore,
	}, nil
}

// Validate rejects applicant fields outside physically sensible ranges
// before any scoring happens.
func Validate(in domain.ApplicantInput) error {
	if in.Income <= 0 {
		return fmt.Errorf("%w: income must be positive", domain.ErrInvalidInput)
	}
	if in.Age <= 0 {
		return fmt.Errorf("%w: age must be positive", domain.ErrInvalidInput)
	}
	if in.RequestedAmount <= 0 {
		return fmt.Errorf("%w: requestedAmount must be positive", domain.ErrInvalidInput)
	}
	if in.CollateralValue < 0 {
		return fmt.Errorf("%w: collateralValue must not be negative", domain.ErrInvalidInput)
	}
	if _, ok := in.CollateralLiquidity.Score(); !ok {
		return fmt.Errorf("%w: %q", domain.ErrInvalidLiquidity, in.CollateralLiquidity)
	}
	return nil
}
