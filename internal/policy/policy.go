// Package policy applies the approval threshold to model scores.
// It is the decision processor of the ML path: score in, verdict out.
package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Policy turns an approval probability into a verdict.
type Policy struct {
	scorer domain.Scorer

	// Threshold is the probability cutoff. A score exactly at the
	// threshold approves (closed boundary).
	Threshold float64
}

// New creates a decision policy over a scorer. A non-positive threshold
// falls back to the default cutoff.
func New(scorer domain.Scorer, threshold float64) *Policy {
	if threshold <= 0 || threshold > 1 {
		threshold = domain.DefaultApprovalThreshold
	}
	return &Policy{
		scorer:    scorer,
		Threshold: threshold,
	}
}

// Decide scores the feature vector and applies the threshold.
// A scoring failure is fatal to the request: it surfaces wrapped as
// ErrScoringFailure with no retry and no default verdict.
func (p *Policy) Decide(ctx context.Context, features domain.FeatureVector) (domain.Decision, error) {
	prob, err := p.scorer.Score(ctx, features)
	if err != nil {
		if errors.Is(err, domain.ErrScoringFailure) {
			return domain.Decision{}, err
		}
		return domain.Decision{}, fmt.Errorf("%w: %v", domain.ErrScoringFailure, err)
	}

	if prob < 0 || prob > 1 {
		return domain.Decision{}, fmt.Errorf("%w: probability %v outside [0,1]", domain.ErrScoringFailure, prob)
	}

	return domain.Decision{
		Probability: prob,
		Approved:    prob >= p.Threshold,
	}, nil
}
