package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

func TestThresholdBoundary(t *testing.T) {
	tests := []struct {
		name        string
		probability float64
		approved    bool
	}{
		{"WellBelow", 0.1, false},
		{"JustBelow", 0.4999, false},
		{"ExactlyAtThreshold", 0.5, true}, // closed boundary: 0.5 approves
		{"JustAbove", 0.5001, true},
		{"WellAbove", 0.95, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(scoring.Fixed(tt.probability), 0)
			d, err := p.Decide(context.Background(), domain.FeatureVector{})
			if err != nil {
				t.Fatalf("Decide failed: %v", err)
			}
			if d.Approved != tt.approved {
				t.Errorf("probability %v: approved = %v, want %v", tt.probability, d.Approved, tt.approved)
			}
			if d.Probability != tt.probability {
				t.Errorf("expected probability %v, got %v", tt.probability, d.Probability)
			}
		})
	}
}

func TestApprovedMatchesThresholdInvariant(t *testing.T) {
	p := New(scoring.Fixed(0), domain.DefaultApprovalThreshold)
	for _, prob := range []float64{0, 0.25, 0.4999, 0.5, 0.62, 0.99, 1} {
		p.scorer = scoring.Fixed(prob)
		d, err := p.Decide(context.Background(), domain.FeatureVector{})
		if err != nil {
			t.Fatalf("Decide(%v) failed: %v", prob, err)
		}
		if d.Approved != (d.Probability >= p.Threshold) {
			t.Errorf("invariant violated at %v: approved=%v", prob, d.Approved)
		}
	}
}

func TestConfigurableThreshold(t *testing.T) {
	p := New(scoring.Fixed(0.62), 0.7)
	d, err := p.Decide(context.Background(), domain.FeatureVector{})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if d.Approved {
		t.Error("expected denial with threshold 0.7 and score 0.62")
	}
}

func TestScoringFailurePropagates(t *testing.T) {
	failing := domain.ScorerFunc(func(ctx context.Context, _ domain.FeatureVector) (float64, error) {
		return 0, errors.New("malformed feature shape")
	})

	p := New(failing, 0)
	_, err := p.Decide(context.Background(), domain.FeatureVector{})
	if !errors.Is(err, domain.ErrScoringFailure) {
		t.Errorf("expected ErrScoringFailure, got %v", err)
	}
}

func TestOutOfRangeProbabilityIsFailure(t *testing.T) {
	p := New(scoring.Fixed(1.5), 0)
	_, err := p.Decide(context.Background(), domain.FeatureVector{})
	if !errors.Is(err, domain.ErrScoringFailure) {
		t.Errorf("expected ErrScoringFailure for out-of-range probability, got %v", err)
	}
}
