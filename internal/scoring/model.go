// Package scoring loads the pre-trained classifier artifact and exposes it
// as an opaque scoring function. Training lives outside this service; the
// artifact is a JSON export of the fitted scaler and classifier weights.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Artifact is the serialized form of the pre-trained model: the feature
// order it was fitted on, the standard-scaler parameters, and the logistic
// coefficients.
type Artifact struct {
	Features  []string  `json:"features"`
	Mean      []float64 `json:"scalerMean"`
	Std       []float64 `json:"scalerStd"`
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

// Model scores feature vectors with a fitted scaler + logistic classifier.
// Loaded once at startup, immutable thereafter; safe for unsynchronized
// concurrent reads.
type Model struct {
	art Artifact
}

// Load reads and validates a model artifact from disk.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}

	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("failed to parse model artifact: %w", err)
	}

	return New(art)
}

// New validates an artifact and wraps it as a Model.
func New(art Artifact) (*Model, error) {
	want := domain.FeatureNames()
	if len(art.Features) != len(want) {
		return nil, fmt.Errorf("model artifact: expected %d features, got %d", len(want), len(art.Features))
	}
	for i, name := range want {
		if art.Features[i] != name {
			return nil, fmt.Errorf("model artifact: feature %d is %q, expected %q", i, art.Features[i], name)
		}
	}
	if len(art.Mean) != len(want) || len(art.Std) != len(want) || len(art.Weights) != len(want) {
		return nil, fmt.Errorf("model artifact: scaler/weight shape mismatch")
	}
	for i, std := range art.Std {
		if std <= 0 {
			return nil, fmt.Errorf("model artifact: scaler std for %q must be positive", want[i])
		}
	}

	return &Model{art: art}, nil
}

// Score maps a feature vector to an approval probability.
// A shape mismatch surfaces as ErrScoringFailure; there is no default
// decision and no retry.
func (m *Model) Score(ctx context.Context, features domain.FeatureVector) (float64, error) {
	vals := features.Values()
	if len(vals) != len(m.art.Weights) {
		return 0, fmt.Errorf("%w: feature vector has %d values, model expects %d",
			domain.ErrScoringFailure, len(vals), len(m.art.Weights))
	}

	z := m.art.Intercept
	for i, x := range vals {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("%w: non-finite value for feature %q",
				domain.ErrScoringFailure, m.art.Features[i])
		}
		z += m.art.Weights[i] * (x - m.art.Mean[i]) / m.art.Std[i]
	}

	return sigmoid(z), nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// Fixed returns a scorer that always yields the given probability.
// Useful for wiring and tests where the model artifact is irrelevant.
func Fixed(probability float64) domain.Scorer {
	return domain.ScorerFunc(func(ctx context.Context, _ domain.FeatureVector) (float64, error) {
		return probability, nil
	})
}
