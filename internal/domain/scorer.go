package domain

import "context"

// Scorer maps a feature vector to an approval probability in [0,1].
// Implementations wrap pre-trained artifacts; Kestrel consumes them as
// opaque scoring functions and never trains or updates them.
type Scorer interface {
	Score(ctx context.Context, features FeatureVector) (float64, error)
}

// ScorerFunc adapts a plain function to the Scorer interface.
type ScorerFunc func(ctx context.Context, features FeatureVector) (float64, error)

// Score implements Scorer.
func (f ScorerFunc) Score(ctx context.Context, features FeatureVector) (float64, error) {
	return f(ctx, features)
}
