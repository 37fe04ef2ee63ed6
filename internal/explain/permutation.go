// Package explain computes permutation-importance reports for decisions.
//
// Importance of a feature is measured as the drop in predictive accuracy
// over a labeled reference set when that feature's column is shuffled.
// Reference samples come from the accumulated history, with the stored
// approval label treated as the truth signal.
package explain

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
)

// Defaults match the original analysis setup: a fixed seed for
// reproducibility across calls and a report capped at 8 features.
const (
	defaultSeed   = 42
	defaultRounds = 5
	defaultTopN   = 8
)

// Engine computes feature-importance reports against a scorer.
type Engine struct {
	scorer    domain.Scorer
	threshold float64

	seed   int64
	rounds int
	topN   int
}

// NewEngine creates an explanation engine. The threshold is the same cutoff
// the decision policy uses to binarize scores.
func NewEngine(scorer domain.Scorer, threshold float64) *Engine {
	if threshold <= 0 || threshold > 1 {
		threshold = domain.DefaultApprovalThreshold
	}
	return &Engine{
		scorer:    scorer,
		threshold: threshold,
		seed:      defaultSeed,
		rounds:    defaultRounds,
		topN:      defaultTopN,
	}
}

// Sample is one labeled reference observation.
type Sample struct {
	Features domain.FeatureVector
	Approved bool
}

// SamplesFromHistory rebuilds labeled samples from history records.
// Records whose fields no longer produce a valid feature vector are
// skipped rather than failing the whole set.
func SamplesFromHistory(recs []*domain.HistoryRecord) []Sample {
	samples := make([]Sample, 0, len(recs))
	for _, rec := range recs {
		fv, err := features.Build(domain.ApplicantInput{
			Income:              rec.Income,
			Age:                 rec.Age,
			RequestedAmount:     rec.RequestedAmount,
			CollateralValue:     rec.CollateralValue,
			CollateralLiquidity: rec.CollateralLiquidity,
		})
		if err != nil {
			continue
		}
		samples = append(samples, Sample{
			Features: fv,
			Approved: rec.Approved == domain.LabelApproved,
		})
	}
	return samples
}

// Explain computes the importance report for the current decision.
//
// With fewer than 2 reference samples it falls back to the single current
// (features, label) observation. The resulting numbers are statistically
// meaningless but the call must not fail on an empty history; the report is
// marked Degenerate so consumers can tell.
//
// Any internal failure is caught at this boundary and surfaced as
// ErrExplanationUnavailable; the decision itself is unaffected.
func (e *Engine) Explain(ctx context.Context, current domain.FeatureVector, approved bool, refs []Sample) (report *domain.ImportanceReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			report = nil
			err = fmt.Errorf("%w: %v", domain.ErrExplanationUnavailable, r)
		}
	}()

	degenerate := false
	if len(refs) < 2 {
		refs = []Sample{{Features: current, Approved: approved}}
		degenerate = true
	}

	rows := make([][]float64, len(refs))
	labels := make([]bool, len(refs))
	for i, s := range refs {
		rows[i] = s.Features.Values()
		labels[i] = s.Approved
	}

	baseline, err := e.accuracy(ctx, rows, labels)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExplanationUnavailable, err)
	}

	rng := rand.New(rand.NewSource(e.seed))
	names := domain.FeatureNames()
	importances := make([]domain.FeatureImportance, len(names))

	for j := range names {
		var degradation float64
		for r := 0; r < e.rounds; r++ {
			permuted := permuteColumn(rows, j, rng)
			acc, err := e.accuracy(ctx, permuted, labels)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrExplanationUnavailable, err)
			}
			degradation += baseline - acc
		}
		importances[j] = domain.FeatureImportance{
			Feature: names[j],
			Weight:  degradation / float64(e.rounds),
		}
	}

	sort.SliceStable(importances, func(a, b int) bool {
		return abs(importances[a].Weight) > abs(importances[b].Weight)
	})
	if len(importances) > e.topN {
		importances = importances[:e.topN]
	}

	return &domain.ImportanceReport{
		Importances: importances,
		Samples:     len(refs),
		Degenerate:  degenerate,
	}, nil
}

// accuracy scores every row and compares the thresholded prediction with
// its label.
func (e *Engine) accuracy(ctx context.Context, rows [][]float64, labels []bool) (float64, error) {
	if len(rows) == 0 {
		return 0, fmt.Errorf("no samples")
	}

	correct := 0
	for i, row := range rows {
		prob, err := e.scorer.Score(ctx, domain.VectorFromValues(row))
		if err != nil {
			return 0, err
		}
		if (prob >= e.threshold) == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(rows)), nil
}

// permuteColumn returns a copy of the matrix with column j shuffled.
func permuteColumn(rows [][]float64, j int, rng *rand.Rand) [][]float64 {
	col := make([]float64, len(rows))
	for i, row := range rows {
		col[i] = row[j]
	}
	rng.Shuffle(len(col), func(a, b int) {
		col[a], col[b] = col[b], col[a]
	})

	out := make([][]float64, len(rows))
	for i, row := range rows {
		cp := make([]float64, len(row))
		copy(cp, row)
		cp[j] = col[i]
		out[i] = cp
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
