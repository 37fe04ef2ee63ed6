// Package stats aggregates the decision history into the dashboard
// summary: headline KPIs, liquidity and income breakdowns and credit
// bands.
package stats

import (
	"context"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Credit band boundaries in requested-amount currency units.
var creditBands = []struct {
	Label string
	Upper float64
}{
	{"0-50k", 50000},
	{"50k-150k", 150000},
	{"150k-300k", 300000},
	{"300k-500k", 500000},
	{">500k", math.Inf(1)},
}

// Number of income histogram buckets.
const incomeBuckets = 10

// RecentLimit bounds the inlined recent-decision list.
const RecentLimit = 10

// Summary is the aggregated view of the decision history.
// ByLiquidity holds the approval rate per collateral liquidity tier, as a
// percentage of that tier's decisions.
type Summary struct {
	TotalDecisions  int                     `json:"totalDecisions"`
	ApprovalRate    float64                 `json:"approvalRatePct"`
	MeanProbability float64                 `json:"meanProbabilityPct"`
	ByLiquidity     map[string]float64      `json:"approvalRateByLiquidityPct"`
	IncomeHistogram []HistogramBucket       `json:"incomeHistogram"`
	CreditBands     []CreditBand            `json:"creditBands"`
	Recent          []*domain.HistoryRecord `json:"recent"`
}

// HistogramBucket is one income histogram bar.
type HistogramBucket struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// CreditBand is one requested-amount band: its record count and the mean
// approval probability across them. Records with no stored probability are
// excluded from the mean, never treated as zero.
type CreditBand struct {
	Label           string  `json:"label"`
	Count           int     `json:"count"`
	MeanProbability float64 `json:"meanProbabilityPct"`
}

// Aggregator computes summaries from the history store.
type Aggregator struct {
	store domain.HistoryStore
}

// NewAggregator creates an aggregator over a history store.
func NewAggregator(store domain.HistoryStore) *Aggregator {
	return &Aggregator{store: store}
}

// Summarize reads the full history and aggregates it. An empty history
// yields a zero-valued summary, not an error.
func (a *Aggregator) Summarize(ctx context.Context) (*Summary, error) {
	records, err := a.store.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	return Compute(records), nil
}

// Compute aggregates an in-memory record slice. Pure.
func Compute(records []*domain.HistoryRecord) *Summary {
	s := &Summary{
		TotalDecisions: len(records),
		ByLiquidity:    make(map[string]float64),
		CreditBands:    make([]CreditBand, len(creditBands)),
		Recent:         recentRecords(records),
	}
	for i, band := range creditBands {
		s.CreditBands[i].Label = band.Label
	}

	if len(records) == 0 {
		s.IncomeHistogram = []HistogramBucket{}
		return s
	}

	approved := 0
	probSum := 0.0
	probCount := 0
	liqTotal := make(map[string]int)
	liqApproved := make(map[string]int)
	bandProbSum := make([]float64, len(creditBands))
	bandProbCount := make([]int, len(creditBands))
	minIncome, maxIncome := math.Inf(1), math.Inf(-1)

	for _, rec := range records {
		isApproved := rec.Approved == domain.LabelApproved
		if isApproved {
			approved++
		}
		if rec.Probability != nil {
			probSum += *rec.Probability
			probCount++
		}

		tier := string(rec.CollateralLiquidity)
		liqTotal[tier]++
		if isApproved {
			liqApproved[tier]++
		}

		for i, band := range creditBands {
			if rec.RequestedAmount <= band.Upper {
				s.CreditBands[i].Count++
				if rec.Probability != nil {
					bandProbSum[i] += *rec.Probability
					bandProbCount[i]++
				}
				break
			}
		}

		if rec.Income < minIncome {
			minIncome = rec.Income
		}
		if rec.Income > maxIncome {
			maxIncome = rec.Income
		}
	}

	for tier, total := range liqTotal {
		s.ByLiquidity[tier] = roundPct(float64(liqApproved[tier]) / float64(total))
	}
	for i := range s.CreditBands {
		if bandProbCount[i] > 0 {
			s.CreditBands[i].MeanProbability = roundPct(bandProbSum[i] / float64(bandProbCount[i]))
		}
	}

	s.ApprovalRate = roundPct(float64(approved) / float64(len(records)))
	if probCount > 0 {
		s.MeanProbability = roundPct(probSum / float64(probCount))
	}
	s.IncomeHistogram = incomeHistogram(records, minIncome, maxIncome)

	return s
}

func incomeHistogram(records []*domain.HistoryRecord, min, max float64) []HistogramBucket {
	buckets := make([]HistogramBucket, incomeBuckets)

	width := (max - min) / incomeBuckets
	if width <= 0 {
		// All incomes identical; a single bucket holds everything.
		return []HistogramBucket{{Lower: min, Upper: max, Count: len(records)}}
	}

	for i := range buckets {
		buckets[i].Lower = min + float64(i)*width
		buckets[i].Upper = min + float64(i+1)*width
	}

	for _, rec := range records {
		idx := int((rec.Income - min) / width)
		if idx >= incomeBuckets {
			idx = incomeBuckets - 1
		}
		buckets[idx].Count++
	}

	return buckets
}

// recentRecords returns the newest records, newest first.
func recentRecords(records []*domain.HistoryRecord) []*domain.HistoryRecord {
	n := len(records)
	limit := RecentLimit
	if n < limit {
		limit = n
	}

	recent := make([]*domain.HistoryRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		recent = append(recent, records[i])
	}
	return recent
}

func roundPct(fraction float64) float64 {
	return math.Round(fraction*10000) / 100
}
