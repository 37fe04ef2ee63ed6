// Package worker keeps the cached history summary aligned with the
// decision log by listening on the event bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/stats"
)

// Worker subscribes to decision events and refreshes the summary cache.
// A decision or a history clear invalidates the cached summary; the
// worker then recomputes it in the background so the next dashboard read
// is a cache hit.
type Worker struct {
	bus        domain.EventBus
	aggregator *stats.CachedAggregator

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a summary-refresh worker.
func NewWorker(bus domain.EventBus, aggregator *stats.CachedAggregator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:        bus,
		aggregator: aggregator,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes to the decision and history topics.
func (w *Worker) Start() error {
	topics := []string{domain.TopicDecisionRecorded, domain.TopicHistoryCleared}

	for _, topic := range topics {
		sub, err := w.bus.Subscribe(w.ctx, topic, w.handleEvent)
		if err != nil {
			w.Stop()
			return err
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("summary worker started", "topics", topics)
	return nil
}

// handleEvent refreshes the cached summary after any history mutation.
func (w *Worker) handleEvent(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	if msg.Topic == domain.TopicDecisionRecorded {
		var event domain.DecisionEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			slog.Error("failed to parse decision event",
				"message_id", msg.ID,
				"error", err,
			)
			return err
		}
		slog.Debug("decision event received",
			"approved", event.Approved,
			"liquidity", event.Liquidity,
		)
	}

	w.aggregator.Invalidate(ctx)

	if _, err := w.aggregator.Summarize(ctx); err != nil {
		slog.Error("failed to refresh summary",
			"topic", msg.Topic,
			"error", err,
		)
		return err
	}

	slog.Debug("summary refreshed",
		"topic", msg.Topic,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("summary worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
