package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/opensource-finance/kestrel/internal/compose"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/explain"
	"github.com/opensource-finance/kestrel/internal/features"
	"github.com/opensource-finance/kestrel/internal/offers"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/stats"
)

// Summarizer produces the aggregated history view. Satisfied by both the
// plain and the cached aggregator.
type Summarizer interface {
	Summarize(ctx context.Context) (*stats.Summary, error)
}

// summaryInvalidator is the optional caching side of a Summarizer.
// The handler drops the cached summary inline after every store mutation,
// so a stale summary can never outlive the write that obsoleted it; the
// async worker then repopulates the slot where it runs.
type summaryInvalidator interface {
	Invalidate(ctx context.Context)
}

// Handler holds dependencies for API handlers.
type Handler struct {
	policy     *policy.Policy
	explainer  *explain.Engine
	composer   *compose.Composer
	store      domain.HistoryStore
	offers     *offers.Engine
	summarizer Summarizer
	cache      domain.Cache
	bus        domain.EventBus
	version    string
}

// NewHandler creates a new API handler.
func NewHandler(p *policy.Policy, explainer *explain.Engine, composer *compose.Composer, store domain.HistoryStore, offerEngine *offers.Engine, summarizer Summarizer, cache domain.Cache, bus domain.EventBus, version string) *Handler {
	return &Handler{
		policy:     p,
		explainer:  explainer,
		composer:   composer,
		store:      store,
		offers:     offerEngine,
		summarizer: summarizer,
		cache:      cache,
		bus:        bus,
		version:    version,
	}
}

// PredictResponse is the response for POST /predict.
type PredictResponse struct {
	Approved        string                   `json:"approved"`
	Probability     float64                  `json:"approvalProbability"`
	Rationale       *domain.ImportanceReport `json:"rationale,omitempty"`
	ExplanationHTML string                   `json:"explanationHtml,omitempty"`
	Message         string                   `json:"message,omitempty"`
	Metadata        struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// errorPayload is the structured error body for every failed request.
type errorPayload struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// Predict handles POST /predict requests: the full decision pipeline from
// raw applicant input to recorded history row.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	var in domain.ApplicantInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{
			Error: "invalid JSON request body",
		})
		return
	}

	// Rejected input is reported to the caller and never reaches the
	// history log.
	if err := features.Validate(in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{
			Error:  "invalid input",
			Detail: err.Error(),
		})
		return
	}

	vector, err := features.Build(in)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{
			Error:  "invalid input",
			Detail: err.Error(),
		})
		return
	}

	decision, err := h.policy.Decide(ctx, vector)
	if err != nil {
		slog.Error("scoring failed", "trace_id", traceID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorPayload{
			Error:  "scoring failure",
			Detail: err.Error(),
		})
		return
	}

	// Explanation is best-effort: a failure here never fails the decision.
	explanationHTML := ""
	if h.explainer != nil {
		refs := h.referenceSamples(ctx)
		report, err := h.explainer.Explain(ctx, vector, decision.Approved, refs)
		if err != nil {
			slog.Warn("explanation unavailable", "trace_id", traceID, "error", err)
		} else {
			decision.Rationale = report
			explanationHTML = explain.HTML(report)
		}
	}

	// Compose before touching the store so the external call never runs
	// inside the log's critical section.
	if h.composer != nil {
		decision.Message = h.composer.Decision(ctx, in, &decision)
	}

	rec := domain.NewHistoryRecord(in, decision, time.Now())
	if err := h.store.Append(ctx, rec); err != nil {
		slog.Error("failed to record decision", "trace_id", traceID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorPayload{
			Error:  "failed to record decision",
			Detail: err.Error(),
		})
		return
	}

	h.invalidateSummary(ctx)
	h.publishDecision(ctx, in, decision)

	// The response carries the same rounded probability as the stored row.
	probability := decision.Probability
	if rec.Probability != nil {
		probability = *rec.Probability
	}

	resp := PredictResponse{
		Approved:        rec.Approved,
		Probability:     probability,
		Rationale:       decision.Rationale,
		ExplanationHTML: explanationHTML,
		Message:         decision.Message,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// referenceSamples rebuilds labeled samples from the history log. An
// unreadable log just means no references.
func (h *Handler) referenceSamples(ctx context.Context) []explain.Sample {
	records, err := h.store.ReadAll(ctx)
	if err != nil {
		slog.Warn("failed to read history for explanation", "error", err)
		return nil
	}
	return explain.SamplesFromHistory(records)
}

// invalidateSummary drops the cached summary after a store mutation.
func (h *Handler) invalidateSummary(ctx context.Context) {
	if inv, ok := h.summarizer.(summaryInvalidator); ok {
		inv.Invalidate(ctx)
	}
}

// publishDecision emits the decision event. Best-effort; the response does
// not depend on it.
func (h *Handler) publishDecision(ctx context.Context, in domain.ApplicantInput, d domain.Decision) {
	if h.bus == nil {
		return
	}

	payload, err := json.Marshal(domain.DecisionEvent{
		Timestamp:   time.Now().Unix(),
		Approved:    d.Approved,
		Probability: d.Probability,
		Liquidity:   string(in.CollateralLiquidity),
	})
	if err != nil {
		return
	}

	if err := h.bus.Publish(ctx, domain.TopicDecisionRecorded, payload); err != nil {
		slog.Warn("failed to publish decision event", "error", err)
	}
}

// History handles GET /history requests.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ReadAll(r.Context())
	if err != nil {
		slog.Error("failed to read history", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorPayload{
			Error:  "failed to read history",
			Detail: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// ClearHistory handles POST /history/clear requests.
func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.store.Clear(ctx); err != nil {
		slog.Error("failed to clear history", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorPayload{
			Error:  "failed to clear history",
			Detail: err.Error(),
		})
		return
	}

	h.invalidateSummary(ctx)

	if h.bus != nil {
		if err := h.bus.Publish(ctx, domain.TopicHistoryCleared, nil); err != nil {
			slog.Warn("failed to publish history cleared event", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "cleared",
	})
}

// Summary handles GET /history/summary requests.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	if h.summarizer == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorPayload{
			Error: "summary not available",
		})
		return
	}

	summary, err := h.summarizer.Summarize(r.Context())
	if err != nil {
		slog.Error("failed to build summary", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorPayload{
			Error:  "failed to build summary",
			Detail: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// OfferRequest is the request body for POST /offers/generate.
type OfferRequest struct {
	ClientID      string  `json:"clientId"`
	FinancingNeed float64 `json:"financingNeed"`
	CreditPurpose string  `json:"creditPurpose"`
}

// OfferResponse is the response for POST /offers/generate.
type OfferResponse struct {
	Status        string   `json:"status"`
	TransactionID string   `json:"transactionId"`
	Product       string   `json:"product,omitempty"`
	AnnualRate    float64  `json:"rate,omitempty"`
	ApprovedLimit float64  `json:"limit,omitempty"`
	TermMonths    int      `json:"term,omitempty"`
	Rationale     []string `json:"rationale,omitempty"`
	ProposalText  string   `json:"proposalText"`
}

// GenerateOffer handles POST /offers/generate: the rule-based alternate
// decision path plus the generated proposal or denial text.
func (h *Handler) GenerateOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.offers == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorPayload{
			Error: "offer engine not available",
		})
		return
	}

	var req OfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{
			Error: "invalid JSON request body",
		})
		return
	}
	if req.ClientID == "" {
		writeJSON(w, http.StatusBadRequest, errorPayload{
			Error: "clientId is required",
		})
		return
	}
	if req.FinancingNeed <= 0 {
		writeJSON(w, http.StatusBadRequest, errorPayload{
			Error: "financingNeed must be positive",
		})
		return
	}

	offer, err := h.offers.GenerateForClient(req.ClientID, req.FinancingNeed)
	if err != nil {
		if errors.Is(err, domain.ErrClientNotFound) {
			writeJSON(w, http.StatusNotFound, errorPayload{
				Error:  "client not found",
				Detail: req.ClientID,
			})
			return
		}
		slog.Error("offer generation failed", "client_id", req.ClientID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorPayload{
			Error:  "offer generation failed",
			Detail: err.Error(),
		})
		return
	}

	if offer.Status == domain.OfferDenied {
		text := offer.Message
		if h.composer != nil {
			text = h.composer.Denial(ctx, req.ClientID, offer.Message)
		}
		writeJSON(w, http.StatusOK, OfferResponse{
			Status:        offer.Status,
			TransactionID: req.ClientID + "_FLOW_DENIED",
			Rationale:     offer.Rationale,
			ProposalText:  text,
		})
		return
	}

	text := offer.Message
	if h.composer != nil {
		client, err := h.offers.Client(req.ClientID)
		if err == nil {
			text = h.composer.Proposal(ctx, req.ClientID, req.CreditPurpose, client, offer)
		}
	}

	writeJSON(w, http.StatusOK, OfferResponse{
		Status:        offer.Status,
		TransactionID: req.ClientID + "_FLOW_APPROVED",
		Product:       offer.Product,
		AnnualRate:    offer.AnnualRate,
		ApprovedLimit: offer.ApprovedLimit,
		TermMonths:    offer.TermMonths,
		Rationale:     offer.Rationale,
		ProposalText:  text,
	})
}

// Index handles GET / with basic service information.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "kestrel",
		"version": h.version,
		"endpoints": []string{
			"POST /predict",
			"GET /history",
			"POST /history/clear",
			"GET /history/summary",
			"GET /history/export",
			"POST /offers/generate",
		},
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// writeJSON writes a JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
