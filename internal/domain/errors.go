package domain

import "errors"

// Error taxonomy for the decision pipeline. Each request either returns a
// complete structured result or one of these, wrapped with detail; a single
// bad request never brings the process down.
var (
	// ErrInvalidInput marks requests rejected before scoring. Never logged
	// to history.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidLiquidity marks a collateral liquidity outside {low, medium, high}.
	ErrInvalidLiquidity = errors.New("invalid collateral liquidity")

	// ErrScoringFailure marks a scoring model failure. Fatal to the request,
	// never retried, never replaced by a default decision.
	ErrScoringFailure = errors.New("scoring failure")

	// ErrExplanationUnavailable marks a failed or degenerate explanation.
	// The decision itself still succeeds.
	ErrExplanationUnavailable = errors.New("explanation unavailable")

	// ErrLLMUnavailable marks an absent or failing text-generation backend.
	// Always recovered locally via the deterministic fallback message.
	ErrLLMUnavailable = errors.New("llm unavailable")

	// ErrHistoryCorrupted marks an unreadable prior log. Recovered by
	// treating the log as empty; logged as a warning, not fatal.
	ErrHistoryCorrupted = errors.New("history corrupted")

	// ErrClientNotFound marks an unknown client id in the offer engine.
	ErrClientNotFound = errors.New("client not found")
)
