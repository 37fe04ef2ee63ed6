package compose

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	decisionSystemPrompt = `You are a senior credit manager at Banco Alpha.
Write a short, professional message communicating a credit decision to the
applicant. Be clear and consultative. Never cite internal scores or
thresholds; speak of "credit policy" or "internal criteria".`

	proposalSystemPrompt = `You are a senior rural credit manager at Banco
Alpha. Your task is to write a consultative, clear value proposal using
the bank's internal guidelines. The tone is professional and focused on
value for the client.`

	denialSystemPrompt = `You are a senior relationship analyst at Banco
Alpha responsible for communicating credit decisions. Write a credit
denial message with an empathetic, professional and consultative tone.
The message must thank the client, communicate the decision, explain the
reason gently, and offer to revisit the case in the future. Never cite
score numbers or limits; speak of "credit policy" or "internal criteria".`
)

// Composer builds the free-text message for decisions and offers.
// Every method returns usable text; a failing or unconfigured backend
// degrades to the deterministic templates.
type Composer struct {
	client    *geminiClient
	knowledge string
}

// New creates a composer. The knowledge file at knowledgePath grounds the
// offer proposal prompt; a missing file is tolerated.
func New(cfg domain.LLMConfig, knowledgePath string) *Composer {
	knowledge := ""
	if knowledgePath != "" {
		data, err := os.ReadFile(knowledgePath)
		if err != nil {
			slog.Warn("knowledge base not loaded", "path", knowledgePath, "error", err)
		} else {
			knowledge = string(data)
		}
	}

	return &Composer{
		client:    newGeminiClient(cfg),
		knowledge: knowledge,
	}
}

// Configured reports whether the external backend can be called.
func (c *Composer) Configured() bool {
	return c.client.configured()
}

// Decision composes the message for an approval or denial. Never fails.
func (c *Composer) Decision(ctx context.Context, in domain.ApplicantInput, d *domain.Decision) string {
	prompt := fmt.Sprintf(`Applicant profile:
- Monthly income: %.2f
- Age: %d
- Requested amount: %.2f
- Collateral value: %.2f (liquidity: %s)

Decision: %s, approval probability %.1f%%.

Write the final message to the applicant.`,
		in.Income, in.Age, in.RequestedAmount, in.CollateralValue,
		in.CollateralLiquidity, approvalWord(d.Approved), d.Probability*100)

	text, err := c.client.generate(ctx, decisionSystemPrompt, prompt, 0.4)
	if err != nil {
		slog.Debug("falling back to templated decision message", "error", err)
		return fallbackDecision(d)
	}
	return text
}

// Proposal composes the value proposal text for an approved offer,
// grounded on the knowledge base. Never fails.
func (c *Composer) Proposal(ctx context.Context, clientID, purpose string, client domain.ClientProfile, offer *domain.Offer) string {
	collateral := "diverse collateral / surety"
	if client.OwnsRuralProperty {
		collateral = "rural property"
	}

	var b strings.Builder
	if c.knowledge != "" {
		fmt.Fprintf(&b, "BANK KNOWLEDGE CONTEXT (use as reference):\n---\n%s\n---\n\n", c.knowledge)
	}
	fmt.Fprintf(&b, `CLIENT INFORMATION FOR THE PROPOSAL:
- Client ID: %s
- Recommended product: %s
- Approved limit: %.2f
- Rate: %.2f%% p.a.
- Term: %d months
- Credit purpose: %s
- Collateral: %s

Based on the information above, write the final value proposal.`,
		clientID, offer.Product, offer.ApprovedLimit, offer.AnnualRate,
		offer.TermMonths, purpose, collateral)

	text, err := c.client.generate(ctx, proposalSystemPrompt, b.String(), 0.4)
	if err != nil {
		slog.Debug("falling back to templated proposal", "error", err)
		return fallbackProposal(offer)
	}
	return text
}

// Denial composes the empathetic denial text for a rejected offer
// request. Never fails.
func (c *Composer) Denial(ctx context.Context, clientID, reason string) string {
	prompt := fmt.Sprintf(`Client ID: %s
Technical reason for denial: %s

Write the complete, professional final message.`, clientID, reason)

	text, err := c.client.generate(ctx, denialSystemPrompt, prompt, 0.3)
	if err != nil {
		slog.Debug("falling back to templated denial", "error", err)
		return fallbackDenial(reason)
	}
	return text
}

// fallbackDecision is pure string formatting and cannot fail.
func fallbackDecision(d *domain.Decision) string {
	if d.Approved {
		return fmt.Sprintf("Congratulations! Your credit request was approved with an approval probability of %.1f%%.", d.Probability*100)
	}
	return fmt.Sprintf("We are sorry, but your credit request was not approved at this time (approval probability: %.1f%%). Please review your information and try again later.", d.Probability*100)
}

func fallbackProposal(offer *domain.Offer) string {
	return fmt.Sprintf("We are pleased to offer you the product %s: approved limit of %.2f at %.2f%% p.a. over %d months. Contact your relationship manager to proceed.",
		offer.Product, offer.ApprovedLimit, offer.AnnualRate, offer.TermMonths)
}

func fallbackDenial(reason string) string {
	return fmt.Sprintf("Dear client, we regret to inform you that we cannot proceed with your request at this time. Reason: %s", reason)
}

func approvalWord(approved bool) string {
	if approved {
		return "approved"
	}
	return "denied"
}
