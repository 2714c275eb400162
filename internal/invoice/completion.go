package invoice

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"autobill/internal/ai"
	"autobill/internal/logger"
	"autobill/pkg/models"
)

// AIValidatorConfig configures the prompts sent by AIValidator.
type AIValidatorConfig struct {
	CompanyName string // our company name for context
	MaxRetries  int    // parse retries on malformed answers
}

// AIValidator implements ContentValidator and DuplicateChecker on a text-generation model.
type AIValidator struct {
	completer ai.Completer
	config    AIValidatorConfig
	log       zerolog.Logger
}

// NewAIValidator creates a validator backed by completer.
func NewAIValidator(completer ai.Completer, config AIValidatorConfig) *AIValidator {
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	return &AIValidator{
		completer: completer,
		config:    config,
		log:       logger.WithComponent("ai-validator"),
	}
}

// correctnessResponse accepts scores as numbers or strings; models are not consistent.
type correctnessResponse struct {
	Status       string   `json:"status"`
	AnomalyScore flexInt  `json:"anomaly_score"`
	Flags        []string `json:"flags"`
	Suggestions  flexText `json:"suggestions"`
	Confidence   flexInt  `json:"confidence"`
}

type duplicateResponse struct {
	IsDuplicate     flexBool `json:"is_duplicate"`
	DuplicateOf     flexText `json:"duplicate_of"`
	SimilarityScore flexInt  `json:"similarity_score"`
	Explanation     flexText `json:"explanation"`
}

// ValidateContent asks the model whether the invoice is consistent with its contract.
func (v *AIValidator) ValidateContent(ctx context.Context, inv *models.Invoice, contract *models.Contract) (*CorrectnessVerdict, error) {
	const op = "ValidateContent"

	prompt := v.buildCorrectnessPrompt(inv, contract)

	v.log.Debug().
		Uint("invoice_id", inv.ID).
		Int("prompt_length", len(prompt)).
		Msg("Requesting correctness verdict")

	var lastErr error
	for attempt := 1; attempt <= v.config.MaxRetries; attempt++ {
		content, err := v.completer.Complete(ctx, ai.Request{System: v.correctnessSystemPrompt(), Prompt: prompt})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		var resp correctnessResponse
		if err := json.Unmarshal([]byte(ai.ExtractJSON(content)), &resp); err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
			v.log.Warn().
				Err(err).
				Str("response", content).
				Int("attempt", attempt).
				Msg("Failed to parse correctness verdict")
			continue
		}

		status, ok := parseAIStatus(resp.Status)
		if !ok {
			lastErr = fmt.Errorf("%w: unknown status %q", ErrMalformedVerdict, resp.Status)
			continue
		}

		verdict := &CorrectnessVerdict{
			Status:       status,
			AnomalyScore: clampScore(int(resp.AnomalyScore)),
			Flags:        lo.Compact(lo.Map(resp.Flags, func(f string, _ int) string { return strings.TrimSpace(f) })),
			Suggestions:  string(resp.Suggestions),
			Confidence:   clampScore(int(resp.Confidence)),
		}

		v.log.Info().
			Uint("invoice_id", inv.ID).
			Str("status", string(verdict.Status)).
			Int("anomaly_score", verdict.AnomalyScore).
			Int("confidence", verdict.Confidence).
			Int("flags", len(verdict.Flags)).
			Msg("Correctness verdict received")

		return verdict, nil
	}

	return nil, fmt.Errorf("%s: %w", op, lastErr)
}

// CheckDuplicates asks the model whether inv repeats one of candidates.
func (v *AIValidator) CheckDuplicates(ctx context.Context, inv *models.Invoice, candidates []models.Invoice) (*DuplicateVerdict, error) {
	const op = "CheckDuplicates"

	if len(candidates) == 0 {
		return &DuplicateVerdict{}, nil
	}

	prompt := v.buildDuplicatePrompt(inv, candidates)

	var lastErr error
	for attempt := 1; attempt <= v.config.MaxRetries; attempt++ {
		content, err := v.completer.Complete(ctx, ai.Request{System: duplicateSystemPrompt, Prompt: prompt})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		var resp duplicateResponse
		if err := json.Unmarshal([]byte(ai.ExtractJSON(content)), &resp); err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
			v.log.Warn().
				Err(err).
				Str("response", content).
				Int("attempt", attempt).
				Msg("Failed to parse duplicate verdict")
			continue
		}

		verdict := &DuplicateVerdict{
			IsDuplicate:     bool(resp.IsDuplicate),
			DuplicateOf:     string(resp.DuplicateOf),
			SimilarityScore: clampScore(int(resp.SimilarityScore)),
			Explanation:     string(resp.Explanation),
		}

		v.log.Info().
			Uint("invoice_id", inv.ID).
			Int("candidates", len(candidates)).
			Bool("is_duplicate", verdict.IsDuplicate).
			Int("similarity_score", verdict.SimilarityScore).
			Msg("Duplicate verdict received")

		return verdict, nil
	}

	return nil, fmt.Errorf("%s: %w", op, lastErr)
}

func (v *AIValidator) correctnessSystemPrompt() string {
	company := v.config.CompanyName
	if company == "" {
		company = "the issuing company"
	}
	return fmt.Sprintf(`You are an accounts receivable auditor for %s.
You review invoices generated automatically from recurring contracts before they are emailed to customers.

Check that:
- the subtotal equals the contract amount
- the tax amount equals subtotal * tax rate / 100
- the discount amount equals subtotal * discount percentage / 100
- the total equals subtotal + tax - discount
- the due date is 30 days after the issue date
- nothing else looks unusual (amount far outside the contract, wrong currency, implausible dates)

Respond ONLY with a JSON object of this shape:
{
  "status": "validated" | "flagged",
  "anomaly_score": 0-100 (higher means more likely to need human review),
  "flags": ["short description of each problem found"],
  "suggestions": "what a reviewer should check or fix",
  "confidence": 0-100
}`, company)
}

func (v *AIValidator) buildCorrectnessPrompt(inv *models.Invoice, contract *models.Contract) string {
	var b strings.Builder

	b.WriteString("INVOICE:\n")
	fmt.Fprintf(&b, "- number: %s\n", inv.InvoiceNumber)
	fmt.Fprintf(&b, "- issue_date: %s\n", inv.IssueDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "- due_date: %s\n", inv.DueDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "- subtotal: %s\n", inv.Subtotal.StringFixed(2))
	fmt.Fprintf(&b, "- tax_amount: %s\n", inv.TaxAmount.StringFixed(2))
	fmt.Fprintf(&b, "- discount_amount: %s\n", inv.DiscountAmount.StringFixed(2))
	fmt.Fprintf(&b, "- total_amount: %s\n", inv.TotalAmount.StringFixed(2))
	fmt.Fprintf(&b, "- currency: %s\n", inv.Currency)

	b.WriteString("\nCONTRACT:\n")
	if contract != nil {
		fmt.Fprintf(&b, "- id: %d\n", contract.ID)
		if contract.Title != "" {
			fmt.Fprintf(&b, "- title: %s\n", contract.Title)
		}
		if contract.Amount.Valid {
			fmt.Fprintf(&b, "- amount: %s\n", contract.Amount.Decimal.StringFixed(2))
		}
		fmt.Fprintf(&b, "- tax_rate: %s%%\n", contract.TaxRate.String())
		fmt.Fprintf(&b, "- discount_percentage: %s%%\n", contract.DiscountPercentage.String())
		fmt.Fprintf(&b, "- billing_frequency: %s\n", contract.BillingFrequency)
		fmt.Fprintf(&b, "- currency: %s\n", contract.Currency)
	} else {
		b.WriteString("- not available\n")
	}

	return b.String()
}

const duplicateSystemPrompt = `You detect duplicate invoices.
You receive one new invoice and a list of invoices issued to the same customer in the last 30 days.
An invoice is a duplicate when it bills the same thing for the same period a second time.
Regular recurring invoices for consecutive periods are NOT duplicates.

Respond ONLY with a JSON object of this shape:
{
  "is_duplicate": true | false,
  "duplicate_of": "invoice number of the duplicated invoice, or empty",
  "similarity_score": 0-100,
  "explanation": "one sentence"
}`

func (v *AIValidator) buildDuplicatePrompt(inv *models.Invoice, candidates []models.Invoice) string {
	var b strings.Builder

	fmt.Fprintf(&b, "NEW INVOICE: %s\n", describeInvoice(inv))
	b.WriteString("\nRECENT INVOICES:\n")
	for i := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, describeInvoice(&candidates[i]))
	}
	return b.String()
}

func describeInvoice(inv *models.Invoice) string {
	return fmt.Sprintf("number=%s contract=%d issued=%s due=%s total=%s %s",
		inv.InvoiceNumber,
		inv.ContractID,
		inv.IssueDate.Format("2006-01-02"),
		inv.DueDate.Format("2006-01-02"),
		inv.TotalAmount.StringFixed(2),
		inv.Currency,
	)
}

func parseAIStatus(s string) (models.AIStatus, bool) {
	switch models.AIStatus(strings.ToLower(strings.TrimSpace(s))) {
	case models.AIStatusValidated, "valid", "ok":
		return models.AIStatusValidated, true
	case models.AIStatusFlagged, "warning", "invalid":
		return models.AIStatusFlagged, true
	}
	return "", false
}

// flexInt decodes 85, 85.4 or "85".
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	s = strings.TrimSuffix(s, "%")
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid score %q: %w", s, err)
	}
	*f = flexInt(int(n + 0.5))
	return nil
}

// flexBool decodes true or "true".
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.ToLower(strings.Trim(strings.TrimSpace(string(data)), `"`))
	switch s {
	case "true", "yes", "1":
		*f = true
	case "false", "no", "0", "", "null":
		*f = false
	default:
		return fmt.Errorf("invalid boolean %q", s)
	}
	return nil
}

// flexText decodes a string or a list of strings joined by spaces.
type flexText string

func (f *flexText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexText(s)
		return nil
	}
	var parts []string
	if err := json.Unmarshal(data, &parts); err == nil {
		*f = flexText(strings.Join(parts, " "))
		return nil
	}
	if strings.TrimSpace(string(data)) == "null" {
		*f = ""
		return nil
	}
	return fmt.Errorf("invalid text %s", data)
}
