package invoice

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"autobill/internal/logger"
	"autobill/pkg/models"
)

// DuplicateWindow is how far back duplicate candidates are collected.
const DuplicateWindow = 30 * 24 * time.Hour

// Validator runs both verdicts and combines them. It never fails on collaborator errors.
type Validator struct {
	content    ContentValidator
	duplicates DuplicateChecker
	candidates CandidateFinder
	now        func() time.Time
	log        zerolog.Logger
}

// NewValidator creates a Validator.
func NewValidator(content ContentValidator, duplicates DuplicateChecker, candidates CandidateFinder) *Validator {
	return NewValidatorWithClock(content, duplicates, candidates, time.Now)
}

// NewValidatorWithClock creates a Validator with an explicit clock.
func NewValidatorWithClock(content ContentValidator, duplicates DuplicateChecker, candidates CandidateFinder, now func() time.Time) *Validator {
	return &Validator{
		content:    content,
		duplicates: duplicates,
		candidates: candidates,
		now:        now,
		log:        logger.WithComponent("invoice-validator"),
	}
}

// Validate produces the combined verdict for inv.
func (v *Validator) Validate(ctx context.Context, inv *models.Invoice, contract *models.Contract) Verdict {
	correctness := v.correctness(ctx, inv, contract)
	duplicate := v.duplicate(ctx, inv)

	verdict := Combine(correctness, duplicate)

	v.log.Info().
		Uint("invoice_id", inv.ID).
		Str("invoice_number", inv.InvoiceNumber).
		Str("status", string(verdict.Status)).
		Int("anomaly_score", verdict.AnomalyScore).
		Bool("is_duplicate", verdict.Duplicate.IsDuplicate).
		Bool("warnings", verdict.HasWarnings()).
		Msg("Invoice validation completed")

	return verdict
}

func (v *Validator) correctness(ctx context.Context, inv *models.Invoice, contract *models.Contract) (out CorrectnessVerdict) {
	defer func() {
		if r := recover(); r != nil {
			v.log.Error().Interface("panic", r).Uint("invoice_id", inv.ID).Msg("Correctness check panicked, using fallback verdict")
			out = FallbackCorrectness()
		}
	}()

	verdict, err := v.content.ValidateContent(ctx, inv, contract)
	if err != nil || verdict == nil {
		v.log.Warn().Err(err).Uint("invoice_id", inv.ID).Msg("Correctness check failed, using fallback verdict")
		return FallbackCorrectness()
	}
	return *verdict
}

func (v *Validator) duplicate(ctx context.Context, inv *models.Invoice) (out DuplicateVerdict) {
	defer func() {
		if r := recover(); r != nil {
			v.log.Error().Interface("panic", r).Uint("invoice_id", inv.ID).Msg("Duplicate check panicked, assuming no duplicate")
			out = FallbackDuplicate()
		}
	}()

	since := v.now().Add(-DuplicateWindow)
	candidates, err := v.candidates.RecentForCustomer(ctx, inv.CustomerID, since, inv.ID)
	if err != nil {
		v.log.Warn().Err(err).Uint("invoice_id", inv.ID).Msg("Loading duplicate candidates failed, assuming no duplicate")
		return FallbackDuplicate()
	}
	if len(candidates) == 0 {
		v.log.Debug().Uint("invoice_id", inv.ID).Msg("No recent invoices for customer, skipping duplicate check")
		return FallbackDuplicate()
	}

	verdict, err := v.duplicates.CheckDuplicates(ctx, inv, candidates)
	if err != nil || verdict == nil {
		v.log.Warn().Err(err).Uint("invoice_id", inv.ID).Msg("Duplicate check failed, assuming no duplicate")
		return FallbackDuplicate()
	}
	return *verdict
}
