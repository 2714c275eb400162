// Package orchestrator drives the daily billing and reminder cycles.
//
// Each cycle is guarded so that at most one run of it is active; a trigger that
// arrives while a run is in progress is skipped, not queued. Work items are
// isolated from each other: a failing contract or invoice is counted and logged,
// and the cycle moves on. Only a failure to load the work list aborts a cycle.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"autobill/internal/audit"
	"autobill/internal/billing"
	"autobill/internal/invoice"
	"autobill/internal/logger"
	"autobill/internal/store"
	"autobill/pkg/models"
)

// maxNumberAttempts bounds invoice-number regeneration on collisions.
const maxNumberAttempts = 5

// BillingStore is the persistence the billing cycle needs.
type BillingStore interface {
	FindDue(ctx context.Context, asOf time.Time) ([]models.Contract, error)
	AdvanceNextBilling(ctx context.Context, contractID uint, next *time.Time) error
	CreateInvoice(ctx context.Context, inv *models.Invoice) error
	UpdatePDFInfo(ctx context.Context, id uint, url, objectID string) error
	UpdateAIValidation(ctx context.Context, id uint, status models.AIStatus, score int, at time.Time) error
	UpdateStatus(ctx context.Context, id uint, status models.InvoiceStatus) error
	SaveValidationLog(ctx context.Context, log *models.ValidationLog) error
}

// VerdictSource produces a combined validation verdict. It does not fail.
type VerdictSource interface {
	Validate(ctx context.Context, inv *models.Invoice, contract *models.Contract) invoice.Verdict
}

// Outcome classifies one processed work item.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFlagged Outcome = "flagged"
	OutcomeFailed  Outcome = "failed"
)

// ItemResult is the result of billing one contract.
type ItemResult struct {
	ContractID    uint    `json:"contract_id"`
	InvoiceID     uint    `json:"invoice_id,omitempty"`
	InvoiceNumber string  `json:"invoice_number,omitempty"`
	Outcome       Outcome `json:"outcome"`
	Step          string  `json:"step,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// BillingSummary aggregates one billing run.
type BillingSummary struct {
	AlreadyRunning bool          `json:"already_running"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	Total          int           `json:"total"`
	Successful     int           `json:"successful"`
	Flagged        int           `json:"flagged"`
	Failed         int           `json:"failed"`
	Results        []ItemResult  `json:"results,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// Failures returns the failed items.
func (s *BillingSummary) Failures() []ItemResult {
	return lo.Filter(s.Results, func(r ItemResult, _ int) bool { return r.Outcome == OutcomeFailed })
}

// BillingDeps are the collaborators of the billing cycle.
type BillingDeps struct {
	Store      BillingStore
	Calculator *billing.Calculator
	Renderer   invoice.Renderer
	Objects    invoice.ObjectStore
	Validator  VerdictSource
	Notifier   invoice.Notifier
	Audit      audit.Sink
}

// Options tune a cycle.
type Options struct {
	// StepTimeout bounds each external call. Validation, which makes two AI
	// calls, gets twice this budget.
	StepTimeout time.Duration
	// Workers is the number of contracts processed concurrently.
	Workers int
	// Now is the clock; time.Now when nil.
	Now func() time.Time
	// Location decides which calendar day "today" is; UTC when nil.
	Location *time.Location
}

func (o Options) withDefaults() Options {
	if o.StepTimeout <= 0 {
		o.StepTimeout = 30 * time.Second
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

// calendarTime re-expresses the wall clock of t in the configured location as
// UTC. Billing and due dates are stored as UTC calendar dates, so day cutoffs,
// invoice numbers and issue dates then follow the local calendar day.
func (o Options) calendarTime(t time.Time) time.Time {
	l := t.In(o.Location)
	return time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), l.Minute(), l.Second(), l.Nanosecond(), time.UTC)
}

// BillingCycle generates, validates and delivers invoices for due contracts.
type BillingCycle struct {
	deps  BillingDeps
	opts  Options
	guard Guard
	log   zerolog.Logger
}

// NewBillingCycle creates a billing cycle.
func NewBillingCycle(deps BillingDeps, opts Options) *BillingCycle {
	if deps.Calculator == nil {
		deps.Calculator = billing.NewCalculator()
	}
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}
	return &BillingCycle{
		deps: deps,
		opts: opts.withDefaults(),
		log:  logger.WithJob("orchestrator", "billing"),
	}
}

// Running reports whether a run is in progress.
func (c *BillingCycle) Running() bool {
	return c.guard.Running()
}

// Run executes one billing cycle. A call made while another run is active
// returns immediately with AlreadyRunning set and no error.
func (c *BillingCycle) Run(ctx context.Context) (*BillingSummary, error) {
	const op = "BillingCycle.Run"

	if !c.guard.TryAcquire() {
		c.log.Info().Msg("Billing cycle already running, skipping trigger")
		return &BillingSummary{AlreadyRunning: true}, nil
	}
	defer c.guard.Release()

	start := c.opts.Now()
	asOf := c.opts.calendarTime(start)
	c.log.Info().Time("as_of", asOf).Str("location", c.opts.Location.String()).Msg("Billing cycle started")

	contracts, err := c.deps.Store.FindDue(ctx, asOf)
	if err != nil {
		c.log.Error().Err(err).Msg("Billing cycle aborted: unable to load due contracts")
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	summary := &BillingSummary{StartedAt: start, Total: len(contracts)}
	if len(contracts) == 0 {
		summary.FinishedAt = c.opts.Now()
		c.log.Info().Msg("No contracts due, billing cycle finished")
		return summary, nil
	}

	summary.Results = c.processAll(ctx, contracts, asOf)
	for _, r := range summary.Results {
		switch r.Outcome {
		case OutcomeSuccess:
			summary.Successful++
		case OutcomeFlagged:
			summary.Flagged++
		default:
			summary.Failed++
		}
	}
	summary.FinishedAt = c.opts.Now()
	summary.Duration = summary.FinishedAt.Sub(summary.StartedAt)

	c.deps.Audit.Record(ctx, audit.NewEvent(audit.ActionBillingCompleted, "cycle", "billing",
		fmt.Sprintf("Billing cycle processed %d contracts", summary.Total),
		map[string]interface{}{
			"total":      summary.Total,
			"successful": summary.Successful,
			"flagged":    summary.Flagged,
			"failed":     summary.Failed,
			"duration":   summary.Duration.String(),
		}))

	c.log.Info().
		Int("total", summary.Total).
		Int("successful", summary.Successful).
		Int("flagged", summary.Flagged).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("Billing cycle finished")

	return summary, nil
}

// processAll bills contracts with the configured number of workers. Results
// keep the order of contracts.
func (c *BillingCycle) processAll(ctx context.Context, contracts []models.Contract, now time.Time) []ItemResult {
	results := make([]ItemResult, len(contracts))

	if c.opts.Workers == 1 {
		for i := range contracts {
			results[i] = c.processContract(ctx, contracts[i], now)
		}
		return results
	}

	jobs := make(chan int, len(contracts))
	var wg sync.WaitGroup
	for w := 0; w < min(c.opts.Workers, len(contracts)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = c.processContract(ctx, contracts[idx], now)
			}
		}()
	}
	for i := range contracts {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// processContract runs the pipeline for one contract. Once the invoice exists
// the contract's next billing date is advanced, whatever happens afterwards.
func (c *BillingCycle) processContract(ctx context.Context, contract models.Contract, now time.Time) (res ItemResult) {
	res = ItemResult{ContractID: contract.ID}
	log := c.log.With().Uint("contract_id", contract.ID).Logger()

	fail := func(step string, err error) ItemResult {
		perr := invoice.WrapPipelineError(step, contract.ID, res.InvoiceID, err)
		res.Outcome, res.Step, res.Error = OutcomeFailed, step, perr.Error()
		log.Error().Err(perr).Str("step", step).Msg("Contract billing failed")
		c.deps.Audit.Record(ctx, audit.NewEvent(audit.ActionInvoiceFailed, "contract", contract.ID,
			fmt.Sprintf("Billing failed at %s step", step),
			map[string]interface{}{"step": step, "error": err.Error(), "invoice_id": res.InvoiceID}))
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			res = fail(res.Step, fmt.Errorf("panic: %v", r))
		}
	}()

	// a. compute and persist
	res.Step = invoice.StepCreate
	comp, err := c.deps.Calculator.Compute(&contract, now)
	if err != nil {
		return fail(invoice.StepCreate, err)
	}
	inv, err := c.createInvoice(ctx, &contract, comp, now)
	if err != nil {
		return fail(invoice.StepCreate, err)
	}
	res.InvoiceID, res.InvoiceNumber = inv.ID, inv.InvoiceNumber
	log = log.With().Uint("invoice_id", inv.ID).Str("invoice_number", inv.InvoiceNumber).Logger()

	c.deps.Audit.Record(ctx, audit.NewEvent(audit.ActionInvoiceCreated, "invoice", inv.ID,
		fmt.Sprintf("Invoice %s created for contract %d", inv.InvoiceNumber, contract.ID),
		map[string]interface{}{"contract_id": contract.ID, "total": inv.TotalAmount.StringFixed(2)}))

	// f. reschedule, deferred so it also runs when a later step fails
	defer func() {
		if err := c.deps.Store.AdvanceNextBilling(ctx, contract.ID, comp.NextBillingDate); err != nil {
			if res.Outcome != OutcomeFailed {
				res = fail(invoice.StepAdvance, err)
			} else {
				log.Error().Err(err).Msg("Unable to advance next billing date after failure")
			}
			return
		}
		log.Debug().Interface("next_billing_date", comp.NextBillingDate).Msg("Next billing date advanced")
	}()

	// b. render
	res.Step = invoice.StepRender
	var doc []byte
	err = c.step(ctx, c.opts.StepTimeout, func(sctx context.Context) error {
		var rerr error
		doc, rerr = c.deps.Renderer.Render(sctx, inv.ID)
		if rerr == nil && len(doc) == 0 {
			rerr = invoice.ErrRenderFailed
		}
		return rerr
	})
	if err != nil {
		return fail(invoice.StepRender, err)
	}

	// c. store
	res.Step = invoice.StepStore
	var obj *invoice.StoredObject
	err = c.step(ctx, c.opts.StepTimeout, func(sctx context.Context) error {
		var uerr error
		obj, uerr = c.deps.Objects.Upload(sctx, doc, inv.InvoiceNumber)
		if uerr != nil {
			return fmt.Errorf("%w: %v", invoice.ErrUploadFailed, uerr)
		}
		return nil
	})
	if err != nil {
		return fail(invoice.StepStore, err)
	}
	if err := c.deps.Store.UpdatePDFInfo(ctx, inv.ID, obj.URL, obj.ObjectID); err != nil {
		return fail(invoice.StepStore, err)
	}
	inv.PDFURL, inv.PDFObjectID = obj.URL, obj.ObjectID

	// d. validate
	res.Step = invoice.StepValidate
	vctx, cancel := context.WithTimeout(ctx, 2*c.opts.StepTimeout)
	verdict := c.deps.Validator.Validate(vctx, inv, &contract)
	cancel()
	if err := c.recordVerdict(ctx, inv.ID, verdict, c.opts.Now()); err != nil {
		return fail(invoice.StepValidate, err)
	}

	if !verdict.Deliverable() {
		if err := c.deps.Store.UpdateStatus(ctx, inv.ID, models.InvoiceStatusFlagged); err != nil {
			return fail(invoice.StepValidate, err)
		}
		res.Outcome, res.Step = OutcomeFlagged, ""
		log.Warn().
			Str("ai_status", string(verdict.Status)).
			Int("anomaly_score", verdict.AnomalyScore).
			Strs("flags", verdict.Flags).
			Msg("Invoice held for manual review")
		c.deps.Audit.Record(ctx, audit.NewEvent(audit.ActionInvoiceFlagged, "invoice", inv.ID,
			fmt.Sprintf("Invoice %s held for review", inv.InvoiceNumber),
			map[string]interface{}{"ai_status": string(verdict.Status), "anomaly_score": verdict.AnomalyScore, "flags": verdict.Flags}))
		return res
	}

	// e. notify
	res.Step = invoice.StepNotify
	var receipt *invoice.Receipt
	err = c.step(ctx, c.opts.StepTimeout, func(sctx context.Context) error {
		var serr error
		receipt, serr = c.deps.Notifier.SendInvoice(sctx, inv.ID, doc)
		return serr
	})
	if err != nil {
		return fail(invoice.StepNotify, err)
	}

	res.Outcome, res.Step = OutcomeSuccess, ""
	log.Info().Str("message_id", receipt.MessageID).Msg("Invoice delivered")
	c.deps.Audit.Record(ctx, audit.NewEvent(audit.ActionInvoiceSent, "invoice", inv.ID,
		fmt.Sprintf("Invoice %s emailed", inv.InvoiceNumber),
		map[string]interface{}{"message_id": receipt.MessageID, "anomaly_score": verdict.AnomalyScore}))
	return res
}

// createInvoice persists the computed invoice, drawing a new number when the
// random one is already taken.
func (c *BillingCycle) createInvoice(ctx context.Context, contract *models.Contract, comp *billing.Computation, now time.Time) (*models.Invoice, error) {
	inv := &models.Invoice{
		InvoiceNumber:      comp.InvoiceNumber,
		CustomerID:         contract.CustomerID,
		Customer:           contract.Customer,
		ContractID:         contract.ID,
		IssueDate:          comp.IssueDate,
		DueDate:            comp.DueDate,
		Subtotal:           comp.Subtotal,
		TaxAmount:          comp.Tax,
		DiscountAmount:     comp.Discount,
		TotalAmount:        comp.Total,
		Currency:           lo.Ternary(contract.Currency != "", contract.Currency, "EUR"),
		Status:             models.InvoiceStatusPending,
		AIValidationStatus: models.AIStatusPending,
	}

	var err error
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		err = c.deps.Store.CreateInvoice(ctx, inv)
		if err == nil {
			return inv, nil
		}
		if !errors.Is(err, store.ErrDuplicateInvoiceNumber) {
			return nil, err
		}
		c.log.Warn().
			Uint("contract_id", contract.ID).
			Str("invoice_number", inv.InvoiceNumber).
			Int("attempt", attempt).
			Msg("Invoice number collision, drawing a new one")
		inv.InvoiceNumber = c.deps.Calculator.InvoiceNumber(now)
	}
	return nil, fmt.Errorf("no free invoice number after %d attempts: %w", maxNumberAttempts, err)
}

func (c *BillingCycle) recordVerdict(ctx context.Context, invoiceID uint, v invoice.Verdict, now time.Time) error {
	if err := c.deps.Store.SaveValidationLog(ctx, v.Log(invoiceID)); err != nil {
		return err
	}
	return c.deps.Store.UpdateAIValidation(ctx, invoiceID, v.Status, v.AnomalyScore, now)
}

// step runs fn under a timeout. Only errors reported by fn count, so a call
// that completed just as the deadline passed is still a success.
func (c *BillingCycle) step(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(sctx)
}
