package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"autobill/internal/audit"
	"autobill/internal/invoice"
	"autobill/internal/logger"
	"autobill/pkg/models"
)

// ErrNotSendable is returned when a manual send targets an invoice that is
// paid, cancelled or still held for review.
var ErrNotSendable = errors.New("invoice cannot be sent in its current state")

// ActionStore is the persistence behind the administrative actions.
type ActionStore interface {
	GetInvoice(ctx context.Context, id uint) (*models.Invoice, error)
	GetContract(ctx context.Context, id uint) (*models.Contract, error)
	SaveValidationLog(ctx context.Context, log *models.ValidationLog) error
	UpdateAIValidation(ctx context.Context, id uint, status models.AIStatus, score int, at time.Time) error
	UpdateStatus(ctx context.Context, id uint, status models.InvoiceStatus) error
	RecordPayment(ctx context.Context, p *models.Payment) (*models.Invoice, error)
}

// ActionDeps are the collaborators of the administrative actions.
type ActionDeps struct {
	Store     ActionStore
	Validator VerdictSource
	Notifier  invoice.Notifier
	Audit     audit.Sink
}

// Actions are the one-off operations an operator triggers on a single
// invoice. Unlike cycles they return collaborator errors to the caller.
type Actions struct {
	deps ActionDeps
	opts Options
	log  zerolog.Logger
}

// NewActions creates the administrative actions.
func NewActions(deps ActionDeps, opts Options) *Actions {
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}
	return &Actions{
		deps: deps,
		opts: opts.withDefaults(),
		log:  logger.WithComponent("admin-actions"),
	}
}

// Revalidate runs validation again and stores the new verdict. A flagged
// invoice that now passes returns to pending so it can be sent.
func (a *Actions) Revalidate(ctx context.Context, invoiceID uint) (*invoice.Verdict, error) {
	const op = "Revalidate"

	inv, err := a.deps.Store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	contract, err := a.deps.Store.GetContract(ctx, inv.ContractID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	vctx, cancel := context.WithTimeout(ctx, 2*a.opts.StepTimeout)
	verdict := a.deps.Validator.Validate(vctx, inv, contract)
	cancel()

	if err := a.deps.Store.SaveValidationLog(ctx, verdict.Log(inv.ID)); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := a.deps.Store.UpdateAIValidation(ctx, inv.ID, verdict.Status, verdict.AnomalyScore, a.opts.Now()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case !verdict.Deliverable() && inv.Status != models.InvoiceStatusFlagged:
		err = a.deps.Store.UpdateStatus(ctx, inv.ID, models.InvoiceStatusFlagged)
	case verdict.Deliverable() && inv.Status == models.InvoiceStatusFlagged:
		err = a.deps.Store.UpdateStatus(ctx, inv.ID, models.InvoiceStatusPending)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	a.log.Info().
		Uint("invoice_id", inv.ID).
		Str("status", string(verdict.Status)).
		Int("anomaly_score", verdict.AnomalyScore).
		Msg("Invoice revalidated")
	a.deps.Audit.Record(ctx, audit.NewEvent(audit.ActionInvoiceValidated, "invoice", inv.ID,
		fmt.Sprintf("Invoice %s revalidated manually", inv.InvoiceNumber),
		map[string]interface{}{"ai_status": string(verdict.Status), "anomaly_score": verdict.AnomalyScore}))

	return &verdict, nil
}

// Send emails an invoice. Flagged invoices must pass revalidation first.
func (a *Actions) Send(ctx context.Context, invoiceID uint) (*invoice.Receipt, error) {
	const op = "Send"

	inv, err := a.deps.Store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if inv.Status.Final() || inv.Status == models.InvoiceStatusFlagged {
		return nil, fmt.Errorf("%s: invoice %d is %s: %w", op, inv.ID, inv.Status, ErrNotSendable)
	}

	sctx, cancel := context.WithTimeout(ctx, a.opts.StepTimeout)
	receipt, err := a.deps.Notifier.SendInvoice(sctx, inv.ID, nil)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	a.log.Info().Uint("invoice_id", inv.ID).Str("message_id", receipt.MessageID).Msg("Invoice sent manually")
	a.deps.Audit.Record(ctx, audit.NewEvent(audit.ActionInvoiceSent, "invoice", inv.ID,
		fmt.Sprintf("Invoice %s emailed manually", inv.InvoiceNumber),
		map[string]interface{}{"message_id": receipt.MessageID}))

	return receipt, nil
}

// PaymentInput describes money received for an invoice.
type PaymentInput struct {
	Amount    decimal.Decimal
	Method    string
	Reference string
	PaidAt    time.Time
}

// RecordPayment books a payment and returns the updated invoice.
func (a *Actions) RecordPayment(ctx context.Context, invoiceID uint, in PaymentInput) (*models.Invoice, error) {
	const op = "RecordPayment"

	if in.PaidAt.IsZero() {
		in.PaidAt = a.opts.Now()
	}
	updated, err := a.deps.Store.RecordPayment(ctx, &models.Payment{
		InvoiceID: invoiceID,
		Amount:    in.Amount,
		Method:    in.Method,
		Reference: in.Reference,
		PaidAt:    in.PaidAt,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	a.deps.Audit.Record(ctx, audit.NewEvent(audit.ActionPaymentRecorded, "invoice", invoiceID,
		fmt.Sprintf("Payment of %s recorded for invoice %s", in.Amount.StringFixed(2), updated.InvoiceNumber),
		map[string]interface{}{
			"amount":      in.Amount.StringFixed(2),
			"method":      in.Method,
			"amount_paid": updated.AmountPaid.StringFixed(2),
			"status":      string(updated.Status),
		}))

	return updated, nil
}
