package payments

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"autobill/internal/logger"
	"autobill/internal/orchestrator"
	"autobill/internal/store"
	"autobill/pkg/models"
)

// MethodBankTransfer is the payment method stored for imported transactions.
const MethodBankTransfer = "bank-transfer"

var invoiceNumberPattern = regexp.MustCompile(`INV-\d{8}-\d{4}`)

// Store is the lookup surface the importer needs.
type Store interface {
	FindInvoiceByNumber(ctx context.Context, number string) (*models.Invoice, error)
	PaymentExists(ctx context.Context, reference string) (bool, error)
}

// Recorder books a payment. *orchestrator.Actions satisfies it.
type Recorder interface {
	RecordPayment(ctx context.Context, invoiceID uint, in orchestrator.PaymentInput) (*models.Invoice, error)
}

// Outcome classifies one imported transaction.
type Outcome string

const (
	OutcomeRecorded  Outcome = "recorded"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUnmatched Outcome = "unmatched"
	OutcomeSettled   Outcome = "settled" // invoice already paid or cancelled
	OutcomeFailed    Outcome = "failed"
)

// Result describes what happened to one incoming transaction.
type Result struct {
	Row           int     `json:"row"`
	Reference     string  `json:"reference"`
	InvoiceNumber string  `json:"invoice_number,omitempty"`
	InvoiceID     uint    `json:"invoice_id,omitempty"`
	Amount        string  `json:"amount"`
	Outcome       Outcome `json:"outcome"`
	Status        string  `json:"status,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// ImportSummary aggregates one import run.
type ImportSummary struct {
	Worksheet  string   `json:"worksheet"`
	Rows       int      `json:"rows"`
	Skipped    int      `json:"skipped"`  // unparsable rows
	Outgoing   int      `json:"outgoing"` // debits, never matched
	Recorded   int      `json:"recorded"`
	Duplicates int      `json:"duplicates"`
	Unmatched  int      `json:"unmatched"`
	Settled    int      `json:"settled"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// Importer books incoming statement transactions as invoice payments.
type Importer struct {
	reader   *StatementReader
	store    Store
	recorder Recorder
	log      zerolog.Logger
}

// NewImporter creates an importer reading statements through r.
func NewImporter(r RangeReader, s Store, rec Recorder) *Importer {
	return &Importer{
		reader:   NewStatementReader(r),
		store:    s,
		recorder: rec,
		log:      logger.WithComponent("payments"),
	}
}

// Import reads worksheet and records a payment for every incoming transaction
// whose purpose or reference names an invoice number. Transactions already
// imported are recognised by their reference and skipped, so running the
// import twice over the same statement books each transfer once.
func (im *Importer) Import(ctx context.Context, worksheet string) (*ImportSummary, error) {
	const op = "Import"

	transactions, skipped, err := im.reader.Read(ctx, worksheet)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	summary := &ImportSummary{
		Worksheet: worksheet,
		Rows:      len(transactions) + skipped,
		Skipped:   skipped,
	}

	incoming := lo.Filter(transactions, func(t Transaction, _ int) bool { return t.Incoming() })
	summary.Outgoing = len(transactions) - len(incoming)

	for _, tx := range incoming {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("%s: %w", op, err)
		}

		res := im.importTransaction(ctx, tx)
		switch res.Outcome {
		case OutcomeRecorded:
			summary.Recorded++
		case OutcomeDuplicate:
			summary.Duplicates++
		case OutcomeUnmatched:
			summary.Unmatched++
		case OutcomeSettled:
			summary.Settled++
		default:
			summary.Failed++
		}
		summary.Results = append(summary.Results, res)
	}

	im.log.Info().
		Str("sheet", worksheet).
		Int("rows", summary.Rows).
		Int("recorded", summary.Recorded).
		Int("duplicates", summary.Duplicates).
		Int("unmatched", summary.Unmatched).
		Int("failed", summary.Failed).
		Msg("Payment import completed")

	return summary, nil
}

func (im *Importer) importTransaction(ctx context.Context, tx Transaction) Result {
	number := MatchInvoiceNumber(tx)
	ref := PaymentReference(tx, number)
	res := Result{
		Row:           tx.Row,
		Reference:     ref,
		InvoiceNumber: number,
		Amount:        tx.Amount.StringFixed(2),
	}

	log := im.log.With().Int("row", tx.Row).Str("reference", ref).Logger()

	if number == "" {
		log.Debug().Str("purpose", tx.Purpose).Msg("No invoice number in transaction")
		res.Outcome = OutcomeUnmatched
		return res
	}

	exists, err := im.store.PaymentExists(ctx, ref)
	if err != nil {
		return failed(res, err)
	}
	if exists {
		res.Outcome = OutcomeDuplicate
		return res
	}

	inv, err := im.store.FindInvoiceByNumber(ctx, number)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn().Str("invoice_number", number).Msg("Transaction references unknown invoice")
		res.Outcome = OutcomeUnmatched
		return res
	}
	if err != nil {
		return failed(res, err)
	}
	res.InvoiceID = inv.ID

	if inv.Status == models.InvoiceStatusPaid || inv.Status == models.InvoiceStatusCancelled {
		log.Warn().
			Str("invoice_number", number).
			Str("status", string(inv.Status)).
			Msg("Transaction references a settled invoice, not booking")
		res.Outcome = OutcomeSettled
		res.Status = string(inv.Status)
		return res
	}

	updated, err := im.recorder.RecordPayment(ctx, inv.ID, orchestrator.PaymentInput{
		Amount:    tx.Amount,
		Method:    MethodBankTransfer,
		Reference: ref,
		PaidAt:    tx.Date,
	})
	if err != nil {
		log.Error().Err(err).Str("invoice_number", number).Msg("Failed to record payment")
		return failed(res, err)
	}

	res.Outcome = OutcomeRecorded
	res.Status = string(updated.Status)
	return res
}

func failed(res Result, err error) Result {
	res.Outcome = OutcomeFailed
	res.Error = err.Error()
	return res
}

// MatchInvoiceNumber finds the first invoice number in the transaction's
// purpose, then its reference, then its description.
func MatchInvoiceNumber(tx Transaction) string {
	for _, text := range []string{tx.Purpose, tx.Reference, tx.Description} {
		if m := invoiceNumberPattern.FindString(strings.ToUpper(text)); m != "" {
			return m
		}
	}
	return ""
}

// PaymentReference is the idempotency key of a transaction: its bank
// reference when present, otherwise its date, amount and invoice number.
func PaymentReference(tx Transaction, invoiceNumber string) string {
	ref := strings.TrimSpace(tx.Reference)
	if ref != "" && !strings.EqualFold(ref, "NOTPROVIDED") {
		return ref
	}
	return fmt.Sprintf("stmt:%s:%s:%s", tx.Date.Format("2006-01-02"), tx.Amount.StringFixed(2), invoiceNumber)
}
