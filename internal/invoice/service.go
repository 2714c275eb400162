// Package invoice holds the per-invoice pipeline contracts and the validation logic.
//
// The billing pipeline drives each invoice through the steps declared here:
// render the PDF, store it, validate the content, and notify the customer.
// Implementations live in their own packages (pdf, objectstore, email) and are
// injected into the orchestrator.
//
// Validation combines two independent AI verdicts:
//   - content correctness: are the amounts and dates consistent with the contract?
//   - duplicate detection: does the invoice repeat a recent one for the same customer?
//
// A collaborator failure never surfaces as an error from Validator.Validate.
// A failed correctness call becomes a "failed" verdict that blocks delivery, a
// failed duplicate call is treated as "not a duplicate".
package invoice

import (
	"context"
	"encoding/json"
	"time"

	"autobill/pkg/models"
)

// Renderer produces the PDF document for an invoice.
type Renderer interface {
	Render(ctx context.Context, invoiceID uint) ([]byte, error)
}

// StoredObject locates an uploaded PDF.
type StoredObject struct {
	URL      string
	ObjectID string
}

// ObjectStore persists generated PDFs.
type ObjectStore interface {
	Upload(ctx context.Context, data []byte, invoiceNumber string) (*StoredObject, error)
}

// ContentValidator asks for a correctness verdict on an invoice.
type ContentValidator interface {
	ValidateContent(ctx context.Context, inv *models.Invoice, contract *models.Contract) (*CorrectnessVerdict, error)
}

// DuplicateChecker compares an invoice against recent candidates.
type DuplicateChecker interface {
	CheckDuplicates(ctx context.Context, inv *models.Invoice, candidates []models.Invoice) (*DuplicateVerdict, error)
}

// CandidateFinder lists recent invoices of a customer, excluding one invoice.
type CandidateFinder interface {
	RecentForCustomer(ctx context.Context, customerID uint, since time.Time, excludeID uint) ([]models.Invoice, error)
}

// Receipt confirms an email hand-off.
type Receipt struct {
	MessageID string
	SentAt    time.Time
}

// Reminder describes one overdue notice.
type Reminder struct {
	InvoiceID   uint
	DaysOverdue int
	Urgency     models.Urgency
}

// Notifier delivers invoice and reminder emails. Transport errors are returned.
// SendInvoice attaches document when given, so the mailed PDF is the stored one;
// a nil document is rendered again.
type Notifier interface {
	SendInvoice(ctx context.Context, invoiceID uint, document []byte) (*Receipt, error)
	SendReminder(ctx context.Context, r Reminder) (*Receipt, error)
}

// CorrectnessVerdict is the AI content-correctness result.
type CorrectnessVerdict struct {
	Status       models.AIStatus `json:"status"`
	AnomalyScore int             `json:"anomaly_score"`
	Flags        []string        `json:"flags"`
	Suggestions  string          `json:"suggestions"`
	Confidence   int             `json:"confidence"`
}

// DuplicateVerdict is the duplicate-check result.
type DuplicateVerdict struct {
	IsDuplicate     bool   `json:"is_duplicate"`
	DuplicateOf     string `json:"duplicate_of,omitempty"`
	SimilarityScore int    `json:"similarity_score"`
	Explanation     string `json:"explanation,omitempty"`
}

// Verdict is the combined validation outcome of one run.
type Verdict struct {
	Status       models.AIStatus  `json:"status"`
	AnomalyScore int              `json:"anomaly_score"`
	Flags        []string         `json:"flags"`
	Suggestions  string           `json:"suggestions"`
	Confidence   int              `json:"confidence"`
	Duplicate    DuplicateVerdict `json:"duplicate_check"`
}

// Deliverable reports whether the invoice may be emailed without review.
func (v Verdict) Deliverable() bool {
	return v.Status == models.AIStatusValidated
}

// Log converts the verdict into its persisted form.
func (v Verdict) Log(invoiceID uint) *models.ValidationLog {
	flags := v.Flags
	if flags == nil {
		flags = []string{}
	}
	raw, _ := json.Marshal(flags)
	return &models.ValidationLog{
		InvoiceID:            invoiceID,
		Status:               v.Status,
		AnomalyScore:         v.AnomalyScore,
		Flags:                raw,
		Suggestions:          v.Suggestions,
		Confidence:           v.Confidence,
		IsDuplicate:          v.Duplicate.IsDuplicate,
		DuplicateOf:          v.Duplicate.DuplicateOf,
		SimilarityScore:      v.Duplicate.SimilarityScore,
		DuplicateExplanation: v.Duplicate.Explanation,
	}
}
