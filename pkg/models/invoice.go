package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the delivery/payment lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusValidated InvoiceStatus = "validated"
	InvoiceStatusFlagged   InvoiceStatus = "flagged"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Final reports whether the invoice no longer accepts pipeline mutations.
func (s InvoiceStatus) Final() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// AIStatus is the outcome of the latest AI validation run.
type AIStatus string

const (
	AIStatusPending   AIStatus = "pending"
	AIStatusValidated AIStatus = "validated"
	AIStatusFlagged   AIStatus = "flagged"
	AIStatusFailed    AIStatus = "failed"
)

// Invoice is one billing event derived from a Contract.
type Invoice struct {
	// Core identifiers
	ID            uint     `gorm:"primaryKey" json:"id"`
	InvoiceNumber string   `gorm:"uniqueIndex;not null" json:"invoice_number"` // INV-YYYYMMDD-NNNN
	CustomerID    uint     `gorm:"not null;index" json:"customer_id"`
	Customer      Customer `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	ContractID    uint     `gorm:"not null;index" json:"contract_id"`

	// Dates
	IssueDate time.Time  `gorm:"not null" json:"issue_date"`
	DueDate   time.Time  `gorm:"not null;index" json:"due_date"` // IssueDate + 30 days
	SentAt    *time.Time `json:"sent_at,omitempty"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`

	// Amounts, computed once at creation: Total = Subtotal + TaxAmount - DiscountAmount
	Subtotal       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"tax_amount"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"discount_amount"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	AmountPaid     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"amount_paid"`
	Currency       string          `gorm:"size:3;not null;default:'EUR'" json:"currency"`

	// Status
	Status InvoiceStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	// Stored PDF, empty until generated
	PDFURL      string `json:"pdf_url,omitempty"`
	PDFObjectID string `json:"pdf_object_id,omitempty"`

	// Latest AI validation summary
	AIValidationStatus AIStatus   `gorm:"type:varchar(20);not null" json:"ai_validation_status"`
	AnomalyScore       int        `gorm:"not null;default:0" json:"anomaly_score"`
	ValidatedAt        *time.Time `json:"validated_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsBalanced checks the creation-time amount invariant.
func (i *Invoice) IsBalanced() bool {
	return i.Subtotal.Add(i.TaxAmount).Sub(i.DiscountAmount).Equal(i.TotalAmount)
}

// Outstanding returns the unpaid remainder of the invoice total.
func (i *Invoice) Outstanding() decimal.Decimal {
	rest := i.TotalAmount.Sub(i.AmountPaid)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// Urgency buckets how late an overdue invoice is. Reporting only.
type Urgency string

const (
	UrgencyLow      Urgency = "low"      // 1-7 days
	UrgencyMedium   Urgency = "medium"   // 8-14 days
	UrgencyHigh     Urgency = "high"     // 15-30 days
	UrgencyCritical Urgency = "critical" // more than 30 days
)
