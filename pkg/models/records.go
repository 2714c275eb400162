package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ValidationLog is an append-only record of one validation run for an invoice.
type ValidationLog struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	InvoiceID    uint           `gorm:"not null;index" json:"invoice_id"`
	Status       AIStatus       `gorm:"type:varchar(20);not null" json:"status"`
	AnomalyScore int            `gorm:"not null" json:"anomaly_score"`
	Flags        datatypes.JSON `json:"flags"` // []string
	Suggestions  string         `json:"suggestions"`
	Confidence   int            `json:"confidence"`

	// Duplicate check sub-result
	IsDuplicate          bool   `gorm:"not null" json:"is_duplicate"`
	DuplicateOf          string `json:"duplicate_of,omitempty"`
	SimilarityScore      int    `json:"similarity_score"`
	DuplicateExplanation string `json:"duplicate_explanation,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// AuditLog is a durable record of a pipeline or administrative event.
type AuditLog struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	EventID     string            `gorm:"uniqueIndex;size:36;not null" json:"event_id"`
	Action      string            `gorm:"index;not null" json:"action"` // e.g. "invoice.created", "billing.cycle_completed"
	EntityType  string            `gorm:"index" json:"entity_type"`
	EntityID    string            `gorm:"index" json:"entity_id"`
	Description string            `json:"description"`
	Metadata    datatypes.JSONMap `json:"metadata"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Payment records money received against an invoice.
type Payment struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	InvoiceID uint            `gorm:"not null;index" json:"invoice_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Method    string          `json:"method"`    // bank-transfer, card, cash
	Reference string          `json:"reference"` // bank ref, transaction id
	PaidAt    time.Time       `gorm:"not null" json:"paid_at"`
	CreatedAt time.Time       `json:"created_at"`
}

// All lists every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&Customer{}, &Contract{}, &Invoice{}, &ValidationLog{}, &AuditLog{}, &Payment{},
	}
}
