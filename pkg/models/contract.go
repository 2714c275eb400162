package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillingFrequency is how often a contract produces an invoice.
type BillingFrequency string

const (
	FrequencyMonthly   BillingFrequency = "monthly"
	FrequencyQuarterly BillingFrequency = "quarterly"
	FrequencyYearly    BillingFrequency = "yearly"
	FrequencyOneTime   BillingFrequency = "one_time"
)

// Valid reports whether f is a known frequency.
func (f BillingFrequency) Valid() bool {
	switch f {
	case FrequencyMonthly, FrequencyQuarterly, FrequencyYearly, FrequencyOneTime:
		return true
	}
	return false
}

// Customer is the billed party of a contract.
type Customer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Email     string    `gorm:"not null" json:"email"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Contract is a recurring billing agreement with a customer.
//
// NextBillingDate is nil only for a one-time contract that has already been invoiced.
type Contract struct {
	ID         uint     `gorm:"primaryKey" json:"id"`
	CustomerID uint     `gorm:"not null;index" json:"customer_id"`
	Customer   Customer `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Title      string   `json:"title"`

	Amount             decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"amount"`
	TaxRate            decimal.Decimal     `gorm:"type:decimal(5,2);not null;default:0" json:"tax_rate"`            // percent
	DiscountPercentage decimal.Decimal     `gorm:"type:decimal(5,2);not null;default:0" json:"discount_percentage"` // percent
	Currency           string              `gorm:"size:3;not null;default:'EUR'" json:"currency"`

	BillingFrequency BillingFrequency `gorm:"type:varchar(20);not null" json:"billing_frequency"`
	NextBillingDate  *time.Time       `gorm:"index" json:"next_billing_date,omitempty"`
	Active           bool             `gorm:"not null;index" json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
