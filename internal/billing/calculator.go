// Package billing turns contract terms into invoice amounts and billing dates.
//
// Everything here is pure computation: no I/O, no clock reads (callers pass now).
// Amounts use decimal arithmetic and are rounded to cents; the total is derived
// from the rounded parts so Total == Subtotal + Tax - Discount holds exactly.
package billing

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"autobill/pkg/models"
)

const (
	// DueDays is the fixed payment term applied to every invoice.
	DueDays = 30

	// InvoiceNumberPrefix starts every generated invoice number.
	InvoiceNumberPrefix = "INV-"

	centsPlaces = 2
)

var hundred = decimal.NewFromInt(100)

// Computation is the result of billing a contract once.
type Computation struct {
	InvoiceNumber string
	IssueDate     time.Time
	DueDate       time.Time

	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal

	// NextBillingDate is nil when the contract will not bill again.
	NextBillingDate *time.Time
}

// Calculator computes invoice amounts. The suffix source is replaceable so
// invoice numbers are reproducible in tests.
type Calculator struct {
	suffix func() int
}

// NewCalculator returns a Calculator drawing invoice suffixes from math/rand.
func NewCalculator() *Calculator {
	return &Calculator{suffix: func() int { return rand.IntN(10000) }}
}

// NewCalculatorWithSuffix returns a Calculator using the given suffix source.
func NewCalculatorWithSuffix(suffix func() int) *Calculator {
	return &Calculator{suffix: suffix}
}

// Compute bills the contract at now.
func (c *Calculator) Compute(contract *models.Contract, now time.Time) (*Computation, error) {
	if err := checkContract(contract); err != nil {
		return nil, err
	}

	subtotal := contract.Amount.Decimal.Round(centsPlaces)
	tax := percentOf(subtotal, contract.TaxRate)
	discount := percentOf(subtotal, contract.DiscountPercentage)

	base := now
	if contract.NextBillingDate != nil {
		base = *contract.NextBillingDate
	}
	next, err := NextBillingDate(base, contract.BillingFrequency)
	if err != nil {
		return nil, err
	}

	return &Computation{
		InvoiceNumber:   c.InvoiceNumber(now),
		IssueDate:       now,
		DueDate:         DueDate(now),
		Subtotal:        subtotal,
		Tax:             tax,
		Discount:        discount,
		Total:           subtotal.Add(tax).Sub(discount),
		NextBillingDate: next,
	}, nil
}

// InvoiceNumber formats INV-YYYYMMDD-NNNN for now with a fresh random suffix.
// Uniqueness is not checked here; the invoice store rejects collisions.
func (c *Calculator) InvoiceNumber(now time.Time) string {
	return fmt.Sprintf("%s%s-%04d", InvoiceNumberPrefix, now.Format("20060102"), c.suffix()%10000)
}

// DueDate returns issue + DueDays.
func DueDate(issue time.Time) time.Time {
	return issue.AddDate(0, 0, DueDays)
}

// NextBillingDate advances current by one billing interval.
//
// Month-based intervals clamp to the last day of the target month, so
// Jan 31 advances to Feb 28 (or 29) rather than spilling into March.
// One-time contracts return nil.
func NextBillingDate(current time.Time, frequency models.BillingFrequency) (*time.Time, error) {
	var next time.Time
	switch frequency {
	case models.FrequencyMonthly:
		next = addMonths(current, 1)
	case models.FrequencyQuarterly:
		next = addMonths(current, 3)
	case models.FrequencyYearly:
		next = addMonths(current, 12)
	case models.FrequencyOneTime:
		return nil, nil
	default:
		return nil, NewInvalidContractError("billing_frequency", frequency, "unknown billing frequency")
	}
	return &next, nil
}

func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(firstOfMonth time.Time) int {
	return firstOfMonth.AddDate(0, 1, -1).Day()
}

func percentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(hundred).Round(centsPlaces)
}

func checkContract(contract *models.Contract) error {
	if contract == nil {
		return NewInvalidContractError("contract", nil, "contract is nil")
	}
	if !contract.Amount.Valid {
		return NewInvalidContractError("amount", nil, "amount is required")
	}
	if contract.Amount.Decimal.IsNegative() {
		return NewInvalidContractError("amount", contract.Amount.Decimal.String(), "amount must not be negative")
	}
	if contract.TaxRate.IsNegative() {
		return NewInvalidContractError("tax_rate", contract.TaxRate.String(), "tax rate must not be negative")
	}
	if contract.DiscountPercentage.IsNegative() || contract.DiscountPercentage.GreaterThan(hundred) {
		return NewInvalidContractError("discount_percentage", contract.DiscountPercentage.String(), "discount must be between 0 and 100")
	}
	if !contract.BillingFrequency.Valid() {
		return NewInvalidContractError("billing_frequency", contract.BillingFrequency, "unknown billing frequency")
	}
	return nil
}
