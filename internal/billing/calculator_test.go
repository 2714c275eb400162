package billing

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"autobill/pkg/models"
)

func contractFor(amount, tax, discount string, freq models.BillingFrequency, next time.Time) *models.Contract {
	return &models.Contract{
		ID:                 1,
		CustomerID:         7,
		Amount:             decimal.NewNullDecimal(decimal.RequireFromString(amount)),
		TaxRate:            decimal.RequireFromString(tax),
		DiscountPercentage: decimal.RequireFromString(discount),
		BillingFrequency:   freq,
		NextBillingDate:    &next,
		Active:             true,
	}
}

func TestComputeScenario(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	calc := NewCalculatorWithSuffix(func() int { return 42 })

	got, err := calc.Compute(contractFor("5000", "8.5", "0", models.FrequencyMonthly, now), now)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	want := map[string]string{
		"subtotal": "5000.00",
		"tax":      "425.00",
		"discount": "0.00",
		"total":    "5425.00",
	}
	have := map[string]string{
		"subtotal": got.Subtotal.StringFixed(2),
		"tax":      got.Tax.StringFixed(2),
		"discount": got.Discount.StringFixed(2),
		"total":    got.Total.StringFixed(2),
	}
	for k, v := range want {
		if have[k] != v {
			t.Errorf("%s: got %s want %s", k, have[k], v)
		}
	}
	if got.InvoiceNumber != "INV-20260314-0042" {
		t.Errorf("invoice number: got %s", got.InvoiceNumber)
	}
}

func TestComputeTotalInvariant(t *testing.T) {
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	calc := NewCalculator()
	amounts := []string{"0", "0.01", "19.99", "333.33", "1234.565", "99999.99"}
	rates := []string{"0", "7", "8.5", "19", "21.375"}
	discounts := []string{"0", "2.5", "10", "33.333", "100"}

	for _, a := range amounts {
		for _, r := range rates {
			for _, d := range discounts {
				got, err := calc.Compute(contractFor(a, r, d, models.FrequencyYearly, now), now)
				if err != nil {
					t.Fatalf("compute(%s,%s,%s): %v", a, r, d, err)
				}
				sum := got.Subtotal.Add(got.Tax).Sub(got.Discount)
				if !sum.Equal(got.Total) {
					t.Fatalf("amount %s rate %s discount %s: total %s != %s", a, r, d, got.Total, sum)
				}
				if got.Total.Exponent() < -2 {
					t.Fatalf("total %s has more than 2 decimals", got.Total)
				}
			}
		}
	}
}

func TestDueDateIsThirtyDaysForEveryFrequency(t *testing.T) {
	now := time.Date(2026, 2, 27, 15, 30, 0, 0, time.UTC)
	calc := NewCalculator()
	for _, f := range []models.BillingFrequency{
		models.FrequencyMonthly, models.FrequencyQuarterly, models.FrequencyYearly, models.FrequencyOneTime,
	} {
		got, err := calc.Compute(contractFor("100", "0", "0", f, now), now)
		if err != nil {
			t.Fatalf("%s: %v", f, err)
		}
		if !got.IssueDate.Equal(now) {
			t.Errorf("%s: issue date %v", f, got.IssueDate)
		}
		if want := now.AddDate(0, 0, 30); !got.DueDate.Equal(want) {
			t.Errorf("%s: due date %v want %v", f, got.DueDate, want)
		}
	}
}

func TestNextBillingDate(t *testing.T) {
	start := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		freq models.BillingFrequency
		want *time.Time
	}{
		{models.FrequencyMonthly, ptr(time.Date(2026, 2, 15, 9, 0, 0, 0, time.UTC))},
		{models.FrequencyQuarterly, ptr(time.Date(2026, 4, 15, 9, 0, 0, 0, time.UTC))},
		{models.FrequencyYearly, ptr(time.Date(2027, 1, 15, 9, 0, 0, 0, time.UTC))},
		{models.FrequencyOneTime, nil},
	}
	for _, tt := range tests {
		got, err := NextBillingDate(start, tt.freq)
		if err != nil {
			t.Fatalf("%s: %v", tt.freq, err)
		}
		switch {
		case tt.want == nil && got != nil:
			t.Errorf("%s: expected nil, got %v", tt.freq, *got)
		case tt.want != nil && (got == nil || !got.Equal(*tt.want)):
			t.Errorf("%s: got %v want %v", tt.freq, got, *tt.want)
		}
	}
}

func TestNextBillingDateMonthlyRepeatedAdvance(t *testing.T) {
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	first, _ := NextBillingDate(start, models.FrequencyMonthly)
	second, _ := NextBillingDate(*first, models.FrequencyMonthly)

	if want := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC); !first.Equal(want) {
		t.Fatalf("first advance: got %v want %v", *first, want)
	}
	if want := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC); !second.Equal(want) {
		t.Fatalf("second advance: got %v want %v", *second, want)
	}
}

func TestNextBillingDateClampsMonthEnd(t *testing.T) {
	got, _ := NextBillingDate(time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), models.FrequencyMonthly)
	if want := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("got %v want %v", *got, want)
	}
	leap, _ := NextBillingDate(time.Date(2027, 11, 30, 0, 0, 0, 0, time.UTC), models.FrequencyQuarterly)
	if want := time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC); !leap.Equal(want) {
		t.Fatalf("got %v want %v", *leap, want)
	}
}

func TestComputeRejectsMalformedContract(t *testing.T) {
	now := time.Now()
	missing := contractFor("1", "0", "0", models.FrequencyMonthly, now)
	missing.Amount = decimal.NullDecimal{}

	negative := contractFor("-5", "0", "0", models.FrequencyMonthly, now)
	badFreq := contractFor("5", "0", "0", models.BillingFrequency("weekly"), now)

	for name, c := range map[string]*models.Contract{
		"missing amount": missing,
		"negative":       negative,
		"frequency":      badFreq,
		"nil":            nil,
	} {
		_, err := NewCalculator().Compute(c, now)
		var ice *InvalidContractError
		if !errors.As(err, &ice) || !errors.Is(err, ErrInvalidContract) {
			t.Errorf("%s: expected InvalidContractError, got %v", name, err)
		}
	}
}

func TestInvoiceNumberFormat(t *testing.T) {
	re := regexp.MustCompile(`^INV-\d{8}-\d{4}$`)
	calc := NewCalculator()
	now := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 200; i++ {
		if n := calc.InvoiceNumber(now); !re.MatchString(n) {
			t.Fatalf("bad invoice number %q", n)
		}
	}
	if n := NewCalculatorWithSuffix(func() int { return 7 }).InvoiceNumber(now); n != "INV-20261014-0007" {
		t.Fatalf("got %s", n)
	}
}

func ptr(t time.Time) *time.Time { return &t }
