// Package payments imports incoming bank transfers from a statement
// worksheet and books them against the invoices they reference.
package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"autobill/internal/logger"
)

// RangeReader reads a block of cell values, header row included.
type RangeReader interface {
	ReadRange(ctx context.Context, rangeSpec string) ([][]interface{}, error)
}

// Transaction is one parsed statement row.
type Transaction struct {
	Row          int             `json:"row"`
	Date         time.Time       `json:"date"`
	Type         string          `json:"type"`
	Description  string          `json:"description"`
	Reference    string          `json:"reference"` // end-to-end reference (EREF)
	Purpose      string          `json:"purpose"`   // remittance information (SVWZ)
	CounterParty string          `json:"counter_party"`
	IBAN         string          `json:"iban"`
	Amount       decimal.Decimal `json:"amount"` // negative for outgoing transfers
}

// Incoming reports whether money was received.
func (t Transaction) Incoming() bool {
	return t.Amount.IsPositive()
}

// StatementReader parses bank transactions from a worksheet laid out as
// A=Datum, B=Transaktionstyp, C=Beschreibung, D=EREF, E=MREF, F=CRED,
// G=SVWZ, H=Empfänger/Absender, I=BIC, J=IBAN, K=Betrag.
type StatementReader struct {
	reader RangeReader
	log    zerolog.Logger
}

// NewStatementReader creates a reader over r.
func NewStatementReader(r RangeReader) *StatementReader {
	return &StatementReader{
		reader: r,
		log:    logger.WithComponent("payments-reader"),
	}
}

// Read returns the parsable transactions of worksheet. Short or malformed
// rows are logged and skipped; the count of skipped rows is returned too.
func (sr *StatementReader) Read(ctx context.Context, worksheet string) ([]Transaction, int, error) {
	const op = "Read"

	values, err := sr.reader.ReadRange(ctx, worksheet+"!A:K")
	if err != nil {
		return nil, 0, fmt.Errorf("%s: failed to read %s sheet: %w", op, worksheet, err)
	}
	if len(values) == 0 {
		return nil, 0, fmt.Errorf("%s: %s sheet is empty", op, worksheet)
	}

	var (
		transactions []Transaction
		skipped      int
	)
	for i, row := range values[1:] {
		rowNum := i + 2 // header plus 1-based rows

		if len(row) < 11 {
			sr.log.Warn().
				Int("row", rowNum).
				Int("columns", len(row)).
				Msg("Skipping bank transaction row with insufficient columns")
			skipped++
			continue
		}

		tx, err := parseTransaction(row, rowNum)
		if err != nil {
			sr.log.Warn().Err(err).Int("row", rowNum).Msg("Failed to parse bank transaction, skipping")
			skipped++
			continue
		}
		transactions = append(transactions, tx)
	}

	sr.log.Info().
		Int("total_rows", len(values)-1).
		Int("parsed_transactions", len(transactions)).
		Str("sheet", worksheet).
		Msg("Bank transactions read successfully")

	return transactions, skipped, nil
}

func parseTransaction(row []interface{}, rowNum int) (Transaction, error) {
	const op = "parseTransaction"

	dateStr := getString(row, 0)
	date, err := parseGermanDate(dateStr)
	if err != nil {
		return Transaction{}, fmt.Errorf("%s: invalid date '%s' in row %d: %w", op, dateStr, rowNum, err)
	}

	amountStr := getString(row, 10)
	amount, err := parseGermanAmount(amountStr)
	if err != nil {
		return Transaction{}, fmt.Errorf("%s: invalid amount '%s' in row %d: %w", op, amountStr, rowNum, err)
	}

	return Transaction{
		Row:          rowNum,
		Date:         date,
		Type:         getString(row, 1),
		Description:  getString(row, 2),
		Reference:    getString(row, 3),
		Purpose:      getString(row, 6),
		CounterParty: getString(row, 7),
		IBAN:         getString(row, 9),
		Amount:       amount,
	}, nil
}

var dateFormats = []string{
	"02.01.2006",
	"2.1.2006",
	"02.01.06",
	"2.1.06",
	"2006-01-02",
}

// parseGermanDate parses DD.MM.YYYY and its short variants, with ISO dates as fallback.
func parseGermanDate(dateStr string) (time.Time, error) {
	cleaned := strings.TrimSpace(dateStr)
	if cleaned == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}
	for _, format := range dateFormats {
		if date, err := time.Parse(format, cleaned); err == nil {
			return date, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", dateStr)
}

// parseGermanAmount parses amounts like "1.234,56 €" or "-89,90".
// A lone comma followed by at most two digits is the decimal separator.
func parseGermanAmount(amountStr string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(amountStr)
	if cleaned == "" {
		return decimal.Zero, nil
	}

	negative := strings.HasPrefix(cleaned, "-")
	if negative {
		cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, "-"))
	}

	cleaned = strings.NewReplacer(" ", "", "€", "", "EUR", "", "USD", "").Replace(cleaned)

	if strings.Contains(cleaned, ",") {
		if strings.Contains(cleaned, ".") {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		} else if parts := strings.Split(cleaned, ","); len(parts) == 2 && len(parts[1]) <= 2 {
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		}
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to parse amount: %s (cleaned: %s)", amountStr, cleaned)
	}
	if negative {
		amount = amount.Neg()
	}
	return amount.Round(2), nil
}

// getString safely extracts a string value from a row slice
func getString(row []interface{}, index int) string {
	if index >= len(row) || row[index] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", row[index]))
}
