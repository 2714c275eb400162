package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseGermanAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.234,56", "1234.56"},
		{"1234,56", "1234.56"},
		{"-89,90", "-89.9"},
		{"108,50 €", "108.5"},
		{"EUR 42", "42"},
		{"- 5,00", "-5"},
		{"", "0"},
		{"12.5", "12.5"},
	}
	for _, tt := range tests {
		got, err := parseGermanAmount(tt.in)
		if err != nil {
			t.Errorf("parseGermanAmount(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("parseGermanAmount(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	if _, err := parseGermanAmount("abc"); err == nil {
		t.Error("expected error for non-numeric amount")
	}
}

func TestParseGermanDate(t *testing.T) {
	want := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"04.03.2026", "4.3.2026", "04.03.26", "2026-03-04"} {
		got, err := parseGermanDate(in)
		if err != nil || !got.Equal(want) {
			t.Errorf("parseGermanDate(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := parseGermanDate(""); err == nil {
		t.Error("expected error for empty date")
	}
	if _, err := parseGermanDate("March 4"); err == nil {
		t.Error("expected error for unknown format")
	}
}

type rangeReaderFunc func(ctx context.Context, rangeSpec string) ([][]interface{}, error)

func (f rangeReaderFunc) ReadRange(ctx context.Context, rangeSpec string) ([][]interface{}, error) {
	return f(ctx, rangeSpec)
}

func TestStatementReaderSkipsBadRows(t *testing.T) {
	var gotRange string
	r := NewStatementReader(rangeReaderFunc(func(_ context.Context, rangeSpec string) ([][]interface{}, error) {
		gotRange = rangeSpec
		return [][]interface{}{
			{"Datum", "Typ", "Beschreibung", "EREF", "MREF", "CRED", "SVWZ", "Name", "BIC", "IBAN", "Betrag"},
			{"14.03.2026", "Gutschrift", "", "E2E-1", "", "", "INV-20260301-0001", "Acme", "BIC", "DE00", "108,50"},
			{"14.03.2026", "too", "short"},
			{"kein Datum", "Gutschrift", "", "", "", "", "", "", "", "", "1,00"},
		}, nil
	}))

	txs, skipped, err := r.Read(context.Background(), "Bank")
	if err != nil {
		t.Fatal(err)
	}
	if gotRange != "Bank!A:K" {
		t.Errorf("range = %s", gotRange)
	}
	if len(txs) != 1 || skipped != 2 {
		t.Fatalf("got %d transactions, %d skipped", len(txs), skipped)
	}
	tx := txs[0]
	if tx.Row != 2 || tx.Reference != "E2E-1" || tx.Purpose != "INV-20260301-0001" || tx.IBAN != "DE00" || !tx.Incoming() {
		t.Fatalf("transaction = %+v", tx)
	}
}

func TestStatementReaderErrors(t *testing.T) {
	boom := errors.New("boom")
	r := NewStatementReader(rangeReaderFunc(func(context.Context, string) ([][]interface{}, error) { return nil, boom }))
	if _, _, err := r.Read(context.Background(), "Bank"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped read error, got %v", err)
	}

	empty := NewStatementReader(rangeReaderFunc(func(context.Context, string) ([][]interface{}, error) { return nil, nil }))
	if _, _, err := empty.Read(context.Background(), "Bank"); err == nil {
		t.Fatal("expected error for empty sheet")
	}
}
