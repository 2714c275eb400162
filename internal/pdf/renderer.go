// Package pdf lays out invoice documents.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/divan/num2words"
	"github.com/phpdave11/gofpdf"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"autobill/internal/logger"
	"autobill/pkg/models"
)

// ErrEmptyDocument is returned when layout produced no bytes.
var ErrEmptyDocument = errors.New("rendered PDF is empty")

// InvoiceLoader resolves the data printed on an invoice.
type InvoiceLoader interface {
	GetInvoice(ctx context.Context, id uint) (*models.Invoice, error)
	GetContract(ctx context.Context, id uint) (*models.Contract, error)
}

// Issuer is the company printed in the letterhead.
type Issuer struct {
	Name    string
	Address string
	Email   string
}

// Renderer implements invoice.Renderer with gofpdf.
type Renderer struct {
	loader InvoiceLoader
	issuer Issuer
	log    zerolog.Logger
}

// NewRenderer creates a renderer reading invoices from loader.
func NewRenderer(loader InvoiceLoader, issuer Issuer) *Renderer {
	return &Renderer{
		loader: loader,
		issuer: issuer,
		log:    logger.WithComponent("pdf"),
	}
}

// Render produces a one-page A4 invoice.
func (r *Renderer) Render(ctx context.Context, invoiceID uint) ([]byte, error) {
	const op = "Render"

	inv, err := r.loader.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var title string
	if contract, err := r.loader.GetContract(ctx, inv.ContractID); err == nil {
		title = contract.Title
	} else {
		r.log.Debug().Err(err).Uint("contract_id", inv.ContractID).Msg("Contract not available for line item title")
	}
	if title == "" {
		title = fmt.Sprintf("Services under contract #%d", inv.ContractID)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	doc, err := r.layout(inv, title)
	if err != nil {
		return nil, fmt.Errorf("%s: invoice %s: %w", op, inv.InvoiceNumber, err)
	}

	r.log.Debug().
		Uint("invoice_id", inv.ID).
		Str("invoice_number", inv.InvoiceNumber).
		Int("size", len(doc)).
		Msg("Invoice PDF rendered")

	return doc, nil
}

func (r *Renderer) layout(inv *models.Invoice, lineTitle string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Invoice "+inv.InvoiceNumber, true)
	pdf.SetAuthor(r.issuer.Name, true)
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	// Letterhead
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr(r.issuer.Name), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	if r.issuer.Address != "" {
		pdf.CellFormat(0, 5, tr(r.issuer.Address), "", 1, "L", false, 0, "")
	}
	if r.issuer.Email != "" {
		pdf.CellFormat(0, 5, r.issuer.Email, "", 1, "L", false, 0, "")
	}
	pdf.Ln(8)

	// Header block
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, "INVOICE "+inv.InvoiceNumber, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(40, 6, "Issue date:", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, inv.IssueDate.Format("02 Jan 2006"), "", 1, "L", false, 0, "")
	pdf.CellFormat(40, 6, "Due date:", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, inv.DueDate.Format("02 Jan 2006"), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(0, 6, "Bill to", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 5, tr(inv.Customer.Name), "", 1, "L", false, 0, "")
	if inv.Customer.Address != "" {
		pdf.MultiCell(0, 5, tr(inv.Customer.Address), "", "L", false)
	}
	pdf.CellFormat(0, 5, inv.Customer.Email, "", 1, "L", false, 0, "")
	pdf.Ln(8)

	// Line item
	pdf.SetFillColor(235, 235, 235)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(130, 8, "Description", "1", 0, "L", true, 0, "")
	pdf.CellFormat(40, 8, "Amount", "1", 1, "R", true, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(130, 8, tr(lineTitle), "1", 0, "L", false, 0, "")
	pdf.CellFormat(40, 8, money(inv.Subtotal, inv.Currency), "1", 1, "R", false, 0, "")
	pdf.Ln(4)

	// Totals
	row := func(label string, amount decimal.Decimal, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 10)
		pdf.CellFormat(130, 7, label, "", 0, "R", false, 0, "")
		pdf.CellFormat(40, 7, money(amount, inv.Currency), "", 1, "R", false, 0, "")
	}
	row("Subtotal", inv.Subtotal, false)
	row("Tax", inv.TaxAmount, false)
	if !inv.DiscountAmount.IsZero() {
		row("Discount", inv.DiscountAmount.Neg(), false)
	}
	row("Total due", inv.TotalAmount, true)
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, "Amount in words: "+AmountInWords(inv.TotalAmount, inv.Currency), "", "L", false)
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 9)
	pdf.MultiCell(0, 5, fmt.Sprintf("Please pay within 30 days, by %s, quoting %s.", inv.DueDate.Format("02 Jan 2006"), inv.InvoiceNumber), "", "L", false)

	if err := pdf.Error(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, ErrEmptyDocument
	}
	return buf.Bytes(), nil
}

func money(d decimal.Decimal, currency string) string {
	return d.StringFixed(2) + " " + currency
}

// AmountInWords spells out an amount, e.g. "five thousand four hundred twenty-five EUR 00/100".
func AmountInWords(d decimal.Decimal, currency string) string {
	d = d.Round(2)
	whole := d.Truncate(0)
	cents := d.Sub(whole).Mul(decimal.NewFromInt(100)).Abs().IntPart()
	words := num2words.Convert(int(whole.IntPart()))
	return fmt.Sprintf("%s %s %02d/100", words, currency, cents)
}
