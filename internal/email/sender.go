// Package email delivers invoices and payment reminders over SMTP.
package email

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"autobill/internal/invoice"
	"autobill/internal/logger"
	"autobill/pkg/models"
)

// ErrNoRecipient is returned when the customer has no email address.
var ErrNoRecipient = errors.New("customer has no email address")

// Dialer sends messages. *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// InvoiceStore is what the sender reads and updates.
type InvoiceStore interface {
	GetInvoice(ctx context.Context, id uint) (*models.Invoice, error)
	MarkSent(ctx context.Context, id uint, at time.Time) error
}

// Config configures the SMTP sender.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Company  string
}

// Sender implements invoice.Notifier.
type Sender struct {
	dialer   Dialer
	store    InvoiceStore
	renderer invoice.Renderer // optional, attaches the PDF
	config   Config
	now      func() time.Time
	log      zerolog.Logger
}

// NewSender creates a sender dialing the configured SMTP server.
func NewSender(config Config, store InvoiceStore, renderer invoice.Renderer) *Sender {
	d := gomail.NewDialer(config.Host, config.Port, config.Username, config.Password)
	return NewSenderWithDialer(d, config, store, renderer)
}

// NewSenderWithDialer creates a sender with an explicit dialer.
func NewSenderWithDialer(dialer Dialer, config Config, store InvoiceStore, renderer invoice.Renderer) *Sender {
	return &Sender{
		dialer:   dialer,
		store:    store,
		renderer: renderer,
		config:   config,
		now:      time.Now,
		log:      logger.WithComponent("email"),
	}
}

// SendInvoice emails the invoice with its PDF and marks it sent. The PDF is
// document when non-empty, otherwise it is rendered from the invoice row.
func (s *Sender) SendInvoice(ctx context.Context, invoiceID uint, document []byte) (*invoice.Receipt, error) {
	const op = "SendInvoice"

	inv, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if inv.Customer.Email == "" {
		return nil, fmt.Errorf("%s: invoice %s: %w", op, inv.InvoiceNumber, ErrNoRecipient)
	}

	data := invoiceData{
		CustomerName:  inv.Customer.Name,
		InvoiceNumber: inv.InvoiceNumber,
		IssueDate:     inv.IssueDate.Format("02 Jan 2006"),
		DueDate:       inv.DueDate.Format("02 Jan 2006"),
		Subtotal:      amount(inv, inv.Subtotal.StringFixed(2)),
		Tax:           amount(inv, inv.TaxAmount.StringFixed(2)),
		Total:         amount(inv, inv.TotalAmount.StringFixed(2)),
		PDFURL:        inv.PDFURL,
		Company:       s.config.Company,
	}
	if !inv.DiscountAmount.IsZero() {
		data.Discount = amount(inv, inv.DiscountAmount.StringFixed(2))
	}
	html, err := render(invoiceTemplate, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	m := s.newMessage(inv.Customer.Email, fmt.Sprintf("Invoice %s from %s", inv.InvoiceNumber, s.config.Company))
	m.SetBody("text/plain", fmt.Sprintf("Invoice %s: %s due by %s.", inv.InvoiceNumber, data.Total, data.DueDate))
	m.AddAlternative("text/html", html)

	doc := document
	if len(doc) == 0 && s.renderer != nil {
		if doc, err = s.renderer.Render(ctx, inv.ID); err != nil {
			return nil, fmt.Errorf("%s: attach PDF: %w", op, err)
		}
	}
	if len(doc) > 0 {
		m.Attach(inv.InvoiceNumber+".pdf",
			gomail.SetHeader(map[string][]string{"Content-Type": {"application/pdf"}}),
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(doc)
				return err
			}),
		)
	}

	receipt, err := s.send(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("%s: invoice %s: %w", op, inv.InvoiceNumber, err)
	}

	if err := s.store.MarkSent(ctx, inv.ID, receipt.SentAt); err != nil {
		return receipt, fmt.Errorf("%s: delivered but not marked sent: %w", op, err)
	}

	s.log.Info().
		Uint("invoice_id", inv.ID).
		Str("invoice_number", inv.InvoiceNumber).
		Str("to", inv.Customer.Email).
		Str("message_id", receipt.MessageID).
		Msg("Invoice email sent")

	return receipt, nil
}

// SendReminder emails an overdue notice. Status changes are left to the caller.
func (s *Sender) SendReminder(ctx context.Context, r invoice.Reminder) (*invoice.Receipt, error) {
	const op = "SendReminder"

	inv, err := s.store.GetInvoice(ctx, r.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if inv.Customer.Email == "" {
		return nil, fmt.Errorf("%s: invoice %s: %w", op, inv.InvoiceNumber, ErrNoRecipient)
	}

	html, err := render(reminderTemplate, reminderData{
		CustomerName:  inv.Customer.Name,
		InvoiceNumber: inv.InvoiceNumber,
		DueDate:       inv.DueDate.Format("02 Jan 2006"),
		DaysOverdue:   r.DaysOverdue,
		Urgency:       string(r.Urgency),
		Outstanding:   amount(inv, inv.Outstanding().StringFixed(2)),
		Company:       s.config.Company,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	subject := fmt.Sprintf("Payment reminder: invoice %s is %d days overdue", inv.InvoiceNumber, r.DaysOverdue)
	if r.Urgency == models.UrgencyCritical {
		subject = "Final notice: " + subject
	}

	m := s.newMessage(inv.Customer.Email, subject)
	m.SetBody("text/plain", fmt.Sprintf("Invoice %s was due on %s. Outstanding: %s.", inv.InvoiceNumber, inv.DueDate.Format("02 Jan 2006"), amount(inv, inv.Outstanding().StringFixed(2))))
	m.AddAlternative("text/html", html)

	receipt, err := s.send(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("%s: invoice %s: %w", op, inv.InvoiceNumber, err)
	}

	s.log.Info().
		Uint("invoice_id", inv.ID).
		Int("days_overdue", r.DaysOverdue).
		Str("urgency", string(r.Urgency)).
		Str("message_id", receipt.MessageID).
		Msg("Reminder email sent")

	return receipt, nil
}

func (s *Sender) newMessage(to, subject string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.config.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetHeader("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(s.config.From)))
	m.SetDateHeader("Date", s.now())
	return m
}

// send runs the SMTP exchange, giving up when ctx is done. gomail has no
// context support, so an abandoned exchange finishes in the background.
func (s *Sender) send(ctx context.Context, m *gomail.Message) (*invoice.Receipt, error) {
	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("%w: %v", invoice.ErrDeliveryFailed, err)
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", invoice.ErrDeliveryFailed, ctx.Err())
	}

	id := ""
	if h := m.GetHeader("Message-ID"); len(h) > 0 {
		id = h[0]
	}
	return &invoice.Receipt{MessageID: id, SentAt: s.now()}, nil
}

func amount(inv *models.Invoice, v string) string {
	return v + " " + inv.Currency
}

func domainOf(addr string) string {
	addr = strings.TrimSuffix(strings.TrimSpace(addr), ">")
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
