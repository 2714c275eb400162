package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"autobill/pkg/models"
)

// SaveValidationLog appends one validation run.
func (s *Store) SaveValidationLog(ctx context.Context, log *models.ValidationLog) error {
	if err := s.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("SaveValidationLog: %w", err)
	}
	return nil
}

// ValidationLogs lists the validation runs of an invoice, newest first.
func (s *Store) ValidationLogs(ctx context.Context, invoiceID uint) ([]models.ValidationLog, error) {
	var logs []models.ValidationLog
	err := s.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("id DESC").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("ValidationLogs: %w", err)
	}
	return logs, nil
}

// SaveAuditLog appends one audit record.
func (s *Store) SaveAuditLog(ctx context.Context, entry *models.AuditLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("SaveAuditLog: %w", err)
	}
	return nil
}

// AuditLogs returns audit records of one action, newest first. An empty action lists all.
func (s *Store) AuditLogs(ctx context.Context, action string) ([]models.AuditLog, error) {
	q := s.db.WithContext(ctx).Order("id DESC")
	if action != "" {
		q = q.Where("action = ?", action)
	}
	var entries []models.AuditLog
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("AuditLogs: %w", err)
	}
	return entries, nil
}

// RecordPayment stores a payment and adds it to the invoice's paid amount.
// An invoice whose payments reach its total becomes paid.
func (s *Store) RecordPayment(ctx context.Context, p *models.Payment) (*models.Invoice, error) {
	const op = "RecordPayment"

	if !p.Amount.IsPositive() {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidPayment)
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = time.Now()
	}
	p.PaidAt = p.PaidAt.UTC()

	var updated models.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv models.Invoice
		if err := tx.First(&inv, p.InvoiceID).Error; err != nil {
			return translate(op, err)
		}
		if inv.Status == models.InvoiceStatusCancelled {
			return fmt.Errorf("%s: invoice %d: %w", op, inv.ID, ErrInvoiceFinal)
		}

		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		fields := map[string]interface{}{
			"amount_paid": inv.AmountPaid.Add(p.Amount).Round(2),
		}
		if inv.Status != models.InvoiceStatusPaid && inv.AmountPaid.Add(p.Amount).GreaterThanOrEqual(inv.TotalAmount) {
			fields["status"] = models.InvoiceStatusPaid
			fields["paid_at"] = p.PaidAt
		}
		if err := tx.Model(&models.Invoice{}).Where("id = ?", inv.ID).Updates(fields).Error; err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return tx.Preload("Customer").First(&updated, inv.ID).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Uint("invoice_id", updated.ID).
		Str("amount", p.Amount.StringFixed(2)).
		Str("amount_paid", updated.AmountPaid.StringFixed(2)).
		Str("status", string(updated.Status)).
		Msg("Payment recorded")

	return &updated, nil
}

// PaymentExists reports whether a payment with reference was already recorded.
func (s *Store) PaymentExists(ctx context.Context, reference string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Payment{}).Where("reference = ?", reference).Count(&n).Error; err != nil {
		return false, fmt.Errorf("PaymentExists: %w", err)
	}
	return n > 0, nil
}
