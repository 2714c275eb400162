package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"autobill/pkg/models"
)

// OverdueStatuses are the invoice states the reminder cycle looks at.
// Overdue is included so follow-up reminders keep firing after the first one.
var OverdueStatuses = []models.InvoiceStatus{
	models.InvoiceStatusSent,
	models.InvoiceStatusPending,
	models.InvoiceStatusOverdue,
}

// CreateInvoice inserts a new invoice. A taken invoice number yields ErrDuplicateInvoiceNumber.
func (s *Store) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	const op = "CreateInvoice"

	db := s.db.WithContext(ctx)

	var n int64
	if err := db.Model(&models.Invoice{}).Where("invoice_number = ?", inv.InvoiceNumber).Count(&n).Error; err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n > 0 {
		return fmt.Errorf("%s: %s: %w", op, inv.InvoiceNumber, ErrDuplicateInvoiceNumber)
	}

	inv.IssueDate = inv.IssueDate.UTC()
	inv.DueDate = inv.DueDate.UTC()
	if inv.Status == "" {
		inv.Status = models.InvoiceStatusPending
	}
	if inv.AIValidationStatus == "" {
		inv.AIValidationStatus = models.AIStatusPending
	}

	if err := db.Omit("Customer").Create(inv).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%s: %s: %w", op, inv.InvoiceNumber, ErrDuplicateInvoiceNumber)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetInvoice loads one invoice with its customer.
func (s *Store) GetInvoice(ctx context.Context, id uint) (*models.Invoice, error) {
	var inv models.Invoice
	if err := s.db.WithContext(ctx).Preload("Customer").First(&inv, id).Error; err != nil {
		return nil, translate("GetInvoice", err)
	}
	return &inv, nil
}

// FindInvoiceByNumber loads the invoice carrying number.
func (s *Store) FindInvoiceByNumber(ctx context.Context, number string) (*models.Invoice, error) {
	var inv models.Invoice
	if err := s.db.WithContext(ctx).Preload("Customer").Where("invoice_number = ?", number).First(&inv).Error; err != nil {
		return nil, translate("FindInvoiceByNumber", err)
	}
	return &inv, nil
}

// FindOverdue returns unpaid invoices whose due date lies strictly before the
// calendar day of asOf. An invoice due today is not overdue.
func (s *Store) FindOverdue(ctx context.Context, asOf time.Time) ([]models.Invoice, error) {
	const op = "FindOverdue"

	var invoices []models.Invoice
	err := s.db.WithContext(ctx).
		Preload("Customer").
		Where("status IN ?", OverdueStatuses).
		Where("due_date < ?", StartOfDay(asOf)).
		Order("due_date ASC").
		Order("id ASC").
		Find(&invoices).Error
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return invoices, nil
}

// RecentForCustomer returns the customer's invoices created at or after since,
// excluding excludeID and cancelled invoices. These are the duplicate candidates.
func (s *Store) RecentForCustomer(ctx context.Context, customerID uint, since time.Time, excludeID uint) ([]models.Invoice, error) {
	const op = "RecentForCustomer"

	var invoices []models.Invoice
	err := s.db.WithContext(ctx).
		Where("customer_id = ? AND created_at >= ? AND id <> ?", customerID, since.UTC(), excludeID).
		Order("created_at DESC").
		Find(&invoices).Error
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return lo.Filter(invoices, func(inv models.Invoice, _ int) bool {
		return inv.Status != models.InvoiceStatusCancelled
	}), nil
}

// UpdateStatus changes the lifecycle status of a non-final invoice.
func (s *Store) UpdateStatus(ctx context.Context, id uint, status models.InvoiceStatus) error {
	return s.updateInvoice(ctx, "UpdateStatus", id, map[string]interface{}{"status": status})
}

// UpdatePDFInfo records the stored PDF location.
func (s *Store) UpdatePDFInfo(ctx context.Context, id uint, url, objectID string) error {
	return s.updateInvoice(ctx, "UpdatePDFInfo", id, map[string]interface{}{
		"pdf_url":       url,
		"pdf_object_id": objectID,
	})
}

// UpdateAIValidation stores the latest validation summary.
func (s *Store) UpdateAIValidation(ctx context.Context, id uint, status models.AIStatus, score int, at time.Time) error {
	return s.updateInvoice(ctx, "UpdateAIValidation", id, map[string]interface{}{
		"ai_validation_status": status,
		"anomaly_score":        score,
		"validated_at":         at.UTC(),
	})
}

// MarkSent flags the invoice as delivered.
func (s *Store) MarkSent(ctx context.Context, id uint, at time.Time) error {
	return s.updateInvoice(ctx, "MarkSent", id, map[string]interface{}{
		"status":  models.InvoiceStatusSent,
		"sent_at": at.UTC(),
	})
}

func (s *Store) updateInvoice(ctx context.Context, op string, id uint, fields map[string]interface{}) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv models.Invoice
		if err := tx.Select("id", "status").First(&inv, id).Error; err != nil {
			return translate(op, err)
		}
		if inv.Status.Final() {
			return fmt.Errorf("%s: invoice %d is %s: %w", op, id, inv.Status, ErrInvoiceFinal)
		}
		res := tx.Model(&models.Invoice{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			return fmt.Errorf("%s: %w", op, res.Error)
		}
		return notFound(op, res.RowsAffected, "invoice", id)
	})
}
