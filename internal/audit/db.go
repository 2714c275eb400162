package audit

import (
	"context"
	"fmt"

	"gorm.io/datatypes"

	"autobill/pkg/models"
)

// LogWriter persists audit rows. *store.Store satisfies it.
type LogWriter interface {
	SaveAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// DBSink writes events to the audit_logs table.
type DBSink struct {
	writer LogWriter
}

// NewDBSink creates a database backend.
func NewDBSink(writer LogWriter) *DBSink {
	return &DBSink{writer: writer}
}

// Write implements Backend.
func (d *DBSink) Write(ctx context.Context, e Event) error {
	entry := &models.AuditLog{
		EventID:     e.ID,
		Action:      e.Action,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Description: e.Description,
		Metadata:    datatypes.JSONMap(e.Metadata),
		CreatedAt:   e.OccurredAt,
	}
	if err := d.writer.SaveAuditLog(ctx, entry); err != nil {
		return fmt.Errorf("DBSink.Write: %w", err)
	}
	return nil
}
