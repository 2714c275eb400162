// Package audit records pipeline events to durable side channels.
//
// Writers implement Backend and may fail. The pipeline only ever sees a Sink,
// whose Record never fails: BestEffort turns a Backend into a Sink by bounding
// each write with a timeout and logging failures.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"autobill/internal/logger"
)

// Actions recorded by the cycles and administrative operations.
const (
	ActionInvoiceCreated     = "invoice.created"
	ActionInvoiceValidated   = "invoice.validated"
	ActionInvoiceSent        = "invoice.sent"
	ActionInvoiceFlagged     = "invoice.flagged"
	ActionInvoiceFailed      = "invoice.failed"
	ActionPaymentRecorded    = "payment.recorded"
	ActionReminderSent       = "reminder.sent"
	ActionBillingCompleted   = "billing.cycle_completed"
	ActionRemindersCompleted = "reminders.cycle_completed"
)

// Event is one auditable occurrence.
type Event struct {
	ID          string
	Action      string
	EntityType  string // contract, invoice, cycle
	EntityID    string
	Description string
	Metadata    map[string]interface{}
	OccurredAt  time.Time
}

// NewEvent creates an event with a fresh id and timestamp.
func NewEvent(action, entityType string, entityID interface{}, description string, metadata map[string]interface{}) Event {
	id := ""
	if entityID != nil {
		id = fmt.Sprint(entityID)
	}
	return Event{
		ID:          uuid.NewString(),
		Action:      action,
		EntityType:  entityType,
		EntityID:    id,
		Description: description,
		Metadata:    metadata,
		OccurredAt:  time.Now().UTC(),
	}
}

// Backend durably writes events.
type Backend interface {
	Write(ctx context.Context, e Event) error
}

// Sink accepts events without reporting failure.
type Sink interface {
	Record(ctx context.Context, e Event)
}

// Nop discards events.
type Nop struct{}

// Record implements Sink.
func (Nop) Record(context.Context, Event) {}

// Multi writes to every backend, joining their errors.
type Multi []Backend

// Write implements Backend.
func (m Multi) Write(ctx context.Context, e Event) error {
	var errs []error
	for _, b := range m {
		if err := b.Write(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BestEffort adapts a Backend into a Sink.
type BestEffort struct {
	backend Backend
	timeout time.Duration
	log     zerolog.Logger
}

// NewBestEffort wraps backend. A zero timeout defaults to five seconds.
func NewBestEffort(backend Backend, timeout time.Duration) *BestEffort {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BestEffort{
		backend: backend,
		timeout: timeout,
		log:     logger.WithComponent("audit"),
	}
}

// Record writes e, logging instead of returning any failure. Panics in the
// backend are recovered.
func (b *BestEffort) Record(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Str("action", e.Action).Msg("Audit backend panicked")
		}
	}()

	// detach from the caller's cancellation so a timed-out step still gets audited
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()

	if err := b.backend.Write(wctx, e); err != nil {
		b.log.Warn().
			Err(err).
			Str("event_id", e.ID).
			Str("action", e.Action).
			Str("entity_type", e.EntityType).
			Str("entity_id", e.EntityID).
			Msg("Failed to record audit event")
	}
}
