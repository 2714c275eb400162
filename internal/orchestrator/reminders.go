package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"autobill/internal/audit"
	"autobill/internal/invoice"
	"autobill/internal/logger"
	"autobill/internal/store"
	"autobill/pkg/models"
)

// ReminderStore is the persistence the reminder cycle needs.
type ReminderStore interface {
	FindOverdue(ctx context.Context, asOf time.Time) ([]models.Invoice, error)
	UpdateStatus(ctx context.Context, id uint, status models.InvoiceStatus) error
}

// DaysOverdue counts whole calendar days between the due date and today.
func DaysOverdue(due, today time.Time) int {
	d := store.StartOfDay(due)
	t := store.StartOfDay(today)
	return int(t.Sub(d).Hours() / 24)
}

// Classify buckets days overdue for reporting. It does not gate sending.
func Classify(days int) models.Urgency {
	switch {
	case days <= 7:
		return models.UrgencyLow
	case days <= 14:
		return models.UrgencyMedium
	case days <= 30:
		return models.UrgencyHigh
	default:
		return models.UrgencyCritical
	}
}

// ShouldSend applies the reminder cadence: days 3 and 7, then 10 and 14,
// then every fifth day up to 30, then every seventh day.
func ShouldSend(days int) bool {
	switch {
	case days < 1:
		return false
	case days <= 7:
		return days == 3 || days == 7
	case days <= 14:
		return days == 10 || days == 14
	case days <= 30:
		return days%5 == 0
	default:
		return days%7 == 0
	}
}

// ReminderResult is the outcome of one overdue invoice.
type ReminderResult struct {
	InvoiceID   uint           `json:"invoice_id"`
	DaysOverdue int            `json:"days_overdue"`
	Urgency     models.Urgency `json:"urgency"`
	Sent        bool           `json:"sent"`
	Error       string         `json:"error,omitempty"`
}

// ReminderSummary aggregates one reminder run.
type ReminderSummary struct {
	AlreadyRunning bool                   `json:"already_running"`
	StartedAt      time.Time              `json:"started_at"`
	FinishedAt     time.Time              `json:"finished_at"`
	Total          int                    `json:"total"`
	Sent           int                    `json:"sent"`
	Skipped        int                    `json:"skipped"`
	Failed         int                    `json:"failed"`
	ByUrgency      map[models.Urgency]int `json:"by_urgency"`
	Results        []ReminderResult       `json:"results,omitempty"`
}

// ReminderDeps are the collaborators of the reminder cycle.
type ReminderDeps struct {
	Store    ReminderStore
	Notifier invoice.Notifier
	Audit    audit.Sink
}

// ReminderCycle sends overdue notices on a fixed cadence.
type ReminderCycle struct {
	deps  ReminderDeps
	opts  Options
	guard Guard
	log   zerolog.Logger
}

// NewReminderCycle creates a reminder cycle. Workers is ignored; invoices are
// processed in order.
func NewReminderCycle(deps ReminderDeps, opts Options) *ReminderCycle {
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}
	return &ReminderCycle{
		deps: deps,
		opts: opts.withDefaults(),
		log:  logger.WithJob("orchestrator", "reminders"),
	}
}

// Running reports whether a run is in progress.
func (c *ReminderCycle) Running() bool {
	return c.guard.Running()
}

// Run executes one reminder cycle. A call made while another run is active
// returns immediately with AlreadyRunning set and no error.
func (c *ReminderCycle) Run(ctx context.Context) (*ReminderSummary, error) {
	const op = "ReminderCycle.Run"

	if !c.guard.TryAcquire() {
		c.log.Info().Msg("Reminder cycle already running, skipping trigger")
		return &ReminderSummary{AlreadyRunning: true}, nil
	}
	defer c.guard.Release()

	start := c.opts.Now()
	today := c.opts.calendarTime(start)
	c.log.Info().Time("as_of", today).Str("location", c.opts.Location.String()).Msg("Reminder cycle started")

	overdue, err := c.deps.Store.FindOverdue(ctx, today)
	if err != nil {
		c.log.Error().Err(err).Msg("Reminder cycle aborted: unable to load overdue invoices")
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	summary := &ReminderSummary{
		StartedAt: start,
		Total:     len(overdue),
		ByUrgency: make(map[models.Urgency]int),
	}
	if len(overdue) == 0 {
		summary.FinishedAt = c.opts.Now()
		c.log.Info().Msg("No overdue invoices, reminder cycle finished")
		return summary, nil
	}

	summary.Results = lo.Map(overdue, func(inv models.Invoice, _ int) ReminderResult {
		return c.processInvoice(ctx, inv, today)
	})
	for _, r := range summary.Results {
		summary.ByUrgency[r.Urgency]++
		switch {
		case r.Error != "":
			summary.Failed++
		case r.Sent:
			summary.Sent++
		default:
			summary.Skipped++
		}
	}
	summary.FinishedAt = c.opts.Now()

	c.deps.Audit.Record(ctx, audit.NewEvent(audit.ActionRemindersCompleted, "cycle", "reminders",
		fmt.Sprintf("Reminder cycle checked %d overdue invoices", summary.Total),
		map[string]interface{}{
			"total":      summary.Total,
			"sent":       summary.Sent,
			"skipped":    summary.Skipped,
			"failed":     summary.Failed,
			"by_urgency": summary.ByUrgency,
		}))

	c.log.Info().
		Int("total", summary.Total).
		Int("sent", summary.Sent).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Interface("by_urgency", summary.ByUrgency).
		Msg("Reminder cycle finished")

	return summary, nil
}

func (c *ReminderCycle) processInvoice(ctx context.Context, inv models.Invoice, today time.Time) (res ReminderResult) {
	days := DaysOverdue(inv.DueDate, today)
	res = ReminderResult{InvoiceID: inv.ID, DaysOverdue: days, Urgency: Classify(days)}
	log := c.log.With().
		Uint("invoice_id", inv.ID).
		Int("days_overdue", days).
		Str("urgency", string(res.Urgency)).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			res.Sent = false
			res.Error = fmt.Sprintf("panic: %v", r)
			log.Error().Str("error", res.Error).Msg("Reminder failed")
		}
	}()

	if !ShouldSend(days) {
		log.Debug().Msg("No reminder due today")
		return res
	}

	sctx, cancel := context.WithTimeout(ctx, c.opts.StepTimeout)
	receipt, err := c.deps.Notifier.SendReminder(sctx, invoice.Reminder{
		InvoiceID:   inv.ID,
		DaysOverdue: days,
		Urgency:     res.Urgency,
	})
	cancel()
	if err != nil {
		res.Error = err.Error()
		log.Error().Err(err).Msg("Reminder failed")
		return res
	}
	res.Sent = true

	if inv.Status != models.InvoiceStatusOverdue {
		if err := c.deps.Store.UpdateStatus(ctx, inv.ID, models.InvoiceStatusOverdue); err != nil {
			res.Error = err.Error()
			log.Error().Err(err).Msg("Reminder sent but status update failed")
			return res
		}
	}

	log.Info().Str("message_id", receipt.MessageID).Msg("Reminder sent")
	c.deps.Audit.Record(ctx, audit.NewEvent(audit.ActionReminderSent, "invoice", inv.ID,
		fmt.Sprintf("Reminder sent for invoice %s (%d days overdue)", inv.InvoiceNumber, days),
		map[string]interface{}{"days_overdue": days, "urgency": string(res.Urgency), "message_id": receipt.MessageID}))
	return res
}
