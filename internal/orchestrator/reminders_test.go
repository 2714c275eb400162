package orchestrator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"autobill/internal/audit"
	"autobill/internal/invoice"
	"autobill/internal/orchestrator"
	"autobill/internal/store/storetest"
	"autobill/pkg/models"
)

func TestShouldSendCadence(t *testing.T) {
	want := map[int]bool{3: true, 7: true, 10: true, 14: true, 15: true, 20: true, 25: true, 30: true, 35: true}
	for day := 1; day <= 40; day++ {
		if got := orchestrator.ShouldSend(day); got != want[day] {
			t.Errorf("day %d: ShouldSend = %v, want %v", day, got, want[day])
		}
	}
	if orchestrator.ShouldSend(0) || orchestrator.ShouldSend(-3) {
		t.Error("invoices not yet overdue must never get reminders")
	}
	if !orchestrator.ShouldSend(42) || orchestrator.ShouldSend(45) {
		t.Error("weekly cadence after day 30")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		days int
		want models.Urgency
	}{
		{1, models.UrgencyLow},
		{7, models.UrgencyLow},
		{8, models.UrgencyMedium},
		{14, models.UrgencyMedium},
		{15, models.UrgencyHigh},
		{30, models.UrgencyHigh},
		{31, models.UrgencyCritical},
		{120, models.UrgencyCritical},
	}
	for _, tt := range tests {
		if got := orchestrator.Classify(tt.days); got != tt.want {
			t.Errorf("Classify(%d) = %s, want %s", tt.days, got, tt.want)
		}
	}
}

func TestDaysOverdueUsesCalendarDays(t *testing.T) {
	due := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	if got := orchestrator.DaysOverdue(due, time.Date(2026, 3, 4, 0, 1, 0, 0, time.UTC)); got != 3 {
		t.Fatalf("DaysOverdue = %d, want 3", got)
	}
	if got := orchestrator.DaysOverdue(due, due.Add(time.Minute)); got != 1 {
		t.Fatalf("past midnight counts as a day, got %d", got)
	}
}

func TestReminderCycle(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	cust := storetest.Customer(t, s, "Acme Corp")
	day := func(n int) time.Time { return today.AddDate(0, 0, -n) }

	day3 := storetest.Invoice(t, s, cust, "INV-3", models.InvoiceStatusSent, day(3))
	day5 := storetest.Invoice(t, s, cust, "INV-5", models.InvoiceStatusSent, day(5))
	day10 := storetest.Invoice(t, s, cust, "INV-10", models.InvoiceStatusOverdue, day(10))
	day14 := storetest.Invoice(t, s, cust, "INV-14", models.InvoiceStatusPending, day(14))
	storetest.Invoice(t, s, cust, "INV-0", models.InvoiceStatusSent, day(0))
	storetest.Invoice(t, s, cust, "INV-P", models.InvoiceStatusPaid, day(7))

	notifier := &mockNotifier{SendReminderFunc: func(_ context.Context, r invoice.Reminder) error {
		if r.InvoiceID == day14.ID {
			return errors.New("smtp: 554 rejected")
		}
		return nil
	}}
	sink := &recordingSink{}
	cycle := orchestrator.NewReminderCycle(orchestrator.ReminderDeps{Store: s, Notifier: notifier, Audit: sink},
		orchestrator.Options{StepTimeout: time.Second, Now: clock})

	summary, err := cycle.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Total != 4 || summary.Sent != 2 || summary.Skipped != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.ByUrgency[models.UrgencyLow] != 2 || summary.ByUrgency[models.UrgencyMedium] != 2 {
		t.Fatalf("by urgency = %v", summary.ByUrgency)
	}

	if len(notifier.Reminders) != 2 || notifier.Reminders[0].InvoiceID != day10.ID || notifier.Reminders[1].InvoiceID != day3.ID {
		t.Fatalf("reminders = %+v", notifier.Reminders)
	}
	if r := notifier.Reminders[0]; r.DaysOverdue != 10 || r.Urgency != models.UrgencyMedium {
		t.Fatalf("reminder = %+v", r)
	}

	status := func(id uint) models.InvoiceStatus {
		inv, err := s.GetInvoice(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		return inv.Status
	}
	if got := status(day3.ID); got != models.InvoiceStatusOverdue {
		t.Errorf("reminded invoice status = %s, want overdue", got)
	}
	if got := status(day5.ID); got != models.InvoiceStatusSent {
		t.Errorf("skipped invoice status = %s, want sent", got)
	}
	if got := status(day14.ID); got != models.InvoiceStatusPending {
		t.Errorf("failed reminder changed status to %s", got)
	}

	actions := sink.actions()
	if actions[audit.ActionReminderSent] != 2 || actions[audit.ActionRemindersCompleted] != 1 {
		t.Fatalf("audit actions = %v", actions)
	}
}

func TestReminderCycleSkipsWhileRunning(t *testing.T) {
	s := storetest.New(t)
	cust := storetest.Customer(t, s, "Acme Corp")
	storetest.Invoice(t, s, cust, "INV-3", models.InvoiceStatusSent, today.AddDate(0, 0, -3))

	entered := make(chan struct{})
	release := make(chan struct{})
	notifier := &mockNotifier{SendReminderFunc: func(context.Context, invoice.Reminder) error {
		close(entered)
		<-release
		return nil
	}}
	cycle := orchestrator.NewReminderCycle(orchestrator.ReminderDeps{Store: s, Notifier: notifier},
		orchestrator.Options{StepTimeout: 5 * time.Second, Now: clock})

	done := make(chan *orchestrator.ReminderSummary)
	go func() {
		summary, _ := cycle.Run(context.Background())
		done <- summary
	}()
	<-entered

	second, err := cycle.Run(context.Background())
	if err != nil || !second.AlreadyRunning {
		t.Fatalf("second trigger = %+v %v", second, err)
	}
	close(release)
	if first := <-done; first == nil || first.Sent != 1 {
		t.Fatalf("first run = %+v", first)
	}
}

type overdueFailure struct {
	orchestrator.ReminderStore
}

func (overdueFailure) FindOverdue(context.Context, time.Time) ([]models.Invoice, error) {
	return nil, errors.New("database is locked")
}

func TestReminderCycleSystemicError(t *testing.T) {
	cycle := orchestrator.NewReminderCycle(orchestrator.ReminderDeps{Store: overdueFailure{}}, orchestrator.Options{Now: clock})
	summary, err := cycle.Run(context.Background())
	if err == nil || summary != nil {
		t.Fatalf("expected abort, got %+v %v", summary, err)
	}
	if cycle.Running() {
		t.Fatal("guard not released")
	}
}

func TestReminderCycleUsesScheduleLocationDay(t *testing.T) {
	s := storetest.New(t)
	cust := storetest.Customer(t, s, "Acme Corp")
	inv := storetest.Invoice(t, s, cust, "INV-3", models.InvoiceStatusSent, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC))
	evening := func() time.Time { return time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC) }

	notifier := &mockNotifier{}
	utc, err := orchestrator.NewReminderCycle(orchestrator.ReminderDeps{Store: s, Notifier: notifier},
		orchestrator.Options{Now: evening}).Run(context.Background())
	if err != nil || utc.Sent != 0 || utc.Skipped != 1 {
		t.Fatalf("UTC run (day 2) should skip: %+v %v", utc, err)
	}

	local, err := orchestrator.NewReminderCycle(orchestrator.ReminderDeps{Store: s, Notifier: notifier},
		orchestrator.Options{Now: evening, Location: time.FixedZone("NZDT", 13*60*60)}).Run(context.Background())
	if err != nil || local.Sent != 1 {
		t.Fatalf("local run (day 3) should send: %+v %v", local, err)
	}
	if len(notifier.Reminders) != 1 || notifier.Reminders[0].InvoiceID != inv.ID || notifier.Reminders[0].DaysOverdue != 3 {
		t.Fatalf("reminders = %+v", notifier.Reminders)
	}
}
