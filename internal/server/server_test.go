package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"autobill/internal/invoice"
	"autobill/internal/orchestrator"
	"autobill/internal/store"
	"autobill/pkg/models"
)

type mockBilling struct {
	RunFunc func(ctx context.Context) (*orchestrator.BillingSummary, error)
}

func (m *mockBilling) Run(ctx context.Context) (*orchestrator.BillingSummary, error) {
	return m.RunFunc(ctx)
}

type mockReminders struct {
	RunFunc func(ctx context.Context) (*orchestrator.ReminderSummary, error)
}

func (m *mockReminders) Run(ctx context.Context) (*orchestrator.ReminderSummary, error) {
	return m.RunFunc(ctx)
}

type mockActions struct {
	RevalidateFunc    func(id uint) (*invoice.Verdict, error)
	SendFunc          func(id uint) (*invoice.Receipt, error)
	RecordPaymentFunc func(id uint, in orchestrator.PaymentInput) (*models.Invoice, error)
}

func (m *mockActions) Revalidate(_ context.Context, id uint) (*invoice.Verdict, error) {
	return m.RevalidateFunc(id)
}

func (m *mockActions) Send(_ context.Context, id uint) (*invoice.Receipt, error) {
	return m.SendFunc(id)
}

func (m *mockActions) RecordPayment(_ context.Context, id uint, in orchestrator.PaymentInput) (*models.Invoice, error) {
	return m.RecordPaymentFunc(id, in)
}

type pinger func() error

func (p pinger) Ping(context.Context) error { return p() }

func do(t *testing.T, s *Server, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	healthy := New(Deps{Health: pinger(func() error { return nil })})
	if w := do(t, healthy, http.MethodGet, "/healthz", "", ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	down := New(Deps{Health: pinger(func() error { return errors.New("db down") })})
	if w := do(t, down, http.MethodGet, "/healthz", "", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestBillingCycleEndpoint(t *testing.T) {
	running := false
	s := New(Deps{
		AdminToken: "s3cret",
		Billing: &mockBilling{RunFunc: func(ctx context.Context) (*orchestrator.BillingSummary, error) {
			if running {
				return &orchestrator.BillingSummary{AlreadyRunning: true}, nil
			}
			return &orchestrator.BillingSummary{Total: 2, Successful: 1, Flagged: 1}, nil
		}},
	})

	if w := do(t, s, http.MethodPost, "/admin/cycles/billing", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status = %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/admin/cycles/billing", "", "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d", w.Code)
	}

	w := do(t, s, http.MethodPost, "/admin/cycles/billing", "", "s3cret")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body)
	}
	var summary orchestrator.BillingSummary
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatal(err)
	}
	if summary.Total != 2 || summary.Flagged != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	running = true
	if w := do(t, s, http.MethodPost, "/admin/cycles/billing", "", "s3cret"); w.Code != http.StatusConflict {
		t.Fatalf("already running: status = %d", w.Code)
	}
}

func TestReminderCycleEndpointError(t *testing.T) {
	s := New(Deps{Reminders: &mockReminders{RunFunc: func(context.Context) (*orchestrator.ReminderSummary, error) {
		return nil, errors.New("database is locked")
	}}})
	if w := do(t, s, http.MethodPost, "/admin/cycles/reminders", "", ""); w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestInvoiceActionErrors(t *testing.T) {
	actions := &mockActions{
		RevalidateFunc: func(id uint) (*invoice.Verdict, error) {
			if id == 404 {
				return nil, fmt.Errorf("Revalidate: %w", store.ErrNotFound)
			}
			return &invoice.Verdict{Status: models.AIStatusValidated}, nil
		},
		SendFunc: func(id uint) (*invoice.Receipt, error) {
			switch id {
			case 1:
				return nil, fmt.Errorf("Send: %w", orchestrator.ErrNotSendable)
			case 2:
				return nil, fmt.Errorf("Send: %w", invoice.ErrDeliveryFailed)
			}
			return &invoice.Receipt{MessageID: "<m@x>"}, nil
		},
	}
	s := New(Deps{Actions: actions})

	tests := []struct {
		path string
		want int
	}{
		{"/admin/invoices/7/validate", http.StatusOK},
		{"/admin/invoices/404/validate", http.StatusNotFound},
		{"/admin/invoices/abc/validate", http.StatusBadRequest},
		{"/admin/invoices/1/send", http.StatusConflict},
		{"/admin/invoices/2/send", http.StatusBadGateway},
		{"/admin/invoices/3/send", http.StatusOK},
	}
	for _, tt := range tests {
		if w := do(t, s, http.MethodPost, tt.path, "", ""); w.Code != tt.want {
			t.Errorf("%s: status = %d, want %d (%s)", tt.path, w.Code, tt.want, w.Body)
		}
	}
}

func TestPaymentEndpoint(t *testing.T) {
	var got orchestrator.PaymentInput
	s := New(Deps{Actions: &mockActions{RecordPaymentFunc: func(id uint, in orchestrator.PaymentInput) (*models.Invoice, error) {
		if !in.Amount.IsPositive() {
			return nil, store.ErrInvalidPayment
		}
		got = in
		return &models.Invoice{ID: id, Status: models.InvoiceStatusPaid, AmountPaid: in.Amount}, nil
	}}})

	w := do(t, s, http.MethodPost, "/admin/invoices/5/payments", `{"amount":"108.50","method":"card","paid_at":"2026-03-20T10:00:00Z"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body)
	}
	if !got.Amount.Equal(decimal.RequireFromString("108.50")) || got.Method != "card" || got.PaidAt.Day() != 20 {
		t.Fatalf("payment input = %+v", got)
	}

	if w := do(t, s, http.MethodPost, "/admin/invoices/5/payments", `{"amount":0}`, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("zero amount: status = %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/admin/invoices/5/payments", `{not json`, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json: status = %d", w.Code)
	}
}
