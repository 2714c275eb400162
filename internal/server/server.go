// Package server exposes the administrative HTTP surface: health, manual
// cycle triggers and single-invoice actions.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"autobill/internal/invoice"
	"autobill/internal/logger"
	"autobill/internal/orchestrator"
	"autobill/internal/store"
	"autobill/pkg/models"
)

// BillingRunner triggers the guarded billing cycle.
type BillingRunner interface {
	Run(ctx context.Context) (*orchestrator.BillingSummary, error)
}

// ReminderRunner triggers the guarded reminder cycle.
type ReminderRunner interface {
	Run(ctx context.Context) (*orchestrator.ReminderSummary, error)
}

// InvoiceActions are the single-invoice administrative operations.
type InvoiceActions interface {
	Revalidate(ctx context.Context, invoiceID uint) (*invoice.Verdict, error)
	Send(ctx context.Context, invoiceID uint) (*invoice.Receipt, error)
	RecordPayment(ctx context.Context, invoiceID uint, in orchestrator.PaymentInput) (*models.Invoice, error)
}

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the handlers' collaborators.
type Deps struct {
	Billing   BillingRunner
	Reminders ReminderRunner
	Actions   InvoiceActions
	Health    Pinger
	// AdminToken, when set, is required as a bearer token on /admin routes.
	AdminToken string
}

// Server is the admin HTTP server.
type Server struct {
	deps   Deps
	router *gin.Engine
	log    zerolog.Logger
}

// New creates the server and its routes.
func New(deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		deps:   deps,
		router: router,
		log:    logger.WithComponent("server"),
	}

	router.Use(gin.Recovery(), s.requestLogger())
	router.GET("/healthz", s.handleHealth)

	admin := router.Group("/admin", s.requireToken())
	{
		admin.POST("/cycles/billing", s.handleBillingCycle)
		admin.POST("/cycles/reminders", s.handleReminderCycle)
		admin.POST("/invoices/:id/validate", s.handleRevalidate)
		admin.POST("/invoices/:id/send", s.handleSend)
		admin.POST("/invoices/:id/payments", s.handlePayment)
	}

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("Admin server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info().Msg("Admin server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	}
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.AdminToken == "" {
			c.Next()
			return
		}
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.deps.AdminToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing admin token"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.deps.Health != nil {
		if err := s.deps.Health.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Cycles run to completion even if the caller disconnects.
func (s *Server) handleBillingCycle(c *gin.Context) {
	summary, err := s.deps.Billing.Run(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		s.fail(c, err)
		return
	}
	if summary.AlreadyRunning {
		c.JSON(http.StatusConflict, summary)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleReminderCycle(c *gin.Context) {
	summary, err := s.deps.Reminders.Run(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		s.fail(c, err)
		return
	}
	if summary.AlreadyRunning {
		c.JSON(http.StatusConflict, summary)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleRevalidate(c *gin.Context) {
	id, ok := invoiceID(c)
	if !ok {
		return
	}
	verdict, err := s.deps.Actions.Revalidate(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, verdict)
}

func (s *Server) handleSend(c *gin.Context) {
	id, ok := invoiceID(c)
	if !ok {
		return
	}
	receipt, err := s.deps.Actions.Send(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": receipt.MessageID, "sent_at": receipt.SentAt})
}

type paymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Reference string          `json:"reference"`
	PaidAt    *time.Time      `json:"paid_at"`
}

func (s *Server) handlePayment(c *gin.Context) {
	id, ok := invoiceID(c)
	if !ok {
		return
	}
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment: " + err.Error()})
		return
	}
	in := orchestrator.PaymentInput{Amount: req.Amount, Method: req.Method, Reference: req.Reference}
	if req.PaidAt != nil {
		in.PaidAt = *req.PaidAt
	}

	inv, err := s.deps.Actions.RecordPayment(c.Request.Context(), id, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func invoiceID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice id"})
		return 0, false
	}
	return uint(id), true
}

// fail maps domain errors to HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInvalidPayment):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrInvoiceFinal), errors.Is(err, orchestrator.ErrNotSendable):
		status = http.StatusConflict
	case errors.Is(err, invoice.ErrDeliveryFailed):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.FullPath()).Msg("Admin request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
