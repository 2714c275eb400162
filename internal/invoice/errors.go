package invoice

import (
	"errors"
	"fmt"
)

// Common invoice pipeline errors
var (
	// ErrMalformedVerdict is returned when the AI answer cannot be parsed into a verdict.
	ErrMalformedVerdict = errors.New("malformed AI verdict")

	// ErrRenderFailed is returned when the PDF renderer produced no document.
	ErrRenderFailed = errors.New("invoice PDF rendering failed")

	// ErrUploadFailed is returned when the generated PDF could not be stored.
	ErrUploadFailed = errors.New("invoice PDF upload failed")

	// ErrDeliveryFailed is returned when an invoice or reminder email was not sent.
	ErrDeliveryFailed = errors.New("invoice delivery failed")
)

// Pipeline step names, used in PipelineError and logs.
const (
	StepCreate   = "create"
	StepRender   = "render"
	StepStore    = "store"
	StepValidate = "validate"
	StepNotify   = "notify"
	StepAdvance  = "advance"
)

// PipelineError wraps a failure of one step of the per-contract pipeline.
type PipelineError struct {
	// Step is the pipeline step that failed (e.g., "render", "notify").
	Step string

	// Err is the underlying error.
	Err error

	// ContractID identifies the contract being billed.
	ContractID uint

	// InvoiceID is set once the invoice row exists.
	InvoiceID uint
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.InvoiceID != 0 {
		return fmt.Sprintf("invoice: %s step failed (contract %d, invoice %d): %v", e.Step, e.ContractID, e.InvoiceID, e.Err)
	}
	return fmt.Sprintf("invoice: %s step failed (contract %d): %v", e.Step, e.ContractID, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *PipelineError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewPipelineError creates a PipelineError for step.
func NewPipelineError(step string, contractID, invoiceID uint, err error) *PipelineError {
	return &PipelineError{
		Step:       step,
		Err:        err,
		ContractID: contractID,
		InvoiceID:  invoiceID,
	}
}

// WrapPipelineError wraps err as a PipelineError if it isn't already one.
func WrapPipelineError(step string, contractID, invoiceID uint, err error) error {
	if err == nil {
		return nil
	}

	var pipeErr *PipelineError
	if errors.As(err, &pipeErr) {
		return err // Already wrapped
	}

	return NewPipelineError(step, contractID, invoiceID, err)
}
