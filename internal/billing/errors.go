package billing

import (
	"errors"
	"fmt"
)

// ErrInvalidContract is matched by every *InvalidContractError.
var ErrInvalidContract = errors.New("invalid contract")

// InvalidContractError reports malformed contract input.
type InvalidContractError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface.
func (e *InvalidContractError) Error() string {
	return fmt.Sprintf("invalid contract field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// Is matches ErrInvalidContract.
func (e *InvalidContractError) Is(target error) bool {
	return target == ErrInvalidContract
}

// NewInvalidContractError creates a new InvalidContractError.
func NewInvalidContractError(field string, value interface{}, message string) *InvalidContractError {
	return &InvalidContractError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}
