package router

import (
	"fmt"
	"strings"
)

// ContractValidationError is returned by callers gating a deployment on router validation, and by router
// generation when the modules cannot be dispatched to unambiguously.
type ContractValidationError struct {
	// Contract is the fully-qualified name (or generated name) of the router
	Contract string
	// Errors are the validation errors found
	Errors []ValidationError
}

// NewContractValidationError wraps validation errors for a router. Returns nil if there are none.
func NewContractValidationError(contract string, errs []ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	return &ContractValidationError{Contract: contract, Errors: errs}
}

// Error implements the error interface.
func (e *ContractValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Msg
	}
	return fmt.Sprintf("router %s failed validation with %d error(s): %s", e.Contract, len(e.Errors), strings.Join(msgs, "; "))
}
