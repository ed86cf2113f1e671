package services

import (
	"errors"
	"fmt"
)

// DomainError carries a stable code that callers and the HTTP layer can switch on
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *DomainError) Error() string {
	return e.Message
}

func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

var (
	ErrNotFound          = NewDomainError("NOT_FOUND", "resource not found")
	ErrConfigMissing     = NewDomainError("CONFIG_MISSING", "no active reward rate settings")
	ErrConfigConflict    = NewDomainError("CONFIG_CONFLICT", "more than one reward rate settings row is active")
	ErrPersistence       = NewDomainError("PERSISTENCE_FAILURE", "could not commit changes")
	ErrInvalidTransition = NewDomainError("INVALID_STATE", "operation not allowed in current state")
	ErrInvalidInput      = NewDomainError("INVALID_INPUT", "invalid input provided")
	ErrChainBroken       = NewDomainError("CHAIN_BROKEN", "ledger running balance chain is inconsistent")
)

// persistenceErr wraps a storage error so errors.Is(err, ErrPersistence) holds.
// Domain errors pass through untouched.
func persistenceErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}

// ErrorCode extracts the DomainError code, or "" for foreign errors.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
