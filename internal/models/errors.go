package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPaymentPending is returned when the provider has not yet marked a session as paid
var ErrPaymentPending = errors.New("payment is not completed yet")

// ValidationError reports invalid input or a request that is not allowed in the current state
type ValidationError struct {
	Field    string
	Messages []string
}

// NewValidationError builds a ValidationError with one or more messages
func NewValidationError(field string, messages ...string) *ValidationError {
	return &ValidationError{Field: field, Messages: messages}
}

func (e *ValidationError) Error() string {
	msg := strings.Join(e.Messages, "; ")
	if e.Field == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Field, msg)
}

// NotFoundError reports a missing package, booking or payment
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// CapacityError reports that a package does not have enough seats left
type CapacityError struct {
	Requested int
	Available int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("only %d seats are now available, %d requested", e.Available, e.Requested)
}

// AuthorizationError reports that the actor may not act on the resource
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	if e.Reason == "" {
		return "not authorized"
	}
	return "not authorized: " + e.Reason
}

// ProviderError wraps a failure of the hosted payment provider
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider error during %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ConcurrencyConflictError reports that a record changed state while being updated
type ConcurrencyConflictError struct {
	Entity string
	ID     string
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently", e.Entity, e.ID)
}
