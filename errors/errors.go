/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package errors

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrNotFound is returned when a document is not found
	ErrNotFound = errors.New("document not found")

	// ErrStoreFault is returned when the underlying store failed to serve a request
	ErrStoreFault = errors.New("store fault")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidFilter is returned when a where clause cannot be turned into a filter
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrConditionFailed is returned when a conditional write fails
	ErrConditionFailed = errors.New("condition check failed")

	// ErrUnsupported is returned when a backend lacks a declared capability
	ErrUnsupported = errors.New("operation not supported")

	// ErrSubscription is returned when a change subscription cannot be set up
	ErrSubscription = errors.New("subscription failed")

	// ErrEmailInUse is returned when an account already exists for an email
	ErrEmailInUse = errors.New("email already in use")

	// ErrInvalidEmail is returned when an email address is malformed
	ErrInvalidEmail = errors.New("invalid email")

	// ErrInvalidCredentials is returned when a sign in is rejected
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrVerificationRequired is returned when login requires a verified email
	ErrVerificationRequired = errors.New("email verification required")
)

// NotFoundError represents an error when a document is not found
type NotFoundError struct {
	Collection string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("document %q not found in %s", e.ID, e.Collection)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError represents an input validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// FilterError represents a where clause that could not be compiled
type FilterError struct {
	Key      string
	Operator string
	Message  string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("invalid filter %s %s: %s", e.Key, e.Operator, e.Message)
}

func (e *FilterError) Is(target error) bool {
	return target == ErrInvalidFilter || target == ErrInvalidInput
}

// ConditionFailedError represents a failed conditional operation
type ConditionFailedError struct {
	Operation string
	Condition string
}

func (e *ConditionFailedError) Error() string {
	return fmt.Sprintf("condition check failed for %s operation: %s", e.Operation, e.Condition)
}

func (e *ConditionFailedError) Is(target error) bool {
	return target == ErrConditionFailed
}

// UnsupportedError reports a capability the configured backend does not have
type UnsupportedError struct {
	Operation string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s is not supported by this backend", e.Operation)
}

func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupported
}

// Helper functions for creating errors

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(collection, id string) error {
	return &NotFoundError{Collection: collection, ID: id}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NewFilterError creates a new FilterError
func NewFilterError(key, operator, message string) error {
	return &FilterError{Key: key, Operator: operator, Message: message}
}

// NewConditionFailedError creates a new ConditionFailedError
func NewConditionFailedError(operation, condition string) error {
	return &ConditionFailedError{Operation: operation, Condition: condition}
}

// NewUnsupportedError creates a new UnsupportedError
func NewUnsupportedError(operation string) error {
	return &UnsupportedError{Operation: operation}
}

// Fault wraps err as a store fault, preserving it in the chain.
// A nil err yields nil; an error that already carries a classification
// from this package is returned unchanged.
func Fault(err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreFault, err)
}

// Classified reports whether err matches one of the sentinels above.
func Classified(err error) bool {
	for _, s := range []error{
		ErrNotFound, ErrStoreFault, ErrInvalidInput, ErrInvalidFilter,
		ErrConditionFailed, ErrUnsupported, ErrSubscription,
		ErrEmailInUse, ErrInvalidEmail, ErrInvalidCredentials, ErrVerificationRequired,
	} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsInvalidFilter checks if an error is a filter compilation error
func IsInvalidFilter(err error) bool {
	return errors.Is(err, ErrInvalidFilter)
}

// IsConditionFailed checks if an error is a condition failed error
func IsConditionFailed(err error) bool {
	return errors.Is(err, ErrConditionFailed)
}

// IsUnsupported checks if an error reports a missing capability
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

// IsStoreFault checks if an error is a store fault
func IsStoreFault(err error) bool {
	return errors.Is(err, ErrStoreFault)
}

// Is, As and Join mirror the standard library so callers need one import.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
)
