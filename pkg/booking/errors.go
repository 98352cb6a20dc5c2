package booking

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced by the gateway and the workflow.
var (
	ErrNotConnected            = errors.New("not connected")
	ErrUserRejected            = errors.New("rejected by user")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrDuplicateOrInvalidOffer = errors.New("duplicate or invalid offer")
	ErrReverted                = errors.New("reverted")
	ErrTimeout                 = errors.New("finality timeout")
	ErrConnectivity            = errors.New("connectivity error")
)

// Validation and configuration errors.
var (
	ErrAttemptInFlight      = errors.New("reservation attempt in flight")
	ErrInvalidAddress       = errors.New("invalid address")
	ErrInvalidPrice         = errors.New("invalid price")
	ErrInvalidOfferID       = errors.New("invalid offer id")
	ErrInvalidAmount        = errors.New("invalid token amount")
	ErrInvalidWorkflowInput = errors.New("invalid workflow config")
	ErrInvalidReview        = errors.New("invalid review")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// Category is the user-facing class of a workflow failure.
type Category string

const (
	CategoryNone                Category = ""
	CategoryNotConnected        Category = "not_connected"
	CategoryRejected            Category = "rejected"
	CategoryInsufficientBalance Category = "insufficient_balance"
	CategoryInvalidOffer        Category = "invalid_offer"
	CategoryInvalidReview       Category = "invalid_review"
	CategoryLedgerError         Category = "ledger_error"
)

const (
	messageNotConnected        = "Please connect your wallet to make a reservation."
	messageRejected            = "The transaction was rejected in your wallet."
	messageInsufficientBalance = "Insufficient balance to complete the transaction."
	messageInvalidOffer        = "This offer cannot be reserved."
	messageInvalidReview       = "This review cannot be submitted."
	messageLedgerError         = "Network or ledger error. Please try again."
)

// Categorize maps an error onto a user-facing category and message.
// Anything unrecognized is reported as a ledger error.
func Categorize(err error) (Category, string) {
	switch {
	case err == nil:
		return CategoryNone, ""
	case errors.Is(err, ErrNotConnected):
		return CategoryNotConnected, messageNotConnected
	case errors.Is(err, ErrUserRejected):
		return CategoryRejected, messageRejected
	case errors.Is(err, ErrInsufficientFunds):
		return CategoryInsufficientBalance, messageInsufficientBalance
	case errors.Is(err, ErrDuplicateOrInvalidOffer), errors.Is(err, ErrInvalidPrice), errors.Is(err, ErrInvalidOfferID):
		return CategoryInvalidOffer, messageInvalidOffer
	case errors.Is(err, ErrInvalidReview):
		return CategoryInvalidReview, messageInvalidReview
	default:
		return CategoryLedgerError, messageLedgerError
	}
}
