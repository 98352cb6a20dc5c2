package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/travelbook/pkg/booking"
)

const (
	operationSubmit   = "submit"
	operationFinality = "finality"
	operationRead     = "read"
)

var (
	insufficientFundsMarkers = []string{
		"insufficient funds",
		"exceeds balance",
		"erc20insufficientbalance",
		"erc20insufficientallowance",
		"insufficient allowance",
		"insufficient balance",
	}
	rejectionMarkers = []string{
		"user rejected",
		"user denied",
		"rejected by user",
	}
	revertMarkers = []string{
		"execution reverted",
		"revert",
	}
)

// classifySubmitError maps a node or signer error raised while submitting a
// state-changing call onto the booking failure kinds.
func classifySubmitError(kind booking.CallKind, err error) error {
	if err == nil {
		return nil
	}
	sentinel := submitSentinel(kind, err)
	if errors.Is(err, sentinel) {
		return booking.WrapError(operationSubmit, string(kind), codeFor(sentinel), err)
	}
	return booking.WrapError(operationSubmit, string(kind), codeFor(sentinel), fmt.Errorf("%w: %v", sentinel, err))
}

func submitSentinel(kind booking.CallKind, err error) error {
	switch {
	case errors.Is(err, booking.ErrUserRejected):
		return booking.ErrUserRejected
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return booking.ErrConnectivity
	}
	message := strings.ToLower(err.Error())
	switch {
	case containsAny(message, rejectionMarkers):
		return booking.ErrUserRejected
	case containsAny(message, insufficientFundsMarkers):
		return booking.ErrInsufficientFunds
	case containsAny(message, revertMarkers):
		switch kind {
		case booking.CallReservation:
			return booking.ErrDuplicateOrInvalidOffer
		case booking.CallReview:
			return booking.ErrInvalidReview
		default:
			return booking.ErrReverted
		}
	default:
		return booking.ErrConnectivity
	}
}

func classifyReadError(subject string, err error) error {
	if err == nil {
		return nil
	}
	return booking.WrapError(operationRead, subject, codeFor(booking.ErrConnectivity), fmt.Errorf("%w: %v", booking.ErrConnectivity, err))
}

func codeFor(sentinel error) string {
	switch {
	case errors.Is(sentinel, booking.ErrUserRejected):
		return "rejected"
	case errors.Is(sentinel, booking.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(sentinel, booking.ErrDuplicateOrInvalidOffer):
		return "invalid_offer"
	case errors.Is(sentinel, booking.ErrInvalidReview):
		return "invalid_review"
	case errors.Is(sentinel, booking.ErrReverted):
		return "reverted"
	case errors.Is(sentinel, booking.ErrTimeout):
		return "timeout"
	default:
		return "connectivity"
	}
}

func containsAny(message string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}
