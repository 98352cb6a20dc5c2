package booking

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MinReviewRating        = 1
	MaxReviewRating        = 5
	MaxReviewCommentLength = 500

	statusReviewSubmitted  = "Review submitted."
	statusReviewSubmitting = "Submitting review..."
	statusReviewWaiting    = "Waiting for review confirmation..."
)

// Review is a traveler's rating of a reservation as stored by the registry.
type Review struct {
	Reviewer Address   `json:"reviewer"`
	Comment  string    `json:"comment"`
	Rating   uint8     `json:"rating"`
	PostedAt time.Time `json:"posted_at"`
	Verified bool      `json:"verified"`
}

// ReviewOption configures a ReviewDesk.
type ReviewOption func(*ReviewDesk)

// WithReviewLogger wires a logger for review submissions and reads.
func WithReviewLogger(logger OperationLogger) ReviewOption {
	return func(desk *ReviewDesk) {
		desk.logger = logger
	}
}

// ReviewDesk submits and lists reservation reviews.
type ReviewDesk struct {
	gateway Gateway
	logger  OperationLogger
}

// NewReviewDesk wires a ReviewDesk.
func NewReviewDesk(gateway Gateway, options ...ReviewOption) (*ReviewDesk, error) {
	if gateway == nil {
		return nil, fmt.Errorf("%w: gateway dependency is nil", ErrInvalidWorkflowInput)
	}
	desk := &ReviewDesk{gateway: gateway}
	for _, option := range options {
		if option != nil {
			option(desk)
		}
	}
	return desk, nil
}

// ValidateReview checks a rating and comment before anything reaches the ledger.
func ValidateReview(comment string, rating int) (string, uint8, error) {
	trimmed := strings.TrimSpace(comment)
	if trimmed == "" {
		return "", 0, fmt.Errorf("%w: comment is required", ErrInvalidReview)
	}
	if utf8.RuneCountInString(trimmed) > MaxReviewCommentLength {
		return "", 0, fmt.Errorf("%w: comment exceeds %d characters", ErrInvalidReview, MaxReviewCommentLength)
	}
	if rating < MinReviewRating || rating > MaxReviewRating {
		return "", 0, fmt.Errorf("%w: rating must be between %d and %d", ErrInvalidReview, MinReviewRating, MaxReviewRating)
	}
	return trimmed, uint8(rating), nil
}

// Submit posts a review for number and blocks until the ledger finalizes it.
func (desk *ReviewDesk) Submit(ctx context.Context, session *Session, number ReservationNumber, comment string, rating int) (Outcome, error) {
	if !session.Connected() {
		return Outcome{}, ErrNotConnected
	}
	entry := OperationLog{Operation: OperationReview, Account: session.Address, Message: statusReviewSubmitting}
	trimmed, validRating, err := ValidateReview(comment, rating)
	if err != nil {
		entry.Error = err
		entry.Category, _ = Categorize(err)
		logOperation(ctx, desk.logger, entry)
		return Outcome{}, err
	}

	call, err := desk.gateway.SubmitReview(ctx, number, trimmed, validRating)
	if err != nil {
		entry.Error = err
		entry.Category, _ = Categorize(err)
		logOperation(ctx, desk.logger, entry)
		return Outcome{}, err
	}
	entry.CallHash = call.Hash
	entry.Message = statusReviewWaiting
	logOperation(ctx, desk.logger, entry)

	outcome, err := desk.gateway.AwaitFinality(ctx, call)
	entry.Message = statusReviewSubmitted
	if err != nil {
		entry.Error = err
		entry.Category, _ = Categorize(err)
		entry.Message = fmt.Sprintf("review of reservation %d failed", number)
	}
	logOperation(ctx, desk.logger, entry)
	return outcome, err
}

// List reads every review stored for number.
func (desk *ReviewDesk) List(ctx context.Context, number ReservationNumber) ([]Review, error) {
	reviews, err := desk.gateway.ReadReviews(ctx, number)
	logOperation(ctx, desk.logger, OperationLog{Operation: OperationReviews, Message: fmt.Sprintf("reservation %d", number), Error: err})
	if err != nil {
		return nil, err
	}
	if reviews == nil {
		reviews = []Review{}
	}
	return reviews, nil
}
