package booking

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func mustReviewDesk(test *testing.T, gateway Gateway, options ...ReviewOption) *ReviewDesk {
	test.Helper()
	desk, err := NewReviewDesk(gateway, options...)
	if err != nil {
		test.Fatalf("review desk init: %v", err)
	}
	return desk
}

func TestReviewDeskSubmitsAndAwaitsFinality(test *testing.T) {
	test.Parallel()
	gateway := newStubGateway(test)
	logger := &recorderLogger{}
	desk := mustReviewDesk(test, gateway, WithReviewLogger(logger))

	outcome, err := desk.Submit(context.Background(), newSession(test, "0"), 5, "  Lovely trip  ", 4)
	if err != nil {
		test.Fatalf("submit: %v", err)
	}
	if outcome.Hash == "" {
		test.Fatalf("expected finalized outcome, got %+v", outcome)
	}
	if calls := gateway.recordedCalls(); !reflect.DeepEqual(calls, []string{"submit:review", "final:review"}) {
		test.Fatalf("unexpected calls %v", calls)
	}
	if gateway.reviewed != 5 || gateway.reviewText != "Lovely trip" || gateway.reviewRating != 4 {
		test.Fatalf("unexpected review forwarded: %d %q %d", gateway.reviewed, gateway.reviewText, gateway.reviewRating)
	}
	entries := logger.snapshot()
	if len(entries) != 2 || entries[0].CallHash == "" || entries[1].Message != statusReviewSubmitted {
		test.Fatalf("unexpected review log: %+v", entries)
	}
}

func TestReviewDeskRejectsInvalidInputBeforeLedgerCalls(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		comment string
		rating  int
	}{
		{name: "empty comment", comment: "   ", rating: 3},
		{name: "rating too low", comment: "fine", rating: 0},
		{name: "rating too high", comment: "fine", rating: 6},
		{name: "comment too long", comment: strings.Repeat("a", MaxReviewCommentLength+1), rating: 5},
	}
	for _, testCase := range testCases {
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			gateway := newStubGateway(test)
			desk := mustReviewDesk(test, gateway)

			_, err := desk.Submit(context.Background(), newSession(test, "0"), 5, testCase.comment, testCase.rating)
			if !errors.Is(err, ErrInvalidReview) {
				test.Fatalf("expected ErrInvalidReview, got %v", err)
			}
			if category, _ := Categorize(err); category != CategoryInvalidReview {
				test.Fatalf("expected invalid_review category, got %s", category)
			}
			if calls := gateway.recordedCalls(); len(calls) != 0 {
				test.Fatalf("expected no gateway calls, got %v", calls)
			}
		})
	}
}

func TestReviewDeskRequiresSession(test *testing.T) {
	test.Parallel()
	gateway := newStubGateway(test)
	desk := mustReviewDesk(test, gateway)

	if _, err := desk.Submit(context.Background(), nil, 5, "great", 5); !errors.Is(err, ErrNotConnected) {
		test.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if calls := gateway.recordedCalls(); len(calls) != 0 {
		test.Fatalf("expected no gateway calls, got %v", calls)
	}
}

func TestReviewDeskSurfacesLedgerFailures(test *testing.T) {
	test.Parallel()
	gateway := newStubGateway(test)
	gateway.finalityErrors[CallReview] = ErrReverted
	logger := &recorderLogger{}
	desk := mustReviewDesk(test, gateway, WithReviewLogger(logger))

	_, err := desk.Submit(context.Background(), newSession(test, "0"), 5, "great", 5)
	if !errors.Is(err, ErrReverted) {
		test.Fatalf("expected ErrReverted, got %v", err)
	}
	entries := logger.snapshot()
	last := entries[len(entries)-1]
	if last.Status != operationStatusError || last.Category != CategoryLedgerError {
		test.Fatalf("expected failure log entry, got %+v", last)
	}

	gateway.submitErrors[CallReview] = ErrUserRejected
	if _, err := desk.Submit(context.Background(), newSession(test, "0"), 5, "great", 5); !errors.Is(err, ErrUserRejected) {
		test.Fatalf("expected ErrUserRejected, got %v", err)
	}
}

func TestReviewDeskListsReviews(test *testing.T) {
	test.Parallel()
	gateway := newStubGateway(test)
	posted := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	gateway.reviews[5] = []Review{{Reviewer: mustAddress(test, travelerHex), Comment: "great", Rating: 5, PostedAt: posted, Verified: true}}
	desk := mustReviewDesk(test, gateway)

	reviews, err := desk.List(context.Background(), 5)
	if err != nil {
		test.Fatalf("list: %v", err)
	}
	if len(reviews) != 1 || reviews[0].Comment != "great" || !reviews[0].PostedAt.Equal(posted) {
		test.Fatalf("unexpected reviews %+v", reviews)
	}

	empty, err := desk.List(context.Background(), 9)
	if err != nil || empty == nil || len(empty) != 0 {
		test.Fatalf("expected empty non-nil list, got %v %v", empty, err)
	}

	gateway.mutex.Lock()
	gateway.reviewsErr = ErrConnectivity
	gateway.mutex.Unlock()
	if _, err := desk.List(context.Background(), 5); !errors.Is(err, ErrConnectivity) {
		test.Fatalf("expected ErrConnectivity, got %v", err)
	}
}
