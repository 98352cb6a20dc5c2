package booking

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func mustQuery(test *testing.T, gateway Gateway, options ...QueryOption) *ReservationQuery {
	test.Helper()
	query, err := NewReservationQuery(gateway, options...)
	if err != nil {
		test.Fatalf("query init: %v", err)
	}
	return query
}

func TestReservationQueryPreservesLedgerOrder(test *testing.T) {
	test.Parallel()
	gateway := newStubGateway(test)
	gateway.reservationNumbers = []ReservationNumber{5, 2, 9}
	for _, number := range gateway.reservationNumbers {
		gateway.details[number] = Reservation{Number: number, OfferID: OfferID(number * 10), Paid: true}
	}
	gateway.detailDelays[5] = 30 * time.Millisecond
	gateway.detailDelays[2] = 10 * time.Millisecond
	query := mustQuery(test, gateway)

	view, err := query.Load(context.Background(), newSession(test, "0"))
	if err != nil {
		test.Fatalf("load: %v", err)
	}
	numbers := []ReservationNumber{}
	for _, reservation := range view.Loaded() {
		numbers = append(numbers, reservation.Number)
	}
	if !reflect.DeepEqual(numbers, []ReservationNumber{5, 2, 9}) {
		test.Fatalf("expected ledger order, got %v", numbers)
	}
	if view.Partial() {
		test.Fatalf("expected complete view")
	}
}

func TestReservationQueryKeepsLoadedEntriesOnPartialFailure(test *testing.T) {
	test.Parallel()
	gateway := newStubGateway(test)
	logger := &recorderLogger{}
	gateway.reservationNumbers = []ReservationNumber{5, 2, 9}
	gateway.details[5] = Reservation{Number: 5}
	gateway.details[9] = Reservation{Number: 9, Completed: true}
	gateway.detailErrors[2] = ErrConnectivity
	query := mustQuery(test, gateway, WithQueryLogger(logger), WithConcurrency(1))

	view, err := query.Load(context.Background(), newSession(test, "0"))
	if err != nil {
		test.Fatalf("load: %v", err)
	}
	if !view.Partial() {
		test.Fatalf("expected partial view")
	}
	if failed := view.Failed(); !reflect.DeepEqual(failed, []ReservationNumber{2}) {
		test.Fatalf("expected failure for 2, got %v", failed)
	}
	loaded := view.Loaded()
	if len(loaded) != 2 || loaded[0].Number != 5 || loaded[1].Number != 9 {
		test.Fatalf("expected 5 and 9 to render, got %+v", loaded)
	}
	if loaded[1].SettlementStatus() != SettlementCompleted {
		test.Fatalf("expected completed status for 9")
	}
	if len(view.Entries) != 3 || !errors.Is(view.Entries[1].Err, ErrConnectivity) {
		test.Fatalf("expected failed entry in place, got %+v", view.Entries)
	}
	sawDetailFailure := false
	for _, entry := range logger.snapshot() {
		if entry.Operation == OperationDetails && entry.Status == operationStatusError {
			sawDetailFailure = true
		}
	}
	if !sawDetailFailure {
		test.Fatalf("expected detail failure to be logged")
	}
}

func TestReservationQueryFailsWhenNumbersUnavailable(test *testing.T) {
	test.Parallel()
	gateway := newStubGateway(test)
	gateway.reservationsErr = ErrConnectivity
	query := mustQuery(test, gateway)

	if _, err := query.Load(context.Background(), newSession(test, "0")); !errors.Is(err, ErrConnectivity) {
		test.Fatalf("expected ErrConnectivity, got %v", err)
	}
}

func TestReservationQueryRequiresSession(test *testing.T) {
	test.Parallel()
	query := mustQuery(test, newStubGateway(test))
	if _, err := query.Load(context.Background(), &Session{}); !errors.Is(err, ErrNotConnected) {
		test.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestReservationQueryRereadsOnEveryLoad(test *testing.T) {
	test.Parallel()
	gateway := newStubGateway(test)
	query := mustQuery(test, gateway)
	session := newSession(test, "0")

	for range 2 {
		if _, err := query.Load(context.Background(), session); err != nil {
			test.Fatalf("load: %v", err)
		}
	}
	reads := 0
	for _, call := range gateway.recordedCalls() {
		if call == "read:reservations" {
			reads++
		}
	}
	if reads != 2 {
		test.Fatalf("expected two ledger reads, got %d", reads)
	}
}

func TestNewReservationQueryRejectsBadConcurrency(test *testing.T) {
	test.Parallel()
	if _, err := NewReservationQuery(newStubGateway(test), WithConcurrency(0)); !errors.Is(err, ErrInvalidWorkflowInput) {
		test.Fatalf("expected ErrInvalidWorkflowInput, got %v", err)
	}
}
