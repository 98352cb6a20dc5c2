package booking

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// QueryOption configures a ReservationQuery.
type QueryOption func(*ReservationQuery)

// WithQueryLogger wires a logger for ledger reads.
func WithQueryLogger(logger OperationLogger) QueryOption {
	return func(query *ReservationQuery) {
		query.logger = logger
	}
}

// WithConcurrency bounds concurrent detail reads.
func WithConcurrency(limit int) QueryOption {
	return func(query *ReservationQuery) {
		query.concurrency = limit
	}
}

// ReservationQuery reads an account's reservations back from the ledger.
// Nothing is cached; every Load re-reads.
type ReservationQuery struct {
	gateway     Gateway
	logger      OperationLogger
	concurrency int
}

// NewReservationQuery wires a ReservationQuery.
func NewReservationQuery(gateway Gateway, options ...QueryOption) (*ReservationQuery, error) {
	if gateway == nil {
		return nil, fmt.Errorf("%w: gateway dependency is nil", ErrInvalidWorkflowInput)
	}
	query := &ReservationQuery{gateway: gateway, concurrency: DefaultQueryConcurrency}
	for _, option := range options {
		if option != nil {
			option(query)
		}
	}
	if query.concurrency <= 0 {
		return nil, fmt.Errorf("%w: concurrency must be positive", ErrInvalidWorkflowInput)
	}
	return query, nil
}

// ReservationEntry is one slot of a view: either loaded or failed.
type ReservationEntry struct {
	Number      ReservationNumber
	Reservation *Reservation
	Err         error
}

// ReservationView lists entries in the ledger's reservation-number order.
type ReservationView struct {
	Account Address
	Entries []ReservationEntry
}

// Loaded returns the reservations that were read, in order.
func (view ReservationView) Loaded() []Reservation {
	loaded := make([]Reservation, 0, len(view.Entries))
	for _, entry := range view.Entries {
		if entry.Reservation != nil {
			loaded = append(loaded, *entry.Reservation)
		}
	}
	return loaded
}

// Failed returns the numbers whose detail read failed, in order.
func (view ReservationView) Failed() []ReservationNumber {
	failed := []ReservationNumber{}
	for _, entry := range view.Entries {
		if entry.Err != nil {
			failed = append(failed, entry.Number)
		}
	}
	return failed
}

// Partial reports whether at least one detail read failed.
func (view ReservationView) Partial() bool {
	for _, entry := range view.Entries {
		if entry.Err != nil {
			return true
		}
	}
	return false
}

// Load reads the account's reservation numbers and then every detail
// concurrently. A failed number read fails the whole load; a failed detail
// read only marks its own entry.
func (query *ReservationQuery) Load(ctx context.Context, session *Session) (ReservationView, error) {
	if !session.Connected() {
		return ReservationView{}, ErrNotConnected
	}
	account := session.Address
	numbers, err := query.gateway.ReadReservationsFor(ctx, account)
	logOperation(ctx, query.logger, OperationLog{Operation: OperationReservations, Account: account, Error: err})
	if err != nil {
		return ReservationView{Account: account}, err
	}

	entries := make([]ReservationEntry, len(numbers))
	var group errgroup.Group
	group.SetLimit(query.concurrency)
	for index, number := range numbers {
		group.Go(func() error {
			reservation, readErr := query.gateway.ReadReservationDetails(ctx, number)
			if readErr != nil {
				entries[index] = ReservationEntry{Number: number, Err: readErr}
				logOperation(ctx, query.logger, OperationLog{Operation: OperationDetails, Account: account, Message: fmt.Sprintf("reservation %d", number), Error: readErr})
				return nil
			}
			if reservation.Number == 0 {
				reservation.Number = number
			}
			entries[index] = ReservationEntry{Number: number, Reservation: &reservation}
			return nil
		})
	}
	_ = group.Wait()
	return ReservationView{Account: account, Entries: entries}, nil
}
