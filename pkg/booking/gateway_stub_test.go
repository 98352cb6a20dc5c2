package booking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

const (
	travelerHex = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	registryHex = "0xd8b934580fcE35a11B58C6D73aDeE468a2833fa8"
)

// stubGateway records every call in order and finalizes calls instantly
// unless a failure or a release channel is configured.
type stubGateway struct {
	mutex sync.Mutex

	registry Address
	balance  TokenAmount
	calls    []string

	submitErrors   map[CallKind]error
	finalityErrors map[CallKind]error
	finalityGate   chan struct{}

	reservationNumbers []ReservationNumber
	reservationsErr    error
	details            map[ReservationNumber]Reservation
	detailErrors       map[ReservationNumber]error
	detailDelays       map[ReservationNumber]time.Duration

	reviews      map[ReservationNumber][]Review
	reviewsErr   error
	reviewed     ReservationNumber
	reviewText   string
	reviewRating uint8

	purchased  TokenAmount
	approved   TokenAmount
	spender    Address
	reserved   OfferID
	traveler   Address
	withHotel  bool
	nextHashID int
}

func newStubGateway(test *testing.T) *stubGateway {
	test.Helper()
	return &stubGateway{
		registry:       mustAddress(test, registryHex),
		submitErrors:   map[CallKind]error{},
		finalityErrors: map[CallKind]error{},
		details:        map[ReservationNumber]Reservation{},
		detailErrors:   map[ReservationNumber]error{},
		detailDelays:   map[ReservationNumber]time.Duration{},
		reviews:        map[ReservationNumber][]Review{},
	}
}

func (gateway *stubGateway) record(call string) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	gateway.calls = append(gateway.calls, call)
}

func (gateway *stubGateway) recordedCalls() []string {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	return append([]string(nil), gateway.calls...)
}

func (gateway *stubGateway) submit(kind CallKind) (PendingCall, error) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	gateway.calls = append(gateway.calls, "submit:"+string(kind))
	if err := gateway.submitErrors[kind]; err != nil {
		return PendingCall{}, err
	}
	gateway.nextHashID++
	return PendingCall{Kind: kind, Hash: fmt.Sprintf("0x%04x", gateway.nextHashID)}, nil
}

func (gateway *stubGateway) ReadBalance(_ context.Context, _ Address) (TokenAmount, error) {
	gateway.record("read:balance")
	return gateway.balance, nil
}

func (gateway *stubGateway) SubmitPurchase(_ context.Context, amount TokenAmount) (PendingCall, error) {
	call, err := gateway.submit(CallPurchase)
	if err == nil {
		gateway.mutex.Lock()
		gateway.purchased = amount
		gateway.mutex.Unlock()
	}
	return call, err
}

func (gateway *stubGateway) SubmitApproval(_ context.Context, spender Address, amount TokenAmount) (PendingCall, error) {
	call, err := gateway.submit(CallApproval)
	if err == nil {
		gateway.mutex.Lock()
		gateway.approved = amount
		gateway.spender = spender
		gateway.mutex.Unlock()
	}
	return call, err
}

func (gateway *stubGateway) SubmitReservation(_ context.Context, offerID OfferID, traveler Address, hotelIncluded bool) (PendingCall, error) {
	call, err := gateway.submit(CallReservation)
	if err == nil {
		gateway.mutex.Lock()
		gateway.reserved = offerID
		gateway.traveler = traveler
		gateway.withHotel = hotelIncluded
		gateway.mutex.Unlock()
	}
	return call, err
}

func (gateway *stubGateway) AwaitFinality(ctx context.Context, call PendingCall) (Outcome, error) {
	gateway.mutex.Lock()
	gate := gateway.finalityGate
	gateway.mutex.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Outcome{}, ErrTimeout
		}
	}
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	gateway.calls = append(gateway.calls, "final:"+string(call.Kind))
	if err := gateway.finalityErrors[call.Kind]; err != nil {
		return Outcome{}, err
	}
	return Outcome{Hash: call.Hash, BlockNumber: 1}, nil
}

func (gateway *stubGateway) ReadReservationsFor(_ context.Context, _ Address) ([]ReservationNumber, error) {
	gateway.record("read:reservations")
	if gateway.reservationsErr != nil {
		return nil, gateway.reservationsErr
	}
	return gateway.reservationNumbers, nil
}

func (gateway *stubGateway) ReadReservationDetails(_ context.Context, number ReservationNumber) (Reservation, error) {
	gateway.mutex.Lock()
	delay := gateway.detailDelays[number]
	err := gateway.detailErrors[number]
	reservation, found := gateway.details[number]
	gateway.mutex.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return Reservation{}, err
	}
	if !found {
		return Reservation{}, fmt.Errorf("%w: reservation %d", ErrConnectivity, number)
	}
	return reservation, nil
}

func (gateway *stubGateway) SubmitReview(_ context.Context, number ReservationNumber, comment string, rating uint8) (PendingCall, error) {
	call, err := gateway.submit(CallReview)
	if err == nil {
		gateway.mutex.Lock()
		gateway.reviewed = number
		gateway.reviewText = comment
		gateway.reviewRating = rating
		gateway.mutex.Unlock()
	}
	return call, err
}

func (gateway *stubGateway) ReadReviews(_ context.Context, number ReservationNumber) ([]Review, error) {
	gateway.record("read:reviews")
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	if gateway.reviewsErr != nil {
		return nil, gateway.reviewsErr
	}
	return gateway.reviews[number], nil
}

func (gateway *stubGateway) RegistryAddress() Address {
	return gateway.registry
}

type recorderLogger struct {
	mutex   sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recorderLogger) snapshot() []OperationLog {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	return append([]OperationLog(nil), logger.entries...)
}

func mustAddress(test *testing.T, raw string) Address {
	test.Helper()
	address, err := NewAddress(raw)
	if err != nil {
		test.Fatalf("address %q: %v", raw, err)
	}
	return address
}

func mustAmount(test *testing.T, raw string) TokenAmount {
	test.Helper()
	amount, err := ParseTokenAmount(raw)
	if err != nil {
		test.Fatalf("amount %q: %v", raw, err)
	}
	return amount
}

func mustWorkflow(test *testing.T, gateway Gateway, options ...WorkflowOption) *Workflow {
	test.Helper()
	workflow, err := NewWorkflow(gateway, options...)
	if err != nil {
		test.Fatalf("workflow init: %v", err)
	}
	return workflow
}

func newSession(test *testing.T, balance string) *Session {
	test.Helper()
	return &Session{
		Address:   mustAddress(test, travelerHex),
		ChainID:   97,
		ChainName: "bscTestnet",
		Balance:   mustAmount(test, balance),
	}
}

func newOffer(id OfferID, price string, hotel *Hotel) Offer {
	return Offer{ID: id, Price: price, TransportType: "avion", Origin: "Paris", Destination: "Rome", Hotel: hotel, Carrier: "Air Test"}
}
