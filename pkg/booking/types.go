package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Address is a 20-byte account or contract address in checksummed form.
type Address struct {
	value string
}

// NewAddress validates a hex address and normalizes it to EIP-55 form.
func NewAddress(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Address{}, fmt.Errorf("%w: empty value", ErrInvalidAddress)
	}
	if !common.IsHexAddress(trimmed) {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	return Address{value: common.HexToAddress(trimmed).Hex()}, nil
}

// String returns the checksummed address.
func (address Address) String() string {
	return address.value
}

// IsZero reports whether the address is unset.
func (address Address) IsZero() bool {
	return address.value == ""
}

// MarshalText implements encoding.TextMarshaler.
func (address Address) MarshalText() ([]byte, error) {
	return []byte(address.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (address *Address) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*address = Address{}
		return nil
	}
	parsed, err := NewAddress(string(text))
	if err != nil {
		return err
	}
	*address = parsed
	return nil
}

// OfferID identifies a catalog offer; the registry references it as travelId.
type OfferID int64

// Hotel is the optional accommodation bundled with an offer.
type Hotel struct {
	Name   string `json:"name"`
	Nights int    `json:"numberOfNights"`
}

// Offer is a purchasable travel package as listed by the catalog.
type Offer struct {
	ID            OfferID
	Price         string
	TransportType string
	Origin        string
	Destination   string
	Hotel         *Hotel
	Carrier       string
	DepartureTime time.Time
	ArrivalTime   time.Time
}

// HotelIncluded reports whether the offer bundles a named hotel. The listing
// filter uses it.
func (offer Offer) HotelIncluded() bool {
	return offer.Hotel != nil && strings.TrimSpace(offer.Hotel.Name) != ""
}

// HasHotel reports whether the offer carries any hotel record. This is the
// flag booked on the registry.
func (offer Offer) HasHotel() bool {
	return offer.Hotel != nil
}

// PriceAmount converts the display price into smallest units.
func (offer Offer) PriceAmount() (TokenAmount, error) {
	return ParseTokenAmount(offer.Price)
}

type offerWire struct {
	ID            OfferID         `json:"id"`
	Price         json.RawMessage `json:"price"`
	TransportType string          `json:"type"`
	Origin        string          `json:"depart"`
	Destination   string          `json:"destination"`
	Hotel         *Hotel          `json:"hotel,omitempty"`
	Carrier       string          `json:"compagnyAirLine"`
	DepartureTime string          `json:"dateDepart"`
	ArrivalTime   string          `json:"dateArrivee"`
}

var offerTimeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// UnmarshalJSON accepts the catalog wire format. Every field is optional and
// price may be a JSON string or number.
func (offer *Offer) UnmarshalJSON(data []byte) error {
	var wire offerWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	price, err := decodePrice(wire.Price)
	if err != nil {
		return err
	}
	*offer = Offer{
		ID:            wire.ID,
		Price:         price,
		TransportType: wire.TransportType,
		Origin:        wire.Origin,
		Destination:   wire.Destination,
		Hotel:         wire.Hotel,
		Carrier:       wire.Carrier,
		DepartureTime: parseOfferTime(wire.DepartureTime),
		ArrivalTime:   parseOfferTime(wire.ArrivalTime),
	}
	return nil
}

// MarshalJSON writes the catalog wire format.
func (offer Offer) MarshalJSON() ([]byte, error) {
	price, err := json.Marshal(offer.Price)
	if err != nil {
		return nil, err
	}
	return json.Marshal(offerWire{
		ID:            offer.ID,
		Price:         price,
		TransportType: offer.TransportType,
		Origin:        offer.Origin,
		Destination:   offer.Destination,
		Hotel:         offer.Hotel,
		Carrier:       offer.Carrier,
		DepartureTime: formatOfferTime(offer.DepartureTime),
		ArrivalTime:   formatOfferTime(offer.ArrivalTime),
	})
}

func decodePrice(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	if trimmed[0] == '"' {
		var price string
		if err := json.Unmarshal(trimmed, &price); err != nil {
			return "", err
		}
		return strings.TrimSpace(price), nil
	}
	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return "", fmt.Errorf("decode price: %w", err)
	}
	if strings.ContainsAny(number.String(), "eE") {
		if expanded, ok := expandExponent(number.String()); ok {
			return expanded, nil
		}
	}
	return number.String(), nil
}

// expandExponent rewrites a JSON number such as 1e-2 in plain decimal form.
// It declines values that are negative or finer than the token precision so
// the price parser rejects them.
func expandExponent(raw string) (string, bool) {
	value, ok := new(big.Rat).SetString(raw)
	if !ok || value.Sign() < 0 {
		return "", false
	}
	scaled := new(big.Rat).Mul(value, new(big.Rat).SetInt(tokenUnit))
	if !scaled.IsInt() {
		return "", false
	}
	return TokenAmount{value: new(big.Int).Set(scaled.Num())}.Decimal(), true
}

func parseOfferTime(raw string) time.Time {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}
	}
	for _, layout := range offerTimeLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

func formatOfferTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}

// Session is the connected wallet as seen by the workflow. It is owned by
// the wallet layer and passed in explicitly; the workflow only reads it.
type Session struct {
	Address   Address     `json:"address"`
	ChainID   uint64      `json:"chain_id"`
	ChainName string      `json:"chain_name"`
	Balance   TokenAmount `json:"balance"`
}

// Connected reports whether the session carries an account.
func (session *Session) Connected() bool {
	return session != nil && !session.Address.IsZero()
}

// ReservationNumber is assigned by the registry and never generated locally.
type ReservationNumber uint64

// SettlementStatus is the rendered state of a reservation.
type SettlementStatus string

const (
	SettlementPending   SettlementStatus = "pending"
	SettlementPaid      SettlementStatus = "paid"
	SettlementCompleted SettlementStatus = "completed"
)

// Reservation is a ledger-owned booking record.
type Reservation struct {
	Number        ReservationNumber `json:"reservation_number"`
	OfferID       OfferID           `json:"travel_id"`
	Traveler      Address           `json:"traveler"`
	Price         TokenAmount       `json:"price"`
	HotelIncluded bool              `json:"hotel_included"`
	Paid          bool              `json:"paid"`
	Completed     bool              `json:"completed"`
	BookedAt      time.Time         `json:"booked_at"`
}

// SettlementStatus renders the paid/completed flags; completed wins.
func (reservation Reservation) SettlementStatus() SettlementStatus {
	switch {
	case reservation.Completed:
		return SettlementCompleted
	case reservation.Paid:
		return SettlementPaid
	default:
		return SettlementPending
	}
}

// CallKind names the state-changing call behind a PendingCall.
type CallKind string

const (
	CallPurchase    CallKind = "purchase"
	CallApproval    CallKind = "approval"
	CallReservation CallKind = "reservation"
	CallReview      CallKind = "review"
)

// PendingCall is the handle returned by a submit; finality is awaited separately.
type PendingCall struct {
	Kind CallKind
	Hash string
}

// Outcome describes a finalized call.
type Outcome struct {
	Hash        string
	BlockNumber uint64
}

// Gateway is the capability surface of the external ledger. Every
// state-changing call is two-phase: submit returns quickly with a handle,
// AwaitFinality blocks until the ledger commits or rejects it.
type Gateway interface {
	ReadBalance(ctx context.Context, account Address) (TokenAmount, error)
	SubmitPurchase(ctx context.Context, amount TokenAmount) (PendingCall, error)
	SubmitApproval(ctx context.Context, spender Address, amount TokenAmount) (PendingCall, error)
	SubmitReservation(ctx context.Context, offerID OfferID, traveler Address, hotelIncluded bool) (PendingCall, error)
	AwaitFinality(ctx context.Context, call PendingCall) (Outcome, error)
	ReadReservationsFor(ctx context.Context, account Address) ([]ReservationNumber, error)
	ReadReservationDetails(ctx context.Context, number ReservationNumber) (Reservation, error)
	SubmitReview(ctx context.Context, number ReservationNumber, comment string, rating uint8) (PendingCall, error)
	ReadReviews(ctx context.Context, number ReservationNumber) ([]Review, error)
	RegistryAddress() Address
}
