package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	methodBalanceOf             = "balanceOf"
	methodApprove               = "approve"
	methodBuyTokens             = "buyTokens"
	methodCreateReservation     = "createReservation"
	methodGetCustomerBookings   = "getCustomerBookings"
	methodGetReservationDetails = "getReservationDetails"
	methodAddReview             = "addReview"
	methodGetReviews            = "getReviews"
)

// TravelTokenABI is the settlement token surface used by the client.
const TravelTokenABI = `[
	{"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"address","name":"spender","type":"address"},{"internalType":"uint256","name":"value","type":"uint256"}],"name":"approve","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[],"name":"buyTokens","outputs":[],"stateMutability":"payable","type":"function"}
]`

// TravelAgencyABI is the booking registry surface used by the client.
const TravelAgencyABI = `[
	{"inputs":[{"internalType":"uint256","name":"_travelId","type":"uint256"},{"internalType":"address","name":"_travelerAddress","type":"address"},{"internalType":"bool","name":"_isHotelIncluded","type":"bool"}],"name":"createReservation","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"address","name":"_customer","type":"address"}],"name":"getCustomerBookings","outputs":[{"internalType":"uint256[]","name":"","type":"uint256[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"_reservationNumber","type":"uint256"}],"name":"getReservationDetails","outputs":[{"internalType":"uint256","name":"travelId","type":"uint256"},{"internalType":"address","name":"traveler","type":"address"},{"internalType":"uint256","name":"price","type":"uint256"},{"internalType":"bool","name":"isHotelIncluded","type":"bool"},{"internalType":"bool","name":"isPaid","type":"bool"},{"internalType":"bool","name":"isCompleted","type":"bool"},{"internalType":"uint256","name":"bookingDate","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"_reservationNumber","type":"uint256"},{"internalType":"string","name":"_comment","type":"string"},{"internalType":"uint8","name":"_rating","type":"uint8"}],"name":"addReview","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"_reservationNumber","type":"uint256"}],"name":"getReviews","outputs":[{"components":[{"internalType":"address","name":"reviewer","type":"address"},{"internalType":"string","name":"comment","type":"string"},{"internalType":"uint8","name":"rating","type":"uint8"},{"internalType":"uint256","name":"timestamp","type":"uint256"},{"internalType":"bool","name":"verified","type":"bool"}],"internalType":"struct TravelAgency.Review[]","name":"","type":"tuple[]"}],"stateMutability":"view","type":"function"}
]`

// reviewTuple mirrors the registry's Review struct for ABI decoding.
type reviewTuple struct {
	Reviewer  common.Address
	Comment   string
	Rating    uint8
	Timestamp *big.Int
	Verified  bool
}

var (
	travelTokenABI  = mustParseABI("TravelToken", TravelTokenABI)
	travelAgencyABI = mustParseABI("TravelAgency", TravelAgencyABI)
)

func mustParseABI(name string, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse %s abi: %v", name, err))
	}
	return parsed
}
