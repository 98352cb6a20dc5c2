package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/travelbook/pkg/booking"
)

const (
	defaultFinalityTimeout = 2 * time.Minute
	defaultPollInterval    = 2 * time.Second
	defaultReceiptFailures = 5
)

var (
	errMissingBackend    = errors.New("chain backend is required")
	errMissingSigner     = errors.New("signing key is required")
	errInvalidPrivateKey = errors.New("invalid private key")
	errUnexpectedOutput  = errors.New("unexpected contract output")
)

// Backend is the node surface the gateway needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ConfirmRequest describes a state-changing call awaiting the holder's approval.
type ConfirmRequest struct {
	Kind        booking.CallKind
	Contract    common.Address
	Method      string
	Value       booking.TokenAmount
	Description string
}

// ConfirmFunc asks the account holder to approve a call. Returning false
// aborts the call as a rejection.
type ConfirmFunc func(ctx context.Context, request ConfirmRequest) (bool, error)

// AutoConfirm approves every call.
func AutoConfirm(context.Context, ConfirmRequest) (bool, error) {
	return true, nil
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithConfirm installs the approval prompt consulted before each submission.
func WithConfirm(confirm ConfirmFunc) Option {
	return func(gateway *Gateway) {
		if confirm != nil {
			gateway.confirm = confirm
		}
	}
}

// WithFinalityTimeout bounds how long AwaitFinality polls for a receipt.
func WithFinalityTimeout(timeout time.Duration) Option {
	return func(gateway *Gateway) {
		if timeout > 0 {
			gateway.finalityTimeout = timeout
		}
	}
}

// WithPollInterval sets the receipt polling cadence.
func WithPollInterval(interval time.Duration) Option {
	return func(gateway *Gateway) {
		if interval > 0 {
			gateway.pollInterval = interval
		}
	}
}

// WithReceiptFailureLimit sets how many consecutive receipt lookup errors
// AwaitFinality tolerates before reporting a connectivity failure.
func WithReceiptFailureLimit(limit int) Option {
	return func(gateway *Gateway) {
		if limit > 0 {
			gateway.receiptFailureLimit = limit
		}
	}
}

// WithLogger attaches a zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(gateway *Gateway) {
		if logger != nil {
			gateway.logger = logger
		}
	}
}

// Gateway implements booking.Gateway against the TravelToken and TravelAgency
// contracts on an EVM chain.
type Gateway struct {
	backend         Backend
	network         Network
	signer          common.Address
	transactor      *bind.TransactOpts
	token           *bind.BoundContract
	agency          *bind.BoundContract
	tokenAddress    common.Address
	agencyAddress   common.Address
	registry        booking.Address
	confirm         ConfirmFunc
	finalityTimeout time.Duration
	pollInterval    time.Duration
	logger          *zap.Logger

	receiptFailureLimit int
}

var _ booking.Gateway = (*Gateway)(nil)

// New builds a gateway for the given network, signing with key.
func New(backend Backend, network Network, key *ecdsa.PrivateKey, options ...Option) (*Gateway, error) {
	if backend == nil {
		return nil, errMissingBackend
	}
	if key == nil {
		return nil, errMissingSigner
	}
	if !common.IsHexAddress(network.TokenAddress) || !common.IsHexAddress(network.AgencyAddress) {
		return nil, fmt.Errorf("network %s: %w", network.Name, booking.ErrInvalidAddress)
	}
	transactor, err := bind.NewKeyedTransactorWithChainID(key, new(big.Int).SetUint64(network.ChainID))
	if err != nil {
		return nil, fmt.Errorf("keyed transactor: %w", err)
	}
	registry, err := booking.NewAddress(network.AgencyAddress)
	if err != nil {
		return nil, err
	}
	tokenAddress := common.HexToAddress(network.TokenAddress)
	agencyAddress := common.HexToAddress(network.AgencyAddress)
	gateway := &Gateway{
		backend:         backend,
		network:         network,
		signer:          crypto.PubkeyToAddress(key.PublicKey),
		transactor:      transactor,
		token:           bind.NewBoundContract(tokenAddress, travelTokenABI, backend, backend, backend),
		agency:          bind.NewBoundContract(agencyAddress, travelAgencyABI, backend, backend, backend),
		tokenAddress:    tokenAddress,
		agencyAddress:   agencyAddress,
		registry:        registry,
		confirm:         AutoConfirm,
		finalityTimeout: defaultFinalityTimeout,
		pollInterval:    defaultPollInterval,
		logger:          zap.NewNop(),

		receiptFailureLimit: defaultReceiptFailures,
	}
	for _, option := range options {
		if option != nil {
			option(gateway)
		}
	}
	return gateway, nil
}

// DialConfig describes how to reach a node and which key signs.
type DialConfig struct {
	RPCURL        string
	PrivateKeyHex string
	TokenAddress  string
	AgencyAddress string
}

// Dial connects to the node, resolves the network from its chain id and
// returns a gateway plus a close function.
func Dial(ctx context.Context, config DialConfig, options ...Option) (*Gateway, func(), error) {
	if strings.TrimSpace(config.RPCURL) == "" {
		return nil, nil, fmt.Errorf("rpc url is required: %w", booking.ErrNotConnected)
	}
	key, err := ParsePrivateKey(config.PrivateKeyHex)
	if err != nil {
		return nil, nil, err
	}
	client, err := ethclient.DialContext(ctx, config.RPCURL)
	if err != nil {
		return nil, nil, classifyReadError("dial", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, nil, classifyReadError("chain_id", err)
	}
	network, err := LookupNetwork(chainID.Uint64(), config.TokenAddress, config.AgencyAddress)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	gateway, err := New(client, network, key, options...)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return gateway, client.Close, nil
}

// ParsePrivateKey decodes a hex secp256k1 key with or without a 0x prefix.
func ParsePrivateKey(raw string) (*ecdsa.PrivateKey, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: %w", errMissingSigner, booking.ErrNotConnected)
	}
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidPrivateKey, err)
	}
	return key, nil
}

// Network reports the chain the gateway is bound to.
func (gateway *Gateway) Network() Network {
	return gateway.network
}

// Session reads the signer's current token balance and returns a connected session.
func (gateway *Gateway) Session(ctx context.Context) (*booking.Session, error) {
	account, err := booking.NewAddress(gateway.signer.Hex())
	if err != nil {
		return nil, err
	}
	balance, err := gateway.ReadBalance(ctx, account)
	if err != nil {
		return nil, err
	}
	return &booking.Session{
		Address:   account,
		ChainID:   gateway.network.ChainID,
		ChainName: gateway.network.Name,
		Balance:   balance,
	}, nil
}

// RegistryAddress returns the TravelAgency contract address.
func (gateway *Gateway) RegistryAddress() booking.Address {
	return gateway.registry
}

// ReadBalance returns the token balance held by account.
func (gateway *Gateway) ReadBalance(ctx context.Context, account booking.Address) (booking.TokenAmount, error) {
	var output []interface{}
	if err := gateway.token.Call(gateway.callOpts(ctx), &output, methodBalanceOf, common.HexToAddress(account.String())); err != nil {
		return booking.TokenAmount{}, classifyReadError(methodBalanceOf, err)
	}
	value, err := bigIntAt(output, 0)
	if err != nil {
		return booking.TokenAmount{}, classifyReadError(methodBalanceOf, err)
	}
	return booking.NewTokenAmount(value)
}

// SubmitPurchase sends amount of native currency to buyTokens.
func (gateway *Gateway) SubmitPurchase(ctx context.Context, amount booking.TokenAmount) (booking.PendingCall, error) {
	request := ConfirmRequest{
		Kind:        booking.CallPurchase,
		Contract:    gateway.tokenAddress,
		Method:      methodBuyTokens,
		Value:       amount,
		Description: fmt.Sprintf("buy %s tokens", amount.Decimal()),
	}
	return gateway.submit(ctx, gateway.token, request, amount.BigInt())
}

// SubmitApproval authorizes spender to draw amount tokens from the signer.
func (gateway *Gateway) SubmitApproval(ctx context.Context, spender booking.Address, amount booking.TokenAmount) (booking.PendingCall, error) {
	request := ConfirmRequest{
		Kind:        booking.CallApproval,
		Contract:    gateway.tokenAddress,
		Method:      methodApprove,
		Description: fmt.Sprintf("approve %s to spend %s tokens", spender, amount.Decimal()),
	}
	return gateway.submit(ctx, gateway.token, request, nil, common.HexToAddress(spender.String()), amount.BigInt())
}

// SubmitReservation books offerID for traveler on the registry.
func (gateway *Gateway) SubmitReservation(ctx context.Context, offerID booking.OfferID, traveler booking.Address, hotelIncluded bool) (booking.PendingCall, error) {
	request := ConfirmRequest{
		Kind:        booking.CallReservation,
		Contract:    gateway.agencyAddress,
		Method:      methodCreateReservation,
		Description: fmt.Sprintf("reserve offer %d for %s (hotel included: %t)", offerID, traveler, hotelIncluded),
	}
	return gateway.submit(ctx, gateway.agency, request, nil, big.NewInt(int64(offerID)), common.HexToAddress(traveler.String()), hotelIncluded)
}

func (gateway *Gateway) submit(ctx context.Context, contract *bind.BoundContract, request ConfirmRequest, value *big.Int, params ...interface{}) (booking.PendingCall, error) {
	approved, err := gateway.confirm(ctx, request)
	if err != nil {
		return booking.PendingCall{}, classifySubmitError(request.Kind, err)
	}
	if !approved {
		return booking.PendingCall{}, classifySubmitError(request.Kind, booking.ErrUserRejected)
	}
	opts := gateway.transactOpts(ctx, value)
	transaction, err := contract.Transact(opts, request.Method, params...)
	if err != nil {
		gateway.logger.Warn("submission failed",
			zap.String("kind", string(request.Kind)),
			zap.String("method", request.Method),
			zap.Error(err),
		)
		return booking.PendingCall{}, classifySubmitError(request.Kind, err)
	}
	gateway.logger.Info("call submitted",
		zap.String("kind", string(request.Kind)),
		zap.String("method", request.Method),
		zap.String("hash", transaction.Hash().Hex()),
	)
	return booking.PendingCall{Kind: request.Kind, Hash: transaction.Hash().Hex()}, nil
}

// AwaitFinality polls for the call's receipt until it is mined, it reverts or
// the finality timeout elapses. Repeated lookup errors in a row end the wait
// early as a connectivity failure.
func (gateway *Gateway) AwaitFinality(ctx context.Context, call booking.PendingCall) (booking.Outcome, error) {
	waitCtx, cancel := context.WithTimeout(ctx, gateway.finalityTimeout)
	defer cancel()

	hash := common.HexToHash(call.Hash)
	ticker := time.NewTicker(gateway.pollInterval)
	defer ticker.Stop()
	failures := 0
	for {
		receipt, err := gateway.backend.TransactionReceipt(waitCtx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return booking.Outcome{}, booking.WrapError(operationFinality, string(call.Kind), codeFor(booking.ErrReverted), booking.ErrReverted)
			}
			outcome := booking.Outcome{Hash: hash.Hex()}
			if receipt.BlockNumber != nil {
				outcome.BlockNumber = receipt.BlockNumber.Uint64()
			}
			return outcome, nil
		case err == nil, errors.Is(err, ethereum.NotFound):
			failures = 0
		case waitCtx.Err() == nil:
			failures++
			gateway.logger.Debug("receipt lookup failed", zap.String("hash", hash.Hex()), zap.Int("consecutive", failures), zap.Error(err))
			if failures >= gateway.receiptFailureLimit {
				return booking.Outcome{}, booking.WrapError(operationFinality, string(call.Kind), codeFor(booking.ErrConnectivity), fmt.Errorf("%w: %v", booking.ErrConnectivity, err))
			}
		}
		select {
		case <-waitCtx.Done():
			if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
				return booking.Outcome{}, booking.WrapError(operationFinality, string(call.Kind), codeFor(booking.ErrTimeout), booking.ErrTimeout)
			}
			return booking.Outcome{}, booking.WrapError(operationFinality, string(call.Kind), codeFor(booking.ErrConnectivity), fmt.Errorf("%w: %v", booking.ErrConnectivity, waitCtx.Err()))
		case <-ticker.C:
		}
	}
}

// ReadReservationsFor lists the reservation numbers booked by account.
func (gateway *Gateway) ReadReservationsFor(ctx context.Context, account booking.Address) ([]booking.ReservationNumber, error) {
	var output []interface{}
	if err := gateway.agency.Call(gateway.callOpts(ctx), &output, methodGetCustomerBookings, common.HexToAddress(account.String())); err != nil {
		return nil, classifyReadError(methodGetCustomerBookings, err)
	}
	if len(output) != 1 {
		return nil, classifyReadError(methodGetCustomerBookings, errUnexpectedOutput)
	}
	values, ok := output[0].([]*big.Int)
	if !ok {
		return nil, classifyReadError(methodGetCustomerBookings, errUnexpectedOutput)
	}
	numbers := make([]booking.ReservationNumber, 0, len(values))
	for _, value := range values {
		if value == nil || !value.IsUint64() {
			return nil, classifyReadError(methodGetCustomerBookings, errUnexpectedOutput)
		}
		numbers = append(numbers, booking.ReservationNumber(value.Uint64()))
	}
	return numbers, nil
}

// ReadReservationDetails returns the stored record for number.
func (gateway *Gateway) ReadReservationDetails(ctx context.Context, number booking.ReservationNumber) (booking.Reservation, error) {
	var output []interface{}
	if err := gateway.agency.Call(gateway.callOpts(ctx), &output, methodGetReservationDetails, new(big.Int).SetUint64(uint64(number))); err != nil {
		return booking.Reservation{}, classifyReadError(methodGetReservationDetails, err)
	}
	reservation, err := decodeReservation(number, output)
	if err != nil {
		return booking.Reservation{}, classifyReadError(methodGetReservationDetails, err)
	}
	return reservation, nil
}

// SubmitReview posts a rated comment for a reservation on the registry.
func (gateway *Gateway) SubmitReview(ctx context.Context, number booking.ReservationNumber, comment string, rating uint8) (booking.PendingCall, error) {
	request := ConfirmRequest{
		Kind:        booking.CallReview,
		Contract:    gateway.agencyAddress,
		Method:      methodAddReview,
		Description: fmt.Sprintf("review reservation %d with rating %d", number, rating),
	}
	return gateway.submit(ctx, gateway.agency, request, nil, new(big.Int).SetUint64(uint64(number)), comment, rating)
}

// ReadReviews returns the reviews stored for a reservation.
func (gateway *Gateway) ReadReviews(ctx context.Context, number booking.ReservationNumber) ([]booking.Review, error) {
	var tuples []reviewTuple
	output := []interface{}{&tuples}
	if err := gateway.agency.Call(gateway.callOpts(ctx), &output, methodGetReviews, new(big.Int).SetUint64(uint64(number))); err != nil {
		return nil, classifyReadError(methodGetReviews, err)
	}
	reviews := make([]booking.Review, 0, len(tuples))
	for _, tuple := range tuples {
		review, err := decodeReview(tuple)
		if err != nil {
			return nil, classifyReadError(methodGetReviews, err)
		}
		reviews = append(reviews, review)
	}
	return reviews, nil
}

func decodeReview(tuple reviewTuple) (booking.Review, error) {
	if tuple.Timestamp == nil || !tuple.Timestamp.IsInt64() {
		return booking.Review{}, errUnexpectedOutput
	}
	reviewer, err := booking.NewAddress(tuple.Reviewer.Hex())
	if err != nil {
		return booking.Review{}, err
	}
	return booking.Review{
		Reviewer: reviewer,
		Comment:  tuple.Comment,
		Rating:   tuple.Rating,
		PostedAt: time.Unix(tuple.Timestamp.Int64(), 0).UTC(),
		Verified: tuple.Verified,
	}, nil
}

func decodeReservation(number booking.ReservationNumber, output []interface{}) (booking.Reservation, error) {
	if len(output) != 7 {
		return booking.Reservation{}, errUnexpectedOutput
	}
	travelID, err := bigIntAt(output, 0)
	if err != nil {
		return booking.Reservation{}, err
	}
	travelerAddress, ok := output[1].(common.Address)
	if !ok {
		return booking.Reservation{}, errUnexpectedOutput
	}
	price, err := bigIntAt(output, 2)
	if err != nil {
		return booking.Reservation{}, err
	}
	hotelIncluded, hotelOK := output[3].(bool)
	paid, paidOK := output[4].(bool)
	completed, completedOK := output[5].(bool)
	if !hotelOK || !paidOK || !completedOK {
		return booking.Reservation{}, errUnexpectedOutput
	}
	bookedAt, err := bigIntAt(output, 6)
	if err != nil {
		return booking.Reservation{}, err
	}
	if !travelID.IsInt64() || !bookedAt.IsInt64() {
		return booking.Reservation{}, errUnexpectedOutput
	}
	traveler, err := booking.NewAddress(travelerAddress.Hex())
	if err != nil {
		return booking.Reservation{}, err
	}
	amount, err := booking.NewTokenAmount(price)
	if err != nil {
		return booking.Reservation{}, err
	}
	return booking.Reservation{
		Number:        number,
		OfferID:       booking.OfferID(travelID.Int64()),
		Traveler:      traveler,
		Price:         amount,
		HotelIncluded: hotelIncluded,
		Paid:          paid,
		Completed:     completed,
		BookedAt:      time.Unix(bookedAt.Int64(), 0).UTC(),
	}, nil
}

func (gateway *Gateway) callOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{Context: ctx, From: gateway.signer}
}

func (gateway *Gateway) transactOpts(ctx context.Context, value *big.Int) *bind.TransactOpts {
	return &bind.TransactOpts{
		From:    gateway.transactor.From,
		Signer:  gateway.transactor.Signer,
		Value:   value,
		Context: ctx,
	}
}

func bigIntAt(output []interface{}, index int) (*big.Int, error) {
	if index >= len(output) {
		return nil, errUnexpectedOutput
	}
	value, ok := output[index].(*big.Int)
	if !ok || value == nil {
		return nil, errUnexpectedOutput
	}
	return value, nil
}
