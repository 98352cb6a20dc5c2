package travelapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/travelbook/internal/catalog"
	"github.com/MarkoPoloResearchLab/travelbook/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/travelbook/pkg/booking"
)

var errMissingDependency = errors.New("travel api dependency missing")

// OfferSource lists the catalog offers.
type OfferSource interface {
	FetchOffers(ctx context.Context) []booking.Offer
}

// SessionSource resolves the connected account.
type SessionSource interface {
	Session(ctx context.Context) (*booking.Session, error)
}

// Reserver drives reservation attempts.
type Reserver interface {
	Start(ctx context.Context, session *booking.Session, offer booking.Offer) (*booking.Attempt, error)
	State() booking.TransactionState
}

// ReservationLoader reads the account's reservations from the ledger.
type ReservationLoader interface {
	Load(ctx context.Context, session *booking.Session) (booking.ReservationView, error)
}

// ReviewBoard submits and lists reservation reviews.
type ReviewBoard interface {
	Submit(ctx context.Context, session *booking.Session, number booking.ReservationNumber, comment string, rating int) (booking.Outcome, error)
	List(ctx context.Context, number booking.ReservationNumber) ([]booking.Review, error)
}

// AttemptJournal exposes recorded attempts.
type AttemptJournal interface {
	ListAttempts(ctx context.Context, account string, limit int) ([]gormstore.AttemptRecord, error)
	ListEvents(ctx context.Context, attemptID string) ([]gormstore.EventRecord, error)
}

// Dependencies are the collaborators the HTTP façade delegates to. Journal
// and Reviews are optional.
type Dependencies struct {
	Logger       *zap.Logger
	Offers       OfferSource
	Sessions     SessionSource
	Workflow     Reserver
	Reservations ReservationLoader
	Journal      AttemptJournal
	Reviews      ReviewBoard
}

func (deps Dependencies) validate() error {
	switch {
	case deps.Offers == nil:
		return fmt.Errorf("%w: offers", errMissingDependency)
	case deps.Sessions == nil:
		return fmt.Errorf("%w: sessions", errMissingDependency)
	case deps.Workflow == nil:
		return fmt.Errorf("%w: workflow", errMissingDependency)
	case deps.Reservations == nil:
		return fmt.Errorf("%w: reservations", errMissingDependency)
	}
	return nil
}

// Run boots the HTTP façade and blocks until ctx is cancelled or the server fails.
func Run(ctx context.Context, cfg Config, deps Dependencies) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	handler, err := newHTTPHandler(cfg, deps)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           setupRouter(cfg, handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		handler.logger.Info("travel api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			handler.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func newHTTPHandler(cfg Config, deps Dependencies) (*httpHandler, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &httpHandler{
		logger:       logger,
		offers:       deps.Offers,
		sessions:     deps.Sessions,
		workflow:     deps.Workflow,
		reservations: deps.Reservations,
		journal:      deps.Journal,
		reviews:      deps.Reviews,
		cfg:          cfg,
	}, nil
}

func setupRouter(cfg Config, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Origin", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/offers", handler.handleOffers)
	api.GET("/offers/:id", handler.handleOffer)
	api.GET("/session", handler.handleSession)
	api.POST("/reservations", handler.handleReserve)
	api.GET("/reservations", handler.handleReservations)
	api.GET("/reservations/:number/reviews", handler.handleReviews)
	api.POST("/reservations/:number/reviews", handler.handleSubmitReview)
	api.GET("/workflow", handler.handleWorkflow)
	api.GET("/attempts", handler.handleAttempts)
	api.GET("/attempts/:id/events", handler.handleAttemptEvents)

	return router
}

type httpHandler struct {
	logger       *zap.Logger
	offers       OfferSource
	sessions     SessionSource
	workflow     Reserver
	reservations ReservationLoader
	journal      AttemptJournal
	reviews      ReviewBoard
	cfg          Config
}

func (handler *httpHandler) handleOffers(ctx *gin.Context) {
	criteria := catalog.Criteria{Search: ctx.Query("q")}
	if rawDate := strings.TrimSpace(ctx.Query("date")); rawDate != "" {
		date, err := time.Parse(listingDateLayout, rawDate)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_date", "date must be YYYY-MM-DD"))
			return
		}
		criteria.Date = date
	}
	if rawHotel := strings.TrimSpace(ctx.Query("hotel")); rawHotel != "" {
		requireHotel, err := strconv.ParseBool(rawHotel)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_hotel", "hotel must be a boolean"))
			return
		}
		criteria.RequireHotel = requireHotel
	}
	offers := catalog.Filter(handler.offers.FetchOffers(ctx.Request.Context()), criteria)
	ctx.JSON(http.StatusOK, gin.H{"offers": offers})
}

func (handler *httpHandler) handleOffer(ctx *gin.Context) {
	offerID, err := parseOfferID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_offer_id", "offer id must be a non-negative integer"))
		return
	}
	offer, found := catalog.Find(handler.offers.FetchOffers(ctx.Request.Context()), offerID)
	if !found {
		ctx.JSON(http.StatusNotFound, errorResponse("unknown_offer", "offer not found"))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"offer": offer})
}

func (handler *httpHandler) handleSession(ctx *gin.Context) {
	session, ok := handler.requireSession(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, sessionPayload{
		Address:    session.Address.String(),
		ChainID:    session.ChainID,
		ChainName:  session.ChainName,
		Balance:    session.Balance.Decimal(),
		BalanceWei: session.Balance.String(),
	})
}

func (handler *httpHandler) handleReserve(ctx *gin.Context) {
	var request reserveRequest
	if err := ctx.ShouldBindJSON(&request); err != nil || request.OfferID == nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body with offer_id"))
		return
	}
	if *request.OfferID < 0 {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_offer_id", "offer id must be a non-negative integer"))
		return
	}
	offer, found := catalog.Find(handler.offers.FetchOffers(ctx.Request.Context()), booking.OfferID(*request.OfferID))
	if !found {
		ctx.JSON(http.StatusNotFound, errorResponse("unknown_offer", "offer not found"))
		return
	}
	session, ok := handler.requireSession(ctx)
	if !ok {
		return
	}

	attempt, err := handler.workflow.Start(ctx.Request.Context(), session, offer)
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrAttemptInFlight):
			ctx.JSON(http.StatusConflict, gin.H{
				"error": errorBody("attempt_in_flight", "a reservation is already in progress"),
				"state": handler.workflow.State(),
			})
		case errors.Is(err, booking.ErrNotConnected):
			ctx.JSON(http.StatusUnauthorized, errorResponse("not_connected", "connect an account to reserve"))
		case errors.Is(err, booking.ErrInvalidPrice), errors.Is(err, booking.ErrInvalidOfferID):
			ctx.JSON(http.StatusUnprocessableEntity, errorResponse(string(booking.CategoryInvalidOffer), err.Error()))
		default:
			handler.logger.Error("reservation start failed", zap.Int64("offer_id", int64(offer.ID)), zap.Error(err))
			ctx.JSON(http.StatusBadGateway, errorResponse(string(booking.CategoryLedgerError), "reservation could not start"))
		}
		return
	}
	ctx.JSON(http.StatusAccepted, gin.H{
		"attempt_id": attempt.ID(),
		"offer":      offer,
		"state":      handler.workflow.State(),
	})
}

func (handler *httpHandler) handleWorkflow(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"state": handler.workflow.State()})
}

func (handler *httpHandler) handleReservations(ctx *gin.Context) {
	session, ok := handler.requireSession(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.LedgerTimeout)
	defer cancel()
	view, err := handler.reservations.Load(requestCtx, session)
	if err != nil {
		handler.logger.Error("reservations load failed", zap.String("account", session.Address.String()), zap.Error(err))
		ctx.JSON(http.StatusBadGateway, errorResponse(string(booking.CategoryLedgerError), "reservations unavailable"))
		return
	}
	entries := make([]reservationPayload, 0, len(view.Entries))
	for _, entry := range view.Entries {
		payload := reservationPayload{Number: entry.Number}
		if entry.Err != nil {
			payload.Error = entry.Err.Error()
		}
		if entry.Reservation != nil {
			payload.Reservation = entry.Reservation
			payload.Status = entry.Reservation.SettlementStatus()
			payload.Price = entry.Reservation.Price.Decimal()
		}
		entries = append(entries, payload)
	}
	ctx.JSON(http.StatusOK, gin.H{
		"account":      view.Account.String(),
		"reservations": entries,
		"partial":      view.Partial(),
	})
}

func (handler *httpHandler) handleReviews(ctx *gin.Context) {
	if handler.reviews == nil {
		ctx.JSON(http.StatusServiceUnavailable, errorResponse("reviews_disabled", "reviews are not configured"))
		return
	}
	number, err := parseReservationNumber(ctx.Param("number"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_reservation_number", "reservation number must be a non-negative integer"))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.LedgerTimeout)
	defer cancel()
	reviews, err := handler.reviews.List(requestCtx, number)
	if err != nil {
		handler.logger.Error("reviews load failed", zap.Uint64("reservation_number", uint64(number)), zap.Error(err))
		ctx.JSON(http.StatusBadGateway, errorResponse(string(booking.CategoryLedgerError), "reviews unavailable"))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"reservation_number": number, "reviews": reviews})
}

func (handler *httpHandler) handleSubmitReview(ctx *gin.Context) {
	if handler.reviews == nil {
		ctx.JSON(http.StatusServiceUnavailable, errorResponse("reviews_disabled", "reviews are not configured"))
		return
	}
	number, err := parseReservationNumber(ctx.Param("number"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_reservation_number", "reservation number must be a non-negative integer"))
		return
	}
	var request reviewRequest
	if err := ctx.ShouldBindJSON(&request); err != nil || request.Rating == nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body with comment and rating"))
		return
	}
	if _, _, err := booking.ValidateReview(request.Comment, *request.Rating); err != nil {
		ctx.JSON(http.StatusUnprocessableEntity, errorResponse(string(booking.CategoryInvalidReview), err.Error()))
		return
	}
	session, ok := handler.requireSession(ctx)
	if !ok {
		return
	}

	outcome, err := handler.reviews.Submit(ctx.Request.Context(), session, number, request.Comment, *request.Rating)
	if err != nil {
		category, message := booking.Categorize(err)
		status := http.StatusBadGateway
		switch category {
		case booking.CategoryNotConnected:
			status = http.StatusUnauthorized
		case booking.CategoryRejected:
			status = http.StatusForbidden
		case booking.CategoryInvalidReview:
			status = http.StatusUnprocessableEntity
		}
		handler.logger.Warn("review submission failed", zap.Uint64("reservation_number", uint64(number)), zap.Error(err))
		ctx.JSON(status, errorResponse(string(category), message))
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{
		"reservation_number": number,
		"call_hash":          outcome.Hash,
		"block_number":       outcome.BlockNumber,
	})
}

func (handler *httpHandler) handleAttempts(ctx *gin.Context) {
	if handler.journal == nil {
		ctx.JSON(http.StatusServiceUnavailable, errorResponse("journal_disabled", "attempt journal is not configured"))
		return
	}
	limit := handler.cfg.AttemptLimit
	if rawLimit := strings.TrimSpace(ctx.Query("limit")); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed <= 0 || parsed > maxAttemptLimit {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_limit", fmt.Sprintf("limit must be between 1 and %d", maxAttemptLimit)))
			return
		}
		limit = parsed
	}
	account := strings.TrimSpace(ctx.Query("account"))
	if account != "" {
		normalized, err := booking.NewAddress(account)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_account", "account must be a hex address"))
			return
		}
		account = normalized.String()
	}
	attempts, err := handler.journal.ListAttempts(ctx.Request.Context(), account, limit)
	if err != nil {
		handler.logger.Error("attempt list failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("journal_error", "attempts unavailable"))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"attempts": attempts})
}

func (handler *httpHandler) handleAttemptEvents(ctx *gin.Context) {
	if handler.journal == nil {
		ctx.JSON(http.StatusServiceUnavailable, errorResponse("journal_disabled", "attempt journal is not configured"))
		return
	}
	events, err := handler.journal.ListEvents(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		handler.logger.Error("attempt events failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("journal_error", "events unavailable"))
		return
	}
	if len(events) == 0 {
		ctx.JSON(http.StatusNotFound, errorResponse("unknown_attempt", "attempt not found"))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"events": events})
}

// requireSession writes the error response itself when no session is available.
func (handler *httpHandler) requireSession(ctx *gin.Context) (*booking.Session, bool) {
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.LedgerTimeout)
	defer cancel()
	session, err := handler.sessions.Session(requestCtx)
	if err == nil && session.Connected() {
		return session, true
	}
	if err == nil || errors.Is(err, booking.ErrNotConnected) {
		ctx.JSON(http.StatusUnauthorized, errorResponse("not_connected", "no connected account"))
		return nil, false
	}
	handler.logger.Error("session lookup failed", zap.Error(err))
	ctx.JSON(http.StatusBadGateway, errorResponse(string(booking.CategoryLedgerError), "session unavailable"))
	return nil, false
}

func parseOfferID(raw string) (booking.OfferID, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, booking.ErrInvalidOfferID
	}
	return booking.OfferID(value), nil
}

func parseReservationNumber(raw string) (booking.ReservationNumber, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	return booking.ReservationNumber(value), nil
}

func errorBody(code string, message string) gin.H {
	return gin.H{
		"code":    code,
		"message": message,
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{"error": errorBody(code, message)}
}

type reserveRequest struct {
	OfferID *int64 `json:"offer_id"`
}

type reviewRequest struct {
	Comment string `json:"comment"`
	Rating  *int   `json:"rating"`
}

type sessionPayload struct {
	Address    string `json:"address"`
	ChainID    uint64 `json:"chain_id"`
	ChainName  string `json:"chain_name"`
	Balance    string `json:"balance"`
	BalanceWei string `json:"balance_wei"`
}

type reservationPayload struct {
	Number      booking.ReservationNumber `json:"reservation_number"`
	Reservation *booking.Reservation      `json:"reservation,omitempty"`
	Status      booking.SettlementStatus  `json:"status,omitempty"`
	Price       string                    `json:"price,omitempty"`
	Error       string                    `json:"error,omitempty"`
}
