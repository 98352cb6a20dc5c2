package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/travelbook/internal/catalog"
	"github.com/MarkoPoloResearchLab/travelbook/internal/chain"
	"github.com/MarkoPoloResearchLab/travelbook/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/travelbook/internal/travelapi"
	"github.com/MarkoPoloResearchLab/travelbook/pkg/booking"
)

const (
	flagListenAddr     = "listen-addr"
	flagAllowedOrigins = "allowed-origins"
	flagLedgerTimeout  = "ledger-timeout"
	flagAttemptLimit   = "attempt-limit"
	flagSearch         = "search"
	flagDate           = "date"
	flagHotel          = "hotel"
	flagOfferID        = "offer-id"
	flagYes            = "yes"
	flagLimit          = "limit"
	flagAccount        = "account"
	flagReservation    = "reservation"
	flagComment        = "comment"
	flagRating         = "rating"
	dateLayout         = "2006-01-02"
	timeLayout         = "2006-01-02 15:04"
)

// commandEnv carries what every subcommand resolves before running.
type commandEnv struct {
	viper   *viper.Viper
	runtime runtimeConfig
	logger  *zap.Logger
}

func prepareCommand(cmd *cobra.Command, extraFlags ...string) (*commandEnv, error) {
	v := newViper()
	runtime, err := loadRuntimeConfig(v, cmd)
	if err != nil {
		return nil, err
	}
	if err := bindFlags(v, cmd, append([]string{flagLogLevel}, extraFlags...)); err != nil {
		return nil, err
	}
	logger, err := newLogger(v.GetString(flagLogLevel))
	if err != nil {
		return nil, err
	}
	return &commandEnv{viper: v, runtime: runtime, logger: logger}, nil
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := prepareCommand(cmd, flagListenAddr, flagAllowedOrigins, flagLedgerTimeout, flagAttemptLimit)
			if err != nil {
				return err
			}
			defer func() { _ = env.logger.Sync() }()
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			navigator := booking.NavigatorFunc(func(state booking.TransactionState) {
				env.logger.Info("returned to listing", zap.String("attempt_id", state.AttemptID), zap.Int64("offer_id", int64(state.OfferID)))
			})
			app, err := buildApplication(ctx, env.runtime, env.logger, appOptions{
				confirm:     chain.AutoConfirm,
				navigator:   navigator,
				needsLedger: true,
			})
			if err != nil {
				return err
			}
			defer func() { _ = app.close() }()

			apiConfig := travelapi.Config{
				ListenAddr:     env.viper.GetString(flagListenAddr),
				AllowedOrigins: travelapi.ParseAllowedOrigins(env.viper.GetString(flagAllowedOrigins)),
				LedgerTimeout:  env.viper.GetDuration(flagLedgerTimeout),
				AttemptLimit:   env.viper.GetInt(flagAttemptLimit),
			}
			return travelapi.Run(ctx, apiConfig, travelapi.Dependencies{
				Logger:       env.logger,
				Offers:       app.catalog,
				Sessions:     app.gateway,
				Workflow:     app.workflow,
				Reservations: app.query,
				Journal:      app.journal,
				Reviews:      app.reviews,
			})
		},
	}
	cmd.Flags().String(flagListenAddr, "", "HTTP listen address (default :9090)")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().Duration(flagLedgerTimeout, 0, "per-request ledger read timeout")
	cmd.Flags().Int(flagAttemptLimit, 0, "default number of journal attempts returned")
	return cmd
}

func newOffersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offers",
		Short: "List catalog offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := prepareCommand(cmd, flagSearch, flagDate, flagHotel)
			if err != nil {
				return err
			}
			defer func() { _ = env.logger.Sync() }()
			criteria, err := parseCriteria(env.viper.GetString(flagSearch), env.viper.GetString(flagDate), env.viper.GetBool(flagHotel))
			if err != nil {
				return err
			}
			app, err := buildApplication(cmd.Context(), env.runtime, env.logger, appOptions{})
			if err != nil {
				return err
			}
			offers := catalog.Filter(app.catalog.FetchOffers(cmd.Context()), criteria)
			return renderOffers(cmd.OutOrStdout(), offers)
		},
	}
	cmd.Flags().String(flagSearch, "", "match destination, transport type or carrier")
	cmd.Flags().String(flagDate, "", "departure day (YYYY-MM-DD)")
	cmd.Flags().Bool(flagHotel, false, "only offers that include a hotel")
	return cmd
}

func newReserveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reserve",
		Short: "Reserve an offer: buy tokens if needed, approve, then book",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := prepareCommand(cmd, flagOfferID, flagYes)
			if err != nil {
				return err
			}
			defer func() { _ = env.logger.Sync() }()
			if !cmd.Flags().Changed(flagOfferID) && !env.viper.IsSet(flagOfferID) {
				return fmt.Errorf("%s is required", flagOfferID)
			}
			offerID := booking.OfferID(env.viper.GetInt64(flagOfferID))
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			confirm := promptConfirm(cmd.InOrStdin(), out)
			if env.viper.GetBool(flagYes) {
				confirm = chain.AutoConfirm
			}
			app, err := buildApplication(ctx, env.runtime, env.logger, appOptions{
				confirm:     confirm,
				extraLogger: progressPrinter(out),
				needsLedger: true,
			})
			if err != nil {
				return err
			}
			defer func() { _ = app.close() }()

			offer, found := catalog.Find(app.catalog.FetchOffers(ctx), offerID)
			if !found {
				return fmt.Errorf("offer %d not found in the catalog", offerID)
			}
			session, err := app.gateway.Session(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Account %s on %s holds %s tokens; offer %d costs %s.\n", session.Address, session.ChainName, session.Balance.Decimal(), offer.ID, offer.Price)
			state, err := app.workflow.Run(ctx, session, offer)
			if err != nil {
				if state.Step == booking.StepFailed {
					return fmt.Errorf("%s: %s", state.Category, state.Error)
				}
				return err
			}
			return nil
		},
	}
	cmd.Flags().Int64(flagOfferID, 0, "catalog id of the offer to reserve (required)")
	cmd.Flags().Bool(flagYes, false, "approve every ledger call without prompting")
	return cmd
}

func newReservationsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reservations",
		Short: "List the account's reservations from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := prepareCommand(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = env.logger.Sync() }()
			app, err := buildApplication(cmd.Context(), env.runtime, env.logger, appOptions{
				confirm:     chain.AutoConfirm,
				needsLedger: true,
			})
			if err != nil {
				return err
			}
			defer func() { _ = app.close() }()

			session, err := app.gateway.Session(cmd.Context())
			if err != nil {
				return err
			}
			view, err := app.query.Load(cmd.Context(), session)
			if err != nil {
				return err
			}
			return renderReservations(cmd.OutOrStdout(), view)
		},
	}
}

func newReviewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Rate a reservation and post the review to the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := prepareCommand(cmd, flagReservation, flagComment, flagRating, flagYes)
			if err != nil {
				return err
			}
			defer func() { _ = env.logger.Sync() }()
			if !cmd.Flags().Changed(flagReservation) && !env.viper.IsSet(flagReservation) {
				return fmt.Errorf("%s is required", flagReservation)
			}
			number := booking.ReservationNumber(env.viper.GetUint64(flagReservation))
			comment, rating, err := booking.ValidateReview(env.viper.GetString(flagComment), env.viper.GetInt(flagRating))
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			confirm := promptConfirm(cmd.InOrStdin(), out)
			if env.viper.GetBool(flagYes) {
				confirm = chain.AutoConfirm
			}
			app, err := buildApplication(ctx, env.runtime, env.logger, appOptions{
				confirm:     confirm,
				extraLogger: progressPrinter(out),
				needsLedger: true,
			})
			if err != nil {
				return err
			}
			defer func() { _ = app.close() }()

			session, err := app.gateway.Session(ctx)
			if err != nil {
				return err
			}
			outcome, err := app.reviews.Submit(ctx, session, number, comment, int(rating))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Review of reservation %d recorded in block %d.\n", number, outcome.BlockNumber)
			return nil
		},
	}
	cmd.Flags().Uint64(flagReservation, 0, "reservation number to review (required)")
	cmd.Flags().String(flagComment, "", "review text")
	cmd.Flags().Int(flagRating, 0, "rating from 1 to 5")
	cmd.Flags().Bool(flagYes, false, "approve the ledger call without prompting")
	return cmd
}

func newReviewsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reviews",
		Short: "List the reviews posted for a reservation",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := prepareCommand(cmd, flagReservation)
			if err != nil {
				return err
			}
			defer func() { _ = env.logger.Sync() }()
			if !cmd.Flags().Changed(flagReservation) && !env.viper.IsSet(flagReservation) {
				return fmt.Errorf("%s is required", flagReservation)
			}
			number := booking.ReservationNumber(env.viper.GetUint64(flagReservation))
			app, err := buildApplication(cmd.Context(), env.runtime, env.logger, appOptions{
				confirm:     chain.AutoConfirm,
				needsLedger: true,
			})
			if err != nil {
				return err
			}
			defer func() { _ = app.close() }()

			reviews, err := app.reviews.List(cmd.Context(), number)
			if err != nil {
				return err
			}
			return renderReviews(cmd.OutOrStdout(), reviews)
		},
	}
	cmd.Flags().Uint64(flagReservation, 0, "reservation number (required)")
	return cmd
}

func newAttemptsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attempts",
		Short: "Show recorded reservation attempts from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := prepareCommand(cmd, flagLimit, flagAccount)
			if err != nil {
				return err
			}
			defer func() { _ = env.logger.Sync() }()
			account := strings.TrimSpace(env.viper.GetString(flagAccount))
			if account != "" {
				normalized, err := booking.NewAddress(account)
				if err != nil {
					return err
				}
				account = normalized.String()
			}
			db, closeDB, _, err := openDatabase(cmd.Context(), env.runtime.DatabaseURL)
			if err != nil {
				return fmt.Errorf("database open: %w", err)
			}
			defer func() { _ = closeDB() }()
			if err := prepareSchema(db); err != nil {
				return err
			}
			attempts, err := gormstore.New(db).ListAttempts(cmd.Context(), account, env.viper.GetInt(flagLimit))
			if err != nil {
				return err
			}
			return renderAttempts(cmd.OutOrStdout(), attempts)
		},
	}
	cmd.Flags().Int(flagLimit, 20, "maximum attempts to show")
	cmd.Flags().String(flagAccount, "", "only attempts for this account")
	return cmd
}

func parseCriteria(search string, rawDate string, requireHotel bool) (catalog.Criteria, error) {
	criteria := catalog.Criteria{Search: search, RequireHotel: requireHotel}
	if strings.TrimSpace(rawDate) != "" {
		date, err := time.Parse(dateLayout, strings.TrimSpace(rawDate))
		if err != nil {
			return catalog.Criteria{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
		}
		criteria.Date = date
	}
	return criteria, nil
}

// promptConfirm asks on out and reads a y/N answer from in for every ledger call.
func promptConfirm(in io.Reader, out io.Writer) chain.ConfirmFunc {
	reader := bufio.NewReader(in)
	return func(_ context.Context, request chain.ConfirmRequest) (bool, error) {
		fmt.Fprintf(out, "Confirm: %s (%s on %s)? [y/N]: ", request.Description, request.Method, request.Contract.Hex())
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	}
}

func progressPrinter(out io.Writer) booking.OperationLogger {
	return booking.OperationLoggerFunc(func(_ context.Context, entry booking.OperationLog) {
		if entry.AttemptID == "" || entry.Message == "" {
			return
		}
		if entry.Operation == booking.OperationStart || entry.Operation == booking.OperationTransition {
			fmt.Fprintln(out, entry.Message)
		}
	})
}

func renderOffers(out io.Writer, offers []booking.Offer) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tTYPE\tFROM\tTO\tCARRIER\tDEPARTURE\tHOTEL\tPRICE")
	for _, offer := range offers {
		hotel := "-"
		if offer.HotelIncluded() {
			hotel = fmt.Sprintf("%s (%d nights)", offer.Hotel.Name, offer.Hotel.Nights)
		}
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			offer.ID, offer.TransportType, offer.Origin, offer.Destination, offer.Carrier, formatTime(offer.DepartureTime), hotel, offer.Price)
	}
	return writer.Flush()
}

func renderReservations(out io.Writer, view booking.ReservationView) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "NUMBER\tTRAVEL\tPRICE\tHOTEL\tSTATUS\tBOOKED")
	for _, entry := range view.Entries {
		if entry.Reservation == nil {
			fmt.Fprintf(writer, "%d\t-\t-\t-\tunavailable\t%v\n", entry.Number, entry.Err)
			continue
		}
		reservation := entry.Reservation
		fmt.Fprintf(writer, "%d\t%d\t%s\t%t\t%s\t%s\n",
			reservation.Number, reservation.OfferID, reservation.Price.Decimal(), reservation.HotelIncluded, reservation.SettlementStatus(), formatTime(reservation.BookedAt))
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	if view.Partial() {
		fmt.Fprintf(out, "%d reservation(s) could not be loaded.\n", len(view.Failed()))
	}
	return nil
}

func renderReviews(out io.Writer, reviews []booking.Review) error {
	if len(reviews) == 0 {
		fmt.Fprintln(out, "No reviews yet.")
		return nil
	}
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "REVIEWER\tRATING\tVERIFIED\tPOSTED\tCOMMENT")
	for _, review := range reviews {
		fmt.Fprintf(writer, "%s\t%d/%d\t%t\t%s\t%s\n",
			review.Reviewer, review.Rating, booking.MaxReviewRating, review.Verified, formatTime(review.PostedAt), review.Comment)
	}
	return writer.Flush()
}

func renderAttempts(out io.Writer, attempts []gormstore.AttemptRecord) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ATTEMPT\tACCOUNT\tOFFER\tSTEP\tCATEGORY\tMESSAGE\tUPDATED")
	for _, attempt := range attempts {
		category := string(attempt.Category)
		if category == "" {
			category = "-"
		}
		fmt.Fprintf(writer, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			attempt.AttemptID, attempt.Account, attempt.OfferID, attempt.Step, category, attempt.Message, formatTime(attempt.UpdatedAt))
	}
	return writer.Flush()
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.UTC().Format(timeLayout)
}
