package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/travelbook/internal/catalog"
	"github.com/MarkoPoloResearchLab/travelbook/internal/chain"
	"github.com/MarkoPoloResearchLab/travelbook/internal/oplog"
	"github.com/MarkoPoloResearchLab/travelbook/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/travelbook/internal/store/redislock"
	"github.com/MarkoPoloResearchLab/travelbook/pkg/booking"
)

type application struct {
	logger   *zap.Logger
	catalog  *catalog.Client
	gateway  *chain.Gateway
	journal  *gormstore.Store
	workflow *booking.Workflow
	query    *booking.ReservationQuery
	reviews  *booking.ReviewDesk
	closers  []func() error
}

type appOptions struct {
	confirm     chain.ConfirmFunc
	extraLogger booking.OperationLogger
	navigator   booking.Navigator
	needsLedger bool
}

func buildApplication(ctx context.Context, cfg runtimeConfig, logger *zap.Logger, options appOptions) (*application, error) {
	app := &application{
		logger:  logger,
		catalog: catalog.NewClient(cfg.CatalogURL, catalog.WithLogger(logger), catalog.WithTimeout(cfg.CatalogTimeout)),
	}
	if !options.needsLedger {
		return app, nil
	}

	gormDB, closeDB, _, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}
	app.closers = append(app.closers, closeDB)
	if err := prepareSchema(gormDB); err != nil {
		app.close()
		return nil, err
	}
	app.journal = gormstore.New(gormDB)

	gateway, closeClient, err := chain.Dial(ctx, chain.DialConfig{
		RPCURL:        cfg.RPCURL,
		PrivateKeyHex: cfg.PrivateKey,
		TokenAddress:  cfg.TokenAddress,
		AgencyAddress: cfg.AgencyAddress,
	},
		chain.WithConfirm(options.confirm),
		chain.WithFinalityTimeout(cfg.FinalityTimeout),
		chain.WithPollInterval(cfg.PollInterval),
		chain.WithLogger(logger),
	)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("ledger connect: %w", err)
	}
	app.closers = append(app.closers, func() error {
		closeClient()
		return nil
	})
	app.gateway = gateway

	operationLogger := oplog.Fanout{
		oplog.NewZapLogger(logger),
		oplog.NewJournalLogger(app.journal, logger),
		options.extraLogger,
	}
	workflowOptions := []booking.WorkflowOption{
		booking.WithOperationLogger(operationLogger),
		booking.WithGracePeriod(cfg.GracePeriod),
		booking.WithNavigator(options.navigator),
	}
	if cfg.RedisAddr != "" {
		redisClient, err := redislock.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("attempt guard: %w", err)
		}
		app.closers = append(app.closers, redisClient.Close)
		workflowOptions = append(workflowOptions, booking.WithAttemptGuard(redislock.New(redisClient)))
	}
	workflow, err := booking.NewWorkflow(gateway, workflowOptions...)
	if err != nil {
		app.close()
		return nil, err
	}
	app.workflow = workflow

	query, err := booking.NewReservationQuery(gateway,
		booking.WithQueryLogger(oplog.NewZapLogger(logger)),
		booking.WithConcurrency(cfg.QueryConcurrency),
	)
	if err != nil {
		app.close()
		return nil, err
	}
	app.query = query

	reviews, err := booking.NewReviewDesk(gateway, booking.WithReviewLogger(oplog.Fanout{oplog.NewZapLogger(logger), options.extraLogger}))
	if err != nil {
		app.close()
		return nil, err
	}
	app.reviews = reviews
	return app, nil
}

func (app *application) close() error {
	var errs []error
	for index := len(app.closers) - 1; index >= 0; index-- {
		if err := app.closers[index](); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil
	return errors.Join(errs...)
}
