package oplog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MarkoPoloResearchLab/travelbook/pkg/booking"
)

type recorderFunc func(ctx context.Context, entry booking.OperationLog) error

func (fn recorderFunc) Record(ctx context.Context, entry booking.OperationLog) error {
	return fn(ctx, entry)
}

func TestZapLoggerWritesStructuredFields(test *testing.T) {
	test.Parallel()
	core, observed := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core))
	traveler, err := booking.NewAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	require.NoError(test, err)

	logger.LogOperation(context.Background(), booking.OperationLog{
		Operation: booking.OperationTransition,
		AttemptID: "attempt-1",
		Account:   traveler,
		OfferID:   7,
		Step:      booking.StepApproving,
		CallHash:  "0xaa",
		Status:    "ok",
	})
	logger.LogOperation(context.Background(), booking.OperationLog{
		Operation: booking.OperationTransition,
		AttemptID: "attempt-1",
		Step:      booking.StepFailed,
		Category:  booking.CategoryRejected,
		Status:    "error",
		Error:     booking.ErrUserRejected,
	})

	entries := observed.All()
	require.Len(test, entries, 2)
	require.Equal(test, zapcore.InfoLevel, entries[0].Level)
	require.Equal(test, booking.OperationTransition, entries[0].Message)
	context0 := entries[0].ContextMap()
	require.Equal(test, "approving", context0["step"])
	require.Equal(test, int64(7), context0["offer_id"])
	require.Equal(test, "0xaa", context0["call_hash"])
	require.Equal(test, zapcore.WarnLevel, entries[1].Level)
	require.Equal(test, "rejected", entries[1].ContextMap()["category"])
}

func TestJournalLoggerAbsorbsFailures(test *testing.T) {
	test.Parallel()
	core, observed := observer.New(zapcore.ErrorLevel)
	journal := NewJournalLogger(recorderFunc(func(context.Context, booking.OperationLog) error {
		return errors.New("database is locked")
	}), zap.New(core))

	journal.LogOperation(context.Background(), booking.OperationLog{Operation: booking.OperationStart, AttemptID: "attempt-1"})
	require.Equal(test, 1, observed.FilterMessage("journal write failed").Len())
}

func TestJournalLoggerDetachesCancellation(test *testing.T) {
	test.Parallel()
	var recordedErr error
	journal := NewJournalLogger(recorderFunc(func(ctx context.Context, _ booking.OperationLog) error {
		recordedErr = ctx.Err()
		return nil
	}), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	journal.LogOperation(ctx, booking.OperationLog{Operation: booking.OperationReturn, AttemptID: "attempt-1"})
	require.NoError(test, recordedErr)
}

func TestFanoutForwardsInOrder(test *testing.T) {
	test.Parallel()
	var order []string
	first := booking.OperationLoggerFunc(func(context.Context, booking.OperationLog) { order = append(order, "first") })
	second := booking.OperationLoggerFunc(func(context.Context, booking.OperationLog) { order = append(order, "second") })

	Fanout{first, nil, second}.LogOperation(context.Background(), booking.OperationLog{})
	require.Equal(test, []string{"first", "second"}, order)
}
