package oplog

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/MarkoPoloResearchLab/travelbook/pkg/booking"
)

const statusError = "error"

// Recorder persists operation entries.
type Recorder interface {
	Record(ctx context.Context, entry booking.OperationLog) error
}

// ZapLogger writes operation entries as structured zap records.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger wraps logger; a nil logger discards everything.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger}
}

// LogOperation emits entry at info level, or warn level when it carries an error.
func (zapLogger *ZapLogger) LogOperation(_ context.Context, entry booking.OperationLog) {
	level := zapcore.InfoLevel
	if entry.Error != nil || entry.Status == statusError {
		level = zapcore.WarnLevel
	}
	if checked := zapLogger.logger.Check(level, entry.Operation); checked != nil {
		checked.Write(fields(entry)...)
	}
}

func fields(entry booking.OperationLog) []zap.Field {
	result := []zap.Field{zap.String("status", entry.Status)}
	if entry.AttemptID != "" {
		result = append(result, zap.String("attempt_id", entry.AttemptID))
	}
	if !entry.Account.IsZero() {
		result = append(result, zap.String("account", entry.Account.String()))
	}
	if entry.OfferID != 0 {
		result = append(result, zap.Int64("offer_id", int64(entry.OfferID)))
	}
	if entry.Step != "" {
		result = append(result, zap.String("step", string(entry.Step)))
	}
	if !entry.Amount.IsZero() {
		result = append(result, zap.String("amount_wei", entry.Amount.String()))
	}
	if entry.CallHash != "" {
		result = append(result, zap.String("call_hash", entry.CallHash))
	}
	if entry.Category != booking.CategoryNone {
		result = append(result, zap.String("category", string(entry.Category)))
	}
	if entry.Message != "" {
		result = append(result, zap.String("message", entry.Message))
	}
	if entry.Error != nil {
		result = append(result, zap.Error(entry.Error))
	}
	return result
}

// JournalLogger adapts a Recorder to booking.OperationLogger. Write failures
// are logged and otherwise dropped so the workflow never blocks on storage.
type JournalLogger struct {
	recorder Recorder
	logger   *zap.Logger
}

// NewJournalLogger wraps recorder.
func NewJournalLogger(recorder Recorder, logger *zap.Logger) *JournalLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JournalLogger{recorder: recorder, logger: logger}
}

// LogOperation records entry, detached from the caller's cancellation.
func (journal *JournalLogger) LogOperation(ctx context.Context, entry booking.OperationLog) {
	if journal.recorder == nil {
		return
	}
	if err := journal.recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		journal.logger.Error("journal write failed",
			zap.String("operation", entry.Operation),
			zap.String("attempt_id", entry.AttemptID),
			zap.Error(err),
		)
	}
}

// Fanout forwards every entry to each logger in order.
type Fanout []booking.OperationLogger

// LogOperation forwards entry.
func (fanout Fanout) LogOperation(ctx context.Context, entry booking.OperationLog) {
	for _, logger := range fanout {
		if logger != nil {
			logger.LogOperation(ctx, entry)
		}
	}
}
