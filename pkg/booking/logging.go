package booking

import "context"

// OperationLogger records domain-level events emitted by the workflow and the query.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes one workflow transition or ledger read.
type OperationLog struct {
	Operation string
	AttemptID string
	Account   Address
	OfferID   OfferID
	Step      Step
	Amount    TokenAmount
	CallHash  string
	Category  Category
	Message   string
	Status    string
	Error     error
}

// OperationLoggerFunc adapts a function to OperationLogger.
type OperationLoggerFunc func(ctx context.Context, entry OperationLog)

// LogOperation calls the function.
func (fn OperationLoggerFunc) LogOperation(ctx context.Context, entry OperationLog) {
	fn(ctx, entry)
}

func logOperation(ctx context.Context, logger OperationLogger, entry OperationLog) {
	if logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	logger.LogOperation(ctx, entry)
}
