package booking

import "time"

const (
	OperationStart        = "workflow.start"
	OperationTransition   = "workflow.transition"
	OperationReturn       = "workflow.return"
	OperationReservations = "query.reservations"
	OperationDetails      = "query.details"
	OperationReview       = "review.submit"
	OperationReviews      = "query.reviews"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	statusPurchaseInit       = "Initiating token purchase..."
	statusPurchaseConfirming = "Waiting for transaction confirmation..."
	statusApprovalInit       = "Approving tokens for the booking registry..."
	statusApprovalConfirming = "Waiting for approval confirmation..."
	statusReservationInit    = "Creating reservation..."
	statusReservationWaiting = "Waiting for reservation confirmation..."
	statusCompleted          = "Reservation completed successfully!"
	statusFailed             = "Reservation failed."

	// DefaultGracePeriod keeps the success message visible before returning to the listing.
	DefaultGracePeriod = 2 * time.Second
	// DefaultQueryConcurrency bounds concurrent reservation detail reads.
	DefaultQueryConcurrency = 4
)
