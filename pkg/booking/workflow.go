package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Step is the current phase of a reservation attempt.
type Step string

const (
	StepIdle      Step = "idle"
	StepBuying    Step = "buying"
	StepApproving Step = "approving"
	StepReserving Step = "reserving"
	StepCompleted Step = "completed"
	StepFailed    Step = "failed"
)

// Active reports whether a ledger call sequence is in progress.
func (step Step) Active() bool {
	return step == StepBuying || step == StepApproving || step == StepReserving
}

// TransactionState is the local, ephemeral view of the current attempt.
type TransactionState struct {
	AttemptID string    `json:"attempt_id,omitempty"`
	Step      Step      `json:"step"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Category  Category  `json:"category,omitempty"`
	Completed bool      `json:"completed"`
	OfferID   OfferID   `json:"offer_id,omitempty"`
	CallHash  string    `json:"call_hash,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Navigator receives the return-to-listing transition after a completed attempt.
type Navigator interface {
	ReturnToListing(state TransactionState)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(state TransactionState)

// ReturnToListing calls the function.
func (fn NavigatorFunc) ReturnToListing(state TransactionState) {
	fn(state)
}

// AttemptGuard extends the one-attempt-per-account rule beyond this process.
// Acquire returns ErrAttemptInFlight when another holder owns the account.
type AttemptGuard interface {
	Acquire(ctx context.Context, account Address, attemptID string) (release func(context.Context) error, err error)
}

// WorkflowOption configures a Workflow instance.
type WorkflowOption func(*Workflow)

// WithOperationLogger wires a logger that receives every transition.
func WithOperationLogger(logger OperationLogger) WorkflowOption {
	return func(workflow *Workflow) {
		workflow.logger = logger
	}
}

// WithAttemptGuard wires a cross-process attempt guard.
func WithAttemptGuard(guard AttemptGuard) WorkflowOption {
	return func(workflow *Workflow) {
		workflow.guard = guard
	}
}

// WithNavigator wires the return-to-listing callback.
func WithNavigator(navigator Navigator) WorkflowOption {
	return func(workflow *Workflow) {
		workflow.navigator = navigator
	}
}

// WithGracePeriod sets how long a completed state stays visible.
func WithGracePeriod(gracePeriod time.Duration) WorkflowOption {
	return func(workflow *Workflow) {
		workflow.gracePeriod = gracePeriod
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) WorkflowOption {
	return func(workflow *Workflow) {
		if now != nil {
			workflow.nowFn = now
		}
	}
}

// WithAttemptIDs overrides attempt id generation.
func WithAttemptIDs(newID func() string) WorkflowOption {
	return func(workflow *Workflow) {
		if newID != nil {
			workflow.newAttemptID = newID
		}
	}
}

// Workflow drives purchase → approve → reserve for one account.
// At most one attempt is active at a time.
type Workflow struct {
	gateway      Gateway
	logger       OperationLogger
	guard        AttemptGuard
	navigator    Navigator
	gracePeriod  time.Duration
	nowFn        func() time.Time
	newAttemptID func() string

	mutex       sync.Mutex
	state       TransactionState
	generation  uint64
	returnTimer *time.Timer
}

// NewWorkflow wires a Workflow.
func NewWorkflow(gateway Gateway, options ...WorkflowOption) (*Workflow, error) {
	if gateway == nil {
		return nil, fmt.Errorf("%w: gateway dependency is nil", ErrInvalidWorkflowInput)
	}
	workflow := &Workflow{
		gateway:      gateway,
		gracePeriod:  DefaultGracePeriod,
		nowFn:        func() time.Time { return time.Now().UTC() },
		newAttemptID: uuid.NewString,
	}
	for _, option := range options {
		if option != nil {
			option(workflow)
		}
	}
	if workflow.gracePeriod < 0 {
		return nil, fmt.Errorf("%w: grace period must not be negative", ErrInvalidWorkflowInput)
	}
	workflow.state = TransactionState{Step: StepIdle, UpdatedAt: workflow.nowFn()}
	return workflow, nil
}

// State returns a copy of the current transaction state.
func (workflow *Workflow) State() TransactionState {
	workflow.mutex.Lock()
	defer workflow.mutex.Unlock()
	return workflow.state
}

// Attempt is the handle of a started reservation attempt.
type Attempt struct {
	id   string
	done chan struct{}

	mutex sync.Mutex
	final TransactionState
	err   error
}

// ID returns the attempt id.
func (attempt *Attempt) ID() string {
	return attempt.id
}

// Done is closed once the attempt reaches Completed or Failed.
func (attempt *Attempt) Done() <-chan struct{} {
	return attempt.done
}

// Wait blocks until the attempt finishes or ctx ends.
func (attempt *Attempt) Wait(ctx context.Context) (TransactionState, error) {
	select {
	case <-attempt.done:
		return attempt.Result()
	case <-ctx.Done():
		return TransactionState{}, ctx.Err()
	}
}

// Result returns the terminal state and the failure, if any. Before Done is
// closed it returns the zero state.
func (attempt *Attempt) Result() (TransactionState, error) {
	attempt.mutex.Lock()
	defer attempt.mutex.Unlock()
	return attempt.final, attempt.err
}

func (attempt *Attempt) finish(state TransactionState, err error) {
	attempt.mutex.Lock()
	attempt.final = state
	attempt.err = err
	attempt.mutex.Unlock()
	close(attempt.done)
}

type attemptPlan struct {
	generation   uint64
	attemptID    string
	session      Session
	offer        Offer
	amount       TokenAmount
	skipPurchase bool
	release      func(context.Context) error
}

// Start validates the trigger and runs the attempt in the background. The
// attempt is detached from ctx cancellation; a late ledger result of an
// attempt that is no longer current is dropped.
func (workflow *Workflow) Start(ctx context.Context, session *Session, offer Offer) (*Attempt, error) {
	attempt, plan, err := workflow.begin(ctx, session, offer)
	if err != nil {
		return nil, err
	}
	detached := context.WithoutCancel(ctx)
	go workflow.execute(detached, attempt, plan)
	return attempt, nil
}

// Run is the synchronous form of Start.
func (workflow *Workflow) Run(ctx context.Context, session *Session, offer Offer) (TransactionState, error) {
	attempt, plan, err := workflow.begin(ctx, session, offer)
	if err != nil {
		return workflow.State(), err
	}
	workflow.execute(ctx, attempt, plan)
	return attempt.Result()
}

func (workflow *Workflow) begin(ctx context.Context, session *Session, offer Offer) (*Attempt, attemptPlan, error) {
	if !session.Connected() {
		logOperation(ctx, workflow.logger, OperationLog{Operation: OperationStart, OfferID: offer.ID, Error: ErrNotConnected, Category: CategoryNotConnected})
		return nil, attemptPlan{}, ErrNotConnected
	}
	if offer.ID < 0 {
		return nil, attemptPlan{}, fmt.Errorf("%w: %d", ErrInvalidOfferID, offer.ID)
	}
	amount, err := offer.PriceAmount()
	if err != nil {
		logOperation(ctx, workflow.logger, OperationLog{Operation: OperationStart, Account: session.Address, OfferID: offer.ID, Error: err, Category: CategoryInvalidOffer})
		return nil, attemptPlan{}, err
	}

	attemptID := workflow.newAttemptID()
	skipPurchase := session.Balance.Covers(amount)
	firstStep, firstStatus := StepBuying, statusPurchaseInit
	if skipPurchase {
		firstStep, firstStatus = StepApproving, statusApprovalInit
	}

	workflow.mutex.Lock()
	if workflow.state.Step.Active() {
		workflow.mutex.Unlock()
		logOperation(ctx, workflow.logger, OperationLog{Operation: OperationStart, Account: session.Address, OfferID: offer.ID, Error: ErrAttemptInFlight})
		return nil, attemptPlan{}, ErrAttemptInFlight
	}
	previous := workflow.state
	workflow.generation++
	generation := workflow.generation
	if workflow.returnTimer != nil {
		workflow.returnTimer.Stop()
		workflow.returnTimer = nil
	}
	workflow.state = TransactionState{
		AttemptID: attemptID,
		Step:      firstStep,
		Status:    firstStatus,
		OfferID:   offer.ID,
		UpdatedAt: workflow.nowFn(),
	}
	workflow.mutex.Unlock()

	release := func(context.Context) error { return nil }
	if workflow.guard != nil {
		guardRelease, guardErr := workflow.guard.Acquire(ctx, session.Address, attemptID)
		if guardErr != nil {
			workflow.mutex.Lock()
			if workflow.generation == generation {
				workflow.state = previous
			}
			workflow.mutex.Unlock()
			logOperation(ctx, workflow.logger, OperationLog{Operation: OperationStart, AttemptID: attemptID, Account: session.Address, OfferID: offer.ID, Error: guardErr})
			return nil, attemptPlan{}, guardErr
		}
		release = guardRelease
	}

	logOperation(ctx, workflow.logger, OperationLog{
		Operation: OperationStart,
		AttemptID: attemptID,
		Account:   session.Address,
		OfferID:   offer.ID,
		Step:      firstStep,
		Amount:    amount,
		Message:   firstStatus,
	})
	attempt := &Attempt{id: attemptID, done: make(chan struct{})}
	return attempt, attemptPlan{
		generation:   generation,
		attemptID:    attemptID,
		session:      *session,
		offer:        offer,
		amount:       amount,
		skipPurchase: skipPurchase,
		release:      release,
	}, nil
}

func (workflow *Workflow) execute(ctx context.Context, attempt *Attempt, plan attemptPlan) {
	defer func() {
		if releaseErr := plan.release(context.WithoutCancel(ctx)); releaseErr != nil {
			logOperation(ctx, workflow.logger, OperationLog{Operation: OperationTransition, AttemptID: plan.attemptID, Account: plan.session.Address, Error: releaseErr})
		}
	}()

	if !plan.skipPurchase {
		if err := workflow.step(ctx, plan, StepBuying, statusPurchaseInit, statusPurchaseConfirming, func() (PendingCall, error) {
			return workflow.gateway.SubmitPurchase(ctx, plan.amount)
		}); err != nil {
			attempt.finish(workflow.fail(ctx, plan, err), err)
			return
		}
	}

	if err := workflow.step(ctx, plan, StepApproving, statusApprovalInit, statusApprovalConfirming, func() (PendingCall, error) {
		return workflow.gateway.SubmitApproval(ctx, workflow.gateway.RegistryAddress(), plan.amount)
	}); err != nil {
		attempt.finish(workflow.fail(ctx, plan, err), err)
		return
	}

	if err := workflow.step(ctx, plan, StepReserving, statusReservationInit, statusReservationWaiting, func() (PendingCall, error) {
		return workflow.gateway.SubmitReservation(ctx, plan.offer.ID, plan.session.Address, plan.offer.HasHotel())
	}); err != nil {
		attempt.finish(workflow.fail(ctx, plan, err), err)
		return
	}

	attempt.finish(workflow.complete(ctx, plan), nil)
}

// step submits one call and waits for its finality. The next step never
// starts before this returns nil.
func (workflow *Workflow) step(ctx context.Context, plan attemptPlan, step Step, submitStatus string, waitStatus string, submit func() (PendingCall, error)) error {
	workflow.transition(ctx, plan, step, submitStatus, "")
	call, err := submit()
	if err != nil {
		return err
	}
	workflow.transition(ctx, plan, step, waitStatus, call.Hash)
	if _, err := workflow.gateway.AwaitFinality(ctx, call); err != nil {
		return err
	}
	return nil
}

func (workflow *Workflow) transition(ctx context.Context, plan attemptPlan, step Step, status string, callHash string) {
	workflow.mutex.Lock()
	current := workflow.generation == plan.generation
	if current {
		workflow.state.Step = step
		workflow.state.Status = status
		workflow.state.CallHash = callHash
		workflow.state.UpdatedAt = workflow.nowFn()
	}
	workflow.mutex.Unlock()
	if !current {
		return
	}
	logOperation(ctx, workflow.logger, OperationLog{
		Operation: OperationTransition,
		AttemptID: plan.attemptID,
		Account:   plan.session.Address,
		OfferID:   plan.offer.ID,
		Step:      step,
		Amount:    plan.amount,
		CallHash:  callHash,
		Message:   status,
	})
}

func (workflow *Workflow) fail(ctx context.Context, plan attemptPlan, err error) TransactionState {
	category, message := Categorize(err)
	workflow.mutex.Lock()
	failedStep := workflow.state.Step
	state := TransactionState{
		AttemptID: plan.attemptID,
		Step:      StepFailed,
		Status:    statusFailed,
		Error:     message,
		Category:  category,
		OfferID:   plan.offer.ID,
		UpdatedAt: workflow.nowFn(),
	}
	current := workflow.generation == plan.generation
	if current {
		workflow.state = state
	}
	workflow.mutex.Unlock()
	if current {
		logOperation(ctx, workflow.logger, OperationLog{
			Operation: OperationTransition,
			AttemptID: plan.attemptID,
			Account:   plan.session.Address,
			OfferID:   plan.offer.ID,
			Step:      StepFailed,
			Amount:    plan.amount,
			Category:  category,
			Message:   fmt.Sprintf("%s (during %s)", message, failedStep),
			Error:     err,
		})
	}
	return state
}

func (workflow *Workflow) complete(ctx context.Context, plan attemptPlan) TransactionState {
	workflow.mutex.Lock()
	state := TransactionState{
		AttemptID: plan.attemptID,
		Step:      StepCompleted,
		Status:    statusCompleted,
		Completed: true,
		OfferID:   plan.offer.ID,
		UpdatedAt: workflow.nowFn(),
	}
	current := workflow.generation == plan.generation
	if current {
		workflow.state = state
		workflow.returnTimer = time.AfterFunc(workflow.gracePeriod, func() {
			workflow.returnToListing(context.WithoutCancel(ctx), plan, state)
		})
	}
	workflow.mutex.Unlock()
	if current {
		logOperation(ctx, workflow.logger, OperationLog{
			Operation: OperationTransition,
			AttemptID: plan.attemptID,
			Account:   plan.session.Address,
			OfferID:   plan.offer.ID,
			Step:      StepCompleted,
			Amount:    plan.amount,
			Message:   statusCompleted,
		})
	}
	return state
}

func (workflow *Workflow) returnToListing(ctx context.Context, plan attemptPlan, completed TransactionState) {
	workflow.mutex.Lock()
	if workflow.generation != plan.generation {
		workflow.mutex.Unlock()
		return
	}
	workflow.state = TransactionState{Step: StepIdle, UpdatedAt: workflow.nowFn()}
	workflow.returnTimer = nil
	workflow.mutex.Unlock()

	logOperation(ctx, workflow.logger, OperationLog{
		Operation: OperationReturn,
		AttemptID: plan.attemptID,
		Account:   plan.session.Address,
		OfferID:   plan.offer.ID,
		Step:      StepIdle,
	})
	if workflow.navigator != nil {
		workflow.navigator.ReturnToListing(completed)
	}
}
