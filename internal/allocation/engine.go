package allocation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/rifa-backend/pkg/config"
	dbpkg "github.com/angelmondragon/rifa-backend/pkg/db"
	"github.com/angelmondragon/rifa-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rifa-backend/pkg/errors"
	"github.com/angelmondragon/rifa-backend/pkg/logger"
	"github.com/angelmondragon/rifa-backend/pkg/metrics"
	"github.com/angelmondragon/rifa-backend/pkg/outbox"
	"github.com/angelmondragon/rifa-backend/pkg/outbox/payloads"
)

const (
	defaultMaxAttempts = 8
	defaultBaseBackoff = 10 * time.Millisecond
	maxBackoff         = 500 * time.Millisecond
)

// errWriteConflict marks a conditional write that matched no rows.
var errWriteConflict = errors.New("allocation write conflict")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Request identifies the captured payment to turn into tickets.
type Request struct {
	RaffleID      uuid.UUID
	OrderID       uuid.UUID
	PaymentRef    string
	PaymentStatus string
}

// Result is the committed (or previously committed) allocation.
type Result struct {
	OrderID     uuid.UUID
	RaffleID    uuid.UUID
	Tickets     []int
	AlreadyPaid bool
	Attempts    int
}

type EngineParams struct {
	DB          txRunner
	Outbox      outboxEmitter
	Logger      *logger.Logger
	Metrics     *metrics.AllocationMetrics
	MaxAttempts int
	BaseBackoff time.Duration
	Source      Source
}

// Engine assigns ticket numbers to paid orders. It keeps no state between
// calls; all coordination goes through the database.
type Engine struct {
	db          txRunner
	outbox      outboxEmitter
	logg        *logger.Logger
	metrics     *metrics.AllocationMetrics
	maxAttempts int
	baseBackoff time.Duration
	source      Source
	repoFactory func(tx *gorm.DB) store
	now         func() time.Time
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.DB == nil {
		return nil, errors.New("db is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	base := params.BaseBackoff
	if base <= 0 {
		base = defaultBaseBackoff
	}
	src := params.Source
	if src == nil {
		src = globalSource{}
	}
	return &Engine{
		db:          params.DB,
		outbox:      params.Outbox,
		logg:        params.Logger,
		metrics:     params.Metrics,
		maxAttempts: attempts,
		baseBackoff: base,
		source:      src,
		repoFactory: newRepository,
		now:         time.Now,
	}, nil
}

// Allocate commits Qty unassigned ticket numbers to the order exactly once.
// Repeated calls for a paid order return the stored tickets without writing.
func (e *Engine) Allocate(ctx context.Context, req Request) (*Result, error) {
	if req.RaffleID == uuid.Nil || req.OrderID == uuid.Nil || req.PaymentRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "raffle id, order id and payment ref are required")
	}
	if req.PaymentStatus == "" {
		req.PaymentStatus = string(enums.CaptureStatusCompleted)
	}

	ctx = e.logg.WithRaffleID(ctx, req.RaffleID.String())
	ctx = e.logg.WithOrderID(ctx, req.OrderID.String())
	started := time.Now()

	attempts := 0
	result, err := retry.DoValue(ctx, e.backoff(), func(ctx context.Context) (*Result, error) {
		attempts++
		res, err := e.attempt(ctx, req)
		if err == nil {
			return res, nil
		}
		if isConflict(err) {
			if attempts < e.maxAttempts {
				e.metrics.IncRetry()
				e.logg.Warn(e.logg.WithField(ctx, "attempt", attempts), "allocation conflict, retrying")
			}
			return nil, retry.RetryableError(err)
		}
		return nil, err
	})
	if err != nil {
		err = e.classify(err, attempts)
		e.metrics.Observe(outcomeFor(err), time.Since(started))
		return nil, err
	}

	result.Attempts = attempts
	outcome := metrics.OutcomeAllocated
	if result.AlreadyPaid {
		outcome = metrics.OutcomeAlreadyPaid
	} else {
		e.metrics.AddTickets(len(result.Tickets))
		logCtx := e.logg.WithFields(ctx, map[string]any{
			"tickets":  result.Tickets,
			"attempts": attempts,
		})
		e.logg.Info(logCtx, "tickets allocated")
	}
	e.metrics.Observe(outcome, time.Since(started))
	return result, nil
}

func (e *Engine) backoff() retry.Backoff {
	b := retry.NewExponential(e.baseBackoff)
	b = retry.WithJitterPercent(50, b)
	b = retry.WithCappedDuration(maxBackoff, b)
	return retry.WithMaxRetries(uint64(e.maxAttempts-1), b)
}

// attempt runs one full read-decide-write pass in a single transaction.
func (e *Engine) attempt(ctx context.Context, req Request) (*Result, error) {
	var result *Result
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repoFactory(tx)

		raffle, err := repo.FindRaffle(ctx, req.RaffleID)
		if err != nil {
			return err
		}
		order, err := repo.FindOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if order.RaffleID != raffle.ID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}

		if order.IsPaid() {
			result = &Result{
				OrderID:     order.ID,
				RaffleID:    raffle.ID,
				Tickets:     append([]int(nil), order.Tickets...),
				AlreadyPaid: true,
			}
			return nil
		}

		if order.PaymentRef != req.PaymentRef {
			return pkgerrors.New(pkgerrors.CodePaymentMismatch, "payment reference does not match order")
		}
		if order.Qty < 1 || order.Qty > config.MaxOrderQty {
			return pkgerrors.New(pkgerrors.CodeInvalidQuantity, "order quantity outside allowed range").
				WithDetails(map[string]any{"qty": order.Qty, "min": 1, "max": config.MaxOrderQty})
		}

		remaining := raffle.Remaining()
		if order.Qty > remaining {
			return insufficient(remaining)
		}

		taken, err := repo.TakenNumbers(ctx, raffle.ID)
		if err != nil {
			return err
		}
		available := availableNumbers(raffle.TotalTickets, taken)
		if len(available) < order.Qty {
			return insufficient(len(available))
		}

		assigned := pickUniform(e.source, available, order.Qty)
		sort.Ints(assigned)
		now := e.now().UTC()

		rows, err := repo.AdvanceRaffle(ctx, raffle.ID, raffle.Version, order.Qty, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return errWriteConflict
		}
		if err := repo.InsertTickets(ctx, raffle.ID, order.ID, assigned); err != nil {
			return err
		}
		rows, err = repo.MarkOrderPaid(ctx, order.ID, assigned, req.PaymentStatus, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return errWriteConflict
		}

		if err := e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{Kind: "payment_capture", ID: req.PaymentRef},
			Version:       1,
			OccurredAt:    now,
			Data: payloads.OrderPaidEvent{
				OrderID:       order.ID,
				RaffleID:      raffle.ID,
				Tickets:       assigned,
				PaymentRef:    order.PaymentRef,
				PaymentStatus: req.PaymentStatus,
				SoldTickets:   raffle.SoldTickets + order.Qty,
				PaidAt:        now,
			},
		}); err != nil {
			return fmt.Errorf("emit order paid: %w", err)
		}

		result = &Result{OrderID: order.ID, RaffleID: raffle.ID, Tickets: assigned}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) classify(err error, attempts int) error {
	if isConflict(err) {
		return pkgerrors.Wrap(pkgerrors.CodeTransactionConflict, err,
			fmt.Sprintf("allocation did not commit after %d attempts", attempts))
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocation interrupted")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "allocation failed")
}

func isConflict(err error) bool {
	return errors.Is(err, errWriteConflict) ||
		dbpkg.IsSerializationFailure(err) ||
		dbpkg.IsUniqueViolation(err, "")
}

func insufficient(remaining int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientInventory,
		fmt.Sprintf("only %d tickets left", remaining)).
		WithDetails(map[string]any{"remaining": remaining})
}

func outcomeFor(err error) string {
	switch pkgerrors.As(err).Code() {
	case pkgerrors.CodeInsufficientInventory:
		return metrics.OutcomeInsufficient
	case pkgerrors.CodePaymentMismatch:
		return metrics.OutcomeMismatch
	case pkgerrors.CodeNotFound:
		return metrics.OutcomeNotFound
	case pkgerrors.CodeTransactionConflict:
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeError
	}
}
