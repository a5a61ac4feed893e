package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"affiliate-service/internal/metrics"
	"affiliate-service/internal/services"
)

const (
	// TypeChargeSucceeded is emitted by billing for every successful payment.
	TypeChargeSucceeded = "affiliate:charge_succeeded"
	QueueConversions    = "conversions"

	chargeTaskMaxRetry  = 10
	chargeTaskTimeout   = 30 * time.Second
	chargeTaskRetention = 24 * time.Hour
)

// Dispatch outcomes
const (
	OutcomeQueued      = "queued"
	OutcomeDuplicate   = "duplicate"
	OutcomeProcessed   = "processed"
	OutcomeNotReferred = "not_referred"
	OutcomeRejected    = "rejected"
	OutcomeFailed      = "failed"
)

// ChargePayload is a successful payment reported by billing.
type ChargePayload struct {
	UserID    uuid.UUID       `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

// NewChargeTask builds the task; the payment reference doubles as the task id so a
// redelivered billing event is enqueued once while retained.
func NewChargeTask(p ChargePayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode charge payload: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(QueueConversions),
		asynq.MaxRetry(chargeTaskMaxRetry),
		asynq.Timeout(chargeTaskTimeout),
		asynq.Retention(chargeTaskRetention),
	}
	if p.Reference != "" {
		opts = append(opts, asynq.TaskID(p.Reference))
	}
	return asynq.NewTask(TypeChargeSucceeded, data, opts...), nil
}

// ChargeProcessor credits a referred user's payment to their affiliate, once per reference.
type ChargeProcessor interface {
	ProcessCharge(ctx context.Context, userID uuid.UUID, chargeAmount decimal.Decimal, reference string) (decimal.Decimal, error)
}

// ChargeHandler consumes charge tasks.
type ChargeHandler struct {
	processor ChargeProcessor
	metrics   *metrics.Metrics
	log       *zap.Logger
}

// NewChargeHandler creates a new ChargeHandler
func NewChargeHandler(processor ChargeProcessor, m *metrics.Metrics, log *zap.Logger) *ChargeHandler {
	return &ChargeHandler{processor: processor, metrics: m, log: log.Named("charges")}
}

// Register mounts the handler on an asynq mux.
func (h *ChargeHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeChargeSucceeded, h.ProcessTask)
}

// ProcessTask implements asynq.Handler. Bad input is never retried; storage failures are.
func (h *ChargeHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p ChargePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.metrics.Task(OutcomeRejected)
		return fmt.Errorf("decode charge payload: %v: %w", err, asynq.SkipRetry)
	}

	outcome, err := h.Handle(ctx, p)
	if err != nil && outcome == OutcomeRejected {
		return fmt.Errorf("charge %s: %v: %w", p.Reference, err, asynq.SkipRetry)
	}
	return err
}

// Handle applies one charge and reports its outcome.
func (h *ChargeHandler) Handle(ctx context.Context, p ChargePayload) (string, error) {
	log := h.log.With(
		zap.String("reference", p.Reference),
		zap.String("user_id", p.UserID.String()),
		zap.String("amount", p.Amount.StringFixed(2)))

	commission, err := h.processor.ProcessCharge(ctx, p.UserID, p.Amount, p.Reference)
	outcome := classify(err)
	h.metrics.Task(outcome)

	switch outcome {
	case OutcomeProcessed:
		log.Info("charge credited", zap.String("commission", commission.StringFixed(2)))
		return outcome, nil
	case OutcomeNotReferred:
		log.Debug("charge from non-referred user")
		return outcome, nil
	case OutcomeDuplicate:
		log.Info("charge already credited")
		return outcome, nil
	case OutcomeRejected:
		log.Warn("charge rejected", zap.Error(err))
		return outcome, err
	default:
		log.Error("charge processing failed", zap.Error(err))
		return outcome, err
	}
}

func classify(err error) string {
	switch {
	case err == nil:
		return OutcomeProcessed
	case errors.Is(err, services.ErrNotReferred):
		return OutcomeNotReferred
	case errors.Is(err, services.ErrDuplicateCharge):
		return OutcomeDuplicate
	case errors.Is(err, services.ErrInvalidChargeAmount),
		errors.Is(err, services.ErrInvalidCommissionRate),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrUnknownAffiliate),
		errors.Is(err, services.ErrUnknownReferral):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}

// Enqueuer is the part of *asynq.Client the dispatcher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ChargeDispatcher hands charges to the queue, or to the handler directly when no queue is configured.
type ChargeDispatcher struct {
	queue   Enqueuer
	handler *ChargeHandler
}

// NewChargeDispatcher creates a dispatcher; queue may be nil.
func NewChargeDispatcher(queue Enqueuer, handler *ChargeHandler) *ChargeDispatcher {
	return &ChargeDispatcher{queue: queue, handler: handler}
}

// Dispatch returns the outcome of the hand-off.
func (d *ChargeDispatcher) Dispatch(ctx context.Context, p ChargePayload) (string, error) {
	if p.Amount.IsNegative() {
		return OutcomeRejected, services.ErrInvalidChargeAmount
	}

	if d.queue == nil {
		return d.handler.Handle(ctx, p)
	}

	task, err := NewChargeTask(p)
	if err != nil {
		return OutcomeFailed, err
	}
	if _, err := d.queue.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return OutcomeDuplicate, nil
		}
		return OutcomeFailed, fmt.Errorf("failed to enqueue charge: %w", err)
	}
	return OutcomeQueued, nil
}
