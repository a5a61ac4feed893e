package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"affiliate-service/internal/metrics"
	"affiliate-service/internal/services"
)

type fakeProcessor struct {
	calls    int
	err      error
	credited map[string]bool
}

func (f *fakeProcessor) ProcessCharge(_ context.Context, _ uuid.UUID, amount decimal.Decimal, reference string) (decimal.Decimal, error) {
	f.calls++
	if f.err != nil {
		return decimal.Zero, f.err
	}
	if f.credited == nil {
		f.credited = make(map[string]bool)
	}
	if f.credited[reference] {
		return decimal.Zero, services.ErrDuplicateCharge
	}
	f.credited[reference] = true
	return amount.Mul(decimal.RequireFromString("0.20")).Round(2), nil
}

type fakeQueue struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "id"}, nil
}

func samplePayload() ChargePayload {
	return ChargePayload{
		UserID:    uuid.New(),
		Amount:    decimal.RequireFromString("79.00"),
		Reference: "ch_123",
	}
}

func TestNewChargeTaskRoundTrip(t *testing.T) {
	p := samplePayload()

	task, err := NewChargeTask(p)
	require.NoError(t, err)
	assert.Equal(t, TypeChargeSucceeded, task.Type())

	var decoded ChargePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, p.UserID, decoded.UserID)
	assert.True(t, p.Amount.Equal(decoded.Amount))
	assert.Equal(t, p.Reference, decoded.Reference)
}

func TestProcessTaskOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantErr   bool
		skipRetry bool
	}{
		{"processed", nil, false, false},
		{"not referred is acked", services.ErrNotReferred, false, false},
		{"duplicate reference is acked", services.ErrDuplicateCharge, false, false},
		{"unknown referral is dropped", services.ErrUnknownReferral, true, true},
		{"unknown user is dropped", services.ErrUserNotFound, true, true},
		{"storage failure is retried", errors.New("connection reset"), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New("test")
			proc := &fakeProcessor{err: tt.err}
			h := NewChargeHandler(proc, m, zap.NewNop())

			task, err := NewChargeTask(samplePayload())
			require.NoError(t, err)

			err = h.ProcessTask(context.Background(), task)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.skipRetry, errors.Is(err, asynq.SkipRetry))
			assert.Equal(t, 1, proc.calls)
			series, err := testutil.GatherAndCount(m.Registry(), "affiliate_charge_tasks_total")
			require.NoError(t, err)
			assert.Equal(t, 1, series)
		})
	}
}

func TestProcessTaskRejectsMalformedPayload(t *testing.T) {
	proc := &fakeProcessor{}
	h := NewChargeHandler(proc, nil, zap.NewNop())

	err := h.ProcessTask(context.Background(), asynq.NewTask(TypeChargeSucceeded, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Zero(t, proc.calls)
}

func TestDispatchInline(t *testing.T) {
	proc := &fakeProcessor{}
	d := NewChargeDispatcher(nil, NewChargeHandler(proc, nil, zap.NewNop()))

	outcome, err := d.Dispatch(context.Background(), samplePayload())
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
	assert.Equal(t, 1, proc.calls)
}

func TestDispatchInlineDropsRedeliveredCharge(t *testing.T) {
	proc := &fakeProcessor{}
	d := NewChargeDispatcher(nil, NewChargeHandler(proc, nil, zap.NewNop()))
	p := samplePayload()

	first, err := d.Dispatch(context.Background(), p)
	require.NoError(t, err)
	second, err := d.Dispatch(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, OutcomeProcessed, first)
	assert.Equal(t, OutcomeDuplicate, second)
}

func TestDispatchQueued(t *testing.T) {
	proc := &fakeProcessor{}
	queue := &fakeQueue{}
	d := NewChargeDispatcher(queue, NewChargeHandler(proc, nil, zap.NewNop()))

	outcome, err := d.Dispatch(context.Background(), samplePayload())
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, outcome)
	require.Len(t, queue.tasks, 1)
	assert.Equal(t, TypeChargeSucceeded, queue.tasks[0].Type())
	assert.Zero(t, proc.calls)
}

func TestDispatchDuplicateReference(t *testing.T) {
	d := NewChargeDispatcher(&fakeQueue{err: asynq.ErrTaskIDConflict}, NewChargeHandler(&fakeProcessor{}, nil, zap.NewNop()))

	outcome, err := d.Dispatch(context.Background(), samplePayload())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
}

func TestDispatchRejectsNegativeAmount(t *testing.T) {
	queue := &fakeQueue{}
	d := NewChargeDispatcher(queue, NewChargeHandler(&fakeProcessor{}, nil, zap.NewNop()))

	p := samplePayload()
	p.Amount = decimal.RequireFromString("-1")
	_, err := d.Dispatch(context.Background(), p)
	assert.ErrorIs(t, err, services.ErrInvalidChargeAmount)
	assert.Empty(t, queue.tasks)
}
