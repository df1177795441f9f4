package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-billing/internal/cashflow"
	jobmetrics "github.com/odyssey-erp/odyssey-billing/internal/jobs"
)

// CashFlowDeliverer posts a single entry to the cash-flow module.
type CashFlowDeliverer interface {
	Deliver(ctx context.Context, entry cashflow.Entry) error
}

// CashFlowSyncJob redelivers settlements whose synchronous sync failed.
type CashFlowSyncJob struct {
	Deliverer CashFlowDeliverer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewCashFlowSyncJob constructs the job handler.
func NewCashFlowSyncJob(deliverer CashFlowDeliverer, logger *slog.Logger, metrics *jobmetrics.Metrics) *CashFlowSyncJob {
	return &CashFlowSyncJob{Deliverer: deliverer, Logger: logger, Metrics: metrics}
}

// NewCashFlowSyncTask wraps entry into a retryable task. The idempotency key
// doubles as the task id so repeated failures of the same transition collapse
// into a single queued redelivery.
func NewCashFlowSyncTask(entry cashflow.Entry) (*asynq.Task, error) {
	if entry.InstallmentID <= 0 {
		return nil, errors.New("cash-flow sync: installment id required")
	}
	if entry.IdempotencyKey == "" {
		entry.IdempotencyKey = cashflow.IdempotencyKey(entry).String()
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCashFlowSync, body,
		asynq.Queue(QueueCashFlow),
		asynq.MaxRetry(cashFlowMaxRetry),
		asynq.Timeout(cashFlowTimeout),
		asynq.TaskID(entry.IdempotencyKey),
	), nil
}

// Handle executes one redelivery attempt.
func (j *CashFlowSyncJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Deliverer == nil {
		return errors.New("cash-flow sync: deliverer not configured")
	}
	var entry cashflow.Entry
	if err := json.Unmarshal(task.Payload(), &entry); err != nil {
		return asynq.SkipRetry
	}
	if entry.InstallmentID <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskCashFlowSync)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.log().With(slog.Int64("installment_id", entry.InstallmentID), slog.String("idempotency_key", entry.IdempotencyKey))
	if err := j.Deliverer.Deliver(ctx, entry); err != nil {
		resultErr = err
		logger.Warn("cash-flow redelivery failed", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddProcessed(TaskCashFlowSync, 1)
	logger.Info("cash-flow entry redelivered")
	return resultErr
}

func (j *CashFlowSyncJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *CashFlowSyncJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCashFlowSync))
	}
	return slog.Default().With(slog.String("job", TaskCashFlowSync))
}
