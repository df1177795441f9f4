package jobs

import (
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-billing/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCashFlow holds cash-flow redeliveries so a webhook outage does not
	// starve maintenance jobs.
	QueueCashFlow = "cashflow"

	// TaskCashFlowSync redelivers a settlement the request path failed to sync.
	TaskCashFlowSync = "billing:cashflow-sync"
	// TaskGroupRepair renumbers installment groups that drifted out of shape.
	TaskGroupRepair = "billing:group-repair"
)

const (
	cashFlowMaxRetry = 5
	cashFlowTimeout  = 30 * time.Second
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Queues lists every queue the worker consumes with its priority weight.
func Queues() map[string]int {
	return map[string]int{
		QueueCashFlow: 3,
		QueueDefault:  1,
	}
}

// cashFlowRetryDelay backs off 1m, 2m, 4m ... capped at one hour.
func cashFlowRetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n < 0 {
		n = 0
	}
	if n > 6 {
		return time.Hour
	}
	return time.Minute << uint(n)
}
