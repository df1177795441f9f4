package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-billing/internal/billing"
	jobmetrics "github.com/odyssey-erp/odyssey-billing/internal/jobs"
)

// GroupRepairPayload selects the definitions to repair. "all" scans every
// definition for inconsistent groups.
type GroupRepairPayload struct {
	BillingID string `json:"billing_id"`
}

// GroupRepairService describes the billing operations the job relies on.
type GroupRepairService interface {
	FindInconsistentGroups(ctx context.Context) ([]int64, error)
	RepairGroup(ctx context.Context, billingID int64) (billing.RepairResult, error)
}

// GroupRepairJob renumbers installment groups left inconsistent by partial
// writes or manual edits.
type GroupRepairJob struct {
	Service GroupRepairService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewGroupRepairJob constructs the job handler.
func NewGroupRepairJob(service GroupRepairService, logger *slog.Logger, metrics *jobmetrics.Metrics) *GroupRepairJob {
	return &GroupRepairJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewGroupRepairTask creates an Asynq task for repairing one definition or all of them.
func NewGroupRepairTask(billingID string) (*asynq.Task, error) {
	if billingID == "" {
		billingID = "all"
	}
	body, err := json.Marshal(GroupRepairPayload{BillingID: billingID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGroupRepair, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// Handle executes the group repair job. A failing group is logged and the
// scan moves on; the job fails if any group could not be repaired.
func (j *GroupRepairJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("group repair: dependencies not configured")
	}
	var payload GroupRepairPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.BillingID == "" {
		payload.BillingID = "all"
	}

	tracker := j.metrics().Track(TaskGroupRepair)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	ids, err := j.resolveDefinitions(ctx, payload.BillingID)
	if err != nil {
		resultErr = err
		j.log().Error("resolve definitions", slog.String("billing_id", payload.BillingID), slog.Any("error", err))
		if errors.Is(err, errInvalidBillingID) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return resultErr
	}
	if len(ids) == 0 {
		j.log().Info("no inconsistent groups discovered")
		return resultErr
	}

	start := j.now()
	repaired, failed := 0, 0
	for _, id := range ids {
		res, err := j.Service.RepairGroup(ctx, id)
		if err != nil {
			failed++
			resultErr = errors.Join(resultErr, fmt.Errorf("repair billing %d: %w", id, err))
			j.log().Error("repair group", slog.Int64("billing_id", id), slog.Any("error", err))
			continue
		}
		if res.Repaired {
			repaired++
		}
	}
	j.metrics().AddProcessed(TaskGroupRepair, repaired)

	j.log().Info("repaired installment groups",
		slog.Int("scanned", len(ids)),
		slog.Int("repaired", repaired),
		slog.Int("failed", failed),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return resultErr
}

var errInvalidBillingID = errors.New("invalid billing id")

func (j *GroupRepairJob) resolveDefinitions(ctx context.Context, billingID string) ([]int64, error) {
	if billingID == "all" {
		return j.Service.FindInconsistentGroups(ctx)
	}
	id, err := strconv.ParseInt(billingID, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w %q", errInvalidBillingID, billingID)
	}
	return []int64{id}, nil
}

func (j *GroupRepairJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *GroupRepairJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskGroupRepair))
	}
	return slog.Default().With(slog.String("job", TaskGroupRepair))
}

func (j *GroupRepairJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *GroupRepairJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
