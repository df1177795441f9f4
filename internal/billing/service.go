package billing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-billing/internal/observability"
)

// CashFlowSyncRequest describes an installment that just entered paid.
type CashFlowSyncRequest struct {
	InstallmentID int64
	OldStatus     *Status
	NewStatus     Status
	Description   string
	Amount        decimal.Decimal
	PaymentDate   *time.Time
	ClientID      int64
}

// CashFlowSyncResult reports whether the cash-flow module accepted the entry.
type CashFlowSyncResult struct {
	Success bool
	Error   string
}

// CashFlowSync notifies the cash-flow module of settled installments.
type CashFlowSync interface {
	Sync(ctx context.Context, req CashFlowSyncRequest) CashFlowSyncResult
}

// Invalidator drops cached projections after a write.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// ServiceConfig carries optional collaborators for Service.
type ServiceConfig struct {
	Logger            *slog.Logger
	Metrics           *observability.BillingMetrics
	RecalcConcurrency int
	Now               func() time.Time
}

// Service provides business logic for billing definitions and installments.
type Service struct {
	repo        Repository
	sync        CashFlowSync
	invalidator Invalidator
	metrics     *observability.BillingMetrics
	logger      *slog.Logger
	now         func() time.Time
	concurrency int
}

// NewService constructs a billing service.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RecalcConcurrency <= 0 {
		cfg.RecalcConcurrency = 4
	}
	return &Service{
		repo:        repo,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		now:         cfg.Now,
		concurrency: cfg.RecalcConcurrency,
	}
}

// SetCashFlowSync sets the cash-flow integration.
func (s *Service) SetCashFlowSync(sync CashFlowSync) {
	s.sync = sync
}

// SetInvalidator sets the projection cache invalidator.
func (s *Service) SetInvalidator(inv Invalidator) {
	s.invalidator = inv
}

// ============================================================================
// BILLING DEFINITIONS
// ============================================================================

// CreateBillingDefinition persists a definition and its full schedule atomically.
func (s *Service) CreateBillingDefinition(ctx context.Context, req CreateDefinitionRequest) (*DefinitionWithInstallments, error) {
	if err := ValidateCreateDefinitionRequest(req); err != nil {
		return nil, err
	}
	def, err := req.ToDefinition()
	if err != nil {
		return nil, err
	}

	var created int
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateDefinition(ctx, def)
		if err != nil {
			return fmt.Errorf("insert definition: %w", err)
		}
		def.ID = id

		gen, err := Generate(def, nil, def.Installments, 1, nil)
		if err != nil {
			return err
		}
		if _, err := tx.InsertInstallments(ctx, gen.New); err != nil {
			return fmt.Errorf("insert installments: %w", err)
		}
		created = len(gen.New)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.InstallmentsGenerated(created)
	s.invalidate(ctx)
	s.logger.InfoContext(ctx, "billing definition created",
		slog.Int64("billing_id", def.ID),
		slog.Int64("client_id", def.ClientID),
		slog.Int("installments", created),
	)
	return s.GetBillingDefinition(ctx, def.ID)
}

// GetBillingDefinition returns a definition with its installments.
func (s *Service) GetBillingDefinition(ctx context.Context, id int64) (*DefinitionWithInstallments, error) {
	def, err := s.repo.GetDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListInstallments(ctx, InstallmentFilter{BillingDefinitionID: &id})
	if err != nil {
		return nil, fmt.Errorf("list installments: %w", err)
	}
	return &DefinitionWithInstallments{BillingDefinition: *def, Rows: rows}, nil
}

// AppendInstallments adds count installments to an existing definition. New
// rows, the renumbered siblings and the header count are written in one
// transaction; nothing is visible if any step fails.
func (s *Service) AppendInstallments(ctx context.Context, billingID int64, req AppendInstallmentsRequest) (*AppendResult, error) {
	if req.Count < 1 {
		return nil, validationf("count", "must be at least 1, got %d", req.Count)
	}
	if req.PerInstallmentAmount != nil && !req.PerInstallmentAmount.IsPositive() {
		return nil, validationf("per_installment_amount", "must be positive")
	}

	var result AppendResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		def, err := tx.LockDefinition(ctx, billingID)
		if err != nil {
			return err
		}
		existing, err := tx.ListGroupInstallments(ctx, billingID)
		if err != nil {
			return fmt.Errorf("list group: %w", err)
		}

		gen, err := Generate(*def, existing, req.Count, len(existing)+1, req.PerInstallmentAmount)
		if err != nil {
			return err
		}
		ids, err := tx.InsertInstallments(ctx, gen.New)
		if err != nil {
			return fmt.Errorf("insert installments: %w", err)
		}
		for i := range gen.New {
			gen.New[i].ID = ids[i]
		}
		if err := tx.UpdateInstallments(ctx, gen.Renumbered); err != nil {
			return fmt.Errorf("renumber siblings: %w", err)
		}
		if err := tx.UpdateDefinition(ctx, billingID, map[string]interface{}{"installments": gen.Total}); err != nil {
			return fmt.Errorf("update definition: %w", err)
		}

		def.Installments = gen.Total
		result = AppendResult{Definition: *def, Added: gen.New, Total: gen.Total}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.InstallmentsGenerated(len(result.Added))
	s.invalidate(ctx)
	s.logger.InfoContext(ctx, "installments appended",
		slog.Int64("billing_id", billingID),
		slog.Int("added", len(result.Added)),
		slog.Int("total", result.Total),
	)
	return &result, nil
}

// ChangeDueDay moves the definition's recurrence anchor and shifts every
// still-movable future installment onto the new day. Row writes are
// best-effort; failures are reported per row rather than rolled back. Calling
// it again with the same day moves only the rows that were left behind.
func (s *Service) ChangeDueDay(ctx context.Context, billingID int64, newDueDay int) (PartialBatchResult, error) {
	if newDueDay < 1 || newDueDay > 31 {
		return PartialBatchResult{}, validationf("due_day", "must be between 1 and 31, got %d", newDueDay)
	}
	def, err := s.repo.GetDefinition(ctx, billingID)
	if err != nil {
		return PartialBatchResult{}, err
	}
	if def.DueDay != newDueDay {
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.UpdateDefinition(ctx, billingID, map[string]interface{}{"due_day": newDueDay})
		})
		if err != nil {
			return PartialBatchResult{}, fmt.Errorf("update due day: %w", err)
		}
	}

	rows, err := s.repo.ListInstallments(ctx, InstallmentFilter{BillingDefinitionID: &billingID})
	if err != nil {
		return PartialBatchResult{}, fmt.Errorf("list installments: %w", err)
	}
	changed := Recalculate(newDueDay, rows, s.now())
	result := s.writeDueDates(ctx, changed)

	s.metrics.DueDatesRecalculated(result.Updated, result.Failed)
	s.invalidate(ctx)
	if result.Partial() {
		s.logger.WarnContext(ctx, "due date recalculation partially failed",
			slog.Int64("billing_id", billingID),
			slog.Int("updated", result.Updated),
			slog.Int("failed", result.Failed),
		)
	}
	return result, nil
}

func (s *Service) writeDueDates(ctx context.Context, changed []Installment) PartialBatchResult {
	result := PartialBatchResult{Eligible: len(changed)}
	if len(changed) == 0 {
		return result
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, row := range changed {
		g.Go(func() error {
			err := s.repo.UpdateInstallment(ctx, row.ID, map[string]interface{}{"due_date": *row.DueDate})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if result.Errors == nil {
					result.Errors = make(map[int64]string)
				}
				result.Errors[row.ID] = err.Error()
				result.Failed++
				return nil
			}
			result.Updated++
			return nil
		})
	}
	_ = g.Wait()
	return result
}

// SetDefinitionActive flips the definition's display status. Installments are untouched.
func (s *Service) SetDefinitionActive(ctx context.Context, billingID int64, status EffectiveStatus) (*BillingDefinition, error) {
	if status != EffectiveActive && status != EffectiveInactive {
		return nil, validationf("status", "unknown status %q", status)
	}
	var def *BillingDefinition
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		def, err = tx.LockDefinition(ctx, billingID)
		if err != nil {
			return err
		}
		if def.Status.Effective() == status {
			return nil
		}
		stored := status.StoredStatus()
		if err := tx.UpdateDefinition(ctx, billingID, map[string]interface{}{"status": string(stored)}); err != nil {
			return err
		}
		def.Status = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return def, nil
}

// DeleteBillingDefinition removes a definition and its installments. It is
// refused while any installment of the group is paid or cancelled.
func (s *Service) DeleteBillingDefinition(ctx context.Context, billingID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockDefinition(ctx, billingID); err != nil {
			return err
		}
		rows, err := tx.ListGroupInstallments(ctx, billingID)
		if err != nil {
			return fmt.Errorf("list group: %w", err)
		}
		blocked := DeletionBlockedError{DefinitionID: billingID}
		for _, row := range rows {
			switch row.Status {
			case StatusPaid:
				blocked.PaidCount++
			case StatusCancelled:
				blocked.CancelledCount++
			}
		}
		if blocked.PaidCount > 0 || blocked.CancelledCount > 0 {
			return &blocked
		}
		if err := tx.DeleteGroupInstallments(ctx, billingID); err != nil {
			return fmt.Errorf("delete installments: %w", err)
		}
		return tx.DeleteDefinition(ctx, billingID)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	s.logger.InfoContext(ctx, "billing definition deleted", slog.Int64("billing_id", billingID))
	return nil
}

// ============================================================================
// INSTALLMENTS
// ============================================================================

// SetInstallmentStatus applies a status edit. When the installment enters paid
// the cash-flow module is notified after commit; a failed notification comes
// back as a warning and does not undo the write.
func (s *Service) SetInstallmentStatus(ctx context.Context, installmentID int64, req SetInstallmentStatusRequest) (*StatusChangeResult, error) {
	in, err := req.ToTransitionInput()
	if err != nil {
		return nil, err
	}
	current, err := s.repo.GetInstallment(ctx, installmentID)
	if err != nil {
		return nil, err
	}
	next, err := ValidateTransition(*current, req.Status, in)
	if err != nil {
		return nil, err
	}

	if current.Status == next.Status &&
		equalDates(current.PaymentDate, next.PaymentDate) &&
		current.DeliveryBased == next.DeliveryBased {
		return &StatusChangeResult{Installment: *current}, nil
	}

	updates := map[string]interface{}{
		"status":         string(next.Status),
		"payment_date":   next.PaymentDate,
		"delivery_based": next.DeliveryBased,
		"due_date":       next.DueDate,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateInstallment(ctx, installmentID, updates); err != nil {
			return err
		}
		if next.BillingDefinitionID == nil {
			return nil
		}
		return s.refreshProgress(ctx, tx, *next.BillingDefinitionID)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(string(current.Status), string(next.Status))
	s.invalidate(ctx)

	result := &StatusChangeResult{Installment: next}
	old := current.Status
	if EntersPaid(&old, next.Status) {
		result.Warning = s.syncPaid(ctx, next, &old)
	}
	return result, nil
}

// CreateInstallment records a one-time payment outside any billing definition.
func (s *Service) CreateInstallment(ctx context.Context, req CreateInstallmentRequest) (*StatusChangeResult, error) {
	if err := ValidateCreateInstallmentRequest(req); err != nil {
		return nil, err
	}
	inst, err := req.ToInstallment()
	if err != nil {
		return nil, err
	}
	if err := checkPaidPrecondition(inst); err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ids, err := tx.InsertInstallments(ctx, []Installment{inst})
		if err != nil {
			return err
		}
		inst.ID = ids[0]
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	result := &StatusChangeResult{Installment: inst}
	if EntersPaid(nil, inst.Status) {
		result.Warning = s.syncPaid(ctx, inst, nil)
	}
	return result, nil
}

// DeleteInstallment removes one installment. Grouped siblings are renumbered
// in the same transaction so the group stays contiguous.
func (s *Service) DeleteInstallment(ctx context.Context, installmentID int64) error {
	inst, err := s.repo.GetInstallment(ctx, installmentID)
	if err != nil {
		return err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if inst.BillingDefinitionID == nil {
			return tx.DeleteInstallment(ctx, installmentID)
		}
		billingID := *inst.BillingDefinitionID
		def, err := tx.LockDefinition(ctx, billingID)
		if err != nil {
			return err
		}
		if err := tx.DeleteInstallment(ctx, installmentID); err != nil {
			return err
		}
		rows, err := tx.ListGroupInstallments(ctx, billingID)
		if err != nil {
			return fmt.Errorf("list group: %w", err)
		}
		_, err = s.renumber(ctx, tx, *def, rows)
		return err
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// ============================================================================
// GROUP MAINTENANCE
// ============================================================================

// RepairGroup renumbers a definition's installments 1..N by due date and
// rewrites totals, descriptions and the header counters. Consistent groups
// are left alone.
func (s *Service) RepairGroup(ctx context.Context, billingID int64) (RepairResult, error) {
	result := RepairResult{DefinitionID: billingID}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		def, err := tx.LockDefinition(ctx, billingID)
		if err != nil {
			return err
		}
		rows, err := tx.ListGroupInstallments(ctx, billingID)
		if err != nil {
			return fmt.Errorf("list group: %w", err)
		}
		result.Rows = len(rows)
		result.Repaired, err = s.renumber(ctx, tx, *def, rows)
		return err
	})
	if err != nil {
		return RepairResult{}, err
	}
	if result.Repaired {
		s.metrics.GroupRepaired()
		s.invalidate(ctx)
		s.logger.InfoContext(ctx, "installment group repaired",
			slog.Int64("billing_id", billingID),
			slog.Int("rows", result.Rows),
		)
	}
	return result, nil
}

// FindInconsistentGroups lists definitions whose groups need RepairGroup.
func (s *Service) FindInconsistentGroups(ctx context.Context) ([]int64, error) {
	defs, err := s.repo.ListDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	rows, err := s.repo.ListInstallments(ctx, InstallmentFilter{})
	if err != nil {
		return nil, fmt.Errorf("list installments: %w", err)
	}
	groups := make(map[int64][]Installment)
	for _, row := range rows {
		if id := row.DefinitionID(); id != 0 {
			groups[id] = append(groups[id], row)
		}
	}

	var out []int64
	for _, def := range defs {
		group := groups[def.ID]
		if needsRepair(def, group) {
			out = append(out, def.ID)
		}
	}
	return out, nil
}

func needsRepair(def BillingDefinition, rows []Installment) bool {
	if len(rows) == 0 {
		return false
	}
	if CheckGroup(def.ID, rows) != nil {
		return true
	}
	if def.Installments != len(rows) || def.CurrentInstallment != countPaid(rows) {
		return true
	}
	base := StripInstallmentSuffix(def.Description)
	for _, row := range rows {
		if row.Description != RenderInstallmentDescription(base, row.Number(), len(rows)) {
			return true
		}
	}
	return false
}

// renumber rewrites rows into a contiguous 1..N sequence. Existing numbers
// decide the order when they are distinct; otherwise due date does. It
// reports whether anything had to change.
func (s *Service) renumber(ctx context.Context, tx TxRepository, def BillingDefinition, rows []Installment) (bool, error) {
	if !needsRepair(def, rows) {
		return false, nil
	}

	ordered := make([]Installment, len(rows))
	copy(ordered, rows)
	if uniqueNumbers(ordered) {
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].Number() < ordered[j].Number()
		})
	} else {
		sortByDueDate(ordered)
	}

	base := StripInstallmentSuffix(def.Description)
	total := len(ordered)
	for i := range ordered {
		ordered[i].InstallmentNumber = intPtr(i + 1)
		ordered[i].TotalInstallments = intPtr(total)
		ordered[i].Description = RenderInstallmentDescription(base, i+1, total)
	}
	if err := tx.UpdateInstallments(ctx, ordered); err != nil {
		return false, fmt.Errorf("renumber group: %w", err)
	}

	updates := map[string]interface{}{"current_installment": countPaid(ordered)}
	if total > 0 {
		updates["installments"] = total
	}
	if err := tx.UpdateDefinition(ctx, def.ID, updates); err != nil {
		return false, fmt.Errorf("update definition: %w", err)
	}
	return true, nil
}

// uniqueNumbers reports whether every row carries a distinct positive number,
// in which case the existing order is kept and only gaps are closed.
func uniqueNumbers(rows []Installment) bool {
	seen := make(map[int]struct{}, len(rows))
	for _, row := range rows {
		n := row.Number()
		if n < 1 {
			return false
		}
		if _, dup := seen[n]; dup {
			return false
		}
		seen[n] = struct{}{}
	}
	return true
}

// sortByDueDate orders rows with dateless ones last, breaking ties by number then id.
func sortByDueDate(rows []Installment) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].DueDate, rows[j].DueDate
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		if rows[i].Number() != rows[j].Number() {
			return rows[i].Number() < rows[j].Number()
		}
		return rows[i].ID < rows[j].ID
	})
}

// refreshProgress sets current_installment to the number of paid rows.
func (s *Service) refreshProgress(ctx context.Context, tx TxRepository, billingID int64) error {
	rows, err := tx.ListGroupInstallments(ctx, billingID)
	if err != nil {
		return fmt.Errorf("list group: %w", err)
	}
	return tx.UpdateDefinition(ctx, billingID, map[string]interface{}{"current_installment": countPaid(rows)})
}

func countPaid(rows []Installment) int {
	n := 0
	for _, row := range rows {
		if row.Status == StatusPaid {
			n++
		}
	}
	return n
}

func (s *Service) syncPaid(ctx context.Context, inst Installment, old *Status) *SyncWarning {
	if s.sync == nil {
		return nil
	}
	res := s.sync.Sync(ctx, ToCashFlowSyncRequest(inst, old))
	s.metrics.CashFlowSync(res.Success)
	if res.Success {
		return nil
	}
	s.logger.WarnContext(ctx, "cash-flow sync failed",
		slog.Int64("installment_id", inst.ID),
		slog.String("error", res.Error),
	)
	return &SyncWarning{InstallmentID: inst.ID, Message: res.Error}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "billing views cache invalidation failed", slog.Any("error", err))
	}
}

func equalDates(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
