package billing

import (
	"errors"
	"fmt"
)

// Domain errors for billing.
var (
	// ErrNotFound indicates the requested definition or installment was not found.
	ErrNotFound = errors.New("billing: not found")

	ErrValidation        = errors.New("billing: validation failed")
	ErrInconsistentGroup = errors.New("billing: inconsistent installment group")
	ErrDeletionBlocked   = errors.New("billing: deletion blocked")
	ErrInvalidTransition = errors.New("billing: invalid status transition")
)

// ValidationError reports bad input shape or range.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is lets errors.Is match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func validationf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InconsistentGroupError reports a group whose numbering is not a contiguous 1..N sequence.
type InconsistentGroupError struct {
	DefinitionID int64
	Reason       string
}

func (e *InconsistentGroupError) Error() string {
	return fmt.Sprintf("installment group of billing %d is inconsistent: %s", e.DefinitionID, e.Reason)
}

// Is lets errors.Is match ErrInconsistentGroup.
func (e *InconsistentGroupError) Is(target error) bool {
	return target == ErrInconsistentGroup
}

// TransitionError reports a transition the state machine does not allow.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move installment from %s to %s", e.From, e.To)
}

// Is lets errors.Is match both ErrInvalidTransition and ErrValidation.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition || target == ErrValidation
}

// DeletionBlockedError explains why a billing definition cannot be deleted.
type DeletionBlockedError struct {
	DefinitionID   int64
	PaidCount      int
	CancelledCount int
}

func (e *DeletionBlockedError) Error() string {
	return fmt.Sprintf("billing %d cannot be deleted: %s", e.DefinitionID, e.Reason())
}

// Reason is the user-facing explanation.
func (e *DeletionBlockedError) Reason() string {
	switch {
	case e.PaidCount > 0 && e.CancelledCount > 0:
		return fmt.Sprintf("%d installment(s) already paid and %d cancelled", e.PaidCount, e.CancelledCount)
	case e.PaidCount > 0:
		return fmt.Sprintf("%d installment(s) already paid", e.PaidCount)
	default:
		return fmt.Sprintf("%d installment(s) cancelled", e.CancelledCount)
	}
}

// Is lets errors.Is match ErrDeletionBlocked.
func (e *DeletionBlockedError) Is(target error) bool {
	return target == ErrDeletionBlocked
}

// SyncWarning is a non-fatal cash-flow sync failure. The status write it follows stands.
type SyncWarning struct {
	InstallmentID int64  `json:"installment_id"`
	Message       string `json:"message"`
}

func (w *SyncWarning) Error() string {
	return fmt.Sprintf("cash-flow sync failed for installment %d: %s", w.InstallmentID, w.Message)
}

// PartialBatchResult summarises a best-effort batch update.
type PartialBatchResult struct {
	Eligible int              `json:"eligible"`
	Updated  int              `json:"updated"`
	Failed   int              `json:"failed"`
	Errors   map[int64]string `json:"errors,omitempty"`
}

// Partial reports whether some rows failed.
func (r PartialBatchResult) Partial() bool {
	return r.Failed > 0
}
