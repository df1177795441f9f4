package billing

import "time"

var allowedTransitions = map[Status][]Status{
	StatusPending:         {StatusBilled, StatusAwaitingInvoice, StatusOverdue, StatusCancelled, StatusPaid},
	StatusBilled:          {StatusPaid, StatusOverdue, StatusCancelled},
	StatusAwaitingInvoice: {StatusPaid, StatusOverdue, StatusCancelled},
	StatusOverdue:         {StatusPaid, StatusCancelled},
	StatusPartiallyPaid:   {StatusPaid, StatusCancelled},
}

// CanTransitionTo reports whether the state machine allows s -> to.
// Staying in the same status is always allowed.
func (s Status) CanTransitionTo(to Status) bool {
	if s == to {
		return true
	}
	for _, next := range allowedTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// RequiresConfirmation reports statuses a UI should confirm before applying.
func RequiresConfirmation(to Status) bool {
	return to == StatusCancelled || to == StatusOverdue
}

// TransitionInput carries the data that accompanies a status edit.
type TransitionInput struct {
	PaymentDate   *time.Time
	DeliveryBased *bool
}

// ValidateTransition checks a status edit against the state machine and its
// data preconditions. It returns the installment as it would look after the edit.
func ValidateTransition(current Installment, to Status, in TransitionInput) (Installment, error) {
	if !to.IsValid() {
		return current, validationf("status", "unknown status %q", to)
	}
	if !current.Status.CanTransitionTo(to) {
		return current, &TransitionError{From: current.Status, To: to}
	}

	next := current
	next.Status = to
	if in.PaymentDate != nil {
		d := dateOnly(*in.PaymentDate)
		next.PaymentDate = &d
	}
	if in.DeliveryBased != nil {
		next.DeliveryBased = *in.DeliveryBased
		if next.DeliveryBased {
			next.DueDate = nil
		}
	}
	if err := checkPaidPrecondition(next); err != nil {
		return current, err
	}
	return next, nil
}

func checkPaidPrecondition(inst Installment) error {
	if inst.Status != StatusPaid {
		return nil
	}
	if inst.PaymentDate == nil && !inst.DeliveryBased {
		return &ValidationError{Field: "payment_date", Message: "payment date required"}
	}
	return nil
}

// EntersPaid reports whether a write moves an installment into paid.
// A nil from means the row is being created.
func EntersPaid(from *Status, to Status) bool {
	if to != StatusPaid {
		return false
	}
	return from == nil || *from != StatusPaid
}
