// Package billing implements recurring billing definitions and their installment schedules.
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is shared by billing definitions and installments.
type Status string

const (
	StatusPending         Status = "pending"
	StatusBilled          Status = "billed"
	StatusAwaitingInvoice Status = "awaiting_invoice"
	StatusPaid            Status = "paid"
	StatusOverdue         Status = "overdue"
	StatusCancelled       Status = "cancelled"
	StatusPartiallyPaid   Status = "partially_paid" // installments only
)

// AllStatuses lists the installment vocabulary in display order.
var AllStatuses = []Status{
	StatusPending,
	StatusBilled,
	StatusAwaitingInvoice,
	StatusPaid,
	StatusOverdue,
	StatusCancelled,
	StatusPartiallyPaid,
}

// IsValid reports whether s is a known installment status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusBilled, StatusAwaitingInvoice, StatusPaid,
		StatusOverdue, StatusCancelled, StatusPartiallyPaid:
		return true
	default:
		return false
	}
}

// IsValidForDefinition reports whether s may be stored on a billing definition.
func (s Status) IsValidForDefinition() bool {
	return s.IsValid() && s != StatusPartiallyPaid
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// IsMovable reports whether an installment in this status may have its due date moved.
func (s Status) IsMovable() bool {
	switch s {
	case StatusPending, StatusOverdue, StatusBilled, StatusAwaitingInvoice, StatusPartiallyPaid:
		return true
	default:
		return false
	}
}

// EffectiveStatus is the two-value display model of a billing definition.
type EffectiveStatus string

const (
	EffectiveActive   EffectiveStatus = "active"
	EffectiveInactive EffectiveStatus = "inactive"
)

// Effective maps a stored definition status onto active/inactive.
func (s Status) Effective() EffectiveStatus {
	if s == StatusCancelled {
		return EffectiveInactive
	}
	return EffectiveActive
}

// StoredStatus maps active/inactive back to the stored value.
func (e EffectiveStatus) StoredStatus() Status {
	if e == EffectiveInactive {
		return StatusCancelled
	}
	return StatusPending
}

// BillingDefinition is a recurring or multi-installment charging agreement.
type BillingDefinition struct {
	ID                 int64           `json:"id" db:"id"`
	ClientID           int64           `json:"client_id" db:"client_id"`
	Description        string          `json:"description" db:"description"`
	Amount             decimal.Decimal `json:"amount" db:"amount"`
	DueDay             int             `json:"due_day" db:"due_day"`
	PaymentMethod      string          `json:"payment_method" db:"payment_method"`
	StartDate          time.Time       `json:"start_date" db:"start_date"`
	EndDate            *time.Time      `json:"end_date,omitempty" db:"end_date"`
	Installments       int             `json:"installments" db:"installments"`
	CurrentInstallment int             `json:"current_installment" db:"current_installment"`
	Status             Status          `json:"status" db:"status"`
	EmailTemplate      *string         `json:"email_template,omitempty" db:"email_template"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the definition displays as active.
func (d BillingDefinition) IsActive() bool {
	return d.Status.Effective() == EffectiveActive
}

// Installment is one concrete, dated, trackable charge.
type Installment struct {
	ID                  int64           `json:"id" db:"id"`
	BillingDefinitionID *int64          `json:"billing_definition_id,omitempty" db:"billing_definition_id"`
	ClientID            int64           `json:"client_id" db:"client_id"`
	Description         string          `json:"description" db:"description"`
	Amount              decimal.Decimal `json:"amount" db:"amount"`
	DueDate             *time.Time      `json:"due_date,omitempty" db:"due_date"`
	PaymentDate         *time.Time      `json:"payment_date,omitempty" db:"payment_date"`
	PaymentMethod       string          `json:"payment_method" db:"payment_method"`
	Status              Status          `json:"status" db:"status"`
	InstallmentNumber   *int            `json:"installment_number,omitempty" db:"installment_number"`
	TotalInstallments   *int            `json:"total_installments,omitempty" db:"total_installments"`
	DeliveryBased       bool            `json:"delivery_based" db:"delivery_based"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`
}

// Number returns the installment number or zero when unset.
func (i Installment) Number() int {
	if i.InstallmentNumber == nil {
		return 0
	}
	return *i.InstallmentNumber
}

// Total returns the group total or zero when unset.
func (i Installment) Total() int {
	if i.TotalInstallments == nil {
		return 0
	}
	return *i.TotalInstallments
}

// DefinitionID returns the owning definition ID or zero for one-time payments.
func (i Installment) DefinitionID() int64 {
	if i.BillingDefinitionID == nil {
		return 0
	}
	return *i.BillingDefinitionID
}

// InstallmentFilter narrows ListInstallments.
type InstallmentFilter struct {
	BillingDefinitionID *int64
	ClientID            *int64
	Statuses            []Status
	OnlyOneTime         bool
}

// DefinitionWithInstallments bundles a definition with its group.
type DefinitionWithInstallments struct {
	BillingDefinition
	Rows []Installment `json:"installments_rows"`
}
