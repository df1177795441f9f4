package billing

import (
	"github.com/shopspring/decimal"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// CreateDefinitionRequest represents request to create a billing definition.
type CreateDefinitionRequest struct {
	ClientID      int64           `json:"client_id" validate:"required,gt=0"`
	Description   string          `json:"description" validate:"required,max=500"`
	Amount        decimal.Decimal `json:"amount"`
	DueDay        int             `json:"due_day" validate:"required,min=1,max=31"`
	PaymentMethod string          `json:"payment_method" validate:"omitempty,max=50"`
	StartDate     string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate       *string         `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Installments  int             `json:"installments" validate:"required,min=1,max=600"`
	Status        Status          `json:"status,omitempty" validate:"omitempty,oneof=pending billed awaiting_invoice paid overdue cancelled"`
	EmailTemplate *string         `json:"email_template,omitempty" validate:"omitempty,max=100"`
}

// AppendInstallmentsRequest represents request to grow a definition's schedule.
type AppendInstallmentsRequest struct {
	Count                int              `json:"count" validate:"required,min=1,max=600"`
	PerInstallmentAmount *decimal.Decimal `json:"per_installment_amount,omitempty"`
}

// ChangeDueDayRequest represents request to move the recurrence anchor.
type ChangeDueDayRequest struct {
	DueDay int `json:"due_day" validate:"required,min=1,max=31"`
}

// SetDefinitionStatusRequest toggles a definition between active and inactive.
type SetDefinitionStatusRequest struct {
	Status EffectiveStatus `json:"status" validate:"required,oneof=active inactive"`
}

// SetInstallmentStatusRequest represents a status edit on one installment.
type SetInstallmentStatusRequest struct {
	Status        Status  `json:"status" validate:"required,oneof=pending billed awaiting_invoice paid overdue cancelled partially_paid"`
	PaymentDate   *string `json:"payment_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DeliveryBased *bool   `json:"delivery_based,omitempty"`
}

// CreateInstallmentRequest represents request to record a one-time payment.
type CreateInstallmentRequest struct {
	ClientID      int64           `json:"client_id" validate:"required,gt=0"`
	Description   string          `json:"description" validate:"required,max=500"`
	Amount        decimal.Decimal `json:"amount"`
	DueDate       *string         `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	PaymentDate   *string         `json:"payment_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	PaymentMethod string          `json:"payment_method" validate:"omitempty,max=50"`
	Status        Status          `json:"status,omitempty" validate:"omitempty,oneof=pending billed awaiting_invoice paid overdue cancelled partially_paid"`
	DeliveryBased bool            `json:"delivery_based"`
}

// AppendResult is returned by AppendInstallments.
type AppendResult struct {
	Definition BillingDefinition `json:"definition"`
	Added      []Installment     `json:"added"`
	Total      int               `json:"total"`
}

// StatusChangeResult carries the written installment and an optional sync warning.
type StatusChangeResult struct {
	Installment Installment  `json:"installment"`
	Warning     *SyncWarning `json:"warning,omitempty"`
}

// RepairResult is returned by RepairGroup.
type RepairResult struct {
	DefinitionID int64 `json:"definition_id"`
	Repaired     bool  `json:"repaired"`
	Rows         int   `json:"rows"`
}
