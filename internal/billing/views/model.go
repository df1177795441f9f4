// Package views derives the read-side billing projections from raw rows.
package views

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-billing/internal/billing"
)

// Scope selects which installments a projection covers.
type Scope string

const (
	ScopeOpen   Scope = "open"
	ScopeClosed Scope = "closed"
	ScopeAll    Scope = "all"
)

// Mode selects grouped or per-installment output.
type Mode string

const (
	ModeGrouped  Mode = "grouped"
	ModeExpanded Mode = "expanded"
)

// Filters narrows a projection. Statuses is interpreted per mode: grouped
// mode understands all/active/inactive, expanded mode the full installment
// vocabulary. Unknown values are ignored.
type Filters struct {
	Statuses     []string `json:"statuses,omitempty"`
	Search       string   `json:"search,omitempty"`
	DeliveryOnly bool     `json:"delivery_only,omitempty"`
}

// ProjectionInput is the raw data a projection is computed from.
type ProjectionInput struct {
	Definitions  []billing.BillingDefinition
	Installments []billing.Installment
	ClientNames  map[int64]string
}

// VirtualBillingView is one display row. It is never persisted.
type VirtualBillingView struct {
	Key                 string           `json:"key"`
	Scope               Scope            `json:"scope"`
	Mode                Mode             `json:"mode"`
	BillingDefinitionID *int64           `json:"billing_definition_id,omitempty"`
	ClientID            int64            `json:"client_id"`
	ClientName          string           `json:"client_name"`
	Description         string           `json:"description"`
	Amount              decimal.Decimal  `json:"amount"`
	CurrentInstallment  int              `json:"current_installment"`
	Installments        int              `json:"installments"`
	Status              billing.Status   `json:"status"`
	MemberStatuses      []billing.Status `json:"member_statuses"`
	InstallmentIDs      []int64          `json:"installment_ids"`
	DueDay              int              `json:"due_day,omitempty"`
	DueDate             *time.Time       `json:"due_date,omitempty"`
	PaymentDate         *time.Time       `json:"payment_date,omitempty"`
	EarliestDate        *time.Time       `json:"earliest_date,omitempty"`
	DeliveryBased       bool             `json:"delivery_based"`
}
