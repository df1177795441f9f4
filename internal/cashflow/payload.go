package cashflow

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-billing/internal/billing"
)

// Entry is the JSON body delivered to the cash-flow webhook.
type Entry struct {
	IdempotencyKey string          `json:"idempotency_key"`
	InstallmentID  int64           `json:"installment_id"`
	OldStatus      *string         `json:"old_status"`
	NewStatus      string          `json:"new_status"`
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentDate    *string         `json:"payment_date"`
	ClientID       int64           `json:"client_id"`
}

// NewEntry maps a sync request onto the webhook payload.
func NewEntry(req billing.CashFlowSyncRequest) Entry {
	entry := Entry{
		InstallmentID: req.InstallmentID,
		NewStatus:     string(req.NewStatus),
		Description:   req.Description,
		Amount:        req.Amount,
		ClientID:      req.ClientID,
	}
	if req.OldStatus != nil {
		old := string(*req.OldStatus)
		entry.OldStatus = &old
	}
	if req.PaymentDate != nil {
		d := req.PaymentDate.Format(billing.DateLayout)
		entry.PaymentDate = &d
	}
	entry.IdempotencyKey = IdempotencyKey(entry).String()
	return entry
}

// IdempotencyKey is stable for the same settlement so redelivery is harmless.
func IdempotencyKey(e Entry) uuid.UUID {
	paid := "delivery"
	if e.PaymentDate != nil {
		paid = *e.PaymentDate
	}
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("CASHFLOW:%d:%s:%s", e.InstallmentID, e.NewStatus, paid)))
}
