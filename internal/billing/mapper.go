package billing

import (
	"strings"
	"time"
)

// ToDefinition maps CreateDefinitionRequest to a domain BillingDefinition.
func (r CreateDefinitionRequest) ToDefinition() (BillingDefinition, error) {
	start, err := parseDate("start_date", r.StartDate)
	if err != nil {
		return BillingDefinition{}, err
	}
	end, err := parseOptionalDate("end_date", r.EndDate)
	if err != nil {
		return BillingDefinition{}, err
	}
	status := r.Status
	if status == "" {
		status = StatusPending
	}
	return BillingDefinition{
		ClientID:      r.ClientID,
		Description:   StripInstallmentSuffix(r.Description),
		Amount:        r.Amount,
		DueDay:        r.DueDay,
		PaymentMethod: r.PaymentMethod,
		StartDate:     start,
		EndDate:       end,
		Installments:  r.Installments,
		Status:        status,
		EmailTemplate: r.EmailTemplate,
	}, nil
}

// ToInstallment maps CreateInstallmentRequest to a one-time Installment.
func (r CreateInstallmentRequest) ToInstallment() (Installment, error) {
	due, err := parseOptionalDate("due_date", r.DueDate)
	if err != nil {
		return Installment{}, err
	}
	paid, err := parseOptionalDate("payment_date", r.PaymentDate)
	if err != nil {
		return Installment{}, err
	}
	status := r.Status
	if status == "" {
		status = StatusPending
	}
	inst := Installment{
		ClientID:      r.ClientID,
		Description:   strings.TrimSpace(r.Description),
		Amount:        r.Amount,
		DueDate:       due,
		PaymentDate:   paid,
		PaymentMethod: r.PaymentMethod,
		Status:        status,
		DeliveryBased: r.DeliveryBased,
	}
	if inst.DeliveryBased {
		inst.DueDate = nil
	}
	return inst, nil
}

// ToTransitionInput maps SetInstallmentStatusRequest to the validator's input.
func (r SetInstallmentStatusRequest) ToTransitionInput() (TransitionInput, error) {
	paid, err := parseOptionalDate("payment_date", r.PaymentDate)
	if err != nil {
		return TransitionInput{}, err
	}
	return TransitionInput{PaymentDate: paid, DeliveryBased: r.DeliveryBased}, nil
}

// ToCashFlowSyncRequest builds the sync payload for an installment entering paid.
func ToCashFlowSyncRequest(inst Installment, old *Status) CashFlowSyncRequest {
	req := CashFlowSyncRequest{
		InstallmentID: inst.ID,
		OldStatus:     old,
		NewStatus:     StatusPaid,
		Description:   inst.Description,
		Amount:        inst.Amount,
		PaymentDate:   inst.PaymentDate,
		ClientID:      inst.ClientID,
	}
	if inst.DeliveryBased {
		req.PaymentDate = nil
	}
	return req
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, validationf(field, "expected YYYY-MM-DD, got %q", value)
	}
	return t, nil
}

func parseOptionalDate(field string, value *string) (*time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	t, err := parseDate(field, *value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
