package billing

import (
	"strings"
)

// ValidateCreateDefinitionRequest validates create request.
func ValidateCreateDefinitionRequest(req CreateDefinitionRequest) error {
	if req.ClientID <= 0 {
		return validationf("client_id", "required")
	}
	if strings.TrimSpace(req.Description) == "" {
		return validationf("description", "required")
	}
	if !req.Amount.IsPositive() {
		return validationf("amount", "must be positive")
	}
	if req.DueDay < 1 || req.DueDay > 31 {
		return validationf("due_day", "must be between 1 and 31, got %d", req.DueDay)
	}
	if req.Installments < 1 {
		return validationf("installments", "must be at least 1, got %d", req.Installments)
	}
	if req.Status != "" && !req.Status.IsValidForDefinition() {
		return validationf("status", "unknown status %q", req.Status)
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return err
	}
	if req.EndDate != nil {
		end, err := parseDate("end_date", *req.EndDate)
		if err != nil {
			return err
		}
		if end.Before(start) {
			return validationf("end_date", "must not be before start_date")
		}
	}
	return nil
}

// ValidateCreateInstallmentRequest validates a one-time payment.
func ValidateCreateInstallmentRequest(req CreateInstallmentRequest) error {
	if req.ClientID <= 0 {
		return validationf("client_id", "required")
	}
	if strings.TrimSpace(req.Description) == "" {
		return validationf("description", "required")
	}
	if !req.Amount.IsPositive() {
		return validationf("amount", "must be positive")
	}
	if req.Status != "" && !req.Status.IsValid() {
		return validationf("status", "unknown status %q", req.Status)
	}
	if req.DueDate != nil {
		if _, err := parseDate("due_date", *req.DueDate); err != nil {
			return err
		}
	}
	if req.PaymentDate != nil {
		if _, err := parseDate("payment_date", *req.PaymentDate); err != nil {
			return err
		}
	}
	return nil
}
