package billing

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// GenerateResult holds the rows produced by Generate.
type GenerateResult struct {
	// New rows to insert, numbered from..from+count-1.
	New []Installment
	// Renumbered are copies of the existing siblings carrying the new grand total.
	Renumbered []Installment
	// Total is the group's new grand total.
	Total int
}

// CheckGroup verifies rows form a contiguous 1..N sequence that agrees on N.
func CheckGroup(definitionID int64, rows []Installment) error {
	if len(rows) == 0 {
		return nil
	}
	total := rows[0].Total()
	seen := make(map[int]struct{}, len(rows))
	for _, row := range rows {
		n := row.Number()
		if n < 1 || n > len(rows) {
			return &InconsistentGroupError{
				DefinitionID: definitionID,
				Reason:       fmt.Sprintf("installment number %d outside 1..%d", n, len(rows)),
			}
		}
		if _, dup := seen[n]; dup {
			return &InconsistentGroupError{
				DefinitionID: definitionID,
				Reason:       fmt.Sprintf("installment number %d appears more than once", n),
			}
		}
		seen[n] = struct{}{}
		if row.Total() != total {
			return &InconsistentGroupError{
				DefinitionID: definitionID,
				Reason:       fmt.Sprintf("mixed totals %d and %d", total, row.Total()),
			}
		}
	}
	if total != len(rows) {
		return &InconsistentGroupError{
			DefinitionID: definitionID,
			Reason:       fmt.Sprintf("total %d does not match %d rows", total, len(rows)),
		}
	}
	return nil
}

// Generate produces count installments for def starting at installment number from.
// existing are the group's current rows; they must already be consistent.
func Generate(def BillingDefinition, existing []Installment, count, from int, perInstallmentAmount *decimal.Decimal) (GenerateResult, error) {
	if count < 1 {
		return GenerateResult{}, validationf("count", "must be at least 1, got %d", count)
	}
	if from < 1 {
		return GenerateResult{}, validationf("from_installment_number", "must be at least 1, got %d", from)
	}
	if def.DueDay < 1 || def.DueDay > 31 {
		return GenerateResult{}, validationf("due_day", "must be between 1 and 31, got %d", def.DueDay)
	}
	if err := CheckGroup(def.ID, existing); err != nil {
		return GenerateResult{}, err
	}
	if from != len(existing)+1 {
		return GenerateResult{}, validationf("from_installment_number", "expected %d, got %d", len(existing)+1, from)
	}

	amount := def.Amount
	if perInstallmentAmount != nil {
		amount = *perInstallmentAmount
	}
	if !amount.IsPositive() {
		return GenerateResult{}, validationf("amount", "must be positive")
	}

	sorted := sortedByNumber(existing)
	total := from + count - 1
	first := nextDueDate(def, sorted)
	base := StripInstallmentSuffix(def.Description)

	result := GenerateResult{
		New:        make([]Installment, 0, count),
		Renumbered: make([]Installment, 0, len(sorted)),
		Total:      total,
	}
	for i := 0; i < count; i++ {
		number := from + i
		due := AddMonths(first, i, def.DueDay)
		row := Installment{
			ClientID:          def.ClientID,
			Description:       RenderInstallmentDescription(base, number, total),
			Amount:            amount,
			DueDate:           &due,
			PaymentMethod:     def.PaymentMethod,
			Status:            StatusPending,
			InstallmentNumber: intPtr(number),
			TotalInstallments: intPtr(total),
		}
		if def.ID != 0 {
			row.BillingDefinitionID = int64Ptr(def.ID)
		}
		result.New = append(result.New, row)
	}
	for _, sibling := range sorted {
		sibling.TotalInstallments = intPtr(total)
		sibling.Description = RenderInstallmentDescription(base, sibling.Number(), total)
		result.Renumbered = append(result.Renumbered, sibling)
	}
	return result, nil
}

// nextDueDate is one month after the last sibling, counted from the last dated
// sibling, or the first due date on or after the definition's start date.
func nextDueDate(def BillingDefinition, sorted []Installment) time.Time {
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].DueDate != nil {
			return AddMonths(*sorted[i].DueDate, len(sorted)-i, def.DueDay)
		}
	}
	return FirstDueDate(def.StartDate, def.DueDay)
}

func sortedByNumber(rows []Installment) []Installment {
	out := make([]Installment, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Number() < out[j].Number()
	})
	return out
}

func intPtr(v int) *int {
	return &v
}

func int64Ptr(v int64) *int64 {
	return &v
}
